package plan

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/EffortlessMetrics/buildfix/internal/gitmeta"
	"github.com/EffortlessMetrics/buildfix/internal/planner"
	"github.com/EffortlessMetrics/buildfix/internal/policy"
	"github.com/EffortlessMetrics/buildfix/internal/receipt"
	"github.com/EffortlessMetrics/buildfix/internal/repo"
	"github.com/EffortlessMetrics/buildfix/internal/report"
	buildfixsarif "github.com/EffortlessMetrics/buildfix/internal/sarif"
	"github.com/EffortlessMetrics/buildfix/internal/version"
	"github.com/EffortlessMetrics/buildfix/pkg/shared/artifacts"
	"github.com/EffortlessMetrics/buildfix/pkg/shared/config"
	"github.com/EffortlessMetrics/buildfix/pkg/shared/errors"
	"github.com/EffortlessMetrics/buildfix/pkg/shared/logger"
)

// RunOptionsPlan holds the arguments for the plan command.
type RunOptionsPlan struct {
	RepoRoot     string
	ArtifactsDir string
	OutputDir    string

	Allow        []string
	Deny         []string
	AllowGuarded bool
	AllowUnsafe  bool
	AllowDirty   bool
	MaxOps       uint64
	MaxFiles     uint64
	MaxPatchB    uint64
	Params       []string

	GitHeadPrecondition bool
	EmitSarif           bool
}

var (
	AppConfig        *config.Config
	planOptions      RunOptionsPlan
	examplePlanUsage = `  # Plan fixes from receipts in ./artifacts
  buildfix plan

  # Plan against a specific repository and receipts directory
  buildfix plan --repo-root /path/to/repo --artifacts /path/to/artifacts

  # Allow guarded fixes and cap the plan at 10 operations
  buildfix plan --allow-guarded --max-ops 10

  # Restrict planning to one sensor's findings
  buildfix plan --allow 'builddiag/*/*'

  # Supply a value for a fix that cannot derive one
  buildfix plan --allow-unsafe --param version=0.3.1

  # Also emit a SARIF rendering of the plan
  buildfix plan --sarif`
)

// PlanCmd represents the plan command.
var PlanCmd = &cobra.Command{
	Use:                   "plan [--repo-root PATH] [--artifacts PATH] [--out PATH] [flags]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               examplePlanUsage,
	Short:                 "Generates a repair plan from sensor receipts without touching the repository",
	RunE:                  runPlanCommand,
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

func runPlanCommand(cmd *cobra.Command, _ []string) error {
	log := logger.NewLogger(AppConfig, "core-plan")

	pol, err := buildPolicy(cmd, &planOptions, AppConfig)
	if err != nil {
		log.Error("invalid plan arguments", "error", err)
		return err
	}

	artifactsDir := planOptions.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = AppConfig.Output.ArtifactsDir
	}
	outDir := planOptions.OutputDir
	if outDir == "" {
		outDir = AppConfig.Output.OutDir
	}

	view := repo.NewFSView(planOptions.RepoRoot)
	src := receipt.DirSource{Dir: artifactsDir, Logger: log}
	git := gitmeta.Collect(planOptions.RepoRoot)

	outcome, err := planner.New(log).Plan(view, src, git, planner.Options{
		RepoRoot:            planOptions.RepoRoot,
		Policy:              pol,
		Tool:                version.Tool(),
		GitHeadPrecondition: planOptions.GitHeadPrecondition || AppConfig.Policy.GitHeadPrecondition,
	})
	if err != nil {
		log.Error("planning failed", "error", err)
		return err
	}

	if _, err := artifacts.SaveJSON(log, outDir, artifacts.PlanFile, outcome.Plan); err != nil {
		return err
	}
	if _, err := artifacts.SaveRaw(log, outDir, artifacts.PatchFile, []byte(outcome.Patch)); err != nil {
		return err
	}
	rep := report.FromPlan(outcome.Plan, outcome.Receipts)
	if _, err := artifacts.SaveJSON(log, outDir, artifacts.ReportFile, rep); err != nil {
		return err
	}
	if planOptions.EmitSarif {
		if err := buildfixsarif.WritePlan(outcome.Plan, filepath.Join(outDir, artifacts.SarifFile)); err != nil {
			return err
		}
		log.Info("artifact saved to file", "path", filepath.Join(outDir, artifacts.SarifFile))
	}

	log.Info("plan complete",
		"ops", outcome.Plan.Summary.OpsTotal,
		"blocked", outcome.Plan.Summary.OpsBlocked,
		"patch_bytes", outcome.Plan.Summary.PatchBytes)

	if outcome.PolicyBlocked() {
		return errors.NewPolicyBlockError("plan contains blocked operations")
	}
	return nil
}

// buildPolicy merges config defaults with command-line flags; flags win.
func buildPolicy(cmd *cobra.Command, opts *RunOptionsPlan, cfg *config.Config) (*policy.Config, error) {
	pol := &policy.Config{
		Allow:         cfg.Policy.Allow,
		Deny:          cfg.Policy.Deny,
		AllowGuarded:  cfg.Policy.AllowGuarded || opts.AllowGuarded,
		AllowUnsafe:   cfg.Policy.AllowUnsafe || opts.AllowUnsafe,
		AllowDirty:    cfg.Policy.AllowDirty || opts.AllowDirty,
		MaxOps:        cfg.Policy.MaxOps,
		MaxFiles:      cfg.Policy.MaxFiles,
		MaxPatchBytes: cfg.Policy.MaxPatchBytes,
	}

	if len(opts.Allow) > 0 {
		pol.Allow = opts.Allow
	}
	if len(opts.Deny) > 0 {
		pol.Deny = opts.Deny
	}
	if cmd.Flags().Changed("max-ops") {
		v := opts.MaxOps
		pol.MaxOps = &v
	}
	if cmd.Flags().Changed("max-files") {
		v := opts.MaxFiles
		pol.MaxFiles = &v
	}
	if cmd.Flags().Changed("max-patch-bytes") {
		v := opts.MaxPatchB
		pol.MaxPatchBytes = &v
	}

	params, err := ParseParams(opts.Params)
	if err != nil {
		return nil, err
	}
	pol.Params = params

	return pol, nil
}

// ParseParams parses repeated `key=value` arguments.
func ParseParams(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := map[string]string{}
	for _, kv := range raw {
		key, value, found := strings.Cut(kv, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", kv)
		}
		out[key] = value
	}
	return out, nil
}

// Initialize flags for the plan command.
func init() {
	PlanCmd.Flags().StringVar(&planOptions.RepoRoot, "repo-root", ".", "Path to the repository root holding the workspace manifest.")
	PlanCmd.Flags().StringVar(&planOptions.ArtifactsDir, "artifacts", "", "Directory scanned for <sensor>/report.json receipts.")
	PlanCmd.Flags().StringVarP(&planOptions.OutputDir, "out", "o", "", "Directory for plan artifacts (plan.json, patch.diff, report.json).")
	PlanCmd.Flags().StringSliceVar(&planOptions.Allow, "allow", nil, "Allow globs over sensor/check_id/code policy keys.")
	PlanCmd.Flags().StringSliceVar(&planOptions.Deny, "deny", nil, "Deny globs over sensor/check_id/code policy keys.")
	PlanCmd.Flags().BoolVar(&planOptions.AllowGuarded, "allow-guarded", false, "Allow guarded operations.")
	PlanCmd.Flags().BoolVar(&planOptions.AllowUnsafe, "allow-unsafe", false, "Allow unsafe operations (requires the relevant --param values).")
	PlanCmd.Flags().BoolVar(&planOptions.AllowDirty, "allow-dirty", false, "Do not require a clean working tree at apply time.")
	PlanCmd.Flags().Uint64Var(&planOptions.MaxOps, "max-ops", 0, "Cap on the number of unblocked operations.")
	PlanCmd.Flags().Uint64Var(&planOptions.MaxFiles, "max-files", 0, "Cap on the number of files touched.")
	PlanCmd.Flags().Uint64Var(&planOptions.MaxPatchB, "max-patch-bytes", 0, "Cap on the preview patch size in bytes.")
	PlanCmd.Flags().StringArrayVar(&planOptions.Params, "param", nil, "User-supplied fix parameter, key=value. Repeatable.")
	PlanCmd.Flags().BoolVar(&planOptions.GitHeadPrecondition, "git-head-precondition", false, "Pin the plan to the current git HEAD commit.")
	PlanCmd.Flags().BoolVar(&planOptions.EmitSarif, "sarif", false, "Also write a SARIF rendering of the plan.")
}
