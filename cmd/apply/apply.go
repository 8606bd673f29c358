package apply

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	plancmd "github.com/EffortlessMetrics/buildfix/cmd/plan"
	applier "github.com/EffortlessMetrics/buildfix/internal/apply"
	"github.com/EffortlessMetrics/buildfix/internal/plan"
	"github.com/EffortlessMetrics/buildfix/internal/report"
	"github.com/EffortlessMetrics/buildfix/pkg/shared/artifacts"
	"github.com/EffortlessMetrics/buildfix/pkg/shared/config"
	"github.com/EffortlessMetrics/buildfix/pkg/shared/errors"
	"github.com/EffortlessMetrics/buildfix/pkg/shared/files"
	"github.com/EffortlessMetrics/buildfix/pkg/shared/logger"
)

// RunOptionsApply holds the arguments for the apply command.
type RunOptionsApply struct {
	RepoRoot  string
	OutputDir string

	DryRun       bool
	AllowGuarded bool
	AllowUnsafe  bool
	AllowDirty   bool
	Params       []string

	NoBackup     bool
	BackupDir    string
	BackupSuffix string
}

var (
	AppConfig         *config.Config
	applyOptions      RunOptionsApply
	exampleApplyUsage = `  # Verify and apply the plan in ./artifacts/buildfix
  buildfix apply

  # Rehearse without writing anything
  buildfix apply --dry-run

  # Apply including guarded fixes
  buildfix apply --allow-guarded

  # Apply an unsafe fix with its required parameter
  buildfix apply --allow-unsafe --param version=0.3.1`
)

// ApplyCmd represents the apply command.
var ApplyCmd = &cobra.Command{
	Use:                   "apply [--out PATH] [--repo-root PATH] [flags]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               exampleApplyUsage,
	Short:                 "Verifies a plan's preconditions and writes its edits to the repository",
	RunE:                  runApplyCommand,
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

func runApplyCommand(_ *cobra.Command, _ []string) error {
	log := logger.NewLogger(AppConfig, "core-apply")

	outDir := applyOptions.OutputDir
	if outDir == "" {
		outDir = AppConfig.Output.OutDir
	}

	planPath := filepath.Join(outDir, artifacts.PlanFile)
	planBytes, err := os.ReadFile(planPath)
	if err != nil {
		log.Error("failed to read plan", "path", planPath, "error", err)
		return fmt.Errorf("read plan %q: %w", planPath, err)
	}

	var p plan.Plan
	if err := json.Unmarshal(planBytes, &p); err != nil {
		log.Error("malformed plan artifact", "path", planPath, "error", err)
		return fmt.Errorf("parse plan %q: %w", planPath, err)
	}
	if p.Schema != plan.SchemaPlanV1 {
		return fmt.Errorf("plan %q has unsupported schema %q", planPath, p.Schema)
	}

	params, err := plancmd.ParseParams(applyOptions.Params)
	if err != nil {
		return err
	}

	backupDir := applyOptions.BackupDir
	if backupDir == "" {
		backupDir = AppConfig.Backup.Dir
	}
	if backupDir == "" {
		backupDir = filepath.Join(outDir, "backups")
	}
	backupSuffix := applyOptions.BackupSuffix
	if backupSuffix == "" {
		backupSuffix = AppConfig.Backup.Suffix
	}

	a := &applier.Applier{Root: applyOptions.RepoRoot, Logger: log}
	rec, err := a.Run(&p, applier.PlanRef{
		Path:   filepath.ToSlash(planPath),
		Sha256: files.Sha256Hex(planBytes),
	}, applier.Options{
		DryRun:        applyOptions.DryRun,
		AllowGuarded:  applyOptions.AllowGuarded || AppConfig.Policy.AllowGuarded,
		AllowUnsafe:   applyOptions.AllowUnsafe || AppConfig.Policy.AllowUnsafe,
		AllowDirty:    applyOptions.AllowDirty || AppConfig.Policy.AllowDirty,
		Params:        params,
		BackupEnabled: AppConfig.Backup.Enabled && !applyOptions.NoBackup,
		BackupDir:     backupDir,
		BackupSuffix:  backupSuffix,
	})
	if err != nil {
		log.Error("apply failed", "error", err)
		return err
	}

	if _, err := artifacts.SaveJSON(log, outDir, artifacts.ApplyFile, rec); err != nil {
		return err
	}
	rep := report.FromApply(rec, nil, applyOptions.DryRun)
	if _, err := artifacts.SaveJSON(log, outDir, artifacts.ReportFile, rep); err != nil {
		return err
	}

	log.Info("apply complete",
		"attempted", rec.Summary.Attempted,
		"applied", rec.Summary.Applied,
		"blocked", rec.Summary.Blocked,
		"failed", rec.Summary.Failed)

	if rec.AnyFailed() {
		return errors.NewCommandError(fmt.Errorf("%d operation(s) failed", rec.Summary.Failed), errors.ExitToolError)
	}
	if !applyOptions.DryRun && rec.PolicyBlocked() {
		return errors.NewPolicyBlockError("apply was gated")
	}
	return nil
}

// Initialize flags for the apply command.
func init() {
	ApplyCmd.Flags().StringVar(&applyOptions.RepoRoot, "repo-root", ".", "Path to the repository root the plan was computed against.")
	ApplyCmd.Flags().StringVarP(&applyOptions.OutputDir, "out", "o", "", "Directory holding plan.json; apply.json and report.json land here too.")
	ApplyCmd.Flags().BoolVar(&applyOptions.DryRun, "dry-run", false, "Verify and compute edits without writing files.")
	ApplyCmd.Flags().BoolVar(&applyOptions.AllowGuarded, "allow-guarded", false, "Allow guarded operations.")
	ApplyCmd.Flags().BoolVar(&applyOptions.AllowUnsafe, "allow-unsafe", false, "Allow unsafe operations (requires the relevant --param values).")
	ApplyCmd.Flags().BoolVar(&applyOptions.AllowDirty, "allow-dirty", false, "Apply even when the working tree is dirty.")
	ApplyCmd.Flags().StringArrayVar(&applyOptions.Params, "param", nil, "User-supplied fix parameter, key=value. Repeatable.")
	ApplyCmd.Flags().BoolVar(&applyOptions.NoBackup, "no-backup", false, "Skip writing backups before modifying files.")
	ApplyCmd.Flags().StringVar(&applyOptions.BackupDir, "backup-dir", "", "Directory for backups (default <out>/backups).")
	ApplyCmd.Flags().StringVar(&applyOptions.BackupSuffix, "backup-suffix", "", "Suffix appended to backup files.")
}
