package cmd

import (
	goerrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	applycmd "github.com/EffortlessMetrics/buildfix/cmd/apply"
	fixerscmd "github.com/EffortlessMetrics/buildfix/cmd/fixers"
	plancmd "github.com/EffortlessMetrics/buildfix/cmd/plan"
	versioncmd "github.com/EffortlessMetrics/buildfix/cmd/version"
	"github.com/EffortlessMetrics/buildfix/pkg/shared/config"
	"github.com/EffortlessMetrics/buildfix/pkg/shared/errors"
)

var (
	cfgFile   string
	AppConfig *config.Config
	rootCmd   = &cobra.Command{
		Use:                   "buildfix [command]",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "Buildfix turns sensor receipts into a reviewed, reversible manifest repair plan.",
		Long: `Buildfix ingests diagnostic receipts emitted by external sensors and produces
a deterministic, safety-classified repair plan for workspace manifests. An
optional apply phase writes the plan back under drift detection and policy
gates.`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is buildfix.yml)")
	rootCmd.AddCommand(plancmd.PlanCmd)
	rootCmd.AddCommand(applycmd.ApplyCmd)
	rootCmd.AddCommand(fixerscmd.FixersCmd)
	rootCmd.AddCommand(versioncmd.NewVersionCmd())
}

// Execute runs the CLI and returns the process exit code: 0 for success,
// 2 for policy blocks, 1 for tool errors.
func Execute() int {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	if err := rootCmd.Execute(); err != nil {
		var cmdErr *errors.CommandError
		if goerrors.As(err, &cmdErr) {
			return cmdErr.ExitCode
		}
		return errors.ExitToolError
	}
	return errors.ExitOK
}

func initConfig() {
	var err error

	if cfgFile == "" {
		cfgFile = "buildfix.yml"
	}
	AppConfig, err = config.NewConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %q: %v\n", cfgFile, err)
		os.Exit(errors.ExitToolError)
	}

	plancmd.Init(AppConfig)
	applycmd.Init(AppConfig)
}
