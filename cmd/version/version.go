package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/EffortlessMetrics/buildfix/internal/version"
)

// NewVersionCmd builds the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:                   "version",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "Prints the buildfix version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", version.ToolName, version.Version)
			return nil
		},
	}
}
