package fixers

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/EffortlessMetrics/buildfix/internal/fixer"
)

// FixersCmd lists the built-in fixer registry.
var FixersCmd = &cobra.Command{
	Use:                   "fixers",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Short:                 "Lists the built-in fixers, their routing, and their nominal safety class",
	RunE:                  runFixersCommand,
}

func runFixersCommand(cmd *cobra.Command, _ []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FIX KEY\tSAFETY\tSENSORS\tCHECK IDS\tDESCRIPTION")
	for _, meta := range fixer.BuiltinMetas() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			meta.FixKey,
			meta.Safety,
			strings.Join(meta.ConsumesSensors, ","),
			strings.Join(meta.ConsumesCheckIDs, ","),
			meta.Description,
		)
	}
	return w.Flush()
}
