// Package version carries build identification injected at link time.
package version

import "github.com/EffortlessMetrics/buildfix/internal/plan"

// Version is overridden via -ldflags at release build time.
var Version = "0.1.0-dev"

// ToolName identifies buildfix in every artifact it emits.
const ToolName = "buildfix"

// Tool returns the tool stamp recorded in plans, apply records, and reports.
func Tool() plan.ToolInfo {
	return plan.ToolInfo{Name: ToolName, Version: Version}
}
