// Package sarif converts plans to SARIF 2.1.0 so planned fixes can flow into
// code-scanning UIs. Like the report envelope, the SARIF surface is outside
// the deterministic artifact set.
package sarif

import (
	"fmt"
	"os"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/EffortlessMetrics/buildfix/internal/plan"
)

const informationURI = "https://github.com/EffortlessMetrics/buildfix"

// FromPlan renders one SARIF run per plan: one result per operation, with
// the fix key as the rule id.
func FromPlan(p *plan.Plan) (*sarif.Report, error) {
	reportSarif, err := sarif.New(sarif.Version210)
	if err != nil {
		return nil, fmt.Errorf("failed to create SARIF report: %w", err)
	}

	run := sarif.NewRunWithInformationURI(p.Tool.Name, informationURI)

	for i := range p.Ops {
		op := &p.Ops[i]

		rule := run.AddRule(op.Rationale.FixKey).
			WithDescription(op.Rationale.Description).
			WithDefaultConfiguration(&sarif.ReportingConfiguration{
				Level: levelFor(op),
			})

		location := sarif.NewLocation().WithPhysicalLocation(
			sarif.NewPhysicalLocation().
				WithArtifactLocation(sarif.NewArtifactLocation().WithUri(op.TargetPath)).
				WithRegion(sarif.NewRegion().WithStartLine(lineFor(op))),
		)

		result := sarif.NewRuleResult(rule.ID).
			WithMessage(sarif.NewTextMessage(messageFor(op))).
			WithLevel(levelFor(op)).
			WithLocations([]*sarif.Location{location})
		run.AddResult(result)
	}

	reportSarif.AddRun(run)
	return reportSarif, nil
}

// WritePlan writes the SARIF rendering of a plan to path.
func WritePlan(p *plan.Plan, path string) error {
	reportSarif, err := FromPlan(p)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("error writing SARIF report: %w", err)
	}
	defer func() { _ = file.Close() }()

	return reportSarif.PrettyWrite(file)
}

func levelFor(op *plan.Operation) string {
	if op.Blocked {
		return "warning"
	}
	switch op.Safety {
	case plan.SafetySafe:
		return "note"
	case plan.SafetyGuarded:
		return "warning"
	default:
		return "error"
	}
}

func lineFor(op *plan.Operation) int {
	for _, f := range op.Rationale.Findings {
		if f.Line > 0 {
			return int(f.Line)
		}
	}
	return 1
}

func messageFor(op *plan.Operation) string {
	msg := op.Rationale.Description
	if msg == "" {
		msg = op.Rationale.FixKey
	}
	if op.Blocked {
		return fmt.Sprintf("%s (blocked: %s)", msg, op.BlockedReason)
	}
	return msg
}
