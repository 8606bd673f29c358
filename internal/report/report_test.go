package report

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/EffortlessMetrics/buildfix/internal/apply"
	"github.com/EffortlessMetrics/buildfix/internal/plan"
	"github.com/EffortlessMetrics/buildfix/internal/receipt"
)

func emptyPlan() *plan.Plan {
	return &plan.Plan{Schema: plan.SchemaPlanV1, Tool: plan.ToolInfo{Name: "buildfix", Version: "1"}}
}

func setWithInput() *receipt.Set {
	return &receipt.Set{Inputs: []receipt.InputRef{{Path: "artifacts/builddiag/report.json", Schema: "sensor.report.v1"}}}
}

func TestFromPlanPass(t *testing.T) {
	r := FromPlan(emptyPlan(), setWithInput())
	assert.Equal(t, StatusPass, r.Verdict.Status)
	assert.Equal(t, plan.SchemaReportV1, r.Schema)
}

func TestFromPlanNoGreenByOmission(t *testing.T) {
	r := FromPlan(emptyPlan(), &receipt.Set{})
	assert.Equal(t, StatusWarn, r.Verdict.Status)
	assert.Contains(t, r.Verdict.Reasons, "no_inputs")
}

func TestFromPlanOpsWarn(t *testing.T) {
	p := emptyPlan()
	p.Ops = []plan.Operation{{ID: "x"}}
	p.Summary.OpsTotal = 1

	r := FromPlan(p, setWithInput())
	assert.Equal(t, StatusWarn, r.Verdict.Status)
	assert.Contains(t, r.Verdict.Reasons, "fixes_planned")
}

func TestFromPlanPartialInputs(t *testing.T) {
	set := setWithInput()
	set.Inputs = append(set.Inputs, receipt.InputRef{Path: "artifacts/broken/report.json"})
	set.Failed = []receipt.InputFailure{{Path: "artifacts/broken/report.json", Reason: receipt.ReasonJSON}}

	r := FromPlan(emptyPlan(), set)
	assert.Equal(t, StatusWarn, r.Verdict.Status)
	assert.Contains(t, r.Verdict.Reasons, "partial_inputs")
	assert.Len(t, r.Findings, 1)
	assert.Equal(t, []string{"artifacts/builddiag/report.json"}, r.Capabilities.InputsAvailable)
}

func applyRecord() *apply.Record {
	return &apply.Record{
		Schema:        plan.SchemaApplyV1,
		Tool:          plan.ToolInfo{Name: "buildfix", Version: "1"},
		Preconditions: apply.PreconditionVerdict{Verified: true},
	}
}

func TestFromApplyPass(t *testing.T) {
	rec := applyRecord()
	rec.Summary.Attempted = 1
	rec.Summary.Applied = 1
	r := FromApply(rec, setWithInput(), false)
	assert.Equal(t, StatusPass, r.Verdict.Status)
}

func TestFromApplyFailOnFailedResult(t *testing.T) {
	rec := applyRecord()
	rec.Summary.Failed = 1
	r := FromApply(rec, setWithInput(), false)
	assert.Equal(t, StatusFail, r.Verdict.Status)
}

func TestFromApplyFailOnPreconditionMismatch(t *testing.T) {
	rec := applyRecord()
	rec.Preconditions.Verified = false

	r := FromApply(rec, setWithInput(), false)
	assert.Equal(t, StatusFail, r.Verdict.Status)

	// A dry run with the same mismatch only warns at worst.
	r = FromApply(rec, setWithInput(), true)
	assert.NotEqual(t, StatusFail, r.Verdict.Status)
}

func TestFromApplyBlockedWarns(t *testing.T) {
	rec := applyRecord()
	rec.Summary.Blocked = 2
	r := FromApply(rec, setWithInput(), false)
	assert.Equal(t, StatusWarn, r.Verdict.Status)
}

func TestFromApplyDryRunWarns(t *testing.T) {
	rec := applyRecord()
	rec.Summary.Attempted = 1
	r := FromApply(rec, setWithInput(), true)
	assert.Equal(t, StatusWarn, r.Verdict.Status)
	assert.Contains(t, r.Verdict.Reasons, plan.ReasonApplyDisabled)
}
