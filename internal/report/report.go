// Package report builds the buildfix.report.v1 envelope. The envelope is the
// one artifact allowed to carry wall-clock data; it is excluded from
// determinism comparisons.
package report

import (
	"fmt"
	"time"

	"github.com/EffortlessMetrics/buildfix/internal/apply"
	"github.com/EffortlessMetrics/buildfix/internal/plan"
	"github.com/EffortlessMetrics/buildfix/internal/receipt"
)

type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

type Report struct {
	Schema       string                 `json:"schema"`
	Tool         plan.ToolInfo          `json:"tool"`
	Run          RunInfo                `json:"run"`
	Verdict      Verdict                `json:"verdict"`
	Findings     []Finding              `json:"findings,omitempty"`
	Capabilities Capabilities           `json:"capabilities"`
	Data         map[string]interface{} `json:"data,omitempty"`
}

type RunInfo struct {
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at,omitempty"`
}

type Verdict struct {
	Status  Status   `json:"status"`
	Counts  Counts   `json:"counts"`
	Reasons []string `json:"reasons,omitempty"`
}

type Counts struct {
	Info  uint64 `json:"info"`
	Warn  uint64 `json:"warn"`
	Error uint64 `json:"error"`
}

type Finding struct {
	Severity string `json:"severity"`
	CheckID  string `json:"check_id,omitempty"`
	Code     string `json:"code"`
	Message  string `json:"message,omitempty"`
}

// Capabilities implements the "no green by omission" pattern: the report
// names the inputs it saw and the ones it could not use, so an empty plan
// built from zero usable inputs never reads as a pass.
type Capabilities struct {
	InputsAvailable []string               `json:"inputs_available"`
	InputsFailed    []receipt.InputFailure `json:"inputs_failed,omitempty"`
}

func capabilitiesFrom(set *receipt.Set) Capabilities {
	caps := Capabilities{InputsAvailable: []string{}}
	for _, in := range set.Inputs {
		failed := false
		for _, f := range set.Failed {
			if f.Path == in.Path {
				failed = true
				break
			}
		}
		if !failed {
			caps.InputsAvailable = append(caps.InputsAvailable, in.Path)
		}
	}
	caps.InputsFailed = set.Failed
	return caps
}

func failureFindings(set *receipt.Set) []Finding {
	var out []Finding
	for _, f := range set.Failed {
		out = append(out, Finding{
			Severity: "warn",
			CheckID:  "inputs",
			Code:     "receipt_load_failed",
			Message:  fmt.Sprintf("receipt failed to load: %s (%s)", f.Path, f.Reason),
		})
	}
	return out
}

func newRun() RunInfo {
	now := time.Now().UTC().Format(time.RFC3339)
	return RunInfo{StartedAt: now, EndedAt: now}
}

// FromPlan maps a planning outcome onto the envelope. Pass: empty plan, at
// least one usable input, and no failed inputs. Anything else is at least a
// warn.
func FromPlan(p *plan.Plan, set *receipt.Set) *Report {
	caps := capabilitiesFrom(set)

	status := StatusPass
	var reasons []string

	if len(set.Failed) > 0 {
		status = StatusWarn
		reasons = append(reasons, "partial_inputs")
	}
	if len(p.Ops) > 0 {
		status = StatusWarn
		reasons = append(reasons, "fixes_planned")
	}
	if len(p.Ops) == 0 && len(caps.InputsAvailable) == 0 {
		status = StatusWarn
		reasons = append(reasons, "no_inputs")
	}

	return &Report{
		Schema: plan.SchemaReportV1,
		Tool:   p.Tool,
		Run:    newRun(),
		Verdict: Verdict{
			Status:  status,
			Counts:  Counts{Warn: uint64(len(p.Ops) + len(set.Failed))},
			Reasons: reasons,
		},
		Findings:     failureFindings(set),
		Capabilities: caps,
		Data: map[string]interface{}{
			"ops_total":     p.Summary.OpsTotal,
			"ops_blocked":   p.Summary.OpsBlocked,
			"files_touched": p.Summary.FilesTouched,
			"patch_bytes":   p.Summary.PatchBytes,
		},
	}
}

// FromApply maps an apply attempt onto the envelope. Fail: any failed result
// or a precondition mismatch outside a dry run. Warn: blocked or skipped
// operations remain. Pass: everything applied (or there was nothing to do).
func FromApply(rec *apply.Record, set *receipt.Set, dryRun bool) *Report {
	var caps Capabilities
	var findings []Finding
	if set != nil {
		caps = capabilitiesFrom(set)
		findings = failureFindings(set)
	} else {
		caps = Capabilities{InputsAvailable: []string{}}
	}

	status := StatusPass
	var reasons []string

	switch {
	case rec.AnyFailed():
		status = StatusFail
		reasons = append(reasons, "apply_failed")
	case !rec.Preconditions.Verified && !dryRun:
		status = StatusFail
		reasons = append(reasons, "preconditions_mismatch")
	case rec.Summary.Blocked > 0:
		status = StatusWarn
		reasons = append(reasons, "fixes_blocked")
	case dryRun && rec.Summary.Attempted > 0:
		status = StatusWarn
		reasons = append(reasons, plan.ReasonApplyDisabled)
	}

	return &Report{
		Schema: plan.SchemaReportV1,
		Tool:   rec.Tool,
		Run:    newRun(),
		Verdict: Verdict{
			Status: status,
			Counts: Counts{
				Warn:  rec.Summary.Blocked,
				Error: rec.Summary.Failed,
			},
			Reasons: reasons,
		},
		Findings:     findings,
		Capabilities: caps,
		Data: map[string]interface{}{
			"attempted":      rec.Summary.Attempted,
			"applied":        rec.Summary.Applied,
			"blocked":        rec.Summary.Blocked,
			"failed":         rec.Summary.Failed,
			"files_modified": rec.Summary.FilesModified,
		},
	}
}
