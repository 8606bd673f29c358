// Package plan defines the buildfix.plan.v1 artifact and the operation model
// shared by the planner, edit engine, and applier.
package plan

import (
	"github.com/EffortlessMetrics/buildfix/internal/receipt"
)

// Schema identifiers for the emitted artifacts.
const (
	SchemaPlanV1   = "buildfix.plan.v1"
	SchemaApplyV1  = "buildfix.apply.v1"
	SchemaReportV1 = "buildfix.report.v1"
)

// SafetyClass of an operation:
//   - safe: fully determined from repo-local truth, low impact
//   - guarded: deterministic but higher impact (requires explicit allow)
//   - unsafe: ambiguous without user-provided inputs (plan-only by default)
type SafetyClass string

const (
	SafetySafe    SafetyClass = "safe"
	SafetyGuarded SafetyClass = "guarded"
	SafetyUnsafe  SafetyClass = "unsafe"
)

// Rationale ties an operation back to the findings that motivated it.
type Rationale struct {
	FixKey      string            `json:"fix_key"`
	Description string            `json:"description,omitempty"`
	Findings    []receipt.Finding `json:"findings,omitempty"`
}

// Operation is a single minimal, reversible manifest edit. Operations are
// never mutated after the planner's sort phase.
type Operation struct {
	ID             string      `json:"id"`
	TargetPath     string      `json:"target_path"`
	Kind           Kind        `json:"kind"`
	Safety         SafetyClass `json:"safety"`
	Blocked        bool        `json:"blocked"`
	BlockedReason  string      `json:"blocked_reason,omitempty"`
	Rationale      Rationale   `json:"rationale"`
	ParamsRequired []string    `json:"params_required,omitempty"`
	Preview        string      `json:"preview,omitempty"`
}

// PolicyKey returns the routing string used for allow/deny matching: the
// first associated finding's sensor/check_id/code, or the fixer's nominal
// fix key when the operation has no findings.
func (o *Operation) PolicyKey() string {
	if len(o.Rationale.Findings) > 0 {
		return o.Rationale.Findings[0].PolicyKey()
	}
	return o.Rationale.FixKey
}

// ToolInfo identifies the producing tool in artifacts.
type ToolInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// RepoInfo captures repository state at artifact time.
type RepoInfo struct {
	Root    string  `json:"root"`
	HeadSHA *string `json:"head_sha,omitempty"`
	Dirty   *bool   `json:"dirty,omitempty"`
}

// PolicySnapshot is the effective policy the plan was computed under.
type PolicySnapshot struct {
	Allow        []string          `json:"allow,omitempty"`
	Deny         []string          `json:"deny,omitempty"`
	AllowGuarded bool              `json:"allow_guarded"`
	AllowUnsafe  bool              `json:"allow_unsafe"`
	AllowDirty   bool              `json:"allow_dirty"`
	MaxOps       *uint64           `json:"max_ops,omitempty"`
	MaxFiles     *uint64           `json:"max_files,omitempty"`
	MaxPatchB    *uint64           `json:"max_patch_bytes,omitempty"`
	Params       map[string]string `json:"params,omitempty"`
}

// FilePrecondition pins the content hash of one target file.
type FilePrecondition struct {
	Path   string `json:"path"`
	Sha256 string `json:"sha256"`
}

// Preconditions must hold at apply time. Dirty is the expected working-tree
// state: recorded as false when the plan requires a clean tree.
type Preconditions struct {
	Files   []FilePrecondition `json:"files"`
	HeadSHA *string            `json:"head_sha,omitempty"`
	Dirty   *bool              `json:"dirty,omitempty"`
}

// Summary totals for the plan.
type Summary struct {
	OpsTotal     uint64 `json:"ops_total"`
	OpsBlocked   uint64 `json:"ops_blocked"`
	FilesTouched uint64 `json:"files_touched"`
	PatchBytes   uint64 `json:"patch_bytes"`
}

// Plan is the complete buildfix.plan.v1 artifact.
type Plan struct {
	Schema        string             `json:"schema"`
	Tool          ToolInfo           `json:"tool"`
	Repo          RepoInfo           `json:"repo"`
	Inputs        []receipt.InputRef `json:"inputs"`
	Policy        PolicySnapshot     `json:"policy"`
	Preconditions Preconditions      `json:"preconditions"`
	Ops           []Operation        `json:"ops"`
	Summary       Summary            `json:"summary"`
}
