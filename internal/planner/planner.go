// Package planner turns a receipt set and a repository view into the
// deterministic buildfix.plan.v1 artifact plus its preview patch.
package planner

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hashicorp/go-hclog"

	"github.com/EffortlessMetrics/buildfix/internal/diffpreview"
	"github.com/EffortlessMetrics/buildfix/internal/fixer"
	"github.com/EffortlessMetrics/buildfix/internal/gitmeta"
	"github.com/EffortlessMetrics/buildfix/internal/plan"
	"github.com/EffortlessMetrics/buildfix/internal/policy"
	"github.com/EffortlessMetrics/buildfix/internal/receipt"
	"github.com/EffortlessMetrics/buildfix/internal/repo"
	"github.com/EffortlessMetrics/buildfix/internal/tomledit"
	"github.com/EffortlessMetrics/buildfix/pkg/shared/files"
)

// Options configure one planning run.
type Options struct {
	RepoRoot string
	Policy   *policy.Config
	Tool     plan.ToolInfo

	// GitHeadPrecondition pins the plan to the current HEAD commit.
	GitHeadPrecondition bool
}

// Outcome bundles the plan with its rendered patch and the set the plan was
// computed from.
type Outcome struct {
	Plan     *plan.Plan
	Patch    string
	Receipts *receipt.Set
}

// PolicyBlocked reports whether any operation ended up blocked, which maps
// to exit status 2.
func (o *Outcome) PolicyBlocked() bool {
	for _, op := range o.Plan.Ops {
		if op.Blocked {
			return true
		}
	}
	return false
}

type Planner struct {
	fixers []fixer.Fixer
	logger hclog.Logger
}

func New(logger hclog.Logger) *Planner {
	return &Planner{fixers: fixer.Builtin(), logger: logger}
}

// WithFixers overrides the registry. Tests use this to plan with a single
// fixer.
func WithFixers(logger hclog.Logger, fixers []fixer.Fixer) *Planner {
	return &Planner{fixers: fixers, logger: logger}
}

// Plan executes the planning phases in order: discovery, routing and fixer
// planning, policy filtering, ordering and dedup, id assignment, preview,
// caps, preconditions.
func (p *Planner) Plan(view repo.View, src receipt.Source, git gitmeta.State, opts Options) (*Outcome, error) {
	loaded, err := src.Load()
	if err != nil {
		return nil, fmt.Errorf("load receipts: %w", err)
	}
	set := receipt.NewSet(loaded)
	p.logger.Debug("receipts loaded", "inputs", len(set.Inputs), "findings", len(set.Findings), "failed", len(set.Failed))

	ctx := &fixer.Context{Params: opts.Policy.Params}

	var ops []plan.Operation
	for _, f := range p.fixers {
		planned, err := f.Plan(ctx, view, set)
		if err != nil {
			return nil, fmt.Errorf("fixer %s: %w", f.Meta().FixKey, err)
		}
		ops = append(ops, planned...)
	}

	for i := range ops {
		if reason := opts.Policy.Gate(&ops[i]); reason != "" {
			block(&ops[i], reason)
		}
	}

	ops = sortAndDedup(ops)

	for i := range ops {
		ops[i].ID = plan.DeterministicID(&ops[i])
	}

	patch, err := p.renderPreview(view, ops)
	if err != nil {
		return nil, err
	}

	// Caps compare against the post-filter op set; a violated cap blocks
	// every operation and clears the preview.
	if reason := opts.Policy.CheckCaps(countUnblocked(ops), uint64(len(unblockedTargets(ops))), uint64(len(patch))); reason != "" {
		p.logger.Info("cap exceeded, blocking all operations", "reason", reason)
		for i := range ops {
			block(&ops[i], reason)
			ops[i].Preview = ""
		}
		patch = ""
	}

	pre, err := p.preconditions(view, ops, git, opts)
	if err != nil {
		return nil, err
	}

	result := &plan.Plan{
		Schema: plan.SchemaPlanV1,
		Tool:   opts.Tool,
		Repo: plan.RepoInfo{
			Root:    opts.RepoRoot,
			HeadSHA: git.HeadSHA,
			Dirty:   git.Dirty,
		},
		Inputs:        set.Inputs,
		Policy:        opts.Policy.Snapshot(),
		Preconditions: pre,
		Ops:           ops,
		Summary: plan.Summary{
			OpsTotal:     uint64(len(ops)),
			OpsBlocked:   countBlocked(ops),
			FilesTouched: uint64(len(allTargets(ops))),
			PatchBytes:   uint64(len(patch)),
		},
	}

	return &Outcome{Plan: result, Patch: patch, Receipts: set}, nil
}

func block(op *plan.Operation, reason string) {
	if op.Blocked {
		return
	}
	op.Blocked = true
	op.BlockedReason = reason
}

// sortAndDedup orders operations by their stable key and collapses
// duplicates into one operation with unioned findings.
func sortAndDedup(ops []plan.Operation) []plan.Operation {
	sort.SliceStable(ops, func(i, j int) bool {
		return plan.SortKey(&ops[i]) < plan.SortKey(&ops[j])
	})

	var out []plan.Operation
	for _, op := range ops {
		if len(out) > 0 && plan.SortKey(&out[len(out)-1]) == plan.SortKey(&op) {
			last := &out[len(out)-1]
			last.Rationale.Findings = unionFindings(last.Rationale.Findings, op.Rationale.Findings)
			continue
		}
		out = append(out, op)
	}
	return out
}

func unionFindings(a, b []receipt.Finding) []receipt.Finding {
	seen := map[string]bool{}
	var out []receipt.Finding
	for _, f := range append(append([]receipt.Finding{}, a...), b...) {
		key := fmt.Sprintf("%s|%s|%d", f.PolicyKey(), f.Path, f.Line)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}

// renderPreview applies every unblocked operation to an in-memory overlay
// and renders the concatenated unified diff, ordered by target path. An
// operation the edit engine refuses (OpError) is blocked here, not failed;
// any other edit error aborts the plan.
func (p *Planner) renderPreview(view repo.View, ops []plan.Operation) (string, error) {
	overlay := repo.NewOverlay(view)

	for i := range ops {
		op := &ops[i]
		if op.Blocked {
			continue
		}

		before, err := overlay.ReadText(op.TargetPath)
		if err != nil {
			return "", fmt.Errorf("read %q: %w", op.TargetPath, err)
		}

		after, err := tomledit.Apply(before, op.Kind)
		if err != nil {
			var opErr *tomledit.OpError
			if errors.As(err, &opErr) {
				p.logger.Warn("operation rejected by edit engine", "op", op.ID, "reason", opErr.Reason)
				block(op, opErr.Reason)
				continue
			}
			return "", fmt.Errorf("apply %s to %q: %w", op.Kind.Op, op.TargetPath, err)
		}

		op.Preview = diffpreview.Unified(op.TargetPath, before, after)
		overlay.Put(op.TargetPath, after)
	}

	var paths []string
	for path := range overlay.Changed {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	patch := ""
	for _, path := range paths {
		before, err := view.ReadText(path)
		if err != nil {
			return "", fmt.Errorf("read %q: %w", path, err)
		}
		patch += diffpreview.Unified(path, before, overlay.Changed[path])
	}
	return patch, nil
}

// preconditions hashes every file touched by an unblocked operation and
// records the git expectations.
func (p *Planner) preconditions(view repo.View, ops []plan.Operation, git gitmeta.State, opts Options) (plan.Preconditions, error) {
	var pre plan.Preconditions

	for _, target := range unblockedTargets(ops) {
		content, err := view.ReadText(target)
		if err != nil {
			return pre, fmt.Errorf("hash %q: %w", target, err)
		}
		pre.Files = append(pre.Files, plan.FilePrecondition{
			Path:   target,
			Sha256: files.Sha256Hex(content),
		})
	}

	if opts.GitHeadPrecondition && git.HeadSHA != nil {
		pre.HeadSHA = git.HeadSHA
	}
	if !opts.Policy.AllowDirty {
		clean := false
		pre.Dirty = &clean
	}

	return pre, nil
}

func countBlocked(ops []plan.Operation) uint64 {
	var n uint64
	for _, op := range ops {
		if op.Blocked {
			n++
		}
	}
	return n
}

func countUnblocked(ops []plan.Operation) uint64 {
	return uint64(len(ops)) - countBlocked(ops)
}

func allTargets(ops []plan.Operation) []string {
	seen := map[string]bool{}
	var out []string
	for _, op := range ops {
		if !seen[op.TargetPath] {
			seen[op.TargetPath] = true
			out = append(out, op.TargetPath)
		}
	}
	sort.Strings(out)
	return out
}

func unblockedTargets(ops []plan.Operation) []string {
	seen := map[string]bool{}
	var out []string
	for _, op := range ops {
		if op.Blocked || seen[op.TargetPath] {
			continue
		}
		seen[op.TargetPath] = true
		out = append(out, op.TargetPath)
	}
	sort.Strings(out)
	return out
}
