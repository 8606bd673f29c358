package fixer

import (
	"github.com/EffortlessMetrics/buildfix/internal/plan"
	"github.com/EffortlessMetrics/buildfix/internal/receipt"
	"github.com/EffortlessMetrics/buildfix/internal/repo"
	"github.com/EffortlessMetrics/buildfix/internal/tomledit"
)

// ResolverV2 enforces `[workspace].resolver = "2"` in the root manifest.
// Resolver v2 is required for correct feature unification in modern
// workspaces.
type ResolverV2 struct{}

func (f *ResolverV2) Meta() Meta {
	return Meta{
		FixKey:           "cargo.workspace_resolver_v2",
		Description:      "Sets [workspace].resolver = \"2\" in the root manifest",
		Safety:           plan.SafetySafe,
		ConsumesSensors:  []string{"builddiag", "cargo"},
		ConsumesCheckIDs: []string{"workspace.resolver_v2", "cargo.workspace.resolver_v2"},
	}
}

func (f *ResolverV2) Plan(_ *Context, view repo.View, receipts *receipt.Set) ([]plan.Operation, error) {
	meta := f.Meta()
	findings := receipts.Match(meta.ConsumesSensors, meta.ConsumesCheckIDs, nil)
	if len(findings) == 0 {
		return nil, nil
	}

	if !f.needsFix(view) {
		return nil, nil
	}

	op := newOp(meta, rootManifest,
		plan.NewTomlTransform(plan.RuleEnsureWorkspaceResolverV2, nil),
		plan.SafetySafe, findings, nil)
	return []plan.Operation{op}, nil
}

func (f *ResolverV2) needsFix(view repo.View) bool {
	content, err := view.ReadText(rootManifest)
	if err != nil {
		return false
	}
	manifest, err := tomledit.ParseManifest(content)
	if err != nil {
		return false
	}
	if !manifest.HasWorkspace() {
		return true
	}
	return manifest.WorkspaceResolver() != "2"
}
