package fixer

import (
	"github.com/EffortlessMetrics/buildfix/internal/plan"
	"github.com/EffortlessMetrics/buildfix/internal/receipt"
	"github.com/EffortlessMetrics/buildfix/internal/repo"
	"github.com/EffortlessMetrics/buildfix/internal/tomledit"
)

// MsrvNormalize aligns each member's [package].rust-version with the
// canonical workspace value. Changing a published MSRV affects downstream
// consumers, so the nominal class is guarded; with no canonical value the
// operation is unsafe and waits for `--param rust_version=...`.
type MsrvNormalize struct{}

func (f *MsrvNormalize) Meta() Meta {
	return Meta{
		FixKey:           "cargo.normalize_rust_version",
		Description:      "Normalizes per-crate MSRV declarations to the workspace canonical value",
		Safety:           plan.SafetyGuarded,
		ConsumesSensors:  []string{"builddiag", "cargo"},
		ConsumesCheckIDs: []string{"rust.msrv_consistent", "cargo.msrv_consistent", "msrv.consistent"},
	}
}

func (f *MsrvNormalize) Plan(ctx *Context, view repo.View, receipts *receipt.Set) ([]plan.Operation, error) {
	return planNormalize(ctx, view, receipts, normalizeSpec{
		meta:        f.Meta(),
		manifestKey: "rust-version",
		paramKey:    "rust_version",
		ruleID:      plan.RuleSetPackageRustVersion,
	})
}

// EditionNormalize aligns each member's edition with the canonical workspace
// edition.
type EditionNormalize struct{}

func (f *EditionNormalize) Meta() Meta {
	return Meta{
		FixKey:           "cargo.normalize_edition",
		Description:      "Normalizes per-crate Rust edition to the workspace canonical edition",
		Safety:           plan.SafetyGuarded,
		ConsumesSensors:  []string{"builddiag", "cargo"},
		ConsumesCheckIDs: []string{"rust.edition_consistent", "cargo.edition_consistent", "edition.consistent"},
	}
}

func (f *EditionNormalize) Plan(ctx *Context, view repo.View, receipts *receipt.Set) ([]plan.Operation, error) {
	return planNormalize(ctx, view, receipts, normalizeSpec{
		meta:        f.Meta(),
		manifestKey: "edition",
		paramKey:    "edition",
		ruleID:      plan.RuleSetPackageEdition,
	})
}

// normalizeSpec parameterizes the shared shape of the two normalizers: read
// the canonical value from the workspace, compare each flagged member, emit
// a set when they differ.
type normalizeSpec struct {
	meta        Meta
	manifestKey string
	paramKey    string
	ruleID      string
}

func planNormalize(ctx *Context, view repo.View, receipts *receipt.Set, spec normalizeSpec) ([]plan.Operation, error) {
	findings := receipts.Match(spec.meta.ConsumesSensors, spec.meta.ConsumesCheckIDs, nil)
	if len(findings) == 0 {
		return nil, nil
	}

	// The canonical value comes from the workspace. A user parameter can
	// stand in for a missing one, but the operation stays unsafe: the value
	// was not derivable from repository state.
	canonical := canonicalValue(view, spec.manifestKey)
	safety := spec.meta.Safety
	var required []string
	if canonical == "" {
		safety = plan.SafetyUnsafe
		required = []string{spec.paramKey}
		canonical = ctx.Param(spec.paramKey)
	}

	var ops []plan.Operation
	for _, manifestPath := range manifestsFrom(findings) {
		content, err := view.ReadText(manifestPath)
		if err != nil {
			continue
		}

		if canonical != "" && !needsChange(content, spec.manifestKey, canonical) {
			continue
		}

		args := map[string]interface{}{}
		if canonical != "" {
			args[spec.paramKey] = canonical
		}

		ops = append(ops, newOp(spec.meta, manifestPath,
			plan.NewTomlTransform(spec.ruleID, args),
			safety, findingsFor(findings, manifestPath), required))
	}

	return ops, nil
}

// canonicalValue prefers [workspace.package].<key>, then the root
// [package].<key>.
func canonicalValue(view repo.View, key string) string {
	content, err := view.ReadText(rootManifest)
	if err != nil {
		return ""
	}
	manifest, err := tomledit.ParseManifest(content)
	if err != nil {
		return ""
	}
	if v := manifest.WorkspacePackageField(key); v != "" {
		return v
	}
	return manifest.PackageField(key)
}

func needsChange(content []byte, key, want string) bool {
	manifest, err := tomledit.ParseManifest(content)
	if err != nil {
		return true
	}
	return manifest.PackageField(key) != want
}
