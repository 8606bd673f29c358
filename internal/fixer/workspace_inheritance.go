package fixer

import (
	"github.com/EffortlessMetrics/buildfix/internal/plan"
	"github.com/EffortlessMetrics/buildfix/internal/receipt"
	"github.com/EffortlessMetrics/buildfix/internal/repo"
	"github.com/EffortlessMetrics/buildfix/internal/tomledit"
)

// WorkspaceInheritance converts member dependency entries that are listed in
// [workspace.dependencies] to `workspace = true` inheritance, preserving
// features, optional, default-features, package, and registry.
type WorkspaceInheritance struct{}

func (f *WorkspaceInheritance) Meta() Meta {
	return Meta{
		FixKey:           "cargo.use_workspace_dependency",
		Description:      "Converts dependency specs to workspace = true inheritance",
		Safety:           plan.SafetySafe,
		ConsumesSensors:  []string{"depguard"},
		ConsumesCheckIDs: []string{"deps.workspace_inheritance", "cargo.workspace_inheritance"},
	}
}

func (f *WorkspaceInheritance) Plan(_ *Context, view repo.View, receipts *receipt.Set) ([]plan.Operation, error) {
	meta := f.Meta()
	findings := receipts.Match(meta.ConsumesSensors, meta.ConsumesCheckIDs, nil)
	if len(findings) == 0 {
		return nil, nil
	}

	workspaceDeps := f.workspaceDeps(view)
	if len(workspaceDeps) == 0 {
		return nil, nil
	}

	var ops []plan.Operation
	for _, manifestPath := range manifestsFrom(findings) {
		content, err := view.ReadText(manifestPath)
		if err != nil {
			continue
		}
		manifest, err := tomledit.ParseManifest(content)
		if err != nil {
			continue
		}

		related := findingsFor(findings, manifestPath)

		for _, dep := range manifest.DependencyEntries() {
			wsVersion, listed := workspaceDeps[dep.Name]
			if !listed || dep.IsWorkspaceInherited() {
				continue
			}
			if dep.HasSpecKey("path") || dep.HasSpecKey("git") {
				continue
			}

			preserved := map[string]interface{}{}
			if pkg := dep.SpecString("package"); pkg != "" {
				preserved["package"] = pkg
			}
			if opt, ok := dep.SpecBool("optional"); ok {
				preserved["optional"] = opt
			}
			if df, ok := dep.SpecBool("default-features"); ok {
				preserved["default-features"] = df
			}
			if features := dep.SpecStrings("features"); len(features) > 0 {
				preserved["features"] = features
			}
			if reg := dep.SpecString("registry"); reg != "" {
				preserved["registry"] = reg
			}

			// A member pin that disagrees with the workspace source of truth
			// is a real behavior change, not a cleanup.
			safety := plan.SafetySafe
			if dep.Version != "" && wsVersion != "" && dep.Version != wsVersion {
				safety = plan.SafetyGuarded
			}

			args := map[string]interface{}{
				"toml_path": dep.TomlPath,
				"dep":       dep.Name,
				"preserved": preserved,
			}

			ops = append(ops, newOp(meta, manifestPath,
				plan.NewTomlTransform(plan.RuleUseWorkspaceDependency, args),
				safety, related, nil))
		}
	}

	return ops, nil
}

func (f *WorkspaceInheritance) workspaceDeps(view repo.View) map[string]string {
	content, err := view.ReadText(rootManifest)
	if err != nil {
		return nil
	}
	manifest, err := tomledit.ParseManifest(content)
	if err != nil {
		return nil
	}
	return manifest.WorkspaceDependencies()
}
