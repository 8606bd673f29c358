package fixer

import (
	"path"

	"github.com/EffortlessMetrics/buildfix/internal/plan"
	"github.com/EffortlessMetrics/buildfix/internal/receipt"
	"github.com/EffortlessMetrics/buildfix/internal/repo"
	"github.com/EffortlessMetrics/buildfix/internal/tomledit"
)

// PathDepVersion ensures path dependencies carry a `version` so the crate
// stays publishable. The version comes from the target member's
// [package].version, falling back to [workspace.package].version; when
// neither is readable the operation escalates to unsafe and waits for
// `--param version=...`.
type PathDepVersion struct{}

func (f *PathDepVersion) Meta() Meta {
	return Meta{
		FixKey:           "cargo.path_dep_add_version",
		Description:      "Adds a version requirement to path dependencies",
		Safety:           plan.SafetySafe,
		ConsumesSensors:  []string{"depguard"},
		ConsumesCheckIDs: []string{"deps.path_requires_version", "cargo.path_requires_version"},
	}
}

func (f *PathDepVersion) Plan(ctx *Context, view repo.View, receipts *receipt.Set) ([]plan.Operation, error) {
	meta := f.Meta()
	findings := receipts.Match(meta.ConsumesSensors, meta.ConsumesCheckIDs, []string{"missing_version"})
	if len(findings) == 0 {
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
			depPath := dep.SpecString("path")
			if depPath == "" || dep.Version != "" || dep.IsWorkspaceInherited() {
				continue
			}

			args := map[string]interface{}{
				"toml_path": dep.TomlPath,
				"dep":       dep.Name,
				"dep_path":  depPath,
			}

			version := f.inferVersion(view, manifestPath, depPath)
			if version == "" {
				version = ctx.Param("version")
			}

			safety := plan.SafetySafe
			var required []string
			if version == "" {
				safety = plan.SafetyUnsafe
				required = []string{"version"}
			} else {
				args["version"] = version
			}

			ops = append(ops, newOp(meta, manifestPath,
				plan.NewTomlTransform(plan.RuleEnsurePathDepHasVersion, args),
				safety, related, required))
		}
	}

	return ops, nil
}

// inferVersion reads the dependency target's manifest, then the workspace
// package version.
func (f *PathDepVersion) inferVersion(view repo.View, manifestPath, depPath string) string {
	base := path.Dir(manifestPath)
	target := path.Join(base, depPath, rootManifest)

	if content, err := view.ReadText(target); err == nil {
		if m, err := tomledit.ParseManifest(content); err == nil {
			if v := m.PackageVersion(); v != "" {
				return v
			}
		}
	}

	if content, err := view.ReadText(rootManifest); err == nil {
		if m, err := tomledit.ParseManifest(content); err == nil {
			if v := m.WorkspacePackageField("version"); v != "" {
				return v
			}
		}
	}

	return ""
}
