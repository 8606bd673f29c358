package tomledit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EffortlessMetrics/buildfix/internal/plan"
)

func mustApply(t *testing.T, content string, kind plan.Kind) string {
	t.Helper()
	out, err := Apply([]byte(content), kind)
	require.NoError(t, err)
	return string(out)
}

func TestRuleEnsureWorkspaceResolverV2(t *testing.T) {
	in := "[workspace]\nmembers = [\"crates/*\"]\n"
	out := mustApply(t, in, plan.NewTomlTransform(plan.RuleEnsureWorkspaceResolverV2, nil))
	assert.Equal(t, "[workspace]\nmembers = [\"crates/*\"]\nresolver = \"2\"\n", out)

	// Idempotent: already v2 leaves the file byte-identical.
	again := mustApply(t, out, plan.NewTomlTransform(plan.RuleEnsureWorkspaceResolverV2, nil))
	assert.Equal(t, out, again)
}

func TestRuleSetPackageRustVersion(t *testing.T) {
	in := "[package]\nname = \"a\"\nrust-version = \"1.65\" # msrv\n"
	kind := plan.NewTomlTransform(plan.RuleSetPackageRustVersion, map[string]interface{}{"rust_version": "1.70"})
	out := mustApply(t, in, kind)
	assert.Equal(t, "[package]\nname = \"a\"\nrust-version = \"1.70\" # msrv\n", out)
}

func TestRuleSetPackageEditionInserts(t *testing.T) {
	in := "[package]\nname = \"a\"\n\n[dependencies]\nserde = \"1\"\n"
	kind := plan.NewTomlTransform(plan.RuleSetPackageEdition, map[string]interface{}{"edition": "2021"})
	out := mustApply(t, in, kind)
	assert.Equal(t, "[package]\nname = \"a\"\nedition = \"2021\"\n\n[dependencies]\nserde = \"1\"\n", out)
}

func TestRulePathDepVersionInline(t *testing.T) {
	in := "[package]\nname = \"a\"\n\n[dependencies]\nb = { path = \"../b\" }\n"
	kind := plan.NewTomlTransform(plan.RuleEnsurePathDepHasVersion, map[string]interface{}{
		"toml_path": []string{"dependencies", "b"},
		"dep":       "b",
		"dep_path":  "../b",
		"version":   "0.3.1",
	})
	out := mustApply(t, in, kind)
	assert.Equal(t, "[package]\nname = \"a\"\n\n[dependencies]\nb = { path = \"../b\", version = \"0.3.1\" }\n", out)

	// Re-running is a no-op once the version is present.
	assert.Equal(t, out, mustApply(t, out, kind))
}

func TestRulePathDepVersionTableForm(t *testing.T) {
	in := "[dependencies.b]\npath = \"../b\"\n"
	kind := plan.NewTomlTransform(plan.RuleEnsurePathDepHasVersion, map[string]interface{}{
		"toml_path": []string{"dependencies", "b"},
		"dep":       "b",
		"dep_path":  "../b",
		"version":   "0.3.1",
	})
	out := mustApply(t, in, kind)
	assert.Equal(t, "[dependencies.b]\npath = \"../b\"\nversion = \"0.3.1\"\n", out)
}

func TestRulePathDepVersionPathMismatchIsNoop(t *testing.T) {
	in := "[dependencies]\nb = { path = \"../elsewhere\" }\n"
	kind := plan.NewTomlTransform(plan.RuleEnsurePathDepHasVersion, map[string]interface{}{
		"toml_path": []string{"dependencies", "b"},
		"dep":       "b",
		"dep_path":  "../b",
		"version":   "0.3.1",
	})
	assert.Equal(t, in, mustApply(t, in, kind))
}

func TestRuleUseWorkspaceDependency(t *testing.T) {
	in := "[dependencies]\nserde = { version = \"1\", features = [\"derive\"], optional = true }\n"
	kind := plan.NewTomlTransform(plan.RuleUseWorkspaceDependency, map[string]interface{}{
		"toml_path": []string{"dependencies", "serde"},
		"dep":       "serde",
		"preserved": map[string]interface{}{
			"optional": true,
			"features": []string{"derive"},
		},
	})
	out := mustApply(t, in, kind)
	assert.Equal(t, "[dependencies]\nserde = { workspace = true, optional = true, features = [\"derive\"] }\n", out)
}

func TestRuleUseWorkspaceDependencyStringForm(t *testing.T) {
	in := "[dependencies]\nserde = \"1.0\" # pinned\n"
	kind := plan.NewTomlTransform(plan.RuleUseWorkspaceDependency, map[string]interface{}{
		"toml_path": []string{"dependencies", "serde"},
		"dep":       "serde",
		"preserved": map[string]interface{}{},
	})
	out := mustApply(t, in, kind)
	assert.Equal(t, "[dependencies]\nserde = { workspace = true } # pinned\n", out)
}

func TestRuleUseWorkspaceDependencyUnsupportedOverride(t *testing.T) {
	in := "[dependencies]\nserde = { git = \"https://example.com/serde\" }\n"
	kind := plan.NewTomlTransform(plan.RuleUseWorkspaceDependency, map[string]interface{}{
		"toml_path": []string{"dependencies", "serde"},
		"dep":       "serde",
		"preserved": map[string]interface{}{},
	})

	_, err := Apply([]byte(in), kind)
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, plan.ReasonUnsupportedOverride, opErr.Reason)
}

func TestRuleUseWorkspaceDependencySectionForm(t *testing.T) {
	in := "[dependencies.serde]\nversion = \"1\"\nfeatures = [\"derive\"]\n"
	kind := plan.NewTomlTransform(plan.RuleUseWorkspaceDependency, map[string]interface{}{
		"toml_path": []string{"dependencies", "serde"},
		"dep":       "serde",
		"preserved": map[string]interface{}{"features": []string{"derive"}},
	})
	out := mustApply(t, in, kind)
	assert.Equal(t, "[dependencies]\nserde = { workspace = true, features = [\"derive\"] }\n", out)
}

func TestTomlSetIdempotence(t *testing.T) {
	in := "[workspace]\nresolver = \"2\"\n"
	out := mustApply(t, in, plan.NewTomlSet([]string{"workspace", "resolver"}, "2"))
	assert.Equal(t, in, out)
}

func TestTomlRemoveAbsentIsNoop(t *testing.T) {
	in := "[package]\nname = \"a\"\n"
	out := mustApply(t, in, plan.NewTomlRemove([]string{"package", "rust-version"}))
	assert.Equal(t, in, out)
}

func TestApplyUnparseableManifest(t *testing.T) {
	_, err := Apply([]byte("[workspace\nbroken"), plan.NewTomlTransform(plan.RuleEnsureWorkspaceResolverV2, nil))
	assert.Error(t, err)
}

func TestApplyUnknownRule(t *testing.T) {
	_, err := Apply([]byte(""), plan.NewTomlTransform("no_such_rule", nil))
	assert.Error(t, err)
}

func TestManifestReads(t *testing.T) {
	m, err := ParseManifest([]byte(`
[workspace]
resolver = "2"

[workspace.package]
rust-version = "1.70"
edition = "2021"

[workspace.dependencies]
serde = { version = "1.0", features = ["derive"] }
anyhow = "1"

[package]
name = "root"
version = "0.3.1"
`))
	require.NoError(t, err)

	assert.Equal(t, "2", m.WorkspaceResolver())
	assert.True(t, m.HasWorkspace())
	assert.Equal(t, "0.3.1", m.PackageVersion())
	assert.Equal(t, "1.70", m.WorkspacePackageField("rust-version"))
	assert.Equal(t, "2021", m.WorkspacePackageField("edition"))

	deps := m.WorkspaceDependencies()
	assert.Equal(t, "1.0", deps["serde"])
	assert.Equal(t, "1", deps["anyhow"])
}

func TestManifestDependencyEntries(t *testing.T) {
	m, err := ParseManifest([]byte(`
[dependencies]
plain = "1"
b = { path = "../b" }

[dev-dependencies]
testutil = { path = "../testutil", version = "0.1.0" }

[target.'cfg(windows)'.dependencies]
winapi = { version = "0.3" }
`))
	require.NoError(t, err)

	entries := m.DependencyEntries()
	require.Len(t, entries, 4)

	byName := map[string]DepEntry{}
	for _, e := range entries {
		byName[e.Name] = e
	}

	assert.True(t, byName["plain"].IsString)
	assert.Equal(t, "1", byName["plain"].Version)
	assert.Equal(t, "../b", byName["b"].SpecString("path"))
	assert.Equal(t, []string{"dependencies", "b"}, byName["b"].TomlPath)
	assert.Equal(t, "0.1.0", byName["testutil"].Version)
	assert.Equal(t, []string{"target", "cfg(windows)", "dependencies", "winapi"}, byName["winapi"].TomlPath)
}
