package tomledit

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/EffortlessMetrics/buildfix/internal/plan"
)

// OpError fails a single operation without failing the plan. Reason carries
// the block token recorded on the operation's result.
type OpError struct {
	Reason  string
	Message string
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// preserveKeys is the set of member-side dependency keys the workspace
// inheritance rule carries over. Any other key on the member entry fails the
// operation with edit.unsupported_override.
var preserveKeys = map[string]bool{
	"version":          true,
	"features":         true,
	"optional":         true,
	"default-features": true,
	"package":          true,
	"registry":         true,
	"workspace":        true,
}

// Apply materializes one operation kind against file content and returns the
// new content. Idempotent kinds return the input bytes unchanged. Errors are
// either *OpError (the operation fails, the plan survives) or plain errors
// (tool errors: unparseable manifest, unknown rule).
func Apply(content []byte, kind plan.Kind) ([]byte, error) {
	switch kind.Op {
	case plan.KindTomlSet:
		return applySet(content, kind.TomlPath, kind.Value)
	case plan.KindTomlRemove:
		return applyRemove(content, kind.TomlPath)
	case plan.KindTomlTransform:
		return applyTransform(content, kind.RuleID, kind.Args)
	default:
		return nil, fmt.Errorf("unknown operation kind %q", kind.Op)
	}
}

func applySet(content []byte, path []string, value interface{}) ([]byte, error) {
	manifest, err := ParseManifest(content)
	if err != nil {
		return nil, err
	}

	// Idempotence: a leaf already equal to the requested value leaves the
	// file byte-identical.
	if current, ok := manifest.Lookup(path...); ok {
		if valuesEqual(current, value) {
			return content, nil
		}
	}

	doc, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("unparseable manifest: %w", err)
	}
	if err := doc.Set(path, value); err != nil {
		return nil, err
	}
	return validated(doc.Render())
}

func applyRemove(content []byte, path []string) ([]byte, error) {
	manifest, err := ParseManifest(content)
	if err != nil {
		return nil, err
	}
	if _, ok := manifest.Lookup(path...); !ok {
		return content, nil
	}

	doc, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("unparseable manifest: %w", err)
	}
	if err := doc.Remove(path); err != nil {
		return nil, err
	}
	return validated(doc.Render())
}

func applyTransform(content []byte, ruleID string, args map[string]interface{}) ([]byte, error) {
	switch ruleID {
	case plan.RuleEnsureWorkspaceResolverV2:
		return applySet(content, []string{"workspace", "resolver"}, "2")

	case plan.RuleSetPackageRustVersion:
		v, err := argString(args, "rust_version")
		if err != nil {
			return nil, err
		}
		return applySet(content, []string{"package", "rust-version"}, v)

	case plan.RuleSetPackageEdition:
		v, err := argString(args, "edition")
		if err != nil {
			return nil, err
		}
		return applySet(content, []string{"package", "edition"}, v)

	case plan.RuleEnsurePathDepHasVersion:
		return applyPathDepVersion(content, args)

	case plan.RuleUseWorkspaceDependency:
		return applyWorkspaceDependency(content, args)

	default:
		return nil, fmt.Errorf("unknown transform rule %q", ruleID)
	}
}

func applyPathDepVersion(content []byte, args map[string]interface{}) ([]byte, error) {
	tomlPath, err := argStrings(args, "toml_path")
	if err != nil {
		return nil, err
	}
	depPath, err := argString(args, "dep_path")
	if err != nil {
		return nil, err
	}
	version, err := argString(args, "version")
	if err != nil {
		return nil, err
	}

	manifest, err := ParseManifest(content)
	if err != nil {
		return nil, err
	}

	spec, ok := manifest.Lookup(tomlPath...)
	if !ok {
		return nil, fmt.Errorf("dependency not found at %s", strings.Join(tomlPath, "."))
	}
	table, ok := spec.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("dependency at %s is not a table", strings.Join(tomlPath, "."))
	}

	// Only touch the entry the plan was computed against.
	if current, _ := table["path"].(string); current != depPath {
		return content, nil
	}
	if _, has := table["version"]; has {
		return content, nil
	}

	doc, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("unparseable manifest: %w", err)
	}

	if e := doc.findKV(tomlPath); e != nil && isInlineTable(e.value()) {
		rendered, _ := RenderValue(version)
		e.insertInlineKey("version", rendered)
		return validated(doc.Render())
	}

	// [dependencies.dep] table form.
	if err := doc.Set(append(append([]string{}, tomlPath...), "version"), version); err != nil {
		return nil, err
	}
	return validated(doc.Render())
}

func applyWorkspaceDependency(content []byte, args map[string]interface{}) ([]byte, error) {
	tomlPath, err := argStrings(args, "toml_path")
	if err != nil {
		return nil, err
	}

	manifest, err := ParseManifest(content)
	if err != nil {
		return nil, err
	}

	spec, ok := manifest.Lookup(tomlPath...)
	if !ok {
		return nil, fmt.Errorf("dependency not found at %s", strings.Join(tomlPath, "."))
	}

	switch t := spec.(type) {
	case string:
		// `dep = "1.2"` shorthand: nothing beyond version to preserve.
	case map[string]interface{}:
		if b, ok := t["workspace"].(bool); ok && b {
			return content, nil
		}
		for key := range t {
			if !preserveKeys[key] {
				return nil, &OpError{
					Reason:  plan.ReasonUnsupportedOverride,
					Message: fmt.Sprintf("dependency %s declares %q, which workspace inheritance cannot preserve", strings.Join(tomlPath, "."), key),
				}
			}
		}
	default:
		return nil, fmt.Errorf("dependency at %s has unsupported shape", strings.Join(tomlPath, "."))
	}

	rendered := renderInheritedDep(args)

	doc, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("unparseable manifest: %w", err)
	}

	if e := doc.findKV(tomlPath); e != nil {
		e.setValue(rendered)
		return validated(doc.Render())
	}

	// [dependencies.dep] section form: collapse the section into one entry.
	if idx := doc.findHeader(tomlPath); idx >= 0 {
		return collapseDepSection(doc, idx, tomlPath, rendered)
	}

	return nil, fmt.Errorf("dependency not found at %s", strings.Join(tomlPath, "."))
}

// renderInheritedDep builds the `{ workspace = true, ... }` value from the
// preserved keys the planner recorded.
func renderInheritedDep(args map[string]interface{}) string {
	parts := []string{"workspace = true"}

	preserved, _ := args["preserved"].(map[string]interface{})
	if pkg, ok := preserved["package"].(string); ok && pkg != "" {
		parts = append(parts, fmt.Sprintf("package = %q", pkg))
	}
	if opt, ok := preserved["optional"].(bool); ok {
		parts = append(parts, fmt.Sprintf("optional = %t", opt))
	}
	if df, ok := preserved["default-features"].(bool); ok {
		parts = append(parts, fmt.Sprintf("default-features = %t", df))
	}
	if features := stringSlice(preserved["features"]); len(features) > 0 {
		rendered, _ := RenderValue(features)
		parts = append(parts, fmt.Sprintf("features = %s", rendered))
	}
	if reg, ok := preserved["registry"].(string); ok && reg != "" {
		parts = append(parts, fmt.Sprintf("registry = %q", reg))
	}

	return "{ " + strings.Join(parts, ", ") + " }"
}

// collapseDepSection rewrites a [dependencies.dep] section as a single
// `dep = { workspace = true, ... }` entry in the parent dependency table.
func collapseDepSection(doc *Document, headerIdx int, tomlPath []string, rendered string) ([]byte, error) {
	end := doc.sectionEnd(headerIdx)

	// Drop the section's kv entries; keep trivia in place.
	var kept []*entry
	for i, e := range doc.entries {
		if i > headerIdx && i < end && e.kind == entryKV {
			continue
		}
		kept = append(kept, e)
	}
	doc.entries = kept

	parent := tomlPath[:len(tomlPath)-1]
	dep := tomlPath[len(tomlPath)-1]

	if idx := doc.findHeader(parent); idx >= 0 {
		// Parent table exists elsewhere: remove the now-empty section header
		// and add the entry there.
		for i, e := range doc.entries {
			if e.kind == entryHeader && pathEqual(e.path, tomlPath) {
				doc.entries = append(doc.entries[:i], doc.entries[i+1:]...)
				break
			}
		}
		idx = doc.findHeader(parent)
		abs := append(append([]string{}, parent...), dep)
		doc.insertKV(idx, abs, []string{dep}, rendered)
		return validated(doc.Render())
	}

	// Rewrite the section header in place as the parent table.
	for _, e := range doc.entries {
		if e.kind == entryHeader && pathEqual(e.path, tomlPath) {
			e.raw = fmt.Sprintf("[%s]\n", renderKeyPath(parent))
			e.path = parent

			idx := doc.findHeader(parent)
			abs := append(append([]string{}, parent...), dep)
			doc.insertKV(idx, abs, []string{dep}, rendered)
			return validated(doc.Render())
		}
	}

	return nil, fmt.Errorf("dependency section %s disappeared during edit", strings.Join(tomlPath, "."))
}

// validated reparses the edited output so a rule bug can never emit a
// manifest the toolchain would reject.
func validated(out []byte) ([]byte, error) {
	var check map[string]interface{}
	if err := toml.Unmarshal(out, &check); err != nil {
		return nil, fmt.Errorf("edit produced invalid TOML: %w", err)
	}
	return out, nil
}

func valuesEqual(a, b interface{}) bool {
	ca, errA := plan.CanonicalJSON(a)
	cb, errB := plan.CanonicalJSON(b)
	return errA == nil && errB == nil && bytes.Equal(ca, cb)
}

func argString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("transform argument %q missing", key)
	}
	return v, nil
}

func argStrings(args map[string]interface{}, key string) ([]string, error) {
	switch t := args[key].(type) {
	case []string:
		if len(t) == 0 {
			return nil, fmt.Errorf("transform argument %q empty", key)
		}
		return t, nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, v := range t {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("transform argument %q has non-string element", key)
			}
			out = append(out, s)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("transform argument %q empty", key)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("transform argument %q missing", key)
	}
}

func stringSlice(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []interface{}:
		var out []string
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
