package tomledit

import (
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// Manifest is a decoded (value-level) view of a manifest, used for reads:
// fixers ask questions of it, the editor answers writes. Decoding goes
// through BurntSushi/toml so read semantics match the TOML spec rather than
// the editor's lighter syntax handling.
type Manifest struct {
	root map[string]interface{}
}

// ParseManifest decodes manifest bytes. A syntax error here is a tool error
// for the caller: the target cannot be edited safely.
func ParseManifest(content []byte) (*Manifest, error) {
	var root map[string]interface{}
	if err := toml.Unmarshal(content, &root); err != nil {
		return nil, fmt.Errorf("unparseable manifest: %w", err)
	}
	return &Manifest{root: root}, nil
}

// Lookup walks a dotted path and returns the value.
func (m *Manifest) Lookup(path ...string) (interface{}, bool) {
	var cur interface{} = m.root
	for _, key := range path {
		table, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = table[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// LookupString returns a string leaf at path.
func (m *Manifest) LookupString(path ...string) (string, bool) {
	v, ok := m.Lookup(path...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// WorkspaceResolver returns [workspace].resolver, or "".
func (m *Manifest) WorkspaceResolver() string {
	s, _ := m.LookupString("workspace", "resolver")
	return s
}

// HasWorkspace reports whether a [workspace] table exists.
func (m *Manifest) HasWorkspace() bool {
	_, ok := m.Lookup("workspace")
	return ok
}

// PackageVersion returns [package].version, or "".
func (m *Manifest) PackageVersion() string {
	s, _ := m.LookupString("package", "version")
	return s
}

// PackageField returns [package].<name>, or "".
func (m *Manifest) PackageField(name string) string {
	s, _ := m.LookupString("package", name)
	return s
}

// WorkspacePackageField returns [workspace.package].<name>, or "".
func (m *Manifest) WorkspacePackageField(name string) string {
	s, _ := m.LookupString("workspace", "package", name)
	return s
}

// WorkspaceDependencies returns the names declared under
// [workspace.dependencies] mapped to their version requirement when one is
// stated (either `dep = "1.0"` or `dep = { version = "1.0", ... }`).
func (m *Manifest) WorkspaceDependencies() map[string]string {
	out := map[string]string{}
	v, ok := m.Lookup("workspace", "dependencies")
	if !ok {
		return out
	}
	deps, ok := v.(map[string]interface{})
	if !ok {
		return out
	}
	for name, spec := range deps {
		switch s := spec.(type) {
		case string:
			out[name] = s
		case map[string]interface{}:
			if ver, ok := s["version"].(string); ok {
				out[name] = ver
			} else {
				out[name] = ""
			}
		default:
			out[name] = ""
		}
	}
	return out
}

// DepEntry describes one dependency declaration found in a manifest.
type DepEntry struct {
	Name     string
	TomlPath []string
	// IsString is true for the `dep = "1.0"` shorthand.
	IsString bool
	Version  string
	// Spec holds the table form's keys; nil for the string shorthand.
	Spec map[string]interface{}
}

var depTableNames = []string{"dependencies", "dev-dependencies", "build-dependencies"}

// DependencyEntries walks [dependencies], [dev-dependencies],
// [build-dependencies], and the same tables under [target.<cfg>], in
// deterministic order.
func (m *Manifest) DependencyEntries() []DepEntry {
	var out []DepEntry

	for _, tbl := range depTableNames {
		out = append(out, m.depsFrom([]string{tbl})...)
	}

	if v, ok := m.Lookup("target"); ok {
		if targets, ok := v.(map[string]interface{}); ok {
			cfgs := make([]string, 0, len(targets))
			for cfg := range targets {
				cfgs = append(cfgs, cfg)
			}
			sort.Strings(cfgs)
			for _, cfg := range cfgs {
				for _, tbl := range depTableNames {
					out = append(out, m.depsFrom([]string{"target", cfg, tbl})...)
				}
			}
		}
	}

	return out
}

func (m *Manifest) depsFrom(prefix []string) []DepEntry {
	v, ok := m.Lookup(prefix...)
	if !ok {
		return nil
	}
	table, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}

	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []DepEntry
	for _, name := range names {
		path := append(append([]string{}, prefix...), name)
		switch spec := table[name].(type) {
		case string:
			out = append(out, DepEntry{Name: name, TomlPath: path, IsString: true, Version: spec})
		case map[string]interface{}:
			ver, _ := spec["version"].(string)
			out = append(out, DepEntry{Name: name, TomlPath: path, Version: ver, Spec: spec})
		}
	}
	return out
}

// SpecString returns a string key of a table-form dependency.
func (d DepEntry) SpecString(key string) string {
	if d.Spec == nil {
		return ""
	}
	s, _ := d.Spec[key].(string)
	return s
}

// SpecBool returns a bool key of a table-form dependency.
func (d DepEntry) SpecBool(key string) (bool, bool) {
	if d.Spec == nil {
		return false, false
	}
	b, ok := d.Spec[key].(bool)
	return b, ok
}

// SpecStrings returns a string-array key of a table-form dependency.
func (d DepEntry) SpecStrings(key string) []string {
	if d.Spec == nil {
		return nil
	}
	arr, ok := d.Spec[key].([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// HasSpecKey reports whether a table-form dependency declares key.
func (d DepEntry) HasSpecKey(key string) bool {
	if d.Spec == nil {
		return false
	}
	_, ok := d.Spec[key]
	return ok
}

// IsWorkspaceInherited reports `workspace = true`.
func (d DepEntry) IsWorkspaceInherited() bool {
	b, ok := d.SpecBool("workspace")
	return ok && b
}
