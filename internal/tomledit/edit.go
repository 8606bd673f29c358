package tomledit

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// findKV returns the kv entry with the exact absolute path, or nil.
func (d *Document) findKV(path []string) *entry {
	for _, e := range d.entries {
		if e.kind == entryKV && !e.arrayTable && pathEqual(e.path, path) {
			return e
		}
	}
	return nil
}

// findHeader returns the index of the header entry for the table path, or -1.
func (d *Document) findHeader(path []string) int {
	for i, e := range d.entries {
		if e.kind == entryHeader && !e.arrayTable && pathEqual(e.path, path) {
			return i
		}
	}
	return -1
}

// sectionEnd returns the index one past the last entry belonging to the
// section whose header sits at headerIdx.
func (d *Document) sectionEnd(headerIdx int) int {
	for i := headerIdx + 1; i < len(d.entries); i++ {
		if d.entries[i].kind == entryHeader {
			return i
		}
	}
	return len(d.entries)
}

// value returns the current value text of a kv entry.
func (e *entry) value() string {
	return e.raw[e.valStart:e.valEnd]
}

// setValue replaces the value text of a kv entry, keeping everything around
// it (key, spacing, trailing comment, newline) untouched.
func (e *entry) setValue(text string) {
	e.raw = e.raw[:e.valStart] + text + e.raw[e.valEnd:]
	e.valEnd = e.valStart + len(text)
}

// Set creates or updates the scalar at path, creating the table chain when
// absent. Existing keys keep their position; new keys are appended after the
// last key of their table.
func (d *Document) Set(path []string, value interface{}) error {
	if len(path) == 0 {
		return fmt.Errorf("empty toml path")
	}

	rendered, err := RenderValue(value)
	if err != nil {
		return err
	}

	if e := d.findKV(path); e != nil {
		e.setValue(rendered)
		return nil
	}

	// Try progressively shorter table prefixes so `a.b.c` lands as key `c`
	// in [a.b] when that table exists, or as dotted key `b.c` in [a].
	for cut := len(path) - 1; cut >= 1; cut-- {
		if idx := d.findHeader(path[:cut]); idx >= 0 {
			d.insertKV(idx, path, path[cut:], rendered)
			return nil
		}
	}

	// Top-level dotted key (no table at all).
	if len(path) == 1 || d.findHeader(nil) >= 0 {
		d.insertTopLevelKV(path, rendered)
		return nil
	}

	// No table exists: append a new one at the end of the file.
	d.appendTable(path[:len(path)-1], path[len(path)-1], rendered)
	return nil
}

// insertKV adds `key = value` after the last kv of the section at headerIdx.
func (d *Document) insertKV(headerIdx int, absPath, keyPath []string, rendered string) {
	end := d.sectionEnd(headerIdx)
	insertAt := headerIdx + 1
	for i := headerIdx + 1; i < end; i++ {
		if d.entries[i].kind == entryKV {
			insertAt = i + 1
		}
	}

	raw := fmt.Sprintf("%s = %s\n", renderKeyPath(keyPath), rendered)
	e := &entry{raw: raw, kind: entryKV, path: absPath}
	e.valStart, e.valEnd = valueSpan(raw, findAssign(raw))

	d.ensureNewlineBefore(insertAt)
	d.entries = append(d.entries[:insertAt], append([]*entry{e}, d.entries[insertAt:]...)...)
}

// insertTopLevelKV adds a key before the first table header.
func (d *Document) insertTopLevelKV(path []string, rendered string) {
	insertAt := 0
	for i, e := range d.entries {
		if e.kind == entryHeader {
			break
		}
		if e.kind == entryKV {
			insertAt = i + 1
		}
	}

	raw := fmt.Sprintf("%s = %s\n", renderKeyPath(path), rendered)
	e := &entry{raw: raw, kind: entryKV, path: path}
	e.valStart, e.valEnd = valueSpan(raw, findAssign(raw))
	d.entries = append(d.entries[:insertAt], append([]*entry{e}, d.entries[insertAt:]...)...)
}

// appendTable adds a new [table] with a single key at the end of the file.
func (d *Document) appendTable(table []string, key string, rendered string) {
	d.ensureNewlineBefore(len(d.entries))
	if len(d.entries) > 0 {
		last := d.entries[len(d.entries)-1]
		if strings.TrimSpace(last.raw) != "" {
			d.entries = append(d.entries, &entry{raw: "\n", kind: entryTrivia})
		}
	}

	header := fmt.Sprintf("[%s]\n", renderKeyPath(table))
	d.entries = append(d.entries, &entry{raw: header, kind: entryHeader, path: table})

	raw := fmt.Sprintf("%s = %s\n", renderKeyPath([]string{key}), rendered)
	e := &entry{raw: raw, kind: entryKV, path: append(append([]string{}, table...), key)}
	e.valStart, e.valEnd = valueSpan(raw, findAssign(raw))
	d.entries = append(d.entries, e)
}

// ensureNewlineBefore guarantees the entry preceding idx ends with a newline
// so an inserted entry starts on its own line.
func (d *Document) ensureNewlineBefore(idx int) {
	if idx == 0 || idx > len(d.entries) {
		return
	}
	prev := d.entries[idx-1]
	if !strings.HasSuffix(prev.raw, "\n") {
		prev.raw += "\n"
	}
}

// Remove deletes the leaf at path and any parent tables left without keys.
// Removing an absent path is a no-op.
func (d *Document) Remove(path []string) error {
	if len(path) == 0 {
		return fmt.Errorf("empty toml path")
	}

	e := d.findKV(path)
	if e == nil {
		// The leaf may live inside an inline table one level up.
		if len(path) >= 2 {
			if parent := d.findKV(path[:len(path)-1]); parent != nil && isInlineTable(parent.value()) {
				return d.removeInlineKey(parent, path[len(path)-1])
			}
		}
		return nil
	}

	idx := -1
	for i, cand := range d.entries {
		if cand == e {
			idx = i
			break
		}
	}
	d.entries = append(d.entries[:idx], d.entries[idx+1:]...)

	d.pruneEmptyTables()
	return nil
}

// pruneEmptyTables drops headers whose section holds no keys and that have
// no child tables. Comments and blank lines inside the section survive.
func (d *Document) pruneEmptyTables() {
	for {
		removed := false
		for i, e := range d.entries {
			if e.kind != entryHeader || e.arrayTable {
				continue
			}
			end := d.sectionEnd(i)
			hasKV := false
			for j := i + 1; j < end; j++ {
				if d.entries[j].kind == entryKV {
					hasKV = true
					break
				}
			}
			if hasKV {
				continue
			}
			hasChild := false
			for _, other := range d.entries {
				if other != e && other.kind == entryHeader && pathHasPrefix(other.path, e.path) {
					hasChild = true
					break
				}
			}
			if hasChild {
				continue
			}
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			removed = true
			break
		}
		if !removed {
			return
		}
	}
}

// ── inline table surgery ─────────────────────────────────────────────

func isInlineTable(valueText string) bool {
	t := strings.TrimSpace(valueText)
	return strings.HasPrefix(t, "{") && strings.HasSuffix(t, "}")
}

// splitTopLevel splits s at sep occurrences outside strings, brackets, and
// braces.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	state := scanNormal
	start := 0

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch state {
		case scanNormal:
			switch c {
			case sep:
				if depth == 0 {
					parts = append(parts, s[start:i])
					start = i + 1
				}
			case '[', '{':
				depth++
			case ']', '}':
				depth--
			case '"':
				state = scanBasic
			case '\'':
				state = scanLiteral
			}
		case scanBasic:
			if c == '\\' {
				i++
				continue
			}
			if c == '"' {
				state = scanNormal
			}
		case scanLiteral:
			if c == '\'' {
				state = scanNormal
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// insertInlineKey appends `key = rendered` to an inline-table value,
// preserving the existing inner text and spacing.
func (e *entry) insertInlineKey(key, rendered string) {
	val := e.value()
	openIdx := strings.Index(val, "{")
	closeIdx := strings.LastIndex(val, "}")

	inner := val[openIdx+1 : closeIdx]
	trimmed := strings.TrimRight(inner, " \t")
	trailing := inner[len(trimmed):]

	var newInner string
	if strings.TrimSpace(inner) == "" {
		newInner = fmt.Sprintf(" %s = %s ", key, rendered)
	} else {
		if trailing == "" {
			trailing = " "
		}
		newInner = fmt.Sprintf("%s, %s = %s%s", trimmed, key, rendered, trailing)
	}

	e.setValue(val[:openIdx+1] + newInner + val[closeIdx:])
}

// removeInlineKey deletes one key from an inline-table value.
func (d *Document) removeInlineKey(e *entry, key string) error {
	val := e.value()
	openIdx := strings.Index(val, "{")
	closeIdx := strings.LastIndex(val, "}")
	inner := val[openIdx+1 : closeIdx]

	parts := splitTopLevel(inner, ',')
	var kept []string
	found := false
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		eq := findAssign(part)
		if eq >= 0 {
			if keys, err := parseKeyPath(part[:eq]); err == nil && len(keys) == 1 && keys[0] == key {
				found = true
				continue
			}
		}
		kept = append(kept, strings.TrimSpace(part))
	}
	if !found {
		return nil
	}

	var newVal string
	if len(kept) == 0 {
		newVal = "{}"
	} else {
		newVal = "{ " + strings.Join(kept, ", ") + " }"
	}
	e.setValue(val[:openIdx] + newVal + val[closeIdx+1:])
	return nil
}

// ── value rendering ──────────────────────────────────────────────────

// RenderValue renders a JSON-shaped Go value as TOML value text.
func RenderValue(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return strconv.Quote(t), nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10), nil
		}
		return strconv.FormatFloat(t, 'g', -1, 64), nil
	case []string:
		parts := make([]string, len(t))
		for i, s := range t {
			parts[i] = strconv.Quote(s)
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case []interface{}:
		parts := make([]string, len(t))
		for i, item := range t {
			r, err := RenderValue(item)
			if err != nil {
				return "", err
			}
			parts[i] = r
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			r, err := RenderValue(t[k])
			if err != nil {
				return "", err
			}
			parts[i] = fmt.Sprintf("%s = %s", renderKeyPath([]string{k}), r)
		}
		return "{ " + strings.Join(parts, ", ") + " }", nil
	case nil:
		return "", fmt.Errorf("cannot render nil value")
	default:
		return "", fmt.Errorf("cannot render value of type %T", v)
	}
}

func renderKeyPath(keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		if bareKeyRe.MatchString(k) {
			parts[i] = k
		} else {
			parts[i] = strconv.Quote(k)
		}
	}
	return strings.Join(parts, ".")
}
