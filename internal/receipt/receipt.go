package receipt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Severity of a sensor finding.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// UnmarshalJSON tolerates unknown severities by mapping them to info.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch Severity(raw) {
	case SeverityInfo, SeverityWarn, SeverityError:
		*s = Severity(raw)
	default:
		*s = SeverityInfo
	}
	return nil
}

// Envelope is the wire form of a sensor receipt. Parsing is tolerant:
// unknown fields are ignored and optional fields may be absent. Sensors
// should enforce stricter schema compliance; buildfix's job is to be useful
// with receipts as found.
type Envelope struct {
	Schema       string            `json:"schema"`
	Tool         ToolInfo          `json:"tool"`
	Run          RunInfo           `json:"run"`
	Verdict      Verdict           `json:"verdict"`
	Findings     []EnvelopeFinding `json:"findings"`
	Capabilities *Capabilities     `json:"capabilities,omitempty"`
}

type ToolInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type RunInfo struct {
	StartedAt string `json:"started_at,omitempty"`
	EndedAt   string `json:"ended_at,omitempty"`
}

type Verdict struct {
	Status  string   `json:"status,omitempty"`
	Counts  Counts   `json:"counts,omitempty"`
	Reasons []string `json:"reasons,omitempty"`
}

type Counts struct {
	Info  uint64 `json:"info"`
	Warn  uint64 `json:"warn"`
	Error uint64 `json:"error"`
}

type EnvelopeFinding struct {
	CheckID  string                 `json:"check_id,omitempty"`
	Code     string                 `json:"code"`
	Severity Severity               `json:"severity,omitempty"`
	Location *Location              `json:"location,omitempty"`
	Message  string                 `json:"message,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

type Location struct {
	Path string `json:"path"`
	Line uint64 `json:"line,omitempty"`
}

type Capabilities struct {
	InputsAvailable []string       `json:"inputs_available,omitempty"`
	InputsFailed    []InputFailure `json:"inputs_failed,omitempty"`
}

type InputFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Finding is the normalized form routed to fixers. The sensor identifier
// comes from the directory holding the receipt, not from tool.name.
type Finding struct {
	Sensor   string                 `json:"sensor"`
	CheckID  string                 `json:"check_id,omitempty"`
	Code     string                 `json:"code"`
	Path     string                 `json:"path,omitempty"`
	Line     uint64                 `json:"line,omitempty"`
	Severity Severity               `json:"severity"`
	Hint     map[string]interface{} `json:"hint,omitempty"`
}

// PolicyKey renders the sensor-routed routing string, with "-" standing in
// for missing parts.
func (f Finding) PolicyKey() string {
	check := f.CheckID
	if check == "" {
		check = "-"
	}
	code := f.Code
	if code == "" {
		code = "-"
	}
	return fmt.Sprintf("%s/%s/%s", f.Sensor, check, code)
}

var tokenRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidToken reports whether s matches the token grammar of a code or of one
// dot-separated segment of a check_id.
func ValidToken(s string) bool {
	return tokenRe.MatchString(s)
}

// CanonicalizePath normalizes a repository-relative path: forward slashes,
// no leading "./", no trailing "/". Absolute paths and backslashes cannot be
// normalized and are rejected.
func CanonicalizePath(p string) (string, error) {
	if strings.Contains(p, `\`) {
		return "", fmt.Errorf("path %q contains a backslash", p)
	}
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("path %q is absolute", p)
	}
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return "", fmt.Errorf("path is empty after normalization")
	}
	return p, nil
}

// Set bundles every finding from successfully parsed receipts together with
// the inputs that produced them and the inputs that failed to load.
type Set struct {
	Findings []Finding
	Inputs   []InputRef
	Failed   []InputFailure
}

// InputRef identifies one loaded receipt in plan artifacts.
type InputRef struct {
	Path   string `json:"path"`
	Schema string `json:"schema,omitempty"`
	Tool   string `json:"tool,omitempty"`
}

// NewSet normalizes loaded receipts into a Set. Findings are sorted by
// (sensor, check_id, code, path, line) so planning order never depends on
// receipt discovery order.
func NewSet(loaded []Loaded) *Set {
	set := &Set{}

	for _, r := range loaded {
		if r.Err != "" {
			set.Failed = append(set.Failed, InputFailure{Path: r.Path, Reason: r.Err})
			set.Inputs = append(set.Inputs, InputRef{Path: r.Path})
			continue
		}

		set.Inputs = append(set.Inputs, InputRef{
			Path:   r.Path,
			Schema: r.Envelope.Schema,
			Tool:   r.Envelope.Tool.Name,
		})

		for _, ef := range r.Envelope.Findings {
			f := Finding{
				Sensor:   r.Sensor,
				CheckID:  ef.CheckID,
				Code:     ef.Code,
				Severity: ef.Severity,
				Hint:     ef.Data,
			}
			if f.Severity == "" {
				f.Severity = SeverityInfo
			}
			if ef.Location != nil {
				f.Path = ef.Location.Path
				f.Line = ef.Location.Line
			}
			set.Findings = append(set.Findings, f)
		}
	}

	sort.SliceStable(set.Findings, func(i, j int) bool {
		a, b := set.Findings[i], set.Findings[j]
		if a.Sensor != b.Sensor {
			return a.Sensor < b.Sensor
		}
		if a.CheckID != b.CheckID {
			return a.CheckID < b.CheckID
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Line < b.Line
	})

	return set
}

// Match filters the set down to findings a fixer consumes. Empty sensor or
// check-id lists match everything on that axis; codes likewise.
func (s *Set) Match(sensors, checkIDs, codes []string) []Finding {
	var out []Finding
	for _, f := range s.Findings {
		if len(sensors) > 0 && !containsPrefix(sensors, f.Sensor) {
			continue
		}
		if len(checkIDs) > 0 && !contains(checkIDs, f.CheckID) {
			continue
		}
		if len(codes) > 0 && !contains(codes, f.Code) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsPrefix(prefixes []string, s string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
