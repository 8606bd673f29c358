package receipt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Load reasons recorded in inputs_failed. Receipt problems are never fatal.
const (
	ReasonIO            = "io"
	ReasonJSON          = "json"
	ReasonSchemaUnknown = "schema.unknown"
	ReasonTokenInvalid  = "token.invalid"
	ReasonPathInvalid   = "path.invalid"
)

// Loaded is one receipt as found on disk. Err carries a load reason when the
// receipt could not be used; Envelope is nil in that case.
type Loaded struct {
	Path     string
	Sensor   string
	Envelope *Envelope
	Err      string
}

// Source yields receipts for the planner. The filesystem layout is one
// implementation; tests use literal slices.
type Source interface {
	Load() ([]Loaded, error)
}

// SliceSource yields a fixed receipt list. Tests and in-memory planning use
// it in place of the filesystem.
type SliceSource []Loaded

func (s SliceSource) Load() ([]Loaded, error) { return s, nil }

// DirSource scans <dir>/<sensor>/report.json. The sensor identifier is the
// directory name, never tool.name from the envelope.
type DirSource struct {
	Dir    string
	Logger hclog.Logger
}

// SelfSensorID names buildfix's own output directory, which is skipped
// during discovery.
const SelfSensorID = "buildfix"

func (s DirSource) Load() ([]Loaded, error) {
	pattern := filepath.Join(s.Dir, "*", "report.json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}

	var out []Loaded
	for _, path := range matches {
		sensor := filepath.Base(filepath.Dir(path))
		if sensor == SelfSensorID {
			if s.Logger != nil {
				s.Logger.Debug("skipping buildfix's own report", "path", path)
			}
			continue
		}
		out = append(out, loadOne(filepath.ToSlash(path), sensor))
	}

	// Deterministic order matters.
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func loadOne(path, sensor string) Loaded {
	loaded := Loaded{Path: path, Sensor: sensor}

	data, err := os.ReadFile(filepath.FromSlash(path))
	if err != nil {
		loaded.Err = ReasonIO
		return loaded
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		loaded.Err = ReasonJSON
		return loaded
	}

	if reason := Validate(&env); reason != "" {
		loaded.Err = reason
		return loaded
	}

	loaded.Envelope = &env
	return loaded
}

// Validate checks an envelope against the receipt contract and returns a
// load reason, or "" when the receipt is usable. Finding paths are
// canonicalized in place.
func Validate(env *Envelope) string {
	if !strings.HasSuffix(env.Schema, ".report.v1") {
		return ReasonSchemaUnknown
	}

	for i := range env.Findings {
		f := &env.Findings[i]
		if f.Code == "" || !ValidToken(f.Code) {
			return ReasonTokenInvalid
		}
		if f.CheckID != "" {
			// A check_id is one or more tokens joined by dots, e.g.
			// "workspace.resolver_v2".
			for _, seg := range strings.Split(f.CheckID, ".") {
				if !ValidToken(seg) {
					return ReasonTokenInvalid
				}
			}
		}
		if f.Location != nil {
			p, err := CanonicalizePath(f.Location.Path)
			if err != nil {
				return ReasonPathInvalid
			}
			f.Location.Path = p
		}
	}
	return ""
}
