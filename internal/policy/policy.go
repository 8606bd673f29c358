// Package policy gates operations by allow/deny globs, safety class, and
// operational caps. Blocks are recorded on operations; they never abort a run.
package policy

import (
	"path"
	"strings"

	"github.com/EffortlessMetrics/buildfix/internal/plan"
)

// Config is the effective policy for one plan or apply run.
type Config struct {
	Allow        []string
	Deny         []string
	AllowGuarded bool
	AllowUnsafe  bool
	AllowDirty   bool

	MaxOps        *uint64
	MaxFiles      *uint64
	MaxPatchBytes *uint64

	// Params are user-supplied values for fixers that cannot derive one from
	// repository state (--param key=value).
	Params map[string]string
}

// Snapshot renders the config into the form recorded in plan artifacts.
func (c *Config) Snapshot() plan.PolicySnapshot {
	return plan.PolicySnapshot{
		Allow:        c.Allow,
		Deny:         c.Deny,
		AllowGuarded: c.AllowGuarded,
		AllowUnsafe:  c.AllowUnsafe,
		AllowDirty:   c.AllowDirty,
		MaxOps:       c.MaxOps,
		MaxFiles:     c.MaxFiles,
		MaxPatchB:    c.MaxPatchBytes,
		Params:       c.Params,
	}
}

// Match evaluates a glob pattern against a policy key. Patterns support `*`
// and `?` within each `/`-separated segment; a wildcard never crosses a
// segment boundary. Matching is case-sensitive.
func Match(pattern, key string) bool {
	if strings.Count(pattern, "/") != strings.Count(key, "/") {
		return false
	}
	ok, err := path.Match(pattern, key)
	return err == nil && ok
}

// MatchAny reports whether any pattern matches the key.
func MatchAny(patterns []string, key string) bool {
	for _, p := range patterns {
		if Match(p, key) {
			return true
		}
	}
	return false
}

// Gate evaluates the allow/deny lists and safety gates for one operation and
// returns the block reason token, or "" when the operation passes. Evaluation
// order: explicit deny, then allow list, then the safety gate.
func (c *Config) Gate(op *plan.Operation) string {
	key := op.PolicyKey()

	if MatchAny(c.Deny, key) {
		return plan.ReasonPolicyDenied
	}
	if len(c.Allow) > 0 && !MatchAny(c.Allow, key) {
		return plan.ReasonPolicyNotAllowed
	}

	switch op.Safety {
	case plan.SafetyGuarded:
		if !c.AllowGuarded {
			return plan.ReasonGuardedRequired
		}
	case plan.SafetyUnsafe:
		if !c.AllowUnsafe || !c.HasParams(op.ParamsRequired) {
			return plan.ReasonUnsafeRequired
		}
	}

	return ""
}

// HasParams reports whether every required parameter was supplied.
func (c *Config) HasParams(required []string) bool {
	for _, key := range required {
		if _, ok := c.Params[key]; !ok {
			return false
		}
	}
	return true
}

// CheckCaps compares the post-filter operation set against the configured
// caps. It returns the reason token of the first violated cap, or "".
// patchBytes is the rendered preview size in bytes.
func (c *Config) CheckCaps(opsTotal, filesTouched, patchBytes uint64) string {
	if c.MaxOps != nil && opsTotal > *c.MaxOps {
		return plan.ReasonCapMaxOps
	}
	if c.MaxFiles != nil && filesTouched > *c.MaxFiles {
		return plan.ReasonCapMaxFiles
	}
	if c.MaxPatchBytes != nil && patchBytes > *c.MaxPatchBytes {
		return plan.ReasonCapMaxPatchBytes
	}
	return ""
}
