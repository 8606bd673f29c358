// Package fixer holds the planning units that translate findings and
// repository state into operations. A fixer is pure: it reads only through
// the repository view and its declared inputs, and identical inputs always
// produce identical operations in identical order.
package fixer

import (
	"sort"
	"strings"

	"github.com/EffortlessMetrics/buildfix/internal/plan"
	"github.com/EffortlessMetrics/buildfix/internal/receipt"
	"github.com/EffortlessMetrics/buildfix/internal/repo"
)

// Meta describes a fixer for routing and for the `buildfix fixers` listing.
type Meta struct {
	// FixKey is the stable internal identifier, e.g. "cargo.workspace_resolver_v2".
	FixKey      string
	Description string
	// Safety is the nominal class; individual operations may escalate.
	Safety plan.SafetyClass
	// ConsumesSensors are sensor-id prefixes this fixer routes on.
	ConsumesSensors []string
	// ConsumesCheckIDs are the check ids this fixer routes on, including
	// historical synonyms.
	ConsumesCheckIDs []string
}

// Context carries the per-run inputs a fixer may consult beyond the
// repository: user-supplied parameters for values that cannot be derived.
type Context struct {
	Params map[string]string
}

// Param returns a user-supplied parameter, or "".
func (c *Context) Param(key string) string {
	if c == nil || c.Params == nil {
		return ""
	}
	return c.Params[key]
}

type Fixer interface {
	Meta() Meta
	// Plan emits zero or more operations. A fixer emits nothing when the
	// repository already satisfies its invariant, even if findings match.
	// An error aborts the whole plan as a tool error.
	Plan(ctx *Context, view repo.View, receipts *receipt.Set) ([]plan.Operation, error)
}

// Builtin returns the v1 registry in its fixed order. The planner's sort
// phase makes this order irrelevant to the artifact, but keeping it stable
// keeps logs comparable.
func Builtin() []Fixer {
	return []Fixer{
		&ResolverV2{},
		&PathDepVersion{},
		&WorkspaceInheritance{},
		&MsrvNormalize{},
		&EditionNormalize{},
	}
}

// BuiltinMetas returns metadata for every builtin fixer.
func BuiltinMetas() []Meta {
	fixers := Builtin()
	metas := make([]Meta, len(fixers))
	for i, f := range fixers {
		metas[i] = f.Meta()
	}
	return metas
}

// rootManifest is the workspace root manifest every fixer reasons about.
const rootManifest = "Cargo.toml"

// newOp assembles an operation with its rationale. The id is assigned by the
// planner after sorting.
func newOp(meta Meta, target string, kind plan.Kind, safety plan.SafetyClass, findings []receipt.Finding, paramsRequired []string) plan.Operation {
	return plan.Operation{
		TargetPath: target,
		Kind:       kind,
		Safety:     safety,
		Rationale: plan.Rationale{
			FixKey:      meta.FixKey,
			Description: meta.Description,
			Findings:    findings,
		},
		ParamsRequired: paramsRequired,
	}
}

// manifestsFrom collects the distinct manifest paths findings point at, in
// sorted order.
func manifestsFrom(findings []receipt.Finding) []string {
	seen := map[string]bool{}
	var out []string
	for _, f := range findings {
		if f.Path == "" || !hasManifestSuffix(f.Path) {
			continue
		}
		if !seen[f.Path] {
			seen[f.Path] = true
			out = append(out, f.Path)
		}
	}
	sort.Strings(out)
	return out
}

func hasManifestSuffix(p string) bool {
	return p == rootManifest || strings.HasSuffix(p, "/"+rootManifest)
}

// findingsFor filters findings down to those located in one manifest.
func findingsFor(findings []receipt.Finding, manifest string) []receipt.Finding {
	var out []receipt.Finding
	for _, f := range findings {
		if f.Path == manifest {
			out = append(out, f)
		}
	}
	return out
}
