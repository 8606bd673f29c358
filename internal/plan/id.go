package plan

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/EffortlessMetrics/buildfix/pkg/shared/files"
)

// ArgsFingerprint is the sha256 of the kind's canonical-JSON payload.
// Kinds without a payload hash the literal "no_args" so the composite key
// never has an empty component.
func ArgsFingerprint(k Kind) string {
	payload := k.payload()
	if payload == nil {
		return files.Sha256Hex([]byte("no_args"))
	}
	canonical, err := CanonicalJSON(payload)
	if err != nil {
		// Payloads come from fixers and are always JSON-representable.
		return files.Sha256Hex([]byte("no_args"))
	}
	return files.Sha256Hex(canonical)
}

// SortKey is the stable total order of operations within a plan:
// (target_path, kind_tag, rule_id_or_toml_path, args fingerprint).
// Two operations with equal sort keys are duplicates and collapse.
func SortKey(o *Operation) string {
	return fmt.Sprintf("%s|%s|%s|%s", o.TargetPath, o.Kind.Op, o.Kind.RuleOrPath(), ArgsFingerprint(o.Kind))
}

// DeterministicID assigns the operation id:
// UUIDv5(DNS namespace, "{fix_key}|{target}|{kind_tag}|{rule_or_path}|{args sha256}").
// Ids survive unrelated plan changes because no positional data enters the key.
func DeterministicID(o *Operation) string {
	key := fmt.Sprintf("%s|%s|%s|%s|%s",
		o.Rationale.FixKey, o.TargetPath, o.Kind.Op, o.Kind.RuleOrPath(), ArgsFingerprint(o.Kind))
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(key)).String()
}
