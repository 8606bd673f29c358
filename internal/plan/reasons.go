package plan

// Block reason tokens. These are recorded on operations and apply results;
// they never abort a run (tool errors do that).
const (
	ReasonPolicyDenied     = "policy.denied"
	ReasonPolicyNotAllowed = "policy.not_allowed"

	ReasonGuardedRequired = "safety.guarded_required"
	ReasonUnsafeRequired  = "safety.unsafe_required_or_missing_params"
	ReasonSafetyGate      = "safety_gate_denied"

	ReasonCapMaxOps        = "cap.max_ops"
	ReasonCapMaxFiles      = "cap.max_files"
	ReasonCapMaxPatchBytes = "cap.max_patch_bytes"

	ReasonPreconditions = "preconditions.mismatch"
	ReasonDirtyTree     = "workingtree.dirty"
	ReasonApplyDisabled = "apply.not_enabled"

	ReasonUnsupportedOverride = "edit.unsupported_override"
)
