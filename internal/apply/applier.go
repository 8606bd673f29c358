package apply

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/EffortlessMetrics/buildfix/internal/gitmeta"
	"github.com/EffortlessMetrics/buildfix/internal/plan"
	"github.com/EffortlessMetrics/buildfix/internal/policy"
	"github.com/EffortlessMetrics/buildfix/internal/tomledit"
	"github.com/EffortlessMetrics/buildfix/pkg/shared/files"
)

// DefaultBackupSuffix is appended to backup copies of target files.
const DefaultBackupSuffix = ".buildfix-bak"

// Options configure one apply attempt.
type Options struct {
	DryRun       bool
	AllowGuarded bool
	AllowUnsafe  bool
	AllowDirty   bool
	Params       map[string]string

	BackupEnabled bool
	BackupDir     string
	BackupSuffix  string
}

// Applier executes a plan against the repository at Root.
type Applier struct {
	Root   string
	Logger hclog.Logger
}

// Run verifies and applies the plan. The returned record is always valid,
// also when every operation was blocked; err is non-nil only for tool errors
// that occurred before any per-operation accounting was possible.
func (a *Applier) Run(p *plan.Plan, planRef PlanRef, opts Options) (*Record, error) {
	if opts.BackupSuffix == "" {
		opts.BackupSuffix = DefaultBackupSuffix
	}

	gitBefore := gitmeta.Collect(a.Root)
	rec := &Record{
		Schema: plan.SchemaApplyV1,
		Tool:   p.Tool,
		Repo: RepoState{
			Root:          a.Root,
			HeadSHABefore: gitBefore.HeadSHA,
			DirtyBefore:   gitBefore.Dirty,
		},
		PlanRef:       planRef,
		Preconditions: PreconditionVerdict{Verified: true},
	}

	// Re-gate: previously allowed operations may be blocked by the current
	// options, never the reverse.
	gate := &policy.Config{
		Allow:        p.Policy.Allow,
		Deny:         p.Policy.Deny,
		AllowGuarded: opts.AllowGuarded,
		AllowUnsafe:  opts.AllowUnsafe,
		AllowDirty:   opts.AllowDirty,
		Params:       opts.Params,
	}

	blocked := make([]string, len(p.Ops))
	for i := range p.Ops {
		op := &p.Ops[i]
		if op.Blocked {
			blocked[i] = op.BlockedReason
			continue
		}
		if reason := gate.Gate(op); reason != "" {
			switch reason {
			case plan.ReasonPolicyDenied, plan.ReasonPolicyNotAllowed:
				blocked[i] = plan.ReasonPolicyDenied
			default:
				blocked[i] = plan.ReasonSafetyGate
			}
		}
	}

	// Precondition verification against current repository state. Any
	// mismatch aborts the attempt before a single write.
	a.verifyPreconditions(p, gitBefore, opts, rec)

	if !rec.Preconditions.Verified {
		fallback := plan.ReasonDirtyTree
		for _, m := range rec.Preconditions.Mismatches {
			if m.Kind != "working_tree" {
				fallback = plan.ReasonPreconditions
				break
			}
		}
		for i := range p.Ops {
			reason := blocked[i]
			if reason == "" {
				reason = fallback
			}
			rec.Results = append(rec.Results, Result{
				OpID:          p.Ops[i].ID,
				Status:        StatusBlocked,
				BlockedReason: reason,
			})
			rec.Summary.Blocked++
		}
		a.finish(rec)
		return rec, nil
	}

	// Write phase, in plan order. A failure for one operation marks it
	// failed and skips the rest; the atomic write leaves its target intact.
	backedUp := map[string]string{}
	aborted := false
	modified := map[string]bool{}

	for i := range p.Ops {
		op := &p.Ops[i]

		if blocked[i] != "" {
			rec.Results = append(rec.Results, Result{
				OpID:          op.ID,
				Status:        StatusBlocked,
				BlockedReason: blocked[i],
			})
			rec.Summary.Blocked++
			continue
		}

		if aborted {
			rec.Results = append(rec.Results, Result{OpID: op.ID, Status: StatusSkipped, Message: "aborted by earlier failure"})
			continue
		}

		rec.Summary.Attempted++

		result, err := a.applyOne(op, opts, backedUp, modified)
		if err != nil {
			a.Logger.Error("operation failed", "op", op.ID, "error", err)
			rec.Results = append(rec.Results, Result{OpID: op.ID, Status: StatusFailed, Message: err.Error()})
			rec.Summary.Failed++
			aborted = true
			continue
		}
		rec.Results = append(rec.Results, result)
		if result.Status == StatusApplied {
			rec.Summary.Applied++
		}
	}

	rec.Summary.FilesModified = uint64(len(modified))
	a.finish(rec)
	return rec, nil
}

// applyOne materializes a single operation. In dry-run mode the edit is
// computed but nothing is backed up or written; the status is skipped.
func (a *Applier) applyOne(op *plan.Operation, opts Options, backedUp map[string]string, modified map[string]bool) (Result, error) {
	abs := filepath.Join(a.Root, filepath.FromSlash(op.TargetPath))

	before, err := os.ReadFile(abs)
	if err != nil {
		return Result{}, fmt.Errorf("read %q: %w", op.TargetPath, err)
	}

	after, err := tomledit.Apply(before, kindWithParams(op, opts.Params))
	if err != nil {
		var opErr *tomledit.OpError
		if errors.As(err, &opErr) {
			return Result{
				OpID:          op.ID,
				Status:        StatusBlocked,
				BlockedReason: opErr.Reason,
				Message:       opErr.Message,
			}, nil
		}
		return Result{}, err
	}

	change := FileChange{
		Path:         op.TargetPath,
		Sha256Before: files.Sha256Hex(before),
		Sha256After:  files.Sha256Hex(after),
	}

	if opts.DryRun {
		return Result{
			OpID:    op.ID,
			Status:  StatusSkipped,
			Message: "dry-run: not written",
			Files:   []FileChange{change},
		}, nil
	}

	if string(before) != string(after) {
		if opts.BackupEnabled {
			backupPath, ok := backedUp[op.TargetPath]
			if !ok {
				backupPath, err = a.backup(op.TargetPath, opts)
				if err != nil {
					return Result{}, err
				}
				backedUp[op.TargetPath] = backupPath
			}
			change.BackupPath = backupPath
		}

		if err := files.WriteFileAtomic(abs, after, 0644); err != nil {
			return Result{}, err
		}
		modified[op.TargetPath] = true
		a.Logger.Info("applied operation", "op", op.ID, "target", op.TargetPath)
	}

	return Result{
		OpID:   op.ID,
		Status: StatusApplied,
		Files:  []FileChange{change},
	}, nil
}

// kindWithParams fills user-supplied parameters into a transform's argument
// map. Operations planned without a derivable value carry the parameter name
// in params_required; the value arrives at apply time.
func kindWithParams(op *plan.Operation, params map[string]string) plan.Kind {
	kind := op.Kind
	if len(op.ParamsRequired) == 0 || kind.Op != plan.KindTomlTransform {
		return kind
	}

	args := map[string]interface{}{}
	for k, v := range kind.Args {
		args[k] = v
	}
	for _, key := range op.ParamsRequired {
		if v, ok := params[key]; ok {
			args[key] = v
		}
	}
	kind.Args = args
	return kind
}

// backup copies the target's current content to
// <backup_dir>/<target_path><suffix>, creating intermediate directories. The
// backup lands before any write to the target.
func (a *Applier) backup(target string, opts Options) (string, error) {
	dir := opts.BackupDir
	if dir == "" {
		dir = a.Root
	}
	backupPath := filepath.Join(dir, filepath.FromSlash(target)+opts.BackupSuffix)

	src := filepath.Join(a.Root, filepath.FromSlash(target))
	if err := files.CopyFile(src, backupPath); err != nil {
		return "", fmt.Errorf("backup %q: %w", target, err)
	}
	a.Logger.Debug("backup written", "target", target, "backup", backupPath)
	return filepath.ToSlash(backupPath), nil
}

func (a *Applier) verifyPreconditions(p *plan.Plan, git gitmeta.State, opts Options, rec *Record) {
	pre := p.Preconditions

	if pre.Dirty != nil && !*pre.Dirty && !opts.AllowDirty && !opts.DryRun {
		if git.Dirty != nil && *git.Dirty {
			rec.Preconditions.Verified = false
			rec.Preconditions.Mismatches = append(rec.Preconditions.Mismatches, Mismatch{
				Kind:     "working_tree",
				Expected: "clean",
				Actual:   "dirty",
			})
		}
	}

	if pre.HeadSHA != nil {
		actual := ""
		if git.HeadSHA != nil {
			actual = *git.HeadSHA
		}
		if actual != *pre.HeadSHA {
			rec.Preconditions.Verified = false
			rec.Preconditions.Mismatches = append(rec.Preconditions.Mismatches, Mismatch{
				Kind:     "git_head_sha",
				Expected: *pre.HeadSHA,
				Actual:   actual,
			})
		}
	}

	for _, f := range pre.Files {
		abs := filepath.Join(a.Root, filepath.FromSlash(f.Path))
		content, err := os.ReadFile(abs)
		if err != nil {
			rec.Preconditions.Verified = false
			rec.Preconditions.Mismatches = append(rec.Preconditions.Mismatches, Mismatch{
				Kind:     "file_exists",
				Path:     f.Path,
				Expected: "present",
				Actual:   "missing",
			})
			continue
		}
		actual := files.Sha256Hex(content)
		if actual != f.Sha256 {
			rec.Preconditions.Verified = false
			rec.Preconditions.Mismatches = append(rec.Preconditions.Mismatches, Mismatch{
				Kind:     "file_sha256",
				Path:     f.Path,
				Expected: f.Sha256,
				Actual:   actual,
			})
		}
	}
}

func (a *Applier) finish(rec *Record) {
	gitAfter := gitmeta.Collect(a.Root)
	rec.Repo.HeadSHAAfter = gitAfter.HeadSHA
	rec.Repo.DirtyAfter = gitAfter.Dirty
}
