// Package gitmeta reads repository state used for drift detection: the HEAD
// commit and whether the working tree is dirty. A repo that is not under git
// yields nil values rather than errors; a HEAD precondition is then not
// recorded, and a clean-tree precondition is not enforced.
package gitmeta

import (
	"fmt"

	git "github.com/go-git/go-git/v5"
)

// State captures the git facts recorded in plan and apply artifacts.
type State struct {
	HeadSHA *string
	Dirty   *bool
}

// Collect opens the repository at root and reads HEAD and worktree status.
func Collect(root string) State {
	var st State

	repo, err := git.PlainOpen(root)
	if err != nil {
		return st
	}

	if head, err := repo.Head(); err == nil {
		sha := head.Hash().String()
		st.HeadSHA = &sha
	}

	wt, err := repo.Worktree()
	if err != nil {
		return st
	}
	status, err := wt.Status()
	if err != nil {
		return st
	}
	dirty := !status.IsClean()
	st.Dirty = &dirty

	return st
}

// HeadSHA returns the current HEAD commit hash, or an error when the
// repository cannot be opened or has no commits yet.
func HeadSHA(root string) (string, error) {
	repo, err := git.PlainOpen(root)
	if err != nil {
		return "", fmt.Errorf("failed to open repository: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}
