package gitmeta

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte("[workspace]\n"), 0644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("Cargo.toml")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Unix(1700000000, 0)},
	})
	require.NoError(t, err)

	return dir
}

func TestCollectCleanRepo(t *testing.T) {
	dir := setupRepo(t)

	st := Collect(dir)
	require.NotNil(t, st.HeadSHA)
	assert.Len(t, *st.HeadSHA, 40)
	require.NotNil(t, st.Dirty)
	assert.False(t, *st.Dirty)
}

func TestCollectDirtyRepo(t *testing.T) {
	dir := setupRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte("[workspace]\nresolver = \"2\"\n"), 0644))

	st := Collect(dir)
	require.NotNil(t, st.Dirty)
	assert.True(t, *st.Dirty)
}

func TestCollectNonRepo(t *testing.T) {
	st := Collect(t.TempDir())
	assert.Nil(t, st.HeadSHA)
	assert.Nil(t, st.Dirty)
}

func TestHeadSHA(t *testing.T) {
	dir := setupRepo(t)
	sha, err := HeadSHA(dir)
	require.NoError(t, err)
	assert.Len(t, sha, 40)

	_, err = HeadSHA(t.TempDir())
	assert.Error(t, err)
}
