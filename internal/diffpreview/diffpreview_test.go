package diffpreview

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnifiedIdentical(t *testing.T) {
	assert.Empty(t, Unified("Cargo.toml", []byte("a\n"), []byte("a\n")))
}

func TestUnifiedSingleInsert(t *testing.T) {
	before := "[workspace]\nmembers = [\"crates/*\"]\n"
	after := "[workspace]\nmembers = [\"crates/*\"]\nresolver = \"2\"\n"

	got := Unified("Cargo.toml", []byte(before), []byte(after))
	want := strings.Join([]string{
		"diff --git a/Cargo.toml b/Cargo.toml",
		"--- a/Cargo.toml",
		"+++ b/Cargo.toml",
		"@@ -1,2 +1,3 @@",
		" [workspace]",
		" members = [\"crates/*\"]",
		"+resolver = \"2\"",
		"",
	}, "\n")
	assert.Equal(t, want, got)
}

func TestUnifiedReplaceLine(t *testing.T) {
	before := "[package]\nname = \"a\"\nrust-version = \"1.65\"\n"
	after := "[package]\nname = \"a\"\nrust-version = \"1.70\"\n"

	got := Unified("crates/a/Cargo.toml", []byte(before), []byte(after))
	assert.Contains(t, got, "-rust-version = \"1.65\"")
	assert.Contains(t, got, "+rust-version = \"1.70\"")
	assert.Contains(t, got, "@@ -1,3 +1,3 @@")
}

func TestUnifiedDeterministic(t *testing.T) {
	before := "a\nb\nc\nd\ne\nf\ng\nh\n"
	after := "a\nb\nX\nd\ne\nf\ng\nY\n"

	first := Unified("f", []byte(before), []byte(after))
	second := Unified("f", []byte(before), []byte(after))
	assert.Equal(t, first, second)
}

func TestUnifiedContextWindow(t *testing.T) {
	lines := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		lines = append(lines, string(rune('a'+i)))
	}
	before := strings.Join(lines, "\n") + "\n"

	changed := append([]string{}, lines...)
	changed[10] = "CHANGED"
	after := strings.Join(changed, "\n") + "\n"

	got := Unified("f", []byte(before), []byte(after))

	// 3 lines of context on each side, nothing more.
	assert.Contains(t, got, " h\n i\n j\n-k\n+CHANGED\n l\n m\n n\n")
	assert.NotContains(t, got, " g\n")
	assert.Contains(t, got, "@@ -8,7 +8,7 @@")
}

func TestUnifiedNoTrailingNewline(t *testing.T) {
	got := Unified("f", []byte("a\nb"), []byte("a\nc"))
	require.NotEmpty(t, got)
	assert.Contains(t, got, "-b\n\\ No newline at end of file\n")
	assert.Contains(t, got, "+c\n\\ No newline at end of file\n")
}
