package tomledit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rootManifest = `# workspace root
[workspace]
members = ["crates/*"] # glob

# deps shared by members
[workspace.dependencies]
serde = { version = "1", features = ["derive"] }
`

func TestParseRenderRoundTrip(t *testing.T) {
	inputs := []string{
		rootManifest,
		"",
		"key = \"v\"",
		"a = [\n  1,\n  2, # two\n]\n\n[t]\nx = 'y'\n",
		"s = \"\"\"multi\nline\"\"\"\n",
	}
	for _, in := range inputs {
		doc, err := Parse([]byte(in))
		require.NoError(t, err)
		assert.Equal(t, in, string(doc.Render()))
	}
}

func TestSetExistingValuePreservesComment(t *testing.T) {
	doc, err := Parse([]byte("resolver = \"1\" # keep me\n"))
	require.NoError(t, err)
	require.NoError(t, doc.Set([]string{"resolver"}, "2"))
	assert.Equal(t, "resolver = \"2\" # keep me\n", string(doc.Render()))
}

func TestSetInsertsAfterLastKeyInSection(t *testing.T) {
	doc, err := Parse([]byte(rootManifest))
	require.NoError(t, err)
	require.NoError(t, doc.Set([]string{"workspace", "resolver"}, "2"))

	want := `# workspace root
[workspace]
members = ["crates/*"] # glob
resolver = "2"

# deps shared by members
[workspace.dependencies]
serde = { version = "1", features = ["derive"] }
`
	assert.Equal(t, want, string(doc.Render()))
}

func TestSetCreatesMissingTable(t *testing.T) {
	doc, err := Parse([]byte("top = 1\n"))
	require.NoError(t, err)
	require.NoError(t, doc.Set([]string{"package", "edition"}, "2021"))

	assert.Equal(t, "top = 1\n\n[package]\nedition = \"2021\"\n", string(doc.Render()))
}

func TestSetTopLevelKey(t *testing.T) {
	doc, err := Parse([]byte("[t]\nx = 1\n"))
	require.NoError(t, err)
	require.NoError(t, doc.Set([]string{"title"}, "hello"))
	assert.Equal(t, "title = \"hello\"\n[t]\nx = 1\n", string(doc.Render()))
}

func TestTrailingNewlinePreserved(t *testing.T) {
	doc, err := Parse([]byte("[p]\na = 1"))
	require.NoError(t, err)
	require.NoError(t, doc.Set([]string{"p", "b"}, 2))
	out := string(doc.Render())
	assert.Equal(t, "[p]\na = 1\nb = 2", out)

	doc, err = Parse([]byte("[p]\na = 1\n"))
	require.NoError(t, err)
	require.NoError(t, doc.Set([]string{"p", "b"}, 2))
	assert.Equal(t, "[p]\na = 1\nb = 2\n", string(doc.Render()))
}

func TestRemoveLeafAndEmptyParent(t *testing.T) {
	in := "[package]\nname = \"a\"\n\n[badge]\nstatus = \"ok\"\n"
	doc, err := Parse([]byte(in))
	require.NoError(t, err)
	require.NoError(t, doc.Remove([]string{"badge", "status"}))

	assert.Equal(t, "[package]\nname = \"a\"\n\n", string(doc.Render()))
}

func TestRemoveKeepsNonEmptyTable(t *testing.T) {
	in := "[package]\nname = \"a\"\nversion = \"0.1.0\"\n"
	doc, err := Parse([]byte(in))
	require.NoError(t, err)
	require.NoError(t, doc.Remove([]string{"package", "version"}))
	assert.Equal(t, "[package]\nname = \"a\"\n", string(doc.Render()))
}

func TestRemoveInsideInlineTable(t *testing.T) {
	in := "[dependencies]\nb = { path = \"../b\", version = \"0.3.1\" }\n"
	doc, err := Parse([]byte(in))
	require.NoError(t, err)
	require.NoError(t, doc.Remove([]string{"dependencies", "b", "version"}))
	assert.Equal(t, "[dependencies]\nb = { path = \"../b\" }\n", string(doc.Render()))
}

func TestInsertInlineKey(t *testing.T) {
	doc, err := Parse([]byte("b = { path = \"../b\" }\n"))
	require.NoError(t, err)
	e := doc.findKV([]string{"b"})
	require.NotNil(t, e)

	e.insertInlineKey("version", `"0.3.1"`)
	assert.Equal(t, "b = { path = \"../b\", version = \"0.3.1\" }\n", string(doc.Render()))
}

func TestInsertInlineKeyEmptyTable(t *testing.T) {
	doc, err := Parse([]byte("b = {}\n"))
	require.NoError(t, err)
	e := doc.findKV([]string{"b"})
	require.NotNil(t, e)

	e.insertInlineKey("version", `"1"`)
	assert.Equal(t, "b = { version = \"1\" }\n", string(doc.Render()))
}

func TestParseDottedKeys(t *testing.T) {
	doc, err := Parse([]byte("workspace.resolver = \"1\"\n"))
	require.NoError(t, err)
	e := doc.findKV([]string{"workspace", "resolver"})
	require.NotNil(t, e)
	assert.Equal(t, `"1"`, e.value())
}

func TestParseQuotedKeys(t *testing.T) {
	doc, err := Parse([]byte("[target.'cfg(windows)'.dependencies]\nwinapi = \"0.3\"\n"))
	require.NoError(t, err)
	e := doc.findKV([]string{"target", "cfg(windows)", "dependencies", "winapi"})
	require.NotNil(t, e)
	assert.Equal(t, `"0.3"`, e.value())
}

func TestRenderValue(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{"2", `"2"`},
		{true, "true"},
		{42, "42"},
		{float64(7), "7"},
		{[]string{"a", "b"}, `["a", "b"]`},
	}
	for _, tc := range tests {
		got, err := RenderValue(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := RenderValue(nil)
	assert.Error(t, err)
}
