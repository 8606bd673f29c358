package receipt

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizePath(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: "crates/a/Cargo.toml", want: "crates/a/Cargo.toml"},
		{name: "leading dot slash", in: "./Cargo.toml", want: "Cargo.toml"},
		{name: "trailing slash", in: "crates/a/", want: "crates/a"},
		{name: "backslash", in: `crates\a`, wantErr: true},
		{name: "absolute", in: "/etc/passwd", wantErr: true},
		{name: "empty after normalize", in: "./", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CanonicalizePath(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestValidToken(t *testing.T) {
	assert.True(t, ValidToken("not_v2"))
	assert.True(t, ValidToken("missing_version"))
	assert.False(t, ValidToken("Not_V2"))
	assert.False(t, ValidToken("2bad"))
	assert.False(t, ValidToken(""))
	assert.False(t, ValidToken("has-dash"))
}

func TestPolicyKey(t *testing.T) {
	f := Finding{Sensor: "builddiag", CheckID: "workspace.resolver_v2", Code: "not_v2"}
	assert.Equal(t, "builddiag/workspace.resolver_v2/not_v2", f.PolicyKey())

	f = Finding{Sensor: "depguard", Code: "missing_version"}
	assert.Equal(t, "depguard/-/missing_version", f.PolicyKey())
}

func TestSeverityTolerantParse(t *testing.T) {
	var f EnvelopeFinding
	require.NoError(t, json.Unmarshal([]byte(`{"code":"x","severity":"critical"}`), &f))
	assert.Equal(t, SeverityInfo, f.Severity)
}

func TestNewSetSortsFindings(t *testing.T) {
	loaded := []Loaded{
		{
			Path:   "artifacts/depguard/report.json",
			Sensor: "depguard",
			Envelope: &Envelope{
				Schema: "sensor.report.v1",
				Tool:   ToolInfo{Name: "depguard"},
				Findings: []EnvelopeFinding{
					{CheckID: "deps.path_requires_version", Code: "missing_version", Location: &Location{Path: "crates/b/Cargo.toml", Line: 9}},
					{CheckID: "deps.path_requires_version", Code: "missing_version", Location: &Location{Path: "crates/a/Cargo.toml", Line: 7}},
				},
			},
		},
		{
			Path:   "artifacts/builddiag/report.json",
			Sensor: "builddiag",
			Envelope: &Envelope{
				Schema: "sensor.report.v1",
				Tool:   ToolInfo{Name: "builddiag"},
				Findings: []EnvelopeFinding{
					{CheckID: "workspace.resolver_v2", Code: "not_v2", Location: &Location{Path: "Cargo.toml", Line: 1}},
				},
			},
		},
		{Path: "artifacts/broken/report.json", Sensor: "broken", Err: ReasonJSON},
	}

	set := NewSet(loaded)

	require.Len(t, set.Findings, 3)
	assert.Equal(t, "builddiag", set.Findings[0].Sensor)
	assert.Equal(t, "crates/a/Cargo.toml", set.Findings[1].Path)
	assert.Equal(t, "crates/b/Cargo.toml", set.Findings[2].Path)

	require.Len(t, set.Failed, 1)
	assert.Equal(t, ReasonJSON, set.Failed[0].Reason)
	assert.Len(t, set.Inputs, 3)
}

func TestMatchFilters(t *testing.T) {
	set := NewSet([]Loaded{{
		Path:   "artifacts/builddiag/report.json",
		Sensor: "builddiag",
		Envelope: &Envelope{
			Schema: "sensor.report.v1",
			Findings: []EnvelopeFinding{
				{CheckID: "workspace.resolver_v2", Code: "not_v2"},
				{CheckID: "rust.msrv_consistent", Code: "mismatch"},
			},
		},
	}})

	got := set.Match([]string{"builddiag"}, []string{"workspace.resolver_v2"}, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "not_v2", got[0].Code)

	assert.Empty(t, set.Match([]string{"depguard"}, nil, nil))
	assert.Len(t, set.Match(nil, nil, []string{"mismatch"}), 1)
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()

	writeReceipt := func(sensor, body string) {
		sub := filepath.Join(dir, sensor)
		require.NoError(t, os.MkdirAll(sub, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(sub, "report.json"), []byte(body), 0644))
	}

	writeReceipt("builddiag", `{"schema":"sensor.report.v1","tool":{"name":"builddiag","version":"1.0.0"},"findings":[{"check_id":"workspace.resolver_v2","code":"not_v2","severity":"warn","location":{"path":"Cargo.toml","line":1}}]}`)
	writeReceipt("broken", `{not json`)
	writeReceipt("mystery", `{"schema":"mystery.v9","tool":{"name":"m"}}`)
	writeReceipt("badtoken", `{"schema":"sensor.report.v1","tool":{"name":"t"},"findings":[{"code":"Not-Valid"}]}`)
	writeReceipt("buildfix", `{"schema":"buildfix.report.v1","tool":{"name":"buildfix"}}`)

	loaded, err := DirSource{Dir: dir}.Load()
	require.NoError(t, err)

	byName := map[string]Loaded{}
	for _, l := range loaded {
		byName[l.Sensor] = l
	}

	require.Len(t, loaded, 4, "buildfix's own report must be skipped")
	assert.Empty(t, byName["builddiag"].Err)
	assert.Equal(t, "builddiag", byName["builddiag"].Sensor)
	assert.Equal(t, ReasonJSON, byName["broken"].Err)
	assert.Equal(t, ReasonSchemaUnknown, byName["mystery"].Err)
	assert.Equal(t, ReasonTokenInvalid, byName["badtoken"].Err)

	// Deterministic order by path.
	for i := 1; i < len(loaded); i++ {
		assert.Less(t, loaded[i-1].Path, loaded[i].Path)
	}
}

func TestValidateCanonicalizesFindingPaths(t *testing.T) {
	env := &Envelope{
		Schema: "sensor.report.v1",
		Findings: []EnvelopeFinding{
			{Code: "not_v2", Location: &Location{Path: "./Cargo.toml"}},
		},
	}
	require.Empty(t, Validate(env))
	assert.Equal(t, "Cargo.toml", env.Findings[0].Location.Path)

	env.Findings[0].Location.Path = `bad\path`
	assert.Equal(t, ReasonPathInvalid, Validate(env))
}
