package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	params, err := ParseParams([]string{"version=0.3.1", "rust_version=1.70"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"version": "0.3.1", "rust_version": "1.70"}, params)
}

func TestParseParamsEmpty(t *testing.T) {
	params, err := ParseParams(nil)
	require.NoError(t, err)
	assert.Nil(t, params)
}

func TestParseParamsInvalid(t *testing.T) {
	_, err := ParseParams([]string{"noequals"})
	assert.Error(t, err)

	_, err = ParseParams([]string{"=value"})
	assert.Error(t, err)
}

func TestParseParamsValueWithEquals(t *testing.T) {
	params, err := ParseParams([]string{"version=1.0.0=rc1"})
	require.NoError(t, err)
	assert.Equal(t, "1.0.0=rc1", params["version"])
}
