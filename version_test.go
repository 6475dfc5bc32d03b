package juliagate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		input string
		want  Version
	}{
		{"1.10.4", Version{1, 10, 4}},
		{"1.10", Version{1, 10, -1}},
		{"1", Version{1, -1, -1}},
		{"1.11.0-beta1", Version{1, 11, 0}},
		{"0.7.0", Version{0, 7, 0}},
	}

	for _, tt := range tests {
		v, err := ParseVersion(tt.input)
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, v, "input %q", tt.input)
	}
}

func TestParseVersionInvalid(t *testing.T) {
	for _, input := range []string{"", "abc", "v1.2.3"} {
		_, err := ParseVersion(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestParseJuliaVersion(t *testing.T) {
	v, err := ParseJuliaVersion("julia version 1.10.4")
	require.NoError(t, err)
	assert.Equal(t, Version{1, 10, 4}, v)

	_, err = ParseJuliaVersion("python version 3.12.1")
	assert.Error(t, err)

	_, err = ParseJuliaVersion("1.10.4")
	assert.Error(t, err)
}

func TestParseJuliaupVersion(t *testing.T) {
	v, err := ParseJuliaupVersion("Juliaup 1.14.5")
	require.NoError(t, err)
	assert.Equal(t, Version{1, 14, 5}, v)

	// Case-insensitive on the product name
	v, err = ParseJuliaupVersion("juliaup 1.14.5")
	require.NoError(t, err)
	assert.Equal(t, Version{1, 14, 5}, v)

	_, err = ParseJuliaupVersion("julia 1.10.4 x")
	assert.Error(t, err)
}

func TestVersionCompare(t *testing.T) {
	tests := []struct {
		a, b Version
		want int
	}{
		{Version{1, 10, 4}, Version{1, 10, 4}, 0},
		{Version{1, 10, 4}, Version{1, 10, 3}, 1},
		{Version{1, 9, 0}, Version{1, 10, 0}, -1},
		{Version{2, 0, 0}, Version{1, 99, 99}, 1},
		{Version{1, 10, 4}, Version{1, 10, -1}, 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.a.Compare(tt.b), "%v vs %v", tt.a, tt.b)
	}
}

func TestVersionString(t *testing.T) {
	v := Version{1, 10, 4}
	assert.Equal(t, "1.10.4", v.String())

	v = Version{1, 10, -1}
	assert.Equal(t, "1.10", v.String())

	v = Version{1, -1, -1}
	assert.Equal(t, "1", v.String())

	v = Version{1, 10, 4}
	assert.Equal(t, "1.10", v.MinorString())
}
