package juliagate

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFakeJulia writes a shell script standing in for the julia binary.
func writeFakeJulia(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake julia binary needs a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "julia")
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

// Progress must be reported per output line while the install runs, not
// scanned from a buffer after the fact.
func TestPkgAddPackagesStreamsProgress(t *testing.T) {
	julia := writeFakeJulia(t, "#!/bin/sh\nfor i in 1 2 3 4 5; do echo \"line $i\"; done\n")
	env := &JuliaEnvironment{JuliaPath: julia}

	var lines int64
	err := env.PkgAddPackages([]string{"JSON"}, func(message string, current, total int64) {
		if total == -1 {
			lines++
			assert.Equal(t, lines, current)
		}
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), lines)
}

func TestPkgAddPackagesReportsStderr(t *testing.T) {
	julia := writeFakeJulia(t, "#!/bin/sh\necho \"ERROR: boom\" >&2\nexit 1\n")
	env := &JuliaEnvironment{JuliaPath: julia}

	err := env.PkgAddPackages([]string{"JSON"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestPkgInstantiateStreamsProgress(t *testing.T) {
	julia := writeFakeJulia(t, "#!/bin/sh\necho resolving\necho precompiling\n")
	env := &JuliaEnvironment{JuliaPath: julia}

	var lines int64
	err := env.PkgInstantiate(t.TempDir(), func(message string, current, total int64) {
		if total == -1 {
			lines++
		}
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), lines)
}
