package juliagate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPkgAddSnippet(t *testing.T) {
	snippet := pkgAddSnippet([]string{"MsgPack"})
	assert.Equal(t, `using Pkg; Pkg.add([Pkg.PackageSpec(name="MsgPack")])`, snippet)

	snippet = pkgAddSnippet([]string{"JSON@0.21.4", "MsgPack"})
	assert.Equal(t, `using Pkg; Pkg.add([Pkg.PackageSpec(name="JSON", version="0.21.4"), Pkg.PackageSpec(name="MsgPack")])`, snippet)
}

func TestProjectArgs(t *testing.T) {
	env := &JuliaEnvironment{}
	assert.Empty(t, env.projectArgs())

	env.ProjectPath = "/opt/envs/demo"
	assert.Equal(t, []string{"--project=/opt/envs/demo"}, env.projectArgs())
}

func TestProcessEnviron(t *testing.T) {
	env := &JuliaEnvironment{
		BaseEnvironment: BaseEnvironment{DepotPath: "/opt/depot"},
	}

	environ := env.processEnviron(map[string]string{"FOO": "bar"})
	assert.Contains(t, environ, "JULIA_DEPOT_PATH=/opt/depot")
	assert.Contains(t, environ, "JULIA_PKG_PRECOMPILE_AUTO=0")
	assert.Contains(t, environ, "FOO=bar")
}

func TestEnvironmentSpecJSON(t *testing.T) {
	data := []byte(`{
		"name": "demo",
		"julia_version": "1.10",
		"juliaup_version": "1.14.5",
		"packages": [
			{"name": "JSON", "version": "0.21.4", "uuid": "682c06a0-de6a-54ab-a142-c8b1cf79cde6"},
			{"name": "MsgPack", "version": "1.2.0", "uuid": "99f44e22-a591-53d1-9472-aa53809ab6e0"}
		]
	}`)

	var spec EnvironmentSpec
	require.NoError(t, json.Unmarshal(data, &spec))

	assert.Equal(t, "demo", spec.Name)
	assert.Equal(t, "1.10", spec.JuliaVersion)
	require.Len(t, spec.Packages, 2)
	assert.Equal(t, "JSON", spec.Packages[0].Name)
	assert.Equal(t, "0.21.4", spec.Packages[0].Version)
	assert.Equal(t, "99f44e22-a591-53d1-9472-aa53809ab6e0", spec.Packages[1].UUID)
}

func TestFindJuliaLauncher(t *testing.T) {
	depot := t.TempDir()
	bin := t.TempDir()

	_, err := findJuliaLauncher(depot, bin, "julia")
	require.Error(t, err)

	// juliaup places launchers under its depot's bin directory
	require.NoError(t, os.MkdirAll(filepath.Join(depot, "bin"), 0755))
	depotLauncher := filepath.Join(depot, "bin", "julia")
	require.NoError(t, os.WriteFile(depotLauncher, nil, 0755))

	got, err := findJuliaLauncher(depot, bin, "julia")
	require.NoError(t, err)
	assert.Equal(t, depotLauncher, got)

	// older layout: next to the juliaup binary itself
	require.NoError(t, os.Remove(depotLauncher))
	binLauncher := filepath.Join(bin, "julia")
	require.NoError(t, os.WriteFile(binLauncher, nil, 0755))

	got, err = findJuliaLauncher(depot, bin, "julia")
	require.NoError(t, err)
	assert.Equal(t, binLauncher, got)

	// the depot location wins when both exist
	require.NoError(t, os.WriteFile(depotLauncher, nil, 0755))
	got, err = findJuliaLauncher(depot, bin, "julia")
	require.NoError(t, err)
	assert.Equal(t, depotLauncher, got)
}

func TestBaseArgsDisablePrecompilation(t *testing.T) {
	env := &JuliaEnvironment{ProjectPath: "/opt/envs/demo"}

	args := env.baseArgs()
	assert.Contains(t, args, "--project=/opt/envs/demo")
	assert.Contains(t, args, "--compiled-modules=no")
	assert.Contains(t, args, "--startup-file=no")
}
