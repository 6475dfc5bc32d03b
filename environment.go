package juliagate

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Runtime defines common operations for any language runtime environment.
// This interface allows code to work with different runtime types in a
// uniform way.
type Runtime interface {
	// Name returns the environment identifier.
	Name() string

	// Path returns the base environment path.
	Path() string

	// BinPath returns the path to executables.
	BinPath() string

	// Freeze serializes the environment to a file for reproducibility.
	Freeze(filePath string) error
}

// BaseEnvironment contains common fields for any juliaup-managed environment.
// This is embedded in runtime-specific environment types like JuliaEnvironment.
// It provides the foundation for environment management independent of the runtime.
type BaseEnvironment struct {
	// EnvironmentName is the identifier for this environment (e.g., "myenv", "system").
	EnvironmentName string

	// RootDir is the root directory containing the environment and juliaup binary.
	RootDir string

	// EnvPath is the full path to the environment's project directory.
	EnvPath string

	// EnvBinPath is the path to the bin directory holding executables.
	EnvBinPath string

	// DepotPath is the Julia depot directory (packages, artifacts, registries).
	DepotPath string

	// JuliaupVersion is the version of juliaup, if applicable.
	JuliaupVersion Version

	// JuliaupPath is the full path to the juliaup executable.
	// Empty for system Julia environments.
	JuliaupPath string

	// IsNew indicates whether this environment was newly created (true)
	// or already existed (false).
	IsNew bool
}

// JuliaEnvironment represents a Julia environment with all necessary paths and
// version information. It can be created from juliaup, system Julia, an explicit
// executable, or restored from a JSON specification file.
//
// The JuliaEnvironment struct provides methods for running Julia scripts, creating
// Julia processes, and installing packages via Pkg.
type JuliaEnvironment struct {
	// BaseEnvironment contains runtime-agnostic fields.
	BaseEnvironment

	// JuliaVersion is the detected Julia version (e.g., 1.10.4).
	JuliaVersion Version

	// JuliaPath is the full path to the Julia executable.
	JuliaPath string

	// ProjectPath is the directory containing the active Project.toml.
	// Empty when no project is configured; processes then run with the
	// default environment.
	ProjectPath string

	// StartupTimeout bounds how long process constructors wait for a spawned
	// Julia process to report its started status. Zero waits indefinitely.
	StartupTimeout time.Duration
}

// Name returns the environment identifier.
// Implements the Runtime interface.
func (env *JuliaEnvironment) Name() string {
	return env.EnvironmentName
}

// Path returns the base environment path.
// Implements the Runtime interface.
func (env *JuliaEnvironment) Path() string {
	return env.EnvPath
}

// BinPath returns the path to executables.
// Implements the Runtime interface.
func (env *JuliaEnvironment) BinPath() string {
	return env.EnvBinPath
}

// Freeze serializes the environment to a file for reproducibility.
// Implements the Runtime interface. This is an alias for FreezeToFile.
func (env *JuliaEnvironment) Freeze(filePath string) error {
	return env.FreezeToFile(filePath)
}

// PackageSpec represents a Julia package pinned to a version.
type PackageSpec struct {
	// Name is the package name (e.g., "MsgPack").
	Name string `json:"name"`

	// Version is the package version.
	Version string `json:"version"`

	// UUID is the registry UUID of the package, if known.
	UUID string `json:"uuid,omitempty"`
}

// EnvironmentSpec represents a complete environment specification that can be
// serialized to JSON and used to recreate an identical environment.
// This is the format used by FreezeToFile and CreateEnvironmentFromJSONFile.
type EnvironmentSpec struct {
	// Name is the environment name.
	Name string `json:"name"`

	// Packages lists the direct dependencies of the project.
	Packages []PackageSpec `json:"packages,omitempty"`

	// JuliaVersion specifies the Julia version (e.g., "1.10").
	JuliaVersion string `json:"julia_version,omitempty"`

	// JuliaupVersion optionally specifies the juliaup version used.
	JuliaupVersion string `json:"juliaup_version,omitempty"`
}

// CreateEnvironmentOptions specifies feedback verbosity during environment creation.
type CreateEnvironmentOptions int

// ProgressCallback is called during long-running operations to report progress.
// The message describes the current operation, current is the progress value,
// and total is the expected total (-1 if unknown).
type ProgressCallback func(message string, current, total int64)

const (
	// Show progress bar
	ShowProgressBar CreateEnvironmentOptions = iota
	// Show progress bar and verbose output
	ShowProgressBarVerbose
	// Show verbose output
	ShowVerbose
	// Show nothing
	ShowNothing
)

// juliaupReleaseBase is where portable juliaup archives are published.
const juliaupReleaseBase = "https://julialang-s3.julialang.org/juliaup/bin"

// RunReadStdout runs an executable and returns its trimmed stdout.
func RunReadStdout(binPath string, args ...string) (string, error) {
	cmd := exec.Command(binPath, args...)
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

// isDirWritable reports whether the process can create files in dir.
func isDirWritable(dir string) bool {
	f, err := os.CreateTemp(dir, ".juliagate-write-check-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}

// ExpectJuliaup ensures a juliaup executable exists in binDirectory, downloading
// a standalone build for the current platform if necessary. Returns the path to
// the executable.
func ExpectJuliaup(binDirectory string, progressCallback ProgressCallback) (string, error) {
	executableName := "juliaup"
	if runtime.GOOS == "windows" {
		executableName += ".exe"
	}
	juliaupPath := filepath.Join(binDirectory, executableName)
	if _, err := os.Stat(juliaupPath); err == nil {
		return juliaupPath, nil
	}

	var platform string
	switch runtime.GOOS {
	case "linux":
		platform = "unknown-linux-gnu"
	case "darwin":
		platform = "apple-darwin"
	case "windows":
		platform = "pc-windows-msvc"
	default:
		return "", fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	var arch string
	switch runtime.GOARCH {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	default:
		return "", fmt.Errorf("unsupported architecture: %s", runtime.GOARCH)
	}

	url := fmt.Sprintf("%s/%s-%s/%s", juliaupReleaseBase, arch, platform, executableName)

	resp, err := http.Get(url)
	if err != nil {
		return "", fmt.Errorf("error downloading juliaup: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("error downloading juliaup: unexpected status %s", resp.Status)
	}

	out, err := os.OpenFile(juliaupPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return "", err
	}
	defer out.Close()

	total := resp.ContentLength
	var written int64
	buf := make([]byte, 64*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return "", werr
			}
			written += int64(n)
			if progressCallback != nil {
				progressCallback("Downloading juliaup...", written, total)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", rerr
		}
	}

	if progressCallback != nil {
		progressCallback("Downloaded juliaup", 100, 100)
	}
	return juliaupPath, nil
}

// CreateEnvironmentJuliaup creates a new Julia environment using juliaup.
// If juliaup is not present in the rootDir/bin directory, it will be downloaded
// automatically.
//
// Parameters:
//   - envName: Name for the new environment (e.g., "myenv")
//   - rootDir: Root directory for juliaup, the depot, and environments
//   - juliaVersion: Julia version to install (e.g., "1.10"); defaults to "1.10" if empty
//   - channel: juliaup channel to use (e.g., "release", "lts"); defaults to the
//     requested version if empty
//   - progressCallback: Optional callback for progress updates; may be nil
//
// The environment's project directory is created at rootDir/envs/envName and the
// depot at rootDir/depot. If the project directory already exists, it is reused
// and IsNew will be false.
//
// Returns an error if the architecture is unsupported, the directory is not
// writable, or the requested Julia version cannot be satisfied.
func CreateEnvironmentJuliaup(envName string, rootDir string, juliaVersion string, channel string, progressCallback ProgressCallback) (*JuliaEnvironment, error) {
	if juliaVersion == "" {
		juliaVersion = "1.10"
	}
	if channel == "" {
		channel = juliaVersion
	}

	requestedVersion, err := ParseVersion(juliaVersion)
	if err != nil {
		return nil, fmt.Errorf("error parsing requested julia version: %v", err)
	}

	binDirectory := filepath.Join(rootDir, "bin")
	// Check if the specified root directory exists
	if _, err := os.Stat(binDirectory); os.IsNotExist(err) {
		// Ensure the target bin directory exists
		if err := os.MkdirAll(binDirectory, 0755); err != nil {
			return nil, fmt.Errorf("error creating directory: %v", err)
		}
	}

	// Check if the specified root directory is writable
	if !isDirWritable(rootDir) {
		return nil, fmt.Errorf("root directory is not writable: %s", rootDir)
	}

	executableName := "juliaup"
	launcherName := "julia"
	if runtime.GOOS == "windows" {
		executableName += ".exe"
		launcherName += ".exe"
	}

	// Create the environment object
	env := &JuliaEnvironment{
		BaseEnvironment: BaseEnvironment{
			EnvironmentName: envName,
			RootDir:         rootDir,
			DepotPath:       filepath.Join(rootDir, "depot"),
			JuliaupPath:     filepath.Join(binDirectory, executableName),
		},
	}

	// Check if binDirectory already has juliaup by getting its version
	jver, err := RunReadStdout(env.JuliaupPath, "--version")
	if err != nil {
		_, ok := err.(*fs.PathError)
		if ok {
			// download juliaup if it doesn't exist
			env.JuliaupPath, err = ExpectJuliaup(binDirectory, progressCallback)
			if err != nil {
				return nil, fmt.Errorf("error downloading juliaup: %v", err)
			}
			jver, err = RunReadStdout(env.JuliaupPath, "--version")
			if err != nil {
				return nil, fmt.Errorf("error running juliaup --version: %v", err)
			}
		} else {
			return nil, fmt.Errorf("error running juliaup --version: %v", err)
		}
	}

	env.JuliaupVersion, err = ParseJuliaupVersion(jver)
	if err != nil {
		return nil, fmt.Errorf("error parsing juliaup version: %v", err)
	}

	// Install the requested channel. juliaup add is idempotent for channels
	// that are already installed.
	addCmd := exec.Command(env.JuliaupPath, "add", channel)
	addCmd.Env = append(os.Environ(),
		"JULIAUP_DEPOT_PATH="+env.DepotPath,
		"JULIA_DEPOT_PATH="+env.DepotPath,
	)
	stdout, err := addCmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	defer stdout.Close()

	if err := addCmd.Start(); err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(stdout)
	lineCount := 0
	for scanner.Scan() {
		lineCount++
		if progressCallback != nil {
			progressCallback("Installing Julia...", int64(lineCount), -1)
		}
	}

	if err := addCmd.Wait(); err != nil {
		// An already-installed channel exits non-zero on some juliaup versions;
		// only fail if the launcher is missing too.
		if _, findErr := findJuliaLauncher(env.DepotPath, binDirectory, launcherName); findErr != nil {
			return nil, fmt.Errorf("error installing julia %s: %v", channel, err)
		}
	}

	if progressCallback != nil {
		progressCallback("Julia installed successfully", 100, 100)
	}

	// check if the environment project exists
	envPath := filepath.Join(env.RootDir, "envs", env.EnvironmentName)
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		// this is a new environment
		env.IsNew = true

		if err := os.MkdirAll(envPath, 0755); err != nil {
			return nil, fmt.Errorf("error creating environment project: %v", err)
		}

		// Seed an empty project manifest so --project resolves
		projectToml := fmt.Sprintf("name = %q\n\n[deps]\n", env.EnvironmentName)
		if err := os.WriteFile(filepath.Join(envPath, "Project.toml"), []byte(projectToml), 0644); err != nil {
			return nil, fmt.Errorf("error writing Project.toml: %v", err)
		}
	}

	env.EnvPath = envPath
	env.ProjectPath = envPath
	env.EnvBinPath = binDirectory
	env.JuliaPath, err = findJuliaLauncher(env.DepotPath, binDirectory, launcherName)
	if err != nil {
		return nil, err
	}

	// Check if the Julia launcher exists and get its version
	jlver, err := RunReadStdout(env.JuliaPath, "--version")
	if err != nil {
		return nil, fmt.Errorf("error running julia --version: %v", err)
	}
	env.JuliaVersion, err = ParseJuliaVersion(jlver)
	if err != nil {
		return nil, fmt.Errorf("error parsing Julia version: %v", err)
	}

	// ensure the julia version is equal or greater than the requested version
	if env.JuliaVersion.Compare(requestedVersion) < 0 {
		return nil, fmt.Errorf("requested julia version %s is not available, found %s", requestedVersion.String(), env.JuliaVersion.String())
	}

	return env, nil
}

// findJuliaLauncher locates the julia launcher that juliaup installs.
// Juliaup places launchers under its depot's bin directory; some releases
// put them next to the juliaup binary itself, so both locations are probed.
func findJuliaLauncher(depotPath, binDirectory, launcherName string) (string, error) {
	candidates := []string{
		filepath.Join(depotPath, "bin", launcherName),
		filepath.Join(binDirectory, launcherName),
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("julia launcher not found in %s or %s", filepath.Join(depotPath, "bin"), binDirectory)
}

// CreateEnvironmentFromExecutable creates a JuliaEnvironment from an existing
// Julia executable. This is useful when you have a specific Julia installation
// you want to use.
//
// The function queries the Julia executable to determine version information,
// the depot path, and the active project path.
func CreateEnvironmentFromExecutable(juliaPath string) (*JuliaEnvironment, error) {
	env := &JuliaEnvironment{
		BaseEnvironment: BaseEnvironment{
			EnvironmentName: "system",
			RootDir:         "", // Will be set based on the system Julia path
			IsNew:           false,
		},
	}

	env.JuliaPath = juliaPath
	env.RootDir = filepath.Dir(filepath.Dir(juliaPath))

	// Get Julia version
	versionCmd := exec.Command(juliaPath, "--version")
	versionOutput, err := versionCmd.Output()
	if err != nil {
		return nil, fmt.Errorf("error getting Julia version: %v", err)
	}

	versionStr := strings.TrimSpace(string(versionOutput))
	env.JuliaVersion, err = ParseJuliaVersion(versionStr)
	if err != nil {
		return nil, fmt.Errorf("error parsing Julia version: %v", err)
	}

	// Get the depot path. DEPOT_PATH[1] is the user depot.
	depotCmd := exec.Command(juliaPath, "--startup-file=no", "-e", "print(first(DEPOT_PATH))")
	depotOutput, err := depotCmd.Output()
	if err != nil {
		return nil, fmt.Errorf("error getting depot path: %v", err)
	}
	env.DepotPath = strings.TrimSpace(string(depotOutput))

	// Get the active project path (may be empty when no project is active)
	projectCmd := exec.Command(juliaPath, "--startup-file=no", "-e", "p = Base.active_project(); p === nothing ? print(\"\") : print(dirname(p))")
	projectOutput, err := projectCmd.Output()
	if err != nil {
		return nil, fmt.Errorf("error getting active project: %v", err)
	}
	env.ProjectPath = strings.TrimSpace(string(projectOutput))

	// Set other paths
	env.EnvPath = env.ProjectPath
	if env.EnvPath == "" {
		env.EnvPath = env.RootDir
	}
	env.EnvBinPath = filepath.Dir(juliaPath)

	// juliaup is not applicable for system Julia
	env.JuliaupPath = ""
	env.JuliaupVersion = Version{}

	return env, nil
}

// CreateEnvironmentFromSystem creates a JuliaEnvironment using the system Julia
// installation.
//
// On Unix systems, it searches for "julia" using exec.LookPath. On Windows, it
// uses "where" and filters out the Microsoft Store placeholder executables.
//
// Returns an error if no Julia installation is found.
func CreateEnvironmentFromSystem() (*JuliaEnvironment, error) {
	juliaPath := ""
	if runtime.GOOS == "windows" {
		// Microsoft ships 'placeholder' executables under WindowsApps, so we
		// must filter those out of the 'where' results.
		wcmd := exec.Command("where", "julia")
		wout, err := wcmd.Output()
		if err != nil {
			return nil, fmt.Errorf("error running 'where julia': %v", err)
		}
		paths := strings.Split(string(wout), "\n")
		for _, p := range paths {
			p = strings.TrimSpace(p)
			if p != "" && !strings.Contains(p, "Microsoft\\WindowsApps") {
				juliaPath = p
				break
			}
		}
		if juliaPath == "" {
			return nil, fmt.Errorf("julia not found")
		}
	} else {
		var err error
		juliaPath, err = exec.LookPath("julia")
		if err != nil {
			return nil, fmt.Errorf("julia not found: %v", err)
		}
	}

	return CreateEnvironmentFromExecutable(juliaPath)
}

// juliaFreezeSnippet prints the direct dependencies of the active project as
// "name<TAB>version<TAB>uuid" lines using only Julia stdlib (TOML, Pkg).
const juliaFreezeSnippet = `
using Pkg
for (uuid, dep) in Pkg.dependencies()
    dep.is_direct_dep || continue
    v = dep.version === nothing ? "" : string(dep.version)
    println(dep.name, "\t", v, "\t", uuid)
end
`

// FreezeToFile saves the environment specification to a JSON file.
//
// The output includes:
//   - Environment name and Julia version
//   - Direct project dependencies with versions and UUIDs
//
// The resulting JSON file can be used with CreateEnvironmentFromJSONFile to
// recreate an identical environment.
func (env *JuliaEnvironment) FreezeToFile(filePath string) error {
	spec := EnvironmentSpec{
		Name:         env.EnvironmentName,
		Packages:     []PackageSpec{},
		JuliaVersion: env.JuliaVersion.MinorString(),
	}

	if env.JuliaupVersion.Major > 0 {
		spec.JuliaupVersion = env.JuliaupVersion.String()
	}

	args := env.projectArgs()
	args = append(args, "--startup-file=no", "-e", juliaFreezeSnippet)
	cmd := exec.Command(env.JuliaPath, args...)
	cmd.Env = env.processEnviron(nil)

	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("error listing project dependencies: %v", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			continue
		}
		pkg := PackageSpec{Name: fields[0], Version: fields[1]}
		if len(fields) > 2 {
			pkg.UUID = fields[2]
		}
		spec.Packages = append(spec.Packages, pkg)
	}

	jsonData, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling environment spec to JSON: %v", err)
	}

	if err := os.WriteFile(filePath, jsonData, 0644); err != nil {
		return fmt.Errorf("error writing JSON to file: %v", err)
	}

	return nil
}

// CreateEnvironmentFromJSONFile creates a new environment from a JSON
// specification file.
//
// The JSON file should match the EnvironmentSpec format, typically created by
// FreezeToFile. This function:
//  1. Creates a base juliaup environment with the specified Julia version
//  2. Adds all packages from the spec at their pinned versions
//
// The environment is created at rootDir/envs/<name> where name comes from the spec.
func CreateEnvironmentFromJSONFile(filePath string, rootDir string, progressCallback ProgressCallback) (*JuliaEnvironment, error) {
	// 1. Read the JSON file.
	jsonData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading JSON file: %v", err)
	}

	// 2. Unmarshal the JSON data into an EnvironmentSpec.
	var spec EnvironmentSpec
	if err := json.Unmarshal(jsonData, &spec); err != nil {
		return nil, fmt.Errorf("error unmarshaling JSON: %v", err)
	}

	// 3. Create the base environment with the specified Julia version.
	env, err := CreateEnvironmentJuliaup(spec.Name, rootDir, spec.JuliaVersion, "", progressCallback)
	if err != nil {
		return nil, fmt.Errorf("error creating base environment: %v", err)
	}

	// 4. Add packages at their pinned versions.
	var packages []string
	for _, pkg := range spec.Packages {
		if pkg.Version != "" {
			packages = append(packages, pkg.Name+"@"+pkg.Version)
		} else {
			packages = append(packages, pkg.Name)
		}
	}
	if len(packages) > 0 {
		if err := env.PkgAddPackages(packages, progressCallback); err != nil {
			return nil, fmt.Errorf("error adding packages: %v", err)
		}
	}

	if progressCallback != nil {
		progressCallback("Finished creating environment from JSON file", 100, 100)
	}
	return env, nil
}

// projectArgs returns the --project flag for the configured project, if any.
func (env *JuliaEnvironment) projectArgs() []string {
	if env.ProjectPath == "" {
		return nil
	}
	return []string{"--project=" + env.ProjectPath}
}

// processEnviron builds the environment variable set for a Julia child process.
// The depot is pinned and automatic precompilation is disabled so project
// activation stays a pure runtime step.
func (env *JuliaEnvironment) processEnviron(extra map[string]string) []string {
	environ := os.Environ()
	if env.DepotPath != "" {
		environ = append(environ, "JULIA_DEPOT_PATH="+env.DepotPath)
	}
	environ = append(environ, "JULIA_PKG_PRECOMPILE_AUTO=0")
	for key, value := range extra {
		environ = append(environ, key+"="+value)
	}
	return environ
}
