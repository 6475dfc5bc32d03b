package juliagate

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// pkgAddSnippet builds the Pkg.add call for a set of package specifiers.
// Specifiers may pin versions with "Name@1.2.3".
func pkgAddSnippet(packages []string) string {
	var specs []string
	for _, pkg := range packages {
		name, version, found := strings.Cut(pkg, "@")
		if found {
			specs = append(specs, fmt.Sprintf("Pkg.PackageSpec(name=%q, version=%q)", name, version))
		} else {
			specs = append(specs, fmt.Sprintf("Pkg.PackageSpec(name=%q)", name))
		}
	}
	return fmt.Sprintf("using Pkg; Pkg.add([%s])", strings.Join(specs, ", "))
}

// PkgAddPackages adds one or more Julia packages to the environment's project.
//
// Parameters:
//   - packages: Package specifiers (e.g., "MsgPack", "JSON@0.21.4")
//   - progressCallback: Optional progress callback; may be nil
//
// Automatic precompilation stays disabled for the add, matching the runtime
// behavior of spawned processes.
//
// Returns an error if Pkg fails, including stderr output for debugging.
func (env *JuliaEnvironment) PkgAddPackages(packages []string, progressCallback ProgressCallback) error {
	args := env.projectArgs()
	args = append(args, "--startup-file=no", "-e", pkgAddSnippet(packages))

	installCmd := exec.Command(env.JuliaPath, args...)
	installCmd.Env = env.processEnviron(nil)

	// Stream stdout for progress, capture stderr for error reporting.
	stdout, err := installCmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("error creating stdout pipe: %v", err)
	}
	defer stdout.Close()

	var stderrBuf bytes.Buffer
	installCmd.Stderr = &stderrBuf

	if err := installCmd.Start(); err != nil {
		return fmt.Errorf("error starting Pkg.add: %v", err)
	}

	scanner := bufio.NewScanner(stdout)
	lineCount := int64(0)
	for scanner.Scan() {
		lineCount++
		if progressCallback != nil {
			bardesc := "Adding Julia packages..."
			if len(packages) == 1 {
				bardesc = fmt.Sprintf("Adding Julia package %s...", packages[0])
			}
			progressCallback(bardesc, lineCount, -1)
		}
	}

	// Get the error (if any) *and* the stderr output.
	if err := installCmd.Wait(); err != nil {
		return fmt.Errorf("error adding packages: %v, stderr: %s", err, stderrBuf.String())
	}

	if progressCallback != nil {
		progressCallback("Julia packages added successfully", 100, 100)
	}

	return nil
}

// bridgePackages are the Julia packages the embedded runtimes import.
var bridgePackages = []string{"JSON", "MsgPack"}

// EnsureBridgePackages installs the Julia packages required by the embedded
// bridge runtimes (JSON for the bootstrap and exec protocols, MsgPack for the
// queue protocol). Call this once after creating a new environment, before
// spawning processes.
func (env *JuliaEnvironment) EnsureBridgePackages(progressCallback ProgressCallback) error {
	return env.PkgAddPackages(bridgePackages, progressCallback)
}

// PkgAddPackage adds a single Julia package to the environment's project.
// This is a convenience wrapper around PkgAddPackages for single packages.
func (env *JuliaEnvironment) PkgAddPackage(packageToAdd string, progressCallback ProgressCallback) error {
	packages := []string{
		packageToAdd,
	}
	return env.PkgAddPackages(packages, progressCallback)
}

// PkgInstantiate resolves and installs the dependencies declared by a project's
// Project.toml (and Manifest.toml if present). The projectDir overrides the
// environment's configured project for this call; pass "" to instantiate the
// configured project.
func (env *JuliaEnvironment) PkgInstantiate(projectDir string, progressCallback ProgressCallback) error {
	if projectDir == "" {
		projectDir = env.ProjectPath
	}
	if projectDir == "" {
		return fmt.Errorf("no project directory to instantiate")
	}

	installCmd := exec.Command(env.JuliaPath, "--project="+projectDir, "--startup-file=no", "-e", "using Pkg; Pkg.instantiate()")
	installCmd.Env = env.processEnviron(nil)

	stdout, err := installCmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("error creating stdout pipe: %v", err)
	}
	defer stdout.Close()

	var stderrBuf bytes.Buffer
	installCmd.Stderr = &stderrBuf

	if err := installCmd.Start(); err != nil {
		return fmt.Errorf("error starting Pkg.instantiate: %v", err)
	}

	scanner := bufio.NewScanner(stdout)
	lineCount := int64(0)
	for scanner.Scan() {
		lineCount++
		if progressCallback != nil {
			progressCallback("Instantiating project...", lineCount, -1)
		}
	}

	if err := installCmd.Wait(); err != nil {
		return fmt.Errorf("error instantiating project: %v, stderr: %s", err, stderrBuf.String())
	}

	if progressCallback != nil {
		progressCallback("Project instantiated successfully", 100, 100)
	}

	return nil
}
