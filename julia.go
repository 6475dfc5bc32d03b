package juliagate

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
)

// baseArgs returns the argument prefix shared by every Julia invocation:
// project activation plus the runtime flags that keep startup deterministic.
func (env *JuliaEnvironment) baseArgs() []string {
	args := env.projectArgs()
	return append(args, "--startup-file=no", "--compiled-modules=no")
}

// RunJuliaReadCombined executes a Julia script and returns combined stdout/stderr.
// This is a blocking call that waits for the script to complete.
func (env *JuliaEnvironment) RunJuliaReadCombined(scriptPath string, args ...string) (string, error) {
	fullArgs := append(env.baseArgs(), scriptPath)
	fullArgs = append(fullArgs, args...)
	cmd := exec.Command(env.JuliaPath, fullArgs...)
	cmd.Env = env.processEnviron(nil)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), err
	}
	return string(output), nil
}

// RunJuliaReadStdout executes a Julia script and returns only stdout.
// This is a blocking call that waits for the script to complete.
func (env *JuliaEnvironment) RunJuliaReadStdout(scriptPath string, args ...string) (string, error) {
	retv := ""
	fullArgs := append(env.baseArgs(), scriptPath)
	fullArgs = append(fullArgs, args...)
	cmd := exec.Command(env.JuliaPath, fullArgs...)
	cmd.Env = env.processEnviron(nil)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	defer stdout.Close()

	// continue to read the output until there is no more
	// or an error occurs
	if err := cmd.Start(); err != nil {
		return "", err
	}
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		retv += scanner.Text() + "\n"
	}
	if err := cmd.Wait(); err != nil {
		return retv, err
	}
	return retv, nil
}

// RunJuliaScriptFromFile executes a Julia script file, printing stderr to stdout.
// This is a blocking call that waits for the script to complete.
func (env *JuliaEnvironment) RunJuliaScriptFromFile(scriptPath string, args ...string) error {
	fullArgs := append(env.baseArgs(), scriptPath)
	fullArgs = append(fullArgs, args...)
	cmd := exec.Command(env.JuliaPath, fullArgs...)
	cmd.Env = env.processEnviron(nil)

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("error creating stderr pipe: %v", err)
	}

	// Start the command
	if err := cmd.Start(); err != nil {
		return err
	}

	scanner := bufio.NewScanner(stderrPipe)
	for scanner.Scan() {
		fmt.Println("Julia script output:", scanner.Text())
	}

	// Wait for the command to finish
	if err := cmd.Wait(); err != nil {
		return err
	}

	return nil
}

// BoundRunJuliaScriptFromFile executes a Julia script with proper signal handling.
// If the parent Go process receives a termination signal, the Julia child is killed.
// This is the recommended way to run Julia scripts as long-running subprocesses.
func (env *JuliaEnvironment) BoundRunJuliaScriptFromFile(scriptPath string, args ...string) error {
	fullArgs := append(env.baseArgs(), scriptPath)
	fullArgs = append(fullArgs, args...)
	cmd := exec.Command(env.JuliaPath, fullArgs...)
	cmd.Env = env.processEnviron(nil)

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	// Start the command
	if err := cmd.Start(); err != nil {
		return err
	}

	// Create a channel to receive signals
	signalChan := make(chan os.Signal, 1)
	setSignalsForChannel(signalChan)

	// Kill the child process when a signal is received
	go func() {
		<-signalChan
		cmd.Process.Kill()
	}()

	scanner := bufio.NewScanner(stderrPipe)
	for scanner.Scan() {
		fmt.Println("Julia script output:", scanner.Text())
	}

	// Wait for the command to finish
	return waitForExit(cmd)
}
