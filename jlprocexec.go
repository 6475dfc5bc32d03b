package juliagate

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

//go:embed modules/exec/main.jl
var execRuntimeScript string

// ExecOptions describes a single exec request sent to the Julia side.
type ExecOptions struct {
	ExecType string `json:"type"`
	Command  string `json:"code"`
}

// ExecResult is the response to an exec request.
type ExecResult struct {
	ReturnType string `json:"type"`
	Output     string `json:"output"`
}

// JuliaExecProcess runs a Julia process that evaluates code snippets on demand.
// Requests and responses are newline-delimited JSON over the data pipes. Unlike
// the REPL process, each snippet is evaluated independently but module-level
// state still persists in Main between calls.
type JuliaExecProcess struct {
	*JuliaProcess
	decoder *json.Decoder
}

// NewJuliaExecProcess starts a Julia process running the exec runtime.
func (env *JuliaEnvironment) NewJuliaExecProcess(environmentVars map[string]string, extrafiles []*os.File) (*JuliaExecProcess, error) {
	program := &JuliaProgram{
		Name:    "exec",
		Path:    "modules/exec",
		Program: *NewModuleFromString("main", "modules/exec/main.jl", execRuntimeScript),
	}

	jlProcess, _, err := env.NewJuliaProcessFromProgram(program, environmentVars, extrafiles)
	if err != nil {
		return nil, err
	}

	go func() {
		io.Copy(os.Stdout, jlProcess.Stdout)
	}()
	go func() {
		io.Copy(os.Stderr, jlProcess.Stderr)
	}()

	if err := jlProcess.WaitForStart(env.StartupTimeout); err != nil {
		jlProcess.Terminate()
		return nil, fmt.Errorf("exec process failed to start: %w", err)
	}

	return &JuliaExecProcess{
		JuliaProcess: jlProcess,
		decoder:      json.NewDecoder(jlProcess.PipeIn),
	}, nil
}

// Exec evaluates a snippet of Julia code and returns its captured stdout.
// If the snippet raises, the error message is returned as an error.
func (ep *JuliaExecProcess) Exec(code string) (string, error) {
	request := ExecOptions{ExecType: "exec", Command: code}
	payload, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal exec request: %w", err)
	}

	if _, err := ep.PipeOut.Write(append(payload, '\n')); err != nil {
		return "", fmt.Errorf("failed to write exec request: %w", err)
	}

	var result ExecResult
	if err := ep.decoder.Decode(&result); err != nil {
		return "", fmt.Errorf("failed to read exec response: %w", err)
	}

	if result.ReturnType == "error" {
		return "", fmt.Errorf("julia error: %s", result.Output)
	}

	return result.Output, nil
}

// Close asks the Julia side to exit and terminates the process.
func (ep *JuliaExecProcess) Close() error {
	payload, _ := json.Marshal(ExecOptions{ExecType: "exit"})
	ep.PipeOut.Write(append(payload, '\n'))
	return ep.JuliaProcess.Terminate()
}
