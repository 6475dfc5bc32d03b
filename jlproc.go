package juliagate

import (
	"bufio"
	"bytes"
	"embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path"
	"strconv"
	"syscall"
	"text/template"
	"time"
)

//go:embed scripts/bootstrap.jl
var primaryBootstrapScriptTemplate string

//go:embed scripts/secondary_bootstrap.jl
var secondaryBootstrapScriptTemplate string

//go:embed scripts/juliagate.jl
var juliagateRuntimeSource string

// ProcOnException is a callback function invoked when a Julia exception occurs.
type ProcOnException func(ex JuliaException)

// ProcStatus is a callback function invoked when the Julia process sends a status message.
type ProcStatus func(status string)

// JuliaProcess represents a running Julia subprocess with communication pipes.
//
// The process uses a two-stage bootstrap mechanism: a primary bootstrap
// expression reads the secondary bootstrap from an inherited file descriptor
// and evaluates it; the secondary decodes the program payload, materializes
// the embedded modules, and evaluates the main module.
//
// Communication occurs through multiple channels:
//   - Stdin/Stdout/Stderr: Standard I/O streams
//   - PipeIn/PipeOut: Primary data communication pipes
//   - StatusIn: Status and exception reporting from Julia
type JuliaProcess struct {
	// Cmd is the underlying exec.Cmd for the Julia process.
	Cmd *exec.Cmd

	// Stdin is the write end of the process's standard input.
	Stdin io.WriteCloser

	// Stdout is the read end of the process's standard output.
	Stdout io.ReadCloser

	// Stderr is the read end of the process's standard error.
	Stderr io.ReadCloser

	// PipeIn is for reading data sent from the Julia process.
	PipeIn *os.File

	// PipeOut is for writing data to the Julia process.
	PipeOut *os.File

	// StatusIn receives status messages and exceptions from Julia.
	StatusIn *os.File

	// ExceptionChan receives Julia exceptions reported via the status pipe.
	ExceptionChan chan *JuliaException

	// StatusChan receives status messages (e.g., "exit") from Julia.
	StatusChan chan map[string]interface{}
}

// Module represents a Julia source file that can be embedded in a Go binary.
// The source code is stored as base64-encoded text and decoded by the
// bootstrap before inclusion.
type Module struct {
	// Name is the name the source is registered under (e.g., "funcs").
	Name string

	// Path is the virtual file path used for include tracking and backtraces.
	Path string

	// Source is the base64-encoded Julia source code.
	Source string
}

// SourceSet represents a directory tree of Julia source files that can be
// embedded in a Go binary. Source sets can contain modules and nested subsets.
type SourceSet struct {
	// Name is the source set name.
	Name string

	// Path is the virtual directory path for the set.
	Path string

	// Modules contains the Julia sources in this set.
	Modules []Module

	// Sets contains nested subdirectories.
	Sets []SourceSet
}

// JuliaProgram defines a complete Julia program to be executed, including
// the main module, supporting sources, and configuration options.
//
// The program is serialized to JSON and passed to the secondary bootstrap,
// which reconstructs the sources and evaluates the main module.
type JuliaProgram struct {
	// Name identifies the program (used for logging and debugging).
	Name string

	// Path is the base path for resolving relative includes.
	Path string

	// Program is the main module to evaluate.
	Program Module

	// Sets contains source trees included before the main module.
	Sets []SourceSet

	// Modules contains standalone sources included before the main module.
	Modules []Module

	// PipeIn is the file descriptor number for reading from Go (set automatically).
	PipeIn int

	// PipeOut is the file descriptor number for writing to Go (set automatically).
	PipeOut int

	// StatusIn is the file descriptor for status/exception reporting (set automatically).
	StatusIn int

	// KVPairs contains key-value data accessible in Julia as Juliagate.kv[key].
	KVPairs map[string]interface{}
}

// TemplateData holds data for rendering the bootstrap script templates.
type TemplateData struct {
	// PipeNumber is the file descriptor number for the bootstrap pipe.
	PipeNumber int
}

// NewModuleFromPath creates a Module by reading Julia source from a file.
// The source is automatically base64-encoded for embedding.
//
// Parameters:
//   - name: The registration name for the source
//   - path: The filesystem path to the .jl file
func NewModuleFromPath(name, path string) (*Module, error) {
	// load the source file from the path
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// base64 encode the source
	encoded := base64.StdEncoding.EncodeToString(source)

	return &Module{
		Name:   name,
		Path:   path,
		Source: encoded,
	}, nil
}

// NewModuleFromString creates a Module from Julia source code provided as a string.
// The source is automatically base64-encoded for embedding.
//
// Parameters:
//   - name: The registration name for the source
//   - originalPath: The virtual path used for include tracking
//   - source: The Julia source code as a plain string
func NewModuleFromString(name, originalPath string, source string) *Module {
	// base64 encode the source
	encoded := base64.StdEncoding.EncodeToString([]byte(source))

	return &Module{
		Name:   name,
		Source: encoded,
		Path:   originalPath,
	}
}

// NewSourceSet creates a SourceSet from a collection of already-created modules.
// For loading source trees from the filesystem, use NewSourceSetFromFS instead.
func NewSourceSet(name, path string, modules []Module) *SourceSet {
	return &SourceSet{
		Name:    name,
		Path:    path,
		Modules: modules,
	}
}

func newSourceSetFromFS(name string, rootpath string, fs embed.FS) (*SourceSet, error) {
	retv := &SourceSet{
		Name: name,
		Path: rootpath,
	}

	entries, err := fs.ReadDir(rootpath)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		fpath := path.Join(rootpath, entry.Name())
		if entry.IsDir() {
			subset, err := newSourceSetFromFS(entry.Name(), fpath, fs)
			if err != nil {
				continue
			}
			retv.Sets = append(retv.Sets, *subset)
		} else {
			if path.Ext(entry.Name()) != ".jl" {
				continue
			}

			file, err := fs.Open(fpath)
			if err != nil {
				return nil, err
			}

			source, err := io.ReadAll(file)
			file.Close()
			if err != nil {
				return nil, err
			}

			module := NewModuleFromString(entry.Name(), fpath, string(source))
			retv.Modules = append(retv.Modules, *module)
		}
	}

	return retv, nil
}

// NewSourceSetFromFS creates a SourceSet by recursively loading .jl files from
// an embed.FS. This is the recommended way to embed Julia source trees in Go
// binaries.
//
// Example:
//
//	//go:embed scripts/mypkg/*
//	var myPkgFS embed.FS
//
//	set, err := juliagate.NewSourceSetFromFS("mypkg", "scripts/mypkg", myPkgFS)
func NewSourceSetFromFS(name string, rootpath string, fs embed.FS) (*SourceSet, error) {
	return newSourceSetFromFS(name, rootpath, fs)
}

func procTemplate(templateStr string, data interface{}) string {
	// Parse the template
	tmpl, err := template.New("juliaTemplate").Parse(templateStr)
	if err != nil {
		log.Fatalf("Error parsing template: %v", err)
	}

	// Execute the template with the data
	var result bytes.Buffer
	err = tmpl.Execute(&result, data)
	if err != nil {
		log.Fatalf("Error executing template: %v", err)
	}

	return result.String()
}

// NewJuliaProcessFromProgram starts a Julia process running the specified program.
// This is the primary method for launching Julia code with the full bootstrap
// mechanism.
//
// The function:
//  1. Prepends the juliagate runtime module to the program's modules
//  2. Creates communication pipes (data, status, bootstrap)
//  3. Starts Julia with the primary bootstrap expression
//  4. Sends the secondary bootstrap and program data
//  5. Sets up signal handling for clean shutdown
//
// Parameters:
//   - program: The JuliaProgram to execute
//   - environmentVars: Additional environment variables for the process
//   - extrafiles: Additional file handles to pass to Julia
//   - args: Command-line arguments passed to the Julia program (ARGS)
//
// Returns the JuliaProcess, the JSON-encoded program data, and any error.
func (env *JuliaEnvironment) NewJuliaProcessFromProgram(program *JuliaProgram, environmentVars map[string]string, extrafiles []*os.File, args ...string) (*JuliaProcess, []byte, error) {
	// prepend the juliagate runtime module to the list of modules
	runtimeModule := NewModuleFromString("juliagate", "scripts/juliagate.jl", juliagateRuntimeSource)
	program.Modules = append([]Module{*runtimeModule}, program.Modules...)

	// Create two pipes for the bootstrap and the program data
	// these are closed after the data is written
	readerBootstrap, writerBootstrap, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}
	readerProgram, writerProgram, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}

	// Create two pipes for the primary input and output of the program
	// these are used to communicate with the running Julia code
	pipeinReader, pipeinWriter, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}

	pipeoutReader, pipeoutWriter, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}

	statusReader, statusWriter, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}

	// Create the command; the primary bootstrap is rendered once the
	// bootstrap pipe's descriptor number is known
	cmd := exec.Command(env.JuliaPath, env.baseArgs()...)

	// Pass the file descriptors using ExtraFiles
	// this will return a list of strings with the file descriptors
	extradescriptors := setExtraFiles(cmd, append([]*os.File{pipeinWriter, pipeoutReader, statusWriter, readerBootstrap, readerProgram}, extrafiles...))

	// truncate pipeinWriter, pipeoutReader, statusWriter from extradescriptors
	// these are available as PipeIn and PipeOut in the JuliaProgram struct
	program.PipeOut, _ = strconv.Atoi(extradescriptors[0])
	program.PipeIn, _ = strconv.Atoi(extradescriptors[1])
	program.StatusIn, _ = strconv.Atoi(extradescriptors[2])
	bootstrapFd, _ := strconv.Atoi(extradescriptors[3])
	programFd, _ := strconv.Atoi(extradescriptors[4])
	extradescriptors = extradescriptors[5:]

	primaryBootstrapScript := procTemplate(primaryBootstrapScriptTemplate, TemplateData{PipeNumber: bootstrapFd})

	// Append the "-e" flag and the primary bootstrap expression
	cmd.Args = append(cmd.Args, "-e", primaryBootstrapScript)

	// append the count of extra files to the command arguments as a string
	cmd.Args = append(cmd.Args, fmt.Sprintf("%d", len(extradescriptors)))

	// append the extra file descriptors to the command arguments
	cmd.Args = append(cmd.Args, extradescriptors...)

	// append the program arguments to the command arguments
	cmd.Args = append(cmd.Args, args...)

	// Set environment variables
	cmd.Env = env.processEnviron(environmentVars)

	// Create pipes for the input, output, and error of the program
	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, err
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, err
	}

	// Prepare the program data
	programData, err := json.Marshal(program)
	if err != nil {
		return nil, nil, err
	}

	// Prepare the status pipe
	schan := make(chan map[string]interface{}, 1)
	echan := make(chan *JuliaException, 1)
	go func() {
		defer statusWriter.Close()
		statusScanner := bufio.NewScanner(statusReader)
		for statusScanner.Scan() {
			var status map[string]interface{}
			text := statusScanner.Text()
			if err := json.Unmarshal([]byte(text), &status); err != nil {
				log.Printf("Error decoding status JSON request: %v, data: %s", err, string(text))
				break
			}
			if status["type"] == "status" {
				schan <- status
				if status["status"] == "exit" {
					break
				}
			} else if status["type"] == "exception" {
				exception, err := NewJuliaExceptionFromJSON(statusScanner.Bytes())
				if err != nil {
					log.Printf("Error decoding Julia exception: %v, %s", err, text)
					continue
				}
				log.Printf("Julia exception: %s", exception.ToString())
				echan <- exception
				continue
			} else {
				log.Printf("Unknown status type: %s", text)
			}
		}
	}()

	// Start the command
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}

	// Write the secondary bootstrap script and program data to separate pipes
	go func() {
		defer writerBootstrap.Close()
		secondaryBootstrapScript := procTemplate(secondaryBootstrapScriptTemplate, TemplateData{PipeNumber: programFd})
		io.WriteString(writerBootstrap, secondaryBootstrapScript)
	}()

	go func() {
		defer writerProgram.Close()
		writerProgram.Write(programData)
	}()

	jlProcess := &JuliaProcess{
		Cmd:           cmd,
		Stdin:         stdinPipe,
		Stdout:        stdoutPipe,
		Stderr:        stderrPipe,
		PipeIn:        pipeinReader,
		PipeOut:       pipeoutWriter,
		StatusIn:      statusReader,
		ExceptionChan: echan,
		StatusChan:    schan,
	}

	// Set up signal handling
	setupSignalHandler(jlProcess)

	return jlProcess, programData, nil
}

// NewJuliaProcessFromString starts a Julia process executing a script provided
// as a string. This is a simpler alternative to NewJuliaProcessFromProgram for
// quick script execution.
//
// The script is passed via a pipe and executed using the primary bootstrap
// mechanism. Signal handling is configured to terminate the child if the
// parent is killed.
//
// Parameters:
//   - script: The Julia source code to execute
//   - environmentVars: Additional environment variables for the process
//   - extrafiles: Additional file handles to pass to Julia
//   - args: Command-line arguments accessible via ARGS
func (env *JuliaEnvironment) NewJuliaProcessFromString(script string, environmentVars map[string]string, extrafiles []*os.File, args ...string) (*JuliaProcess, error) {
	// Create a pipe for the script source
	// we'll write the script to the writer
	reader, writer, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	// Create two pipes for the primary input and output of the script
	pipeinReader, pipeinWriter, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	pipeoutReader, pipeoutWriter, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	statusReader, statusWriter, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(env.JuliaPath, env.baseArgs()...)

	// Pass the file descriptors using ExtraFiles
	// prepend our reader to the list of extra files so it is always the first file descriptor
	extrafiles = append([]*os.File{reader, pipeinWriter, pipeoutReader, statusWriter}, extrafiles...)
	extradescriptors := setExtraFiles(cmd, extrafiles)

	scriptFd, _ := strconv.Atoi(extradescriptors[0])
	bootloader := procTemplate(primaryBootstrapScriptTemplate, TemplateData{PipeNumber: scriptFd})

	cmd.Args = append(cmd.Args, "-e", bootloader)
	cmd.Args = append(cmd.Args, args...)

	// set its environment variables from the environment plus any provided
	cmd.Env = env.processEnviron(environmentVars)

	// Create pipes for the input, output, and error of the script
	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	// Start the command
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	// Write the main script to the pipe
	go func() {
		// Close the writer when the function returns
		// Julia will not evaluate the script until the writer is closed
		defer writer.Close()
		io.WriteString(writer, script)
	}()

	jlProcess := &JuliaProcess{
		Cmd:      cmd,
		Stdin:    stdinPipe,
		Stdout:   stdoutPipe,
		Stderr:   stderrPipe,
		PipeIn:   pipeinReader,
		PipeOut:  pipeoutWriter,
		StatusIn: statusReader,
	}

	// Set up signal handling
	setupSignalHandler(jlProcess)

	return jlProcess, nil
}

// WaitForStart blocks until the process reports its "started" status on the
// status pipe, an exception is reported instead, or the timeout elapses.
// A zero timeout waits indefinitely. Only processes created with
// NewJuliaProcessFromProgram report startup status.
func (jp *JuliaProcess) WaitForStart(timeout time.Duration) error {
	var timeoutChan <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutChan = timer.C
	}

	for {
		select {
		case status := <-jp.StatusChan:
			if status["status"] == "started" {
				return nil
			}
			if status["status"] == "exit" {
				return errors.New("process exited before reporting started")
			}
		case ex := <-jp.ExceptionChan:
			return ex.Error()
		case <-timeoutChan:
			return errors.New("timeout waiting for process to start")
		}
	}
}

// Wait blocks until the Julia process exits.
// Returns an error if the process was killed or exited with a non-zero status.
func (jp *JuliaProcess) Wait() error {
	err := jp.Cmd.Wait()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			if exitErr.ExitCode() == -1 {
				// The child process was killed
				return errors.New("child process was killed")
			}
		}
		return err
	}
	return nil
}

// Terminate gracefully stops the Julia process by sending SIGTERM.
// If the process doesn't exit within 5 seconds, it is forcefully killed with SIGKILL.
// Returns nil if the process wasn't running or has already finished.
func (jp *JuliaProcess) Terminate() error {
	if jp.Cmd == nil || jp.Cmd.Process == nil {
		return nil // Process hasn't started or has already finished
	}

	// Try to terminate gracefully first
	err := jp.Cmd.Process.Signal(syscall.SIGTERM)
	if err != nil {
		return err
	}

	// Wait for the process to exit
	done := make(chan error, 1)
	go func() {
		done <- jp.Cmd.Wait()
	}()

	// Wait for the process to exit or force kill after timeout
	select {
	case <-time.After(5 * time.Second):
		// Force kill if it doesn't exit within 5 seconds
		err = jp.Cmd.Process.Kill()
		if err != nil {
			return err
		}
		<-done // Wait for the process to be killed
	case err = <-done:
		// Process exited before timeout
	}

	return err
}

func setupSignalHandler(jp *JuliaProcess) {
	signalChan := make(chan os.Signal, 1)
	setSignalsForChannel(signalChan)

	go func() {
		<-signalChan
		// Terminate the child process when a signal is received
		jp.Terminate()
	}()
}
