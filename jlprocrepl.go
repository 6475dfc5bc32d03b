package juliagate

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

//go:embed scripts/repl.jl
var replRuntimeScript string

// DELIMITER separates code chunks and captured output on the REPL pipes.
const DELIMITER = "\x01\x02\x03\n"

// WINDELIMITER is the delimiter as it appears after Windows newline translation.
const WINDELIMITER = "\x01\x02\x03\r\n"

// REPLJuliaProcess runs a persistent Julia session that evaluates code chunks
// and returns their captured output. State persists in Main between chunks.
//
// All evaluation is serialized through an internal mutex, so a single
// REPLJuliaProcess is safe for concurrent use, but chunks from different
// goroutines interleave in arrival order.
type REPLJuliaProcess struct {
	*JuliaProcess
	mutex  sync.Mutex
	reader *bufio.Reader
	closed bool

	// combinedOutput mirrors the capture setting on the Julia side so we only
	// send the toggle when it changes.
	combinedOutput bool
}

// NewREPLJuliaProcess starts a Julia process running the REPL runtime.
// Output capture starts in combined mode (stdout and stderr together).
func (env *JuliaEnvironment) NewREPLJuliaProcess(environmentVars map[string]string, extrafiles []*os.File) (*REPLJuliaProcess, error) {
	program := &JuliaProgram{
		Name:    "repl",
		Path:    "scripts",
		Program: *NewModuleFromString("repl", "scripts/repl.jl", replRuntimeScript),
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
		return nil, fmt.Errorf("REPL process failed to start: %w", err)
	}

	return &REPLJuliaProcess{
		JuliaProcess:   jlProcess,
		reader:         bufio.NewReader(jlProcess.PipeIn),
		combinedOutput: true,
	}, nil
}

// Execute evaluates a chunk of Julia code and returns its captured output.
// If combinedOutput is true, stderr is captured along with stdout.
// The returned output has the trailing delimiter and final newline removed.
func (rp *REPLJuliaProcess) Execute(code string, combinedOutput bool) (string, error) {
	return rp.ExecuteWithTimeout(code, combinedOutput, 0)
}

// ExecuteWithTimeout evaluates a chunk of Julia code with a maximum duration.
// A zero timeout waits indefinitely. On timeout the process is terminated and
// further calls return an error.
func (rp *REPLJuliaProcess) ExecuteWithTimeout(code string, combinedOutput bool, timeout time.Duration) (string, error) {
	rp.mutex.Lock()
	defer rp.mutex.Unlock()

	if rp.closed {
		return "", fmt.Errorf("REPL process is closed")
	}

	if combinedOutput != rp.combinedOutput {
		toggle := fmt.Sprintf("__CAPTURE_COMBINED__ = %v%s", combinedOutput, DELIMITER)
		if _, err := rp.PipeOut.Write([]byte(toggle)); err != nil {
			return "", fmt.Errorf("failed to set capture mode: %w", err)
		}
		rp.combinedOutput = combinedOutput
	}

	if _, err := rp.PipeOut.Write([]byte(code + DELIMITER)); err != nil {
		return "", fmt.Errorf("failed to write code chunk: %w", err)
	}

	var timeoutChan <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutChan = timer.C
	}

	// The runtime reports a status or an exception for every chunk before it
	// writes the output frame. Both must be drained here; the channels hold a
	// single entry and the process stalls once they fill.
	var evalErr error
	select {
	case <-rp.StatusChan:
	case ex := <-rp.ExceptionChan:
		evalErr = ex.Error()
	case <-timeoutChan:
		rp.JuliaProcess.Terminate()
		rp.closed = true
		return "", fmt.Errorf("execution timed out - Julia process terminated")
	}

	type readResult struct {
		output string
		err    error
	}

	resultChan := make(chan readResult, 1)
	go func() {
		output, err := rp.readResponse()
		resultChan <- readResult{output, err}
	}()

	select {
	case result := <-resultChan:
		if result.err != nil {
			return "", result.err
		}
		// Output captured before the failure is still returned alongside
		// the exception.
		return result.output, evalErr
	case <-timeoutChan:
		rp.JuliaProcess.Terminate()
		rp.closed = true
		return "", fmt.Errorf("execution timed out - Julia process terminated")
	}
}

// readResponse reads from the data pipe until the delimiter appears.
func (rp *REPLJuliaProcess) readResponse() (string, error) {
	var sb strings.Builder
	for {
		b, err := rp.reader.ReadByte()
		if err != nil {
			return "", fmt.Errorf("failed to read REPL response: %w", err)
		}
		sb.WriteByte(b)

		s := sb.String()
		if strings.HasSuffix(s, WINDELIMITER) {
			return strings.TrimSuffix(strings.TrimSuffix(s, WINDELIMITER), "\n"), nil
		}
		if strings.HasSuffix(s, DELIMITER) {
			return strings.TrimSuffix(strings.TrimSuffix(s, DELIMITER), "\n"), nil
		}
	}
}

// Close terminates the REPL process. Further Execute calls return an error.
func (rp *REPLJuliaProcess) Close() error {
	rp.mutex.Lock()
	defer rp.mutex.Unlock()

	if rp.closed {
		return nil
	}
	rp.closed = true

	return rp.JuliaProcess.Terminate()
}
