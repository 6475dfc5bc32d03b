package juliagate

import (
	"bufio"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestREPL builds a REPLJuliaProcess over raw pipes with no process behind
// it. The returned write end plays the Julia side of the output pipe; code
// chunks written by Execute land in the kernel pipe buffer and can be ignored.
func newTestREPL(t *testing.T) (*REPLJuliaProcess, *os.File) {
	t.Helper()

	outRead, outWrite, err := os.Pipe()
	require.NoError(t, err)
	codeRead, codeWrite, err := os.Pipe()
	require.NoError(t, err)

	proc := &JuliaProcess{
		PipeIn:        outRead,
		PipeOut:       codeWrite,
		StatusChan:    make(chan map[string]interface{}, 1),
		ExceptionChan: make(chan *JuliaException, 1),
	}
	rp := &REPLJuliaProcess{
		JuliaProcess:   proc,
		reader:         bufio.NewReader(outRead),
		combinedOutput: true,
	}

	t.Cleanup(func() {
		outRead.Close()
		outWrite.Close()
		codeRead.Close()
		codeWrite.Close()
	})

	return rp, outWrite
}

func TestREPLExecuteReturnsOutput(t *testing.T) {
	rp, outWrite := newTestREPL(t)

	go func() {
		rp.StatusChan <- map[string]interface{}{"type": "status", "status": "ok"}
		fmt.Fprintf(outWrite, "hi\n%s", DELIMITER)
	}()

	output, err := rp.Execute(`println("hi")`, true)
	require.NoError(t, err)
	assert.Equal(t, "hi", output)
}

func TestREPLExecuteSurfacesExceptions(t *testing.T) {
	rp, outWrite := newTestREPL(t)

	go func() {
		rp.ExceptionChan <- &JuliaException{
			Exception: "DomainError",
			Message:   "sqrt was called with a negative real argument",
		}
		fmt.Fprint(outWrite, DELIMITER)
	}()

	output, err := rp.Execute("sqrt(-1.0)", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DomainError")
	assert.Equal(t, "", output)
}

// Every chunk produces one status message on a single-slot channel. Each
// Execute must drain its own entry or the runtime's reporting stalls and
// later chunks never complete.
func TestREPLSequentialExecutes(t *testing.T) {
	rp, outWrite := newTestREPL(t)

	go func() {
		for i := 0; i < 3; i++ {
			rp.StatusChan <- map[string]interface{}{"type": "status", "status": "ok"}
			fmt.Fprintf(outWrite, "out%d\n%s", i, DELIMITER)
		}
	}()

	for i := 0; i < 3; i++ {
		output, err := rp.ExecuteWithTimeout("1 + 1", true, 2*time.Second)
		require.NoError(t, err, "chunk %d", i)
		assert.Equal(t, fmt.Sprintf("out%d", i), output)
	}
}

func TestREPLExecuteTimeoutClosesProcess(t *testing.T) {
	rp, _ := newTestREPL(t)

	start := time.Now()
	_, err := rp.ExecuteWithTimeout("sleep(60)", true, 100*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 2*time.Second)

	_, err = rp.Execute("1", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

// redirect_stdout only accepts fd-backed streams, so the runtime must capture
// through a Pipe pair rather than redirecting into an IOBuffer.
func TestREPLRuntimeCapturesThroughPipe(t *testing.T) {
	assert.Contains(t, replRuntimeScript, "redirect_stdout()")
	assert.NotContains(t, replRuntimeScript, "redirect_stdout(out)")
	assert.NotContains(t, replRuntimeScript, "redirect_stderr(out)")
}
