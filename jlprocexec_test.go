package juliagate

import (
	"bufio"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestExec builds a JuliaExecProcess over raw pipes with no process behind
// it. The returned files are the Julia side: reqRead receives exec requests,
// respWrite carries responses back.
func newTestExec(t *testing.T) (*JuliaExecProcess, *os.File, *os.File) {
	t.Helper()

	respRead, respWrite, err := os.Pipe()
	require.NoError(t, err)
	reqRead, reqWrite, err := os.Pipe()
	require.NoError(t, err)

	ep := &JuliaExecProcess{
		JuliaProcess: &JuliaProcess{PipeIn: respRead, PipeOut: reqWrite},
		decoder:      json.NewDecoder(respRead),
	}

	t.Cleanup(func() {
		respRead.Close()
		respWrite.Close()
		reqRead.Close()
		reqWrite.Close()
	})

	return ep, reqRead, respWrite
}

func TestExecRoundTrip(t *testing.T) {
	ep, reqRead, respWrite := newTestExec(t)

	go func() {
		scanner := bufio.NewScanner(reqRead)
		if !scanner.Scan() {
			return
		}
		var req ExecOptions
		if json.Unmarshal(scanner.Bytes(), &req) != nil || req.ExecType != "exec" {
			return
		}
		resp, _ := json.Marshal(ExecResult{ReturnType: "output", Output: "hi"})
		respWrite.Write(append(resp, '\n'))
	}()

	output, err := ep.Exec(`println("hi")`)
	require.NoError(t, err)
	assert.Equal(t, "hi", output)
}

func TestExecErrorResponse(t *testing.T) {
	ep, reqRead, respWrite := newTestExec(t)

	go func() {
		scanner := bufio.NewScanner(reqRead)
		if !scanner.Scan() {
			return
		}
		resp, _ := json.Marshal(ExecResult{
			ReturnType: "error",
			Output:     "UndefVarError: `nope` not defined",
		})
		respWrite.Write(append(resp, '\n'))
	}()

	_, err := ep.Exec("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UndefVarError")
}

// redirect_stdout only accepts fd-backed streams, so the runtime must capture
// through a Pipe pair rather than redirecting into an in-memory buffer.
func TestExecRuntimeCapturesThroughPipe(t *testing.T) {
	assert.Contains(t, execRuntimeScript, "redirect_stdout()")
	assert.NotContains(t, execRuntimeScript, "redirect_stdout(io)")
	assert.NotContains(t, execRuntimeScript, "sprint() do io")
}
