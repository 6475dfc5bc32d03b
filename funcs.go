package juliagate

import (
	_ "embed"
	"fmt"
	"os"
)

//go:embed modules/queue/main.jl
var queueRuntimeScript string

//go:embed scripts/funcs.jl
var funcsScript string

// Funcs exposes the bundled example Julia functions over a QueueProcess.
// It demonstrates the wrapper pattern for crossing the language boundary:
// each Go method coerces its inputs, delegates to the named Julia function,
// and normalizes the result type on the way back.
type Funcs struct {
	queue *QueueProcess

	// CallTimeout is the maximum number of seconds each call waits for a
	// result. Zero waits indefinitely. NewFuncs sets DefaultCallTimeout.
	CallTimeout int
}

// DefaultCallTimeout is the call timeout, in seconds, for a Funcs created
// by NewFuncs.
const DefaultCallTimeout = 30

// NewFuncs starts a Julia process with the example functions loaded and
// returns a Funcs bound to it.
func (env *JuliaEnvironment) NewFuncs(environmentVars map[string]string, extrafiles []*os.File) (*Funcs, error) {
	program := &JuliaProgram{
		Name:    "funcs",
		Path:    "scripts",
		Program: *NewModuleFromString("main", "modules/queue/main.jl", queueRuntimeScript),
		Modules: []Module{
			*NewModuleFromString("funcs", "scripts/funcs.jl", funcsScript),
		},
	}

	queue, err := env.NewQueueProcess(program, nil, environmentVars, extrafiles)
	if err != nil {
		return nil, err
	}

	return &Funcs{queue: queue, CallTimeout: DefaultCallTimeout}, nil
}

// Hello calls the Julia hello() function and returns the greeting.
// The greeting is also printed on the Julia side, which is forwarded
// to os.Stdout.
func (f *Funcs) Hello() (string, error) {
	result, err := f.queue.Call("hello", f.CallTimeout, nil)
	if err != nil {
		return "", err
	}

	greeting, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("unexpected hello result type %T", result)
	}
	return greeting, nil
}

// Double calls the Julia float_double(n) function and returns n doubled.
// Julia accepts any Real, so the argument is passed as a float64 and the
// result is normalized back to float64 regardless of the wire type.
func (f *Funcs) Double(n float64) (float64, error) {
	result, err := f.queue.Call("float_double", f.CallTimeout, []interface{}{n})
	if err != nil {
		return 0, err
	}
	return asFloat64(result)
}

// Close shuts down the underlying Julia process.
func (f *Funcs) Close() error {
	return f.queue.Close()
}

// asFloat64 normalizes the numeric types the msgpack decoder may produce
// into a float64.
func asFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}
