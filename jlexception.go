package juliagate

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JuliaException represents an exception raised in a Julia process.
// It captures the exception type, message, and backtrace for debugging, along
// with the raw exception arguments and any underlying cause reported by the
// Julia runtime.
type JuliaException struct {
	// Exception is the exception type name (e.g., "ArgumentError", "MethodError").
	Exception string `json:"exception"`

	// Message is the exception message/description.
	Message string `json:"message"`

	// Traceback is the rendered Julia backtrace.
	Traceback string `json:"traceback"`

	// ExceptionArgs holds the positional fields of the exception, if any.
	ExceptionArgs []interface{} `json:"args,omitempty"`

	// Cause is the underlying exception when the error was rethrown, or nil.
	Cause *JuliaException `json:"cause,omitempty"`
}

// ToString formats the exception as a readable string with type, message, and
// traceback. Chained causes are appended with "Caused by:" markers.
func (e *JuliaException) ToString() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s: %s\n%s", e.Exception, e.Message, e.Traceback))
	for cause := e.Cause; cause != nil; cause = cause.Cause {
		sb.WriteString(fmt.Sprintf("\nCaused by: %s: %s\n%s", cause.Exception, cause.Message, cause.Traceback))
	}
	return sb.String()
}

// Error returns the exception as a Go error.
func (e *JuliaException) Error() error {
	return fmt.Errorf("%s", e.ToString())
}

// NewJuliaExceptionFromJSON parses a JuliaException from JSON bytes.
// This is used to deserialize exceptions sent from Julia via the status pipe.
func NewJuliaExceptionFromJSON(data []byte) (*JuliaException, error) {
	var jlException JuliaException
	err := json.Unmarshal(data, &jlException)
	if err != nil {
		return nil, err
	}
	return &jlException, nil
}
