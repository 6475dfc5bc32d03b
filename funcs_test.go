package juliagate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsFloat64(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  float64
	}{
		{"float64", float64(5.0), 5.0},
		{"float32", float32(2.5), 2.5},
		{"int", int(-6), -6.0},
		{"int8", int8(4), 4.0},
		{"int16", int16(-3), -3.0},
		{"int32", int32(7), 7.0},
		{"int64", int64(0), 0.0},
		{"uint8", uint8(10), 10.0},
		{"uint16", uint16(20), 20.0},
		{"uint32", uint32(30), 30.0},
		{"uint64", uint64(40), 40.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := asFloat64(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAsFloat64Rejects(t *testing.T) {
	_, err := asFloat64("5.0")
	assert.Error(t, err)

	_, err = asFloat64(nil)
	assert.Error(t, err)
}

// TestDoubleOverQueue checks the full doubling path against a simulated
// Julia responder, including the Real-to-Float64 widening the Julia side
// performs when it replies with an integer.
func TestDoubleOverQueue(t *testing.T) {
	tests := []struct {
		input float64
		reply interface{}
		want  float64
	}{
		{2.5, 5.0, 5.0},
		{0.0, int64(0), 0.0},
		{-3.0, int64(-6), -6.0},
	}

	for _, tt := range tests {
		jq, peer := newTestQueue(t)
		funcs := &Funcs{queue: jq}

		go func(reply interface{}) {
			msg, err := peer.receive()
			if err != nil {
				return
			}
			peer.send(map[string]interface{}{
				"result":     reply,
				"request_id": msg["request_id"],
			})
		}(tt.reply)

		got, err := funcs.Double(tt.input)
		require.NoError(t, err, "input %g", tt.input)
		assert.Equal(t, tt.want, got, "input %g", tt.input)
	}
}

// Calls honor the configured per-call timeout instead of waiting forever.
func TestFuncsCallTimeout(t *testing.T) {
	jq, peer := newTestQueue(t)
	funcs := &Funcs{queue: jq, CallTimeout: 1}

	// Swallow the request and never respond
	go peer.receive()

	start := time.Now()
	_, err := funcs.Double(2.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestHelloOverQueue(t *testing.T) {
	jq, peer := newTestQueue(t)
	funcs := &Funcs{queue: jq}

	go func() {
		msg, err := peer.receive()
		if err != nil {
			return
		}
		assert.Equal(t, "hello", msg["command"])
		peer.send(map[string]interface{}{
			"result":     "Hello from Julia!",
			"request_id": msg["request_id"],
		})
	}()

	greeting, err := funcs.Hello()
	require.NoError(t, err)
	assert.Equal(t, "Hello from Julia!", greeting)
}
