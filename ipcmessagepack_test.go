package juliagate

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeTransportPair returns two transports connected back to back.
func pipeTransportPair() (*MsgpackTransport, *MsgpackTransport) {
	aRead, bWrite := io.Pipe()
	bRead, aWrite := io.Pipe()
	return NewMsgpackTransport(aRead, aWrite), NewMsgpackTransport(bRead, bWrite)
}

func TestMsgpackTransportRoundTrip(t *testing.T) {
	a, b := pipeTransportPair()
	defer a.Close()
	defer b.Close()

	payload := []byte("hello over the wire")

	done := make(chan error, 1)
	go func() {
		done <- a.Send(payload)
	}()

	received, err := b.Receive()
	require.NoError(t, err)
	assert.Equal(t, payload, received)
	require.NoError(t, <-done)
}

func TestMsgpackTransportLargeMessage(t *testing.T) {
	a, b := pipeTransportPair()
	defer a.Close()
	defer b.Close()

	// Larger than the 8192-byte pool buffers, forcing the allocation path.
	payload := make([]byte, 64*1024)
	for i := range payload {
		payload[i] = byte(i)
	}

	done := make(chan error, 1)
	go func() {
		done <- a.Send(payload)
	}()

	received, err := b.Receive()
	require.NoError(t, err)
	assert.Equal(t, payload, received)
	require.NoError(t, <-done)
}

func TestMsgpackSerializerRoundTrip(t *testing.T) {
	s := MsgpackSerializer{}

	message := map[string]interface{}{
		"command":    "float_double",
		"data":       []interface{}{2.5},
		"request_id": "req-1",
	}

	data, err := s.Marshal(message)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, s.Unmarshal(data, &decoded))

	assert.Equal(t, "float_double", decoded["command"])
	assert.Equal(t, "req-1", decoded["request_id"])
	args, ok := decoded["data"].([]interface{})
	require.True(t, ok, "data should decode as a slice, got %T", decoded["data"])
	require.Len(t, args, 1)
	assert.Equal(t, 2.5, args[0])
}

func TestMsgpackTransportQueueMessageRoundTrip(t *testing.T) {
	a, b := pipeTransportPair()
	defer a.Close()
	defer b.Close()

	s := MsgpackSerializer{}
	request := map[string]interface{}{
		"command":    "hello",
		"data":       nil,
		"request_id": "req-42",
	}

	payload, err := s.Marshal(request)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- a.Send(payload)
	}()

	raw, err := b.Receive()
	require.NoError(t, err)
	require.NoError(t, <-done)

	var decoded map[string]interface{}
	require.NoError(t, s.Unmarshal(raw, &decoded))
	assert.Equal(t, "hello", decoded["command"])
	assert.Equal(t, "req-42", decoded["request_id"])
	assert.Nil(t, decoded["data"])
}
