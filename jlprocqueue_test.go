package juliagate

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQueuePeer emulates the Julia side of the queue protocol over io.Pipe,
// so queue routing can be tested without spawning a process.
type fakeQueuePeer struct {
	transport  *MsgpackTransport
	serializer MsgpackSerializer
}

func newTestQueue(t *testing.T) (*QueueProcess, *fakeQueuePeer) {
	t.Helper()

	goRead, jlWrite := io.Pipe()
	jlRead, goWrite := io.Pipe()

	jq := &QueueProcess{
		serializer:      MsgpackSerializer{},
		transport:       NewMsgpackTransport(goRead, goWrite),
		responseMap:     make(map[string]chan map[string]interface{}),
		methodCache:     make(map[string]MethodInfo),
		commandHandlers: map[string]CommandHandler{},
	}
	jq.Start()

	peer := &fakeQueuePeer{
		transport: NewMsgpackTransport(jlRead, jlWrite),
	}

	t.Cleanup(func() {
		jq.mutex.Lock()
		jq.running = false
		jq.mutex.Unlock()
		peer.transport.Close()
		jq.transport.Close()
	})

	return jq, peer
}

func (p *fakeQueuePeer) receive() (map[string]interface{}, error) {
	raw, err := p.transport.Receive()
	if err != nil {
		return nil, err
	}
	var msg map[string]interface{}
	if err := p.serializer.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (p *fakeQueuePeer) send(msg map[string]interface{}) error {
	raw, err := p.serializer.Marshal(msg)
	if err != nil {
		return err
	}
	return p.transport.Send(raw)
}

func TestQueueCallRoundTrip(t *testing.T) {
	jq, peer := newTestQueue(t)

	// Respond to the next request like the queue runtime would
	go func() {
		msg, err := peer.receive()
		if err != nil {
			return
		}
		args := msg["data"].([]interface{})
		n := args[0].(float64)
		peer.send(map[string]interface{}{
			"result":     n * 2,
			"request_id": msg["request_id"],
		})
	}()

	result, err := jq.Call("float_double", 5, []interface{}{2.5})
	require.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestQueueCallError(t *testing.T) {
	jq, peer := newTestQueue(t)

	go func() {
		msg, err := peer.receive()
		if err != nil {
			return
		}
		peer.send(map[string]interface{}{
			"error":      "unknown command: nope",
			"request_id": msg["request_id"],
		})
	}()

	_, err := jq.Call("nope", 5, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestQueueCallTimeout(t *testing.T) {
	jq, peer := newTestQueue(t)

	// Swallow the request and never respond
	go peer.receive()

	start := time.Now()
	_, err := jq.Call("slow", 1, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestQueueCommandHandler(t *testing.T) {
	jq, peer := newTestQueue(t)

	jq.RegisterHandler("lookup", func(data interface{}, requestID string) (interface{}, error) {
		args := data.([]interface{})
		return "value for " + args[0].(string), nil
	})

	// Julia-originated request IDs carry the jl- prefix so they are dispatched
	// to handlers instead of the response map.
	require.NoError(t, peer.send(map[string]interface{}{
		"command":    "lookup",
		"data":       []interface{}{"key1"},
		"request_id": "jl-1",
	}))

	response, err := peer.receive()
	require.NoError(t, err)
	assert.Equal(t, "jl-1", response["request_id"])
	assert.Equal(t, "value for key1", response["result"])
}

// While Go waits on a call, the Julia side may round-trip commands of its
// own through registered handlers before answering. Both directions share
// the pipes, so neither may stall the other.
func TestQueueHandlerRespondsDuringPendingCall(t *testing.T) {
	jq, peer := newTestQueue(t)

	jq.RegisterHandler("lookup", func(data interface{}, requestID string) (interface{}, error) {
		return "from-go", nil
	})

	go func() {
		msg, err := peer.receive()
		if err != nil {
			return
		}
		if err := peer.send(map[string]interface{}{
			"command":    "lookup",
			"data":       nil,
			"request_id": "jl-1",
		}); err != nil {
			return
		}
		reply, err := peer.receive()
		if err != nil {
			return
		}
		peer.send(map[string]interface{}{
			"result":     reply["result"],
			"request_id": msg["request_id"],
		})
	}()

	result, err := jq.Call("needs_go_data", 5, nil)
	require.NoError(t, err)
	assert.Equal(t, "from-go", result)
}

func TestQueueUnknownCommandResponse(t *testing.T) {
	jq, peer := newTestQueue(t)
	_ = jq

	require.NoError(t, peer.send(map[string]interface{}{
		"command":    "missing",
		"data":       nil,
		"request_id": "jl-2",
	}))

	response, err := peer.receive()
	require.NoError(t, err)
	assert.Equal(t, "jl-2", response["request_id"])
	assert.Contains(t, response["error"], "unknown command")
}

func TestQueueFluentBuilder(t *testing.T) {
	jq, peer := newTestQueue(t)

	go func() {
		msg, err := peer.receive()
		if err != nil {
			return
		}
		data := msg["data"].(map[string]interface{})
		peer.send(map[string]interface{}{
			"result":     data["name"],
			"request_id": msg["request_id"],
		})
	}()

	result, err := jq.On("echo_name").
		Do("name", "ada", "age", int64(42)).
		WithTimeout(5 * time.Second).
		Call()
	require.NoError(t, err)
	assert.Equal(t, "ada", result)
}

func TestQueueDoPanicsOnOddArgs(t *testing.T) {
	jq, _ := newTestQueue(t)

	assert.Panics(t, func() {
		jq.On("bad").Do("only-a-key")
	})
	assert.Panics(t, func() {
		jq.On("bad").Do(1, "value")
	})
}
