package juliagate

import (
	"encoding/binary"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Serializer converts between Go values and the byte payloads carried by a
// Transport. The queue bridge uses MessagePack on both sides.
type Serializer interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

// Transport moves opaque byte messages between Go and the Julia process,
// owning the wire framing.
type Transport interface {
	// Send transmits one message.
	Send(data []byte) error

	// Receive blocks until a complete message arrives.
	Receive() ([]byte, error)

	// Close closes the underlying streams.
	Close() error

	// Flush pushes out any buffered writes.
	Flush() error
}

// MsgpackSerializer encodes messages with MessagePack. It is the serializer
// the queue runtime on the Julia side (MsgPack.jl) expects.
type MsgpackSerializer struct{}

func (ms MsgpackSerializer) Marshal(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (ms MsgpackSerializer) Unmarshal(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}

// MsgpackTransport frames messages as a 4-byte big-endian length followed by
// the payload. The Julia side reads the same framing. Payload reads go
// through a small buffer pool; messages larger than a pooled buffer fall
// back to a one-off allocation.
type MsgpackTransport struct {
	reader io.ReadCloser
	writer io.WriteCloser
	pool   *BufferPool
}

// msgBufferSize matches the read buffer on the Julia side.
const msgBufferSize = 8192

func NewMsgpackTransport(reader io.ReadCloser, writer io.WriteCloser) *MsgpackTransport {
	return &MsgpackTransport{
		reader: reader,
		writer: writer,
		pool:   NewBufferPool(msgBufferSize, 10),
	}
}

func (mt *MsgpackTransport) Send(data []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))

	if _, err := mt.writer.Write(header[:]); err != nil {
		return err
	}
	if _, err := mt.writer.Write(data); err != nil {
		return err
	}
	return mt.Flush()
}

func (mt *MsgpackTransport) Receive() ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(mt.reader, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])

	if length > msgBufferSize {
		data := make([]byte, length)
		_, err := io.ReadFull(mt.reader, data)
		return data, err
	}

	// The pooled buffer is only borrowed for the read; callers keep the
	// returned slice, so copy out before putting it back.
	buf := mt.pool.Get()[:length]
	if _, err := io.ReadFull(mt.reader, buf); err != nil {
		mt.pool.Put(buf)
		return nil, err
	}
	data := make([]byte, length)
	copy(data, buf)
	mt.pool.Put(buf)
	return data, nil
}

func (mt *MsgpackTransport) Close() error {
	if err := mt.reader.Close(); err != nil {
		return err
	}
	return mt.writer.Close()
}

func (mt *MsgpackTransport) Flush() error {
	if flusher, ok := mt.writer.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}
