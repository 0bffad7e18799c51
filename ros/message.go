package ros

import (
	"bytes"
	"io"
)

type MessageType interface {
	Text() string
	MD5Sum() string
	Name() string
	NewMessage() Message
}

type Message interface {
	Type() MessageType
	Serialize(buf *bytes.Buffer) error
	Deserialize(buf *bytes.Reader) error
}

// AnyMessageType matches any publisher on the topic. Messages are kept
// as raw bytes.
var AnyMessageType MessageType = anyMessageType{}

type anyMessageType struct{}

func (anyMessageType) Text() string        { return "" }
func (anyMessageType) MD5Sum() string      { return "*" }
func (anyMessageType) Name() string        { return "*" }
func (anyMessageType) NewMessage() Message { return new(RawMessage) }

// RawMessage holds an undecoded message body.
type RawMessage struct {
	Data []byte
}

func (m *RawMessage) Type() MessageType { return AnyMessageType }

func (m *RawMessage) Serialize(buf *bytes.Buffer) error {
	_, err := buf.Write(m.Data)
	return err
}

func (m *RawMessage) Deserialize(buf *bytes.Reader) error {
	m.Data = make([]byte, buf.Len())
	_, err := io.ReadFull(buf, m.Data)
	return err
}
