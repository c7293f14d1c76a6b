package message

import (
	"encoding/json"
	"fmt"
)

type MessageType string

const (
	SuccessMessageType           MessageType = "success"
	WarningMessageType           MessageType = "warning"
	ErrorMessageType             MessageType = "error"
	OpenMessageType              MessageType = "open"
	CloseMessageType             MessageType = "close"
	FullUpdateMessageType        MessageType = "fullUpdate"
	IncrementalUpdateMessageType MessageType = "incrementalUpdate"
	DirtyStateMessageType        MessageType = "dirtyState"
	ValidationResultMessageType  MessageType = "validationResult"
	KeepAliveMessageType         MessageType = "keepAlive"
	UnknownMessageType           MessageType = "unknown"
)

var knownTypes = map[MessageType]struct{}{
	SuccessMessageType:           {},
	WarningMessageType:           {},
	ErrorMessageType:             {},
	OpenMessageType:              {},
	CloseMessageType:             {},
	FullUpdateMessageType:        {},
	IncrementalUpdateMessageType: {},
	DirtyStateMessageType:        {},
	ValidationResultMessageType:  {},
	KeepAliveMessageType:         {},
	UnknownMessageType:           {},
}

// AsMessageType maps s to one of the known message types, or UnknownMessageType
// when the server sent an extension type.
func AsMessageType(s string) MessageType {
	if _, ok := knownTypes[MessageType(s)]; ok {
		return MessageType(s)
	}
	return UnknownMessageType
}

// Message is the envelope exchanged with the model server in both directions.
// Data is kept raw until a mapper interprets it.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// New builds a message with data encoded as JSON. A nil data leaves the
// payload absent.
func New(t MessageType, data any) (*Message, error) {
	msg := &Message{Type: t}
	if data == nil {
		return msg, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	msg.Data = b
	return msg, nil
}

// KeepAlive returns the control message used to hold a subscription open.
func KeepAlive() *Message {
	return &Message{Type: KeepAliveMessageType}
}

// Parse decodes an envelope and requires its type to be present.
func Parse(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message has no type: %s", data)
	}
	return &msg, nil
}

// Value decodes the payload into a generic value. An absent payload is nil.
func (m *Message) Value() (any, error) {
	if len(m.Data) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(m.Data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Model is a document held by the server.
type Model[C any] struct {
	ModelURI string `json:"modelUri"`
	Content  C      `json:"content"`
}
