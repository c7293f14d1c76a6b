package client

import (
	"go.chrisrx.dev/modelserver/message"
)

// Listener receives the lifecycle events of a subscription. Calls for one
// subscription never overlap; calls for different models may interleave.
type Listener interface {
	OnOpen(modelURI string)
	OnClose(modelURI string, code int, reason string)
	OnError(modelURI string, err error)
	OnMessage(modelURI string, event MessageEvent)
}

// MessageEvent is a frame received on a subscription.
type MessageEvent struct {
	// Type is the websocket frame type.
	Type int
	Data []byte
}

// Message decodes the frame as an envelope. Mapping the type of server
// extensions to message.UnknownMessageType is left to the caller.
func (e MessageEvent) Message() (*message.Message, error) {
	return message.Parse(e.Data)
}

// ListenerFuncs implements Listener with optional callbacks.
type ListenerFuncs struct {
	Open    func(modelURI string)
	Close   func(modelURI string, code int, reason string)
	Error   func(modelURI string, err error)
	Message func(modelURI string, event MessageEvent)
}

func (l ListenerFuncs) OnOpen(modelURI string) {
	if l.Open != nil {
		l.Open(modelURI)
	}
}

func (l ListenerFuncs) OnClose(modelURI string, code int, reason string) {
	if l.Close != nil {
		l.Close(modelURI, code, reason)
	}
}

func (l ListenerFuncs) OnError(modelURI string, err error) {
	if l.Error != nil {
		l.Error(modelURI, err)
	}
}

func (l ListenerFuncs) OnMessage(modelURI string, event MessageEvent) {
	if l.Message != nil {
		l.Message(modelURI, event)
	}
}
