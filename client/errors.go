package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"

	"go.chrisrx.dev/modelserver/message"
)

// Error is returned by every REST operation, whatever the origin of the
// failure: an error envelope sent by the server, a non-2xx response, a
// transport failure or a payload of unexpected shape.
type Error struct {
	Message string
	// Code is the HTTP status code or a transport error code such as
	// ECONNREFUSED.
	Code       string
	StatusCode int
	Envelope   *message.Message
	Err        error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("modelserver: %s (%s)", e.Message, e.Code)
	}
	return "modelserver: " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func envelopeError(msg *message.Message) *Error {
	return &Error{
		Message:  message.AsString(msg),
		Envelope: msg,
	}
}

func statusError(code int, body []byte) *Error {
	e := &Error{
		Code:       strconv.Itoa(code),
		StatusCode: code,
	}
	if msg, err := message.Parse(body); err == nil {
		e.Message = message.AsString(msg)
		e.Envelope = msg
		return e
	}
	e.Message = strings.TrimSpace(string(body))
	if e.Message == "" {
		e.Message = http.StatusText(code)
	}
	return e
}

func transportError(err error) *Error {
	e := &Error{
		Message: err.Error(),
		Err:     err,
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		e.Code = "ECANCELED"
	case errors.Is(err, context.DeadlineExceeded):
		e.Code = "ETIMEDOUT"
	case errors.Is(err, syscall.ECONNREFUSED):
		e.Code = "ECONNREFUSED"
	case errors.Is(err, syscall.ECONNRESET):
		e.Code = "ECONNRESET"
	case errors.As(err, &netErr) && netErr.Timeout():
		e.Code = "ETIMEDOUT"
	}
	return e
}

func mapperError(err error) *Error {
	return &Error{
		Message: err.Error(),
		Err:     err,
	}
}

// ConflictError is returned by Subscribe when the model already has a
// subscription and strict subscription was requested.
type ConflictError struct {
	ModelURI string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: cannot open new socket, already subscribed", e.ModelURI)
}

var ErrSubscriptionClosed = errors.New("subscription closed while opening")
