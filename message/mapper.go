package message

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.chrisrx.dev/modelserver/guard"
)

// ShapeError is returned by mappers when the payload does not have the
// requested shape.
type ShapeError struct {
	Msg string
}

func (e *ShapeError) Error() string {
	return e.Msg
}

func shapeError(target string) error {
	return &ShapeError{Msg: fmt.Sprintf("cannot map \"data\" property to %s", target)}
}

// AsString returns the payload when it is a JSON string, otherwise the
// compact JSON text of the payload. A null payload yields "null".
func AsString(m *Message) string {
	if len(m.Data) == 0 {
		return ""
	}
	if isNull(m.Data) {
		return "null"
	}
	var s string
	if err := json.Unmarshal(m.Data, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, m.Data); err != nil {
		return string(m.Data)
	}
	return buf.String()
}

func AsStringArray(m *Message) ([]string, error) {
	if !isKind(m.Data, '[') {
		return nil, shapeError("[]string")
	}
	var out []string
	if err := json.Unmarshal(m.Data, &out); err != nil {
		return nil, shapeError("[]string")
	}
	return out, nil
}

// AsBoolean never fails: anything but a JSON boolean yields false.
func AsBoolean(m *Message) bool {
	var b bool
	if err := json.Unmarshal(m.Data, &b); err != nil {
		return false
	}
	return b
}

// AsModelArray reads the payload as an object mapping model URIs to contents.
// Models are returned in the order the keys appear in the payload.
func AsModelArray(m *Message) ([]Model[any], error) {
	entries, err := objectEntries(m.Data)
	if err != nil {
		return nil, shapeError("[]Model")
	}
	models := make([]Model[any], 0, len(entries))
	for _, e := range entries {
		var content any
		if err := json.Unmarshal(e.value, &content); err != nil {
			return nil, shapeError("[]Model")
		}
		models = append(models, Model[any]{ModelURI: e.key, Content: content})
	}
	return models, nil
}

func AsObject(m *Message) (map[string]any, error) {
	if !isKind(m.Data, '{') {
		return nil, shapeError("object")
	}
	var out map[string]any
	if err := json.Unmarshal(m.Data, &out); err != nil {
		return nil, shapeError("object")
	}
	return out, nil
}

// As applies g to the decoded payload. errMsg replaces the default error
// message when the guard rejects it.
func As[T any](m *Message, g guard.Guard[T], errMsg ...string) (T, error) {
	var zero T
	v, err := m.Value()
	if err == nil {
		if out, ok := g(v); ok {
			return out, nil
		}
	}
	if len(errMsg) > 0 && errMsg[0] != "" {
		return zero, &ShapeError{Msg: errMsg[0]}
	}
	return zero, shapeError("the desired type")
}

// IsSuccess reports whether the message has the success type.
func IsSuccess(m *Message) bool {
	return m.Type == SuccessMessageType
}

func isNull(data json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}

func isKind(data json.RawMessage, delim byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) > 0 && data[0] == delim
}

type entry struct {
	key   string
	value json.RawMessage
}

func objectEntries(data json.RawMessage) ([]entry, error) {
	if !isKind(data, '{') {
		return nil, fmt.Errorf("not an object")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var entries []entry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		entries = append(entries, entry{key: key, value: value})
	}
	return entries, nil
}
