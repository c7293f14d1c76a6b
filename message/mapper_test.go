package message

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.chrisrx.dev/modelserver/guard"
)

func msg(t MessageType, data string) *Message {
	m := &Message{Type: t}
	if data != "" {
		m.Data = json.RawMessage(data)
	}
	return m
}

func TestAsString(t *testing.T) {
	assert.Equal(t, "hello", AsString(msg(SuccessMessageType, `"hello"`)))
	assert.Equal(t, `{"a":1}`, AsString(msg(SuccessMessageType, `{ "a": 1 }`)))
	assert.Equal(t, "42", AsString(msg(SuccessMessageType, `42`)))
	assert.Equal(t, "", AsString(msg(KeepAliveMessageType, "")))
	assert.Equal(t, "null", AsString(msg(ErrorMessageType, `null`)))

	m, err := Parse([]byte(`{"type":"error","data":null}`))
	require.NoError(t, err)
	assert.Equal(t, "null", AsString(m))
}

func TestAsStringArray(t *testing.T) {
	out, err := AsStringArray(msg(SuccessMessageType, `["x","y"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, out)

	_, err = AsStringArray(msg(SuccessMessageType, `"x"`))
	var shapeErr *ShapeError
	assert.True(t, errors.As(err, &shapeErr))

	// every element must be a string
	_, err = AsStringArray(msg(SuccessMessageType, `["x",1]`))
	assert.True(t, errors.As(err, &shapeErr))
}

func TestAsBoolean(t *testing.T) {
	assert.True(t, AsBoolean(msg(SuccessMessageType, `true`)))
	assert.False(t, AsBoolean(msg(SuccessMessageType, `false`)))
	assert.False(t, AsBoolean(msg(SuccessMessageType, `"true"`)))
	assert.False(t, AsBoolean(msg(SuccessMessageType, "")))
}

func TestAsModelArray(t *testing.T) {
	models, err := AsModelArray(msg(SuccessMessageType, `{"b.model":{"x":2},"a.model":{"x":1}}`))
	require.NoError(t, err)
	assert.Equal(t, []Model[any]{
		{ModelURI: "b.model", Content: map[string]any{"x": 2.0}},
		{ModelURI: "a.model", Content: map[string]any{"x": 1.0}},
	}, models)

	for _, data := range []string{`["a"]`, `"a"`, `null`, ""} {
		_, err := AsModelArray(msg(SuccessMessageType, data))
		assert.Error(t, err, data)
	}
}

func TestAsObject(t *testing.T) {
	out, err := AsObject(msg(SuccessMessageType, `{"eClass":"Machine","name":"m"}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"eClass": "Machine", "name": "m"}, out)

	for _, data := range []string{`[1,2]`, `"s"`, `1`, `true`, `null`, ""} {
		_, err := AsObject(msg(SuccessMessageType, data))
		assert.Error(t, err, data)
	}
}

func TestAs(t *testing.T) {
	d, err := As(msg(SuccessMessageType, `{"severity":2,"message":"warn","children":[{"severity":4,"message":"bad"}]}`), DiagnosticGuard)
	require.NoError(t, err)
	assert.Equal(t, SeverityWarning, d.Severity)
	assert.Equal(t, SeverityError, d.Worst())

	_, err = As(msg(SuccessMessageType, `{"message":"no severity"}`), DiagnosticGuard, "not a diagnostic")
	assert.EqualError(t, err, "not a diagnostic")

	_, err = As(msg(SuccessMessageType, `[]`), guard.Struct[Diagnostic]())
	assert.EqualError(t, err, `cannot map "data" property to the desired type`)
}

func TestIsSuccess(t *testing.T) {
	assert.True(t, IsSuccess(msg(SuccessMessageType, "")))
	for _, mt := range []MessageType{ErrorMessageType, WarningMessageType, KeepAliveMessageType, "custom"} {
		assert.False(t, IsSuccess(msg(mt, `"x"`)), mt)
	}
}

func TestAsMessageType(t *testing.T) {
	assert.Equal(t, FullUpdateMessageType, AsMessageType("fullUpdate"))
	assert.Equal(t, UnknownMessageType, AsMessageType("myExtension"))
}

func TestParse(t *testing.T) {
	m, err := Parse([]byte(`{"type":"dirtyState","data":true}`))
	require.NoError(t, err)
	assert.Equal(t, DirtyStateMessageType, m.Type)
	assert.True(t, AsBoolean(m))

	_, err = Parse([]byte(`{"data":true}`))
	assert.Error(t, err)

	b, err := json.Marshal(KeepAlive())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"keepAlive"}`, string(b))
}

func TestCommandHelpers(t *testing.T) {
	owner := map[string]any{"$id": "m1"}

	add := NewAddCommand(owner, "workflows", map[string]any{"name": "w"})
	assert.Equal(t, AddCommandType, add.Type)
	assert.Equal(t, []any{map[string]any{"name": "w"}}, add.ObjectsToAdd)

	remove := NewRemoveCommand(owner, "workflows", 0, 2)
	assert.Equal(t, RemoveCommandType, remove.Type)
	assert.Equal(t, []int{0, 2}, remove.Indices)

	b, err := json.Marshal(NewCompoundCommand(add, remove))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"eClass": "`+CommandEClass+`",
		"type": "compound",
		"commands": [
			{"eClass": "`+CommandEClass+`", "type": "add", "owner": {"$id": "m1"}, "feature": "workflows", "objectsToAdd": [{"name": "w"}]},
			{"eClass": "`+CommandEClass+`", "type": "remove", "owner": {"$id": "m1"}, "feature": "workflows", "indices": [0, 2]}
		]
	}`, string(b))
}
