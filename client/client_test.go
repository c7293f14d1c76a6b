package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.chrisrx.dev/modelserver/devserver"
	"go.chrisrx.dev/modelserver/guard"
	"go.chrisrx.dev/modelserver/message"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type machine struct {
	EClass string `json:"eClass"`
	ID     string `json:"$id"`
	Name   string `json:"name"`
}

var machineGuard = guard.Struct[machine](
	guard.Has("eClass", guard.IsString),
	guard.Has("name", guard.IsString),
)

func coffeeModel() map[string]any {
	return map[string]any{
		"eClass": "Machine",
		"$id":    "m1",
		"name":   "SuperBrewer3000",
		"children": []any{
			map[string]any{"eClass": "BrewingUnit", "$id": "b1", "name": "Brewer"},
		},
	}
}

func newTestServer(t *testing.T, opts ...devserver.Option) (*devserver.Server, *Client) {
	t.Helper()
	opts = append([]devserver.Option{devserver.WithLogger(discard)}, opts...)
	srv := devserver.New(opts...)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	c, err := New(ts.URL+APIEndpoint, WithLogger(discard))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return srv, c
}

func newStubServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	c, err := New(ts.URL+APIEndpoint, WithLogger(discard))
	require.NoError(t, err)
	return c
}

func TestNewRejectsScheme(t *testing.T) {
	_, err := New("ftp://localhost/api/v1")
	assert.Error(t, err)
}

func TestGet(t *testing.T) {
	_, c := newTestServer(t, devserver.WithModel("Coffee.ecore", coffeeModel()))
	ctx := context.Background()

	obj, err := c.Get(ctx, "Coffee.ecore", "")
	require.NoError(t, err)
	assert.Equal(t, "SuperBrewer3000", obj["name"])

	m, err := GetAs(ctx, c, "Coffee.ecore", machineGuard, "json")
	require.NoError(t, err)
	assert.Equal(t, machine{EClass: "Machine", ID: "m1", Name: "SuperBrewer3000"}, m)
}

func TestGetNotFound(t *testing.T) {
	_, c := newTestServer(t)

	_, err := c.Get(context.Background(), "Missing.ecore", "")
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Contains(t, e.Message, "not found")
	assert.Equal(t, "404", e.Code)
	assert.Equal(t, http.StatusNotFound, e.StatusCode)
	require.NotNil(t, e.Envelope)
	assert.Equal(t, message.ErrorMessageType, e.Envelope.Type)
}

func TestErrorEnvelope(t *testing.T) {
	c := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"type":"error","data":"not found"}`)
	})

	_, err := c.Undo(context.Background(), "Coffee.ecore")
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Contains(t, err.Error(), "not found")
	assert.Equal(t, "not found", e.Message)
	assert.Empty(t, e.Code)
}

func TestErrorEnvelopeWithoutText(t *testing.T) {
	c := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"type":"error","data":null}`)
	})

	_, err := c.Save(context.Background(), "Coffee.ecore")
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "null", e.Message)
	assert.EqualError(t, err, "modelserver: null")
}

func TestUnstructuredStatus(t *testing.T) {
	c := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Ping(context.Background())
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "502", e.Code)
	assert.Equal(t, "Bad Gateway", e.Message)
}

func TestTransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()
	c, err := New(ts.URL+APIEndpoint, WithLogger(discard))
	require.NoError(t, err)

	_, err = c.Ping(context.Background())
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "ECONNREFUSED", e.Code)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Ping(ctx)
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "ECANCELED", e.Code)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestShapeErrorIsWrapped(t *testing.T) {
	c := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"type":"success","data":"not an object"}`)
	})

	_, err := c.Get(context.Background(), "Coffee.ecore", "")
	var e *Error
	require.True(t, errors.As(err, &e))
	var shapeErr *message.ShapeError
	assert.True(t, errors.As(err, &shapeErr))
}

func TestGetAll(t *testing.T) {
	_, c := newTestServer(t,
		devserver.WithModel("b.model", map[string]any{"eClass": "Machine", "name": "b"}),
		devserver.WithModel("a.model", map[string]any{"eClass": "Machine", "name": "a"}),
	)
	ctx := context.Background()

	models, err := c.GetAll(ctx, "")
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "a.model", models[0].ModelURI)
	assert.Equal(t, map[string]any{"eClass": "Machine", "name": "a"}, models[0].Content)

	typed, err := GetAllAs(ctx, c, machineGuard, "")
	require.NoError(t, err)
	assert.Equal(t, []message.Model[machine]{
		{ModelURI: "a.model", Content: machine{EClass: "Machine", Name: "a"}},
		{ModelURI: "b.model", Content: machine{EClass: "Machine", Name: "b"}},
	}, typed)

	uris, err := c.GetModelURIs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.model", "a.model"}, uris)
}

func TestGetAllAsRejectsContent(t *testing.T) {
	_, c := newTestServer(t,
		devserver.WithModel("a.model", map[string]any{"eClass": "Machine", "name": "a"}),
		devserver.WithModel("broken.model", map[string]any{"eClass": "Machine"}),
	)

	_, err := GetAllAs(context.Background(), c, machineGuard, "")
	assert.ErrorContains(t, err, "broken.model")
}

func TestGetElement(t *testing.T) {
	_, c := newTestServer(t, devserver.WithModel("Coffee.ecore", coffeeModel()))
	ctx := context.Background()

	byID, err := c.GetElementByID(ctx, "Coffee.ecore", "b1", "")
	require.NoError(t, err)
	assert.Equal(t, "Brewer", byID["name"])

	byName, err := GetElementByNameAs(ctx, c, "Coffee.ecore", "Brewer", machineGuard, "")
	require.NoError(t, err)
	assert.Equal(t, "b1", byName.ID)

	_, err = GetElementByIDAs(ctx, c, "Coffee.ecore", "nope", machineGuard, "")
	assert.ErrorContains(t, err, "not found")
}

func TestCreateUpdateDelete(t *testing.T) {
	_, c := newTestServer(t)
	ctx := context.Background()

	created, err := CreateAs(ctx, c, "New.ecore", machine{EClass: "Machine", Name: "fresh"}, machineGuard, "")
	require.NoError(t, err)
	assert.Equal(t, "fresh", created.Name)

	_, err = c.Create(ctx, "New.ecore", coffeeModel(), "")
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, http.StatusConflict, e.StatusCode)

	updated, err := c.Update(ctx, "New.ecore", `{"eClass":"Machine","name":"preformatted"}`, "")
	require.NoError(t, err)
	assert.Equal(t, "preformatted", updated["name"])

	_, err = UpdateAs(ctx, c, "New.ecore", machine{EClass: "Machine", Name: "again"}, machineGuard, "xmi")
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "400", e.Code)

	ok, err := c.Delete(ctx, "New.ecore")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = c.Delete(ctx, "New.ecore")
	assert.Error(t, err)
}

func TestSaveAndClose(t *testing.T) {
	_, c := newTestServer(t, devserver.WithModel("Coffee.ecore", coffeeModel()))
	ctx := context.Background()

	ok, err := c.Save(ctx, "Coffee.ecore")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SaveAll(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.CloseModel(ctx, "Coffee.ecore")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEditUndoRedo(t *testing.T) {
	_, c := newTestServer(t, devserver.WithModel("Coffee.ecore", coffeeModel()))
	ctx := context.Background()

	ok, err := c.Edit(ctx, "Coffee.ecore", message.NewSetCommand(map[string]any{"$id": "b1"}, "name", "Renamed"), "")
	require.NoError(t, err)
	assert.True(t, ok)

	el, err := c.GetElementByID(ctx, "Coffee.ecore", "b1", "")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", el["name"])

	status, err := c.Undo(ctx, "Coffee.ecore")
	require.NoError(t, err)
	assert.Equal(t, "executed undo", status)

	el, err = c.GetElementByID(ctx, "Coffee.ecore", "b1", "")
	require.NoError(t, err)
	assert.Equal(t, "Brewer", el["name"])

	status, err = c.Redo(ctx, "Coffee.ecore")
	require.NoError(t, err)
	assert.Equal(t, "executed redo", status)

	status, err = c.Redo(ctx, "Coffee.ecore")
	require.NoError(t, err)
	assert.Equal(t, "cannot redo", status)

	_, err = c.Edit(ctx, "Coffee.ecore", message.NewCommand("explode", nil), "")
	assert.ErrorContains(t, err, "unsupported command type")
}

func TestEditUsesDefaultFormat(t *testing.T) {
	var got url.Values
	c := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/v1/edit", r.URL.Path)
		_, _ = io.WriteString(w, `{"type":"success"}`)
	})
	c.format = "xmi"

	ok, err := c.Edit(context.Background(), "Coffee.ecore", message.NewCommand("noop", nil), "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "xmi", got.Get("format"))
	assert.Equal(t, "Coffee.ecore", got.Get("modeluri"))
}

func TestGetOmitsEmptyFormat(t *testing.T) {
	var got url.Values
	c := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		_, _ = io.WriteString(w, `{"type":"success","data":{}}`)
	})

	_, err := c.Get(context.Background(), "Coffee.ecore", "")
	require.NoError(t, err)
	assert.False(t, got.Has("format"))
}

func TestValidate(t *testing.T) {
	_, c := newTestServer(t,
		devserver.WithModel("Coffee.ecore", coffeeModel()),
		devserver.WithModel("Unnamed.ecore", map[string]any{"eClass": "Machine", "$id": "x"}),
	)
	ctx := context.Background()

	d, err := c.Validate(ctx, "Coffee.ecore")
	require.NoError(t, err)
	assert.Equal(t, message.SeverityOK, d.Severity)

	d, err = c.Validate(ctx, "Unnamed.ecore")
	require.NoError(t, err)
	assert.Equal(t, message.SeverityWarning, d.Worst())
	require.Len(t, d.Children, 1)
	assert.Equal(t, "x", d.Children[0].ID)

	constraints, err := c.GetValidationConstraints(ctx, "Coffee.ecore")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":{"required":true}}`, constraints)
}

func TestSchemas(t *testing.T) {
	_, c := newTestServer(t,
		devserver.WithModel("Coffee.ecore", coffeeModel()),
		devserver.WithUISchema("machine", `{"type":"VerticalLayout"}`),
	)
	ctx := context.Background()

	typeSchema, err := c.GetTypeSchema(ctx, "Coffee.ecore")
	require.NoError(t, err)
	assert.Contains(t, typeSchema, "json-schema.org")

	uiSchema, err := c.GetUISchema(ctx, "machine")
	require.NoError(t, err)
	assert.Equal(t, `{"type":"VerticalLayout"}`, uiSchema)
}

func TestConfigureServerStripsFileScheme(t *testing.T) {
	srv, c := newTestServer(t)

	ok, err := c.ConfigureServer(context.Background(), ServerConfiguration{
		WorkspaceRoot:  "file:///tmp/ws",
		UISchemaFolder: "file:///tmp/ws/ui",
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/tmp/ws", srv.WorkspaceRoot())
	assert.Equal(t, "/tmp/ws/ui", srv.UISchemaFolder())
}

func TestPing(t *testing.T) {
	_, c := newTestServer(t)

	ok, err := c.Ping(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRequestExtensionEndpoint(t *testing.T) {
	c := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/counter", r.URL.Path)
		assert.Equal(t, "add", r.URL.Query().Get("operation"))
		_, _ = io.WriteString(w, `{"type":"success","data":{"value":3}}`)
	})

	msg, err := c.Request(context.Background(), http.MethodGet, "counter", url.Values{"operation": {"add"}}, nil)
	obj, err := Process(msg, err, message.AsObject)
	require.NoError(t, err)
	assert.Equal(t, 3.0, obj["value"])
}
