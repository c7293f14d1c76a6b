package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.chrisrx.dev/modelserver/guard"
	"go.chrisrx.dev/modelserver/message"
)

type ServerConfiguration struct {
	WorkspaceRoot  string `json:"workspaceRoot"`
	UISchemaFolder string `json:"uiSchemaFolder,omitempty"`
}

type dataBody struct {
	Data any `json:"data"`
}

func typed[T any](g guard.Guard[T]) func(*message.Message) (T, error) {
	return func(m *message.Message) (T, error) {
		return message.As(m, g)
	}
}

func (c *Client) Get(ctx context.Context, modelURI, format string) (map[string]any, error) {
	msg, err := c.Request(ctx, http.MethodGet, ModelCRUDPath, query("modeluri", modelURI, "format", format), nil)
	return Process(msg, err, message.AsObject)
}

func GetAs[T any](ctx context.Context, c *Client, modelURI string, g guard.Guard[T], format string) (T, error) {
	msg, err := c.Request(ctx, http.MethodGet, ModelCRUDPath, query("modeluri", modelURI, "format", format), nil)
	return Process(msg, err, typed(g))
}

func (c *Client) GetAll(ctx context.Context, format string) ([]message.Model[any], error) {
	msg, err := c.Request(ctx, http.MethodGet, ModelCRUDPath, query("format", format), nil)
	return Process(msg, err, message.AsModelArray)
}

// GetAllAs returns every model, requiring each content to pass g.
func GetAllAs[T any](ctx context.Context, c *Client, g guard.Guard[T], format string) ([]message.Model[T], error) {
	msg, err := c.Request(ctx, http.MethodGet, ModelCRUDPath, query("format", format), nil)
	return Process(msg, err, func(m *message.Message) ([]message.Model[T], error) {
		models, err := message.AsModelArray(m)
		if err != nil {
			return nil, err
		}
		out := make([]message.Model[T], 0, len(models))
		for _, model := range models {
			content, ok := g(model.Content)
			if !ok {
				return nil, &message.ShapeError{
					Msg: fmt.Sprintf("could not map content of model %s: type guard check failed", model.ModelURI),
				}
			}
			out = append(out, message.Model[T]{ModelURI: model.ModelURI, Content: content})
		}
		return out, nil
	})
}

func (c *Client) GetModelURIs(ctx context.Context) ([]string, error) {
	msg, err := c.Request(ctx, http.MethodGet, ModelURIsPath, nil, nil)
	return Process(msg, err, message.AsStringArray)
}

func (c *Client) GetElementByID(ctx context.Context, modelURI, elementID, format string) (map[string]any, error) {
	msg, err := c.Request(ctx, http.MethodGet, ModelElementPath, query("modeluri", modelURI, "elementid", elementID, "format", format), nil)
	return Process(msg, err, message.AsObject)
}

func GetElementByIDAs[T any](ctx context.Context, c *Client, modelURI, elementID string, g guard.Guard[T], format string) (T, error) {
	msg, err := c.Request(ctx, http.MethodGet, ModelElementPath, query("modeluri", modelURI, "elementid", elementID, "format", format), nil)
	return Process(msg, err, typed(g))
}

func (c *Client) GetElementByName(ctx context.Context, modelURI, elementName, format string) (map[string]any, error) {
	msg, err := c.Request(ctx, http.MethodGet, ModelElementPath, query("modeluri", modelURI, "elementname", elementName, "format", format), nil)
	return Process(msg, err, message.AsObject)
}

func GetElementByNameAs[T any](ctx context.Context, c *Client, modelURI, elementName string, g guard.Guard[T], format string) (T, error) {
	msg, err := c.Request(ctx, http.MethodGet, ModelElementPath, query("modeluri", modelURI, "elementname", elementName, "format", format), nil)
	return Process(msg, err, typed(g))
}

// Create stores a new model. model is either a value encoded as JSON or a
// string already formatted for the server.
func (c *Client) Create(ctx context.Context, modelURI string, model any, format string) (map[string]any, error) {
	msg, err := c.Request(ctx, http.MethodPost, ModelCRUDPath, query("modeluri", modelURI, "format", format), dataBody{Data: model})
	return Process(msg, err, message.AsObject)
}

func CreateAs[T any](ctx context.Context, c *Client, modelURI string, model any, g guard.Guard[T], format string) (T, error) {
	msg, err := c.Request(ctx, http.MethodPost, ModelCRUDPath, query("modeluri", modelURI, "format", format), dataBody{Data: model})
	return Process(msg, err, typed(g))
}

func (c *Client) Update(ctx context.Context, modelURI string, model any, format string) (map[string]any, error) {
	msg, err := c.Request(ctx, http.MethodPatch, ModelCRUDPath, query("modeluri", modelURI, "format", format), dataBody{Data: model})
	return Process(msg, err, message.AsObject)
}

func UpdateAs[T any](ctx context.Context, c *Client, modelURI string, model any, g guard.Guard[T], format string) (T, error) {
	msg, err := c.Request(ctx, http.MethodPatch, ModelCRUDPath, query("modeluri", modelURI, "format", format), dataBody{Data: model})
	return Process(msg, err, typed(g))
}

func (c *Client) Delete(ctx context.Context, modelURI string) (bool, error) {
	msg, err := c.Request(ctx, http.MethodDelete, ModelCRUDPath, query("modeluri", modelURI), nil)
	return Process(msg, err, successMapper)
}

// CloseModel releases the model on the server without saving it.
func (c *Client) CloseModel(ctx context.Context, modelURI string) (bool, error) {
	msg, err := c.Request(ctx, http.MethodPost, ClosePath, query("modeluri", modelURI), nil)
	return Process(msg, err, successMapper)
}

func (c *Client) Save(ctx context.Context, modelURI string) (bool, error) {
	msg, err := c.Request(ctx, http.MethodGet, SavePath, query("modeluri", modelURI), nil)
	return Process(msg, err, successMapper)
}

func (c *Client) SaveAll(ctx context.Context) (bool, error) {
	msg, err := c.Request(ctx, http.MethodGet, SaveAllPath, nil, nil)
	return Process(msg, err, successMapper)
}

func (c *Client) Validate(ctx context.Context, modelURI string) (message.Diagnostic, error) {
	msg, err := c.Request(ctx, http.MethodGet, ValidationPath, query("modeluri", modelURI), nil)
	return Process(msg, err, typed(message.DiagnosticGuard))
}

func (c *Client) GetValidationConstraints(ctx context.Context, modelURI string) (string, error) {
	msg, err := c.Request(ctx, http.MethodGet, ValidationConstraintsPath, query("modeluri", modelURI), nil)
	return Process(msg, err, stringMapper)
}

func (c *Client) GetTypeSchema(ctx context.Context, modelURI string) (string, error) {
	msg, err := c.Request(ctx, http.MethodGet, TypeSchemaPath, query("modeluri", modelURI), nil)
	return Process(msg, err, stringMapper)
}

func (c *Client) GetUISchema(ctx context.Context, schemaName string) (string, error) {
	msg, err := c.Request(ctx, http.MethodGet, UISchemaPath, query("schemaname", schemaName), nil)
	return Process(msg, err, stringMapper)
}

// ConfigureServer sends the workspace configuration. file:// prefixes are
// stripped since the server expects plain paths.
func (c *Client) ConfigureServer(ctx context.Context, cfg ServerConfiguration) (bool, error) {
	cfg.WorkspaceRoot = strings.TrimPrefix(cfg.WorkspaceRoot, "file://")
	cfg.UISchemaFolder = strings.TrimPrefix(cfg.UISchemaFolder, "file://")
	msg, err := c.Request(ctx, http.MethodPut, ServerConfigurePath, nil, cfg)
	return Process(msg, err, successMapper)
}

func (c *Client) Ping(ctx context.Context) (bool, error) {
	msg, err := c.Request(ctx, http.MethodGet, ServerPingPath, nil, nil)
	return Process(msg, err, successMapper)
}

// Edit executes command on the model. An empty format uses the client's
// default format.
func (c *Client) Edit(ctx context.Context, modelURI string, command *message.Command, format string) (bool, error) {
	if format == "" {
		format = c.format
	}
	msg, err := c.Request(ctx, http.MethodPatch, EditPath, query("modeluri", modelURI, "format", format), dataBody{Data: command})
	return Process(msg, err, successMapper)
}

func (c *Client) Undo(ctx context.Context, modelURI string) (string, error) {
	msg, err := c.Request(ctx, http.MethodGet, UndoPath, query("modeluri", modelURI), nil)
	return Process(msg, err, stringMapper)
}

func (c *Client) Redo(ctx context.Context, modelURI string) (string, error) {
	msg, err := c.Request(ctx, http.MethodGet, RedoPath, query("modeluri", modelURI), nil)
	return Process(msg, err, stringMapper)
}
