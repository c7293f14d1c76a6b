package devserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"

	"go.chrisrx.dev/modelserver/message"
)

type document struct {
	content json.RawMessage
	dirty   bool
	undo    []json.RawMessage
	redo    []json.RawMessage
}

func (d *document) value() any {
	var v any
	_ = json.Unmarshal(d.content, &v)
	return v
}

type dataBody struct {
	Data json.RawMessage `json:"data"`
}

// content reads the model of a create or update request. A string payload is
// a preformatted document and is decoded when it holds JSON.
func content(c echo.Context) (json.RawMessage, error) {
	var body dataBody
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, fmt.Errorf("missing data")
	}
	var s string
	if err := json.Unmarshal(body.Data, &s); err == nil && json.Valid([]byte(s)) {
		return json.RawMessage(s), nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, body.Data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Server) getModels(c echo.Context) error {
	if !supportedFormat(c) {
		return unsupportedFormat(c)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	modelURI := c.QueryParam("modeluri")
	if modelURI == "" {
		all := make(map[string]json.RawMessage, len(s.models))
		for uri, doc := range s.models {
			all[uri] = doc.content
		}
		return success(c, all)
	}
	doc, ok := s.models[modelURI]
	if !ok {
		return fail(c, http.StatusNotFound, fmt.Sprintf("model %s not found", modelURI))
	}
	return success(c, doc.content)
}

func (s *Server) createModel(c echo.Context) error {
	if !supportedFormat(c) {
		return unsupportedFormat(c)
	}
	modelURI := c.QueryParam("modeluri")
	if modelURI == "" {
		return fail(c, http.StatusBadRequest, "missing parameter modeluri")
	}
	data, err := content(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.models[modelURI]; ok {
		return fail(c, http.StatusConflict, fmt.Sprintf("model %s already exists", modelURI))
	}
	s.models[modelURI] = &document{content: data, dirty: true}
	s.order = append(s.order, modelURI)
	s.logger.Info("model created", slog.String("modeluri", modelURI))
	return success(c, data)
}

func (s *Server) updateModel(c echo.Context) error {
	if !supportedFormat(c) {
		return unsupportedFormat(c)
	}
	modelURI := c.QueryParam("modeluri")
	data, err := content(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.models[modelURI]
	if !ok {
		return fail(c, http.StatusNotFound, fmt.Sprintf("model %s not found", modelURI))
	}
	s.change(doc, data)
	s.broadcast(modelURI, message.FullUpdateMessageType, doc.content)
	s.broadcast(modelURI, message.DirtyStateMessageType, doc.dirty)
	return success(c, doc.content)
}

func (s *Server) deleteModel(c echo.Context) error {
	modelURI := c.QueryParam("modeluri")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.models[modelURI]; !ok {
		return fail(c, http.StatusNotFound, fmt.Sprintf("model %s not found", modelURI))
	}
	delete(s.models, modelURI)
	s.order = slices.DeleteFunc(s.order, func(uri string) bool { return uri == modelURI })
	return success(c, fmt.Sprintf("model %s deleted", modelURI))
}

func (s *Server) getModelURIs(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return success(c, slices.Clone(s.order))
}

func (s *Server) getModelElement(c echo.Context) error {
	if !supportedFormat(c) {
		return unsupportedFormat(c)
	}
	modelURI := c.QueryParam("modeluri")
	key, value := "$id", c.QueryParam("elementid")
	if value == "" {
		key, value = "name", c.QueryParam("elementname")
	}
	if value == "" {
		return fail(c, http.StatusBadRequest, "missing parameter elementid or elementname")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.models[modelURI]
	if !ok {
		return fail(c, http.StatusNotFound, fmt.Sprintf("model %s not found", modelURI))
	}
	element := findElement(doc.value(), key, value)
	if element == nil {
		return fail(c, http.StatusNotFound, fmt.Sprintf("element %s=%s not found in %s", key, value, modelURI))
	}
	return success(c, element)
}

// findElement walks v depth first for an object whose key property equals
// value.
func findElement(v any, key, value string) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		if s, ok := t[key].(string); ok && s == value {
			return t
		}
		for _, child := range t {
			if found := findElement(child, key, value); found != nil {
				return found
			}
		}
	case []any:
		for _, child := range t {
			if found := findElement(child, key, value); found != nil {
				return found
			}
		}
	}
	return nil
}

func (s *Server) closeModel(c echo.Context) error {
	modelURI := c.QueryParam("modeluri")

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.models[modelURI]
	if !ok {
		return fail(c, http.StatusNotFound, fmt.Sprintf("model %s not found", modelURI))
	}
	doc.undo, doc.redo = nil, nil
	return success(c, fmt.Sprintf("model %s closed", modelURI))
}

func (s *Server) save(c echo.Context) error {
	modelURI := c.QueryParam("modeluri")

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.models[modelURI]
	if !ok {
		return fail(c, http.StatusNotFound, fmt.Sprintf("model %s not found", modelURI))
	}
	doc.dirty = false
	s.broadcast(modelURI, message.DirtyStateMessageType, false)
	return success(c, fmt.Sprintf("model %s saved", modelURI))
}

func (s *Server) saveAll(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for uri, doc := range s.models {
		if doc.dirty {
			doc.dirty = false
			s.broadcast(uri, message.DirtyStateMessageType, false)
		}
	}
	return success(c, "all models saved")
}

func (s *Server) validate(c echo.Context) error {
	modelURI := c.QueryParam("modeluri")

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.models[modelURI]
	if !ok {
		return fail(c, http.StatusNotFound, fmt.Sprintf("model %s not found", modelURI))
	}
	return success(c, diagnose(modelURI, doc.value()))
}

// diagnose reports a warning for every object in the model carrying an
// eClass but no name.
func diagnose(modelURI string, v any) message.Diagnostic {
	d := message.Diagnostic{
		Severity: message.SeverityOK,
		Message:  "Diagnosis of " + modelURI,
		Source:   "devserver",
	}
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case map[string]any:
			if eClass, ok := t["eClass"].(string); ok {
				if _, named := t["name"].(string); !named {
					id, _ := t["$id"].(string)
					d.Children = append(d.Children, message.Diagnostic{
						Severity: message.SeverityWarning,
						Message:  fmt.Sprintf("%s has no name", eClass),
						Source:   "devserver",
						ID:       id,
					})
				}
			}
			for _, child := range t {
				walk(child)
			}
		case []any:
			for _, child := range t {
				walk(child)
			}
		}
	}
	walk(v)
	if len(d.Children) > 0 {
		d.Severity = message.SeverityWarning
	}
	return d
}

func (s *Server) validationConstraints(c echo.Context) error {
	modelURI := c.QueryParam("modeluri")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.models[modelURI]; !ok {
		return fail(c, http.StatusNotFound, fmt.Sprintf("model %s not found", modelURI))
	}
	return success(c, `{"name":{"required":true}}`)
}

func (s *Server) typeSchema(c echo.Context) error {
	modelURI := c.QueryParam("modeluri")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.models[modelURI]; !ok {
		return fail(c, http.StatusNotFound, fmt.Sprintf("model %s not found", modelURI))
	}
	return success(c, `{"$schema":"http://json-schema.org/draft-07/schema#","type":"object"}`)
}

func (s *Server) uiSchema(c echo.Context) error {
	name := c.QueryParam("schemaname")

	s.mu.Lock()
	defer s.mu.Unlock()
	schema, ok := s.uiSchemas[name]
	if !ok {
		return fail(c, http.StatusNotFound, fmt.Sprintf("ui schema %s not found", name))
	}
	return success(c, schema)
}

type serverConfiguration struct {
	WorkspaceRoot  string `json:"workspaceRoot"`
	UISchemaFolder string `json:"uiSchemaFolder"`
}

func (s *Server) configure(c echo.Context) error {
	var cfg serverConfiguration
	if err := json.NewDecoder(c.Request().Body).Decode(&cfg); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	if cfg.WorkspaceRoot == "" {
		return fail(c, http.StatusBadRequest, "missing workspaceRoot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspaceRoot = cfg.WorkspaceRoot
	s.uiSchemaFolder = cfg.UISchemaFolder
	s.logger.Info("server configured",
		slog.String("workspaceRoot", cfg.WorkspaceRoot),
		slog.String("uiSchemaFolder", cfg.UISchemaFolder),
	)
	return success(c, "server configured")
}

func (s *Server) ping(c echo.Context) error {
	return success(c, "pong")
}

// change records the current content for undo and replaces it. Callers hold
// s.mu.
func (s *Server) change(doc *document, data json.RawMessage) {
	doc.undo = append(doc.undo, doc.content)
	doc.redo = nil
	doc.content = data
	doc.dirty = true
}
