package devserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"

	"go.chrisrx.dev/modelserver/message"
)

type commandBody struct {
	Data *message.Command `json:"data"`
}

func (s *Server) edit(c echo.Context) error {
	if !supportedFormat(c) {
		return unsupportedFormat(c)
	}
	modelURI := c.QueryParam("modeluri")
	var body commandBody
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	if body.Data == nil {
		return fail(c, http.StatusBadRequest, "missing command")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.models[modelURI]
	if !ok {
		return fail(c, http.StatusNotFound, fmt.Sprintf("model %s not found", modelURI))
	}
	root := doc.value()
	if err := apply(root, body.Data); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	data, err := json.Marshal(root)
	if err != nil {
		return fail(c, http.StatusInternalServerError, err.Error())
	}
	s.change(doc, data)
	s.broadcast(modelURI, message.IncrementalUpdateMessageType, body.Data)
	s.broadcast(modelURI, message.DirtyStateMessageType, true)
	return success(c, "command executed")
}

// apply executes cmd in place on the decoded model root.
func apply(root any, cmd *message.Command) error {
	if cmd.Type == message.CompoundCommandType {
		for _, child := range cmd.Commands {
			if err := apply(root, child); err != nil {
				return err
			}
		}
		return nil
	}
	switch cmd.Type {
	case message.SetCommandType, message.AddCommandType, message.RemoveCommandType:
	default:
		return fmt.Errorf("unsupported command type %q", cmd.Type)
	}

	owner, ok := resolve(root, cmd.Owner).(map[string]any)
	if !ok {
		return fmt.Errorf("command %s: owner is not an object", cmd.Type)
	}
	if cmd.Feature == "" {
		return fmt.Errorf("command %s: missing feature", cmd.Type)
	}

	switch cmd.Type {
	case message.SetCommandType:
		switch len(cmd.DataValues) {
		case 0:
			delete(owner, cmd.Feature)
		case 1:
			owner[cmd.Feature] = cmd.DataValues[0]
		default:
			owner[cmd.Feature] = cmd.DataValues
		}
	case message.AddCommandType:
		values, _ := owner[cmd.Feature].([]any)
		values = append(values, cmd.ObjectsToAdd...)
		values = append(values, cmd.DataValues...)
		owner[cmd.Feature] = values
	case message.RemoveCommandType:
		values, ok := owner[cmd.Feature].([]any)
		if !ok {
			return fmt.Errorf("command remove: feature %s is not a list", cmd.Feature)
		}
		indices := slices.Clone(cmd.Indices)
		slices.Sort(indices)
		for i := len(indices) - 1; i >= 0; i-- {
			idx := indices[i]
			if idx < 0 || idx >= len(values) {
				return fmt.Errorf("command remove: index %d out of range", idx)
			}
			values = slices.Delete(values, idx, idx+1)
		}
		owner[cmd.Feature] = values
	}
	return nil
}

// resolve finds the element referenced by owner, or the root when owner is
// empty. References are objects carrying the $id of the element.
func resolve(root, owner any) any {
	ref, ok := owner.(map[string]any)
	if !ok {
		return root
	}
	id, ok := ref["$id"].(string)
	if !ok {
		return root
	}
	if found := findElement(root, "$id", id); found != nil {
		return found
	}
	return nil
}

func (s *Server) undo(c echo.Context) error {
	modelURI := c.QueryParam("modeluri")

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.models[modelURI]
	if !ok {
		return fail(c, http.StatusNotFound, fmt.Sprintf("model %s not found", modelURI))
	}
	if len(doc.undo) == 0 {
		return success(c, "cannot undo")
	}
	last := doc.undo[len(doc.undo)-1]
	doc.undo = doc.undo[:len(doc.undo)-1]
	doc.redo = append(doc.redo, doc.content)
	doc.content = last
	doc.dirty = true
	s.broadcast(modelURI, message.FullUpdateMessageType, doc.content)
	return success(c, "executed undo")
}

func (s *Server) redo(c echo.Context) error {
	modelURI := c.QueryParam("modeluri")

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.models[modelURI]
	if !ok {
		return fail(c, http.StatusNotFound, fmt.Sprintf("model %s not found", modelURI))
	}
	if len(doc.redo) == 0 {
		return success(c, "cannot redo")
	}
	next := doc.redo[len(doc.redo)-1]
	doc.redo = doc.redo[:len(doc.redo)-1]
	doc.undo = append(doc.undo, doc.content)
	doc.content = next
	doc.dirty = true
	s.broadcast(modelURI, message.FullUpdateMessageType, doc.content)
	return success(c, "executed redo")
}
