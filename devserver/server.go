// Package devserver is an in-memory model server speaking the v1 API. It is
// meant for local development and as a test peer for the client.
package devserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"go.chrisrx.dev/modelserver/message"
)

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithModel preloads a model.
func WithModel(modelURI string, content any) Option {
	return func(s *Server) {
		data, err := json.Marshal(content)
		if err != nil {
			panic(err)
		}
		s.models[modelURI] = &document{content: data}
		s.order = append(s.order, modelURI)
	}
}

func WithUISchema(name, schema string) Option {
	return func(s *Server) {
		s.uiSchemas[name] = schema
	}
}

type Server struct {
	e      *echo.Echo
	logger *slog.Logger

	mu             sync.Mutex
	models         map[string]*document
	order          []string
	uiSchemas      map[string]string
	workspaceRoot  string
	uiSchemaFolder string
	subscribers    map[string]map[string]*subscriber
	keepAlives     map[string]int
}

func New(opts ...Option) *Server {
	s := &Server{
		e:           echo.New(),
		logger:      slog.Default(),
		models:      make(map[string]*document),
		uiSchemas:   make(map[string]string),
		subscribers: make(map[string]map[string]*subscriber),
		keepAlives:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.e.HideBanner = true
	s.e.HidePort = true
	s.e.Use(middleware.Recover())

	api := s.e.Group("/api/v1")
	api.GET("/models", s.getModels)
	api.POST("/models", s.createModel)
	api.PATCH("/models", s.updateModel)
	api.DELETE("/models", s.deleteModel)
	api.GET("/modeluris", s.getModelURIs)
	api.GET("/modelelement", s.getModelElement)
	api.POST("/close", s.closeModel)
	api.GET("/save", s.save)
	api.GET("/saveall", s.saveAll)
	api.GET("/validation", s.validate)
	api.GET("/validation/constraints", s.validationConstraints)
	api.GET("/schema/typeschema", s.typeSchema)
	api.GET("/schema/uischema", s.uiSchema)
	api.PUT("/server/configure", s.configure)
	api.GET("/server/ping", s.ping)
	api.PATCH("/edit", s.edit)
	api.GET("/undo", s.undo)
	api.GET("/redo", s.redo)
	api.GET("/subscribe", s.subscribe)
	return s
}

// Echo exposes the router so commands can add middleware and start it.
func (s *Server) Echo() *echo.Echo {
	return s.e
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.e.ServeHTTP(w, r)
}

func (s *Server) WorkspaceRoot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workspaceRoot
}

func (s *Server) UISchemaFolder() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uiSchemaFolder
}

// KeepAlives returns the number of keep-alive messages received for modelURI.
func (s *Server) KeepAlives(modelURI string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keepAlives[modelURI]
}

func (s *Server) Subscribers(modelURI string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers[modelURI])
}

func success(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, envelope(message.SuccessMessageType, data))
}

func fail(c echo.Context, status int, text string) error {
	return c.JSON(status, envelope(message.ErrorMessageType, text))
}

type wireMessage struct {
	Type message.MessageType `json:"type"`
	Data any                 `json:"data,omitempty"`
}

func envelope(t message.MessageType, data any) wireMessage {
	return wireMessage{Type: t, Data: data}
}

func supportedFormat(c echo.Context) bool {
	switch c.QueryParam("format") {
	case "", "json":
		return true
	default:
		return false
	}
}

func unsupportedFormat(c echo.Context) error {
	return fail(c, http.StatusBadRequest, "unsupported format: "+c.QueryParam("format"))
}
