package devserver

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"go.chrisrx.dev/modelserver/message"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

type subscriber struct {
	id             string
	liveValidation bool

	mu sync.Mutex
	ws *websocket.Conn
}

func (sub *subscriber) write(v any) error {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if err := sub.ws.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	return sub.ws.WriteJSON(v)
}

func (sub *subscriber) close(code int, text string) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	m := websocket.FormatCloseMessage(code, text)
	_ = sub.ws.WriteControl(websocket.CloseMessage, m, time.Now().Add(time.Second))
	_ = sub.ws.Close()
}

func (s *Server) subscribe(c echo.Context) error {
	modelURI := c.QueryParam("modeluri")
	if modelURI == "" {
		return fail(c, http.StatusBadRequest, "missing parameter modeluri")
	}
	if !supportedFormat(c) {
		return unsupportedFormat(c)
	}
	var timeout time.Duration
	if t := c.QueryParam("timeout"); t != "" {
		ms, err := strconv.Atoi(t)
		if err != nil || ms < 0 {
			return fail(c, http.StatusBadRequest, "invalid timeout: "+t)
		}
		timeout = time.Duration(ms) * time.Millisecond
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error("cannot upgrade connection", slog.Any("error", err))
		return nil
	}
	sub := &subscriber{
		id:             uuid.NewString(),
		liveValidation: c.QueryParam("livevalidation") == "true",
		ws:             ws,
	}
	logger := s.logger.With(
		slog.String("modeluri", modelURI),
		slog.String("subscriber", sub.id),
	)

	s.mu.Lock()
	if s.subscribers[modelURI] == nil {
		s.subscribers[modelURI] = make(map[string]*subscriber)
	}
	s.subscribers[modelURI][sub.id] = sub
	s.mu.Unlock()
	logger.Info("subscribed", slog.Duration("timeout", timeout))

	defer func() {
		s.mu.Lock()
		delete(s.subscribers[modelURI], sub.id)
		s.mu.Unlock()
		_ = ws.Close()
		logger.Info("unsubscribed")
	}()

	for {
		if timeout > 0 {
			if err := ws.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				return nil
			}
		}
		_, data, err := ws.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				logger.Info("closing idle subscription")
				sub.close(websocket.CloseGoingAway, "idle timeout")
			}
			return nil
		}
		msg, err := message.Parse(data)
		if err != nil {
			logger.Warn("cannot parse message", slog.Any("error", err))
			continue
		}
		switch msg.Type {
		case message.KeepAliveMessageType:
			s.mu.Lock()
			s.keepAlives[modelURI]++
			s.mu.Unlock()
		default:
			logger.Debug("ignoring message", slog.String("type", string(msg.Type)))
		}
	}
}

// broadcast sends an envelope to the subscribers of modelURI, followed by a
// validation result for subscribers with live validation when the model
// changed. Callers hold s.mu.
func (s *Server) broadcast(modelURI string, t message.MessageType, data any) {
	var diagnostic *message.Diagnostic
	for _, sub := range s.subscribers[modelURI] {
		if err := sub.write(envelope(t, data)); err != nil {
			s.logger.Warn("cannot notify subscriber",
				slog.String("modeluri", modelURI),
				slog.String("subscriber", sub.id),
				slog.Any("error", err),
			)
			continue
		}
		if !sub.liveValidation || t == message.DirtyStateMessageType {
			continue
		}
		if diagnostic == nil {
			doc, ok := s.models[modelURI]
			if !ok {
				continue
			}
			d := diagnose(modelURI, doc.value())
			diagnostic = &d
		}
		_ = sub.write(envelope(message.ValidationResultMessageType, diagnostic))
	}
}

// CloseSubscriptions closes every subscription of modelURI from the server
// side.
func (s *Server) CloseSubscriptions(modelURI string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subscribers[modelURI] {
		sub.close(websocket.CloseNormalClosure, "closed by server")
	}
}

// Close closes every subscription.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, subs := range s.subscribers {
		for _, sub := range subs {
			sub.close(websocket.CloseGoingAway, "server shutting down")
		}
	}
}
