package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.chrisrx.dev/x/run"

	"go.chrisrx.dev/modelserver/message"
)

type SubscriptionOptions struct {
	// Format defaults to the client's default format.
	Format string
	// Timeout is the server side idle timeout. When set, a keep-alive is sent
	// one second before it would expire.
	Timeout        time.Duration
	LiveValidation bool
	// ErrorWhenUnsuccessful makes Subscribe fail with *ConflictError instead
	// of replacing an existing subscription. It is never sent to the server.
	ErrorWhenUnsuccessful bool
}

type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// KeepAliveInterval returns how often keep-alives are sent for a server
// idle timeout.
func KeepAliveInterval(timeout time.Duration) time.Duration {
	if timeout > time.Second {
		return timeout - time.Second
	}
	return time.Millisecond
}

// Subscription is the registry entry for one subscribed model.
type Subscription struct {
	ID       string
	ModelURI string
	// Replaced is set when the subscription took over from an existing one,
	// which was closed.
	Replaced bool

	client   *Client
	listener Listener
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu      sync.Mutex
	state   State
	conn    *Conn
	closing bool
}

func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the subscription has reached the closed state and its
// listener has received the final event.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Send writes msg on the subscription. It is a no-op unless the subscription
// is open.
func (s *Subscription) Send(msg *message.Message) error {
	s.mu.Lock()
	conn, state := s.conn, s.state
	s.mu.Unlock()
	if state != StateOpen {
		return nil
	}
	return conn.WriteMessage(msg)
}

func (s *Subscription) open(conn *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conn = conn
	s.state = StateOpen
	return true
}

func (s *Subscription) close() {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.closing = true
	s.state = StateClosed
	conn := s.conn
	s.mu.Unlock()

	s.cancel()
	if conn == nil {
		s.finish()
		return
	}
	if err := conn.Close(); err != nil {
		s.logger.Debug("cannot close socket", slog.Any("error", err))
	}
}

func (s *Subscription) finish() {
	s.once.Do(func() {
		close(s.done)
	})
}

func (s *Subscription) read() {
	defer s.finish()

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			local := s.closing
			s.closing = true
			s.state = StateClosed
			s.mu.Unlock()
			s.cancel()

			if local {
				s.listener.OnClose(s.ModelURI, websocket.CloseNormalClosure, "")
				return
			}
			s.logger.Info("socket closed by peer", slog.Any("error", err))
			// listeners may resubscribe from OnClose
			s.client.release(s)
			_ = s.conn.ws.Close()
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				s.listener.OnClose(s.ModelURI, ce.Code, ce.Text)
			} else {
				s.listener.OnError(s.ModelURI, err)
				s.listener.OnClose(s.ModelURI, websocket.CloseAbnormalClosure, err.Error())
			}
			return
		}
		s.listener.OnMessage(s.ModelURI, MessageEvent{Type: mt, Data: data})
	}
}

func (s *Subscription) keepAlive(interval time.Duration) {
	run.Every(s.ctx, func() error {
		if err := s.Send(message.KeepAlive()); err != nil {
			s.logger.Warn("cannot send keep-alive", slog.Any("error", err))
		}
		return nil
	}, interval)
}

// Subscribe opens a live-update connection for modelURI and forwards its
// events to listener until Unsubscribe is called or the peer closes it.
//
// At most one subscription is registered per model. If one already exists,
// Subscribe returns *ConflictError when opts.ErrorWhenUnsuccessful is set and
// otherwise replaces the existing subscription, closing it once the new
// connection is established. If the new connection fails the existing
// subscription stays registered.
func (c *Client) Subscribe(ctx context.Context, modelURI string, listener Listener, opts SubscriptionOptions) (*Subscription, error) {
	if listener == nil {
		listener = ListenerFuncs{}
	}
	target, err := c.subscriptionURL(modelURI, opts)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		ID:       uuid.NewString(),
		ModelURI: modelURI,
		client:   c,
		listener: listener,
		done:     make(chan struct{}),
		state:    StateOpening,
	}
	sub.logger = c.logger.With(
		slog.String("modeluri", modelURI),
		slog.String("subscription", sub.ID),
	)
	sub.ctx, sub.cancel = context.WithCancel(context.Background())

	c.mu.Lock()
	prev := c.subs[modelURI]
	if prev != nil {
		sub.logger.Warn("cannot open new socket, already subscribed",
			slog.String("state", prev.State().String()),
			slog.String("existing", prev.ID),
		)
		if opts.ErrorWhenUnsuccessful {
			c.mu.Unlock()
			sub.cancel()
			return nil, &ConflictError{ModelURI: modelURI}
		}
		sub.Replaced = true
	}
	c.subs[modelURI] = sub
	c.mu.Unlock()

	conn, err := NewConn(ctx, c.dialer, target)
	if err != nil {
		if !c.restore(sub, prev) && prev != nil {
			prev.close()
		}
		sub.close()
		listener.OnError(modelURI, err)
		return nil, fmt.Errorf("subscribe %s: %w", modelURI, err)
	}
	if prev != nil {
		prev.close()
	}
	if !sub.open(conn) {
		_ = conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", modelURI, ErrSubscriptionClosed)
	}
	sub.logger.Info("subscribed")

	listener.OnOpen(modelURI)
	go sub.read()
	if opts.Timeout > 0 {
		go sub.keepAlive(KeepAliveInterval(opts.Timeout))
	}
	return sub, nil
}

// Unsubscribe closes the subscription of modelURI. It only logs a warning
// when there is none.
func (c *Client) Unsubscribe(modelURI string) {
	c.mu.Lock()
	sub, ok := c.subs[modelURI]
	delete(c.subs, modelURI)
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("cannot unsubscribe, no socket opened", slog.String("modeluri", modelURI))
		return
	}
	sub.close()
}

// Send delivers msg on the subscription of modelURI, if there is one.
func (c *Client) Send(modelURI string, msg *message.Message) error {
	c.mu.Lock()
	sub := c.subs[modelURI]
	c.mu.Unlock()

	if sub == nil {
		return nil
	}
	return sub.Send(msg)
}

func (c *Client) IsSubscribed(modelURI string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[modelURI]
	return ok
}

// restore puts prev back in place of sub after sub failed to connect. It
// reports false when prev is no longer open or sub was already replaced.
func (c *Client) restore(sub, prev *Subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[sub.ModelURI] != sub {
		return false
	}
	delete(c.subs, sub.ModelURI)
	if prev == nil || prev.State() != StateOpen {
		return false
	}
	c.subs[sub.ModelURI] = prev
	return true
}

// release removes sub from the registry unless it was already replaced.
func (c *Client) release(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[sub.ModelURI] == sub {
		delete(c.subs, sub.ModelURI)
	}
}

func (c *Client) subscriptionURL(modelURI string, opts SubscriptionOptions) (string, error) {
	u := c.baseURL.JoinPath(string(SubscriptionPath))
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}

	q := url.Values{}
	q.Set("modeluri", modelURI)
	format := opts.Format
	if format == "" {
		format = c.format
	}
	q.Set("format", format)
	if opts.Timeout > 0 {
		q.Set("timeout", strconv.FormatInt(opts.Timeout.Milliseconds(), 10))
	}
	if opts.LiveValidation {
		q.Set("livevalidation", "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
