package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"go.chrisrx.dev/modelserver/message"
)

const DefaultFormat = "json"

type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(client *Client) {
		client.logger = l
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(client *Client) {
		client.http = hc
	}
}

// WithDefaultFormat sets the format used by Edit and Subscribe when the
// caller does not pass one.
func WithDefaultFormat(format string) Option {
	return func(client *Client) {
		if format != "" {
			client.format = format
		}
	}
}

func WithDialer(d *websocket.Dialer) Option {
	return func(client *Client) {
		client.dialer = d
	}
}

type Client struct {
	baseURL *url.URL
	format  string
	http    *http.Client
	dialer  *websocket.Dialer
	logger  *slog.Logger

	mu   sync.Mutex
	subs map[string]*Subscription
}

// New returns a client for the model server API rooted at baseURL, e.g.
// http://localhost:8081/api/v1.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	c := &Client{
		baseURL: u,
		format:  DefaultFormat,
		http:    defaultHTTPClient(),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: slog.Default(),
		subs:   make(map[string]*Subscription),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func defaultHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: 5 * time.Second,
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: 5 * time.Second,
		},
		Timeout: 60 * time.Second,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) DefaultFormat() string {
	return c.format
}

// Close unsubscribes every open subscription.
func (c *Client) Close() error {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]*Subscription)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) endpoint(path Path, params url.Values) string {
	u := c.baseURL.JoinPath(string(path))
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u.String()
}

// Request sends a request to path and returns the response envelope. Error
// envelopes, non-2xx responses and transport failures are returned as *Error.
// It is the building block for endpoints added by server extensions.
func (c *Client) Request(ctx context.Context, method string, path Path, params url.Values, body any) (*message.Message, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, mapperError(err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, params), r)
	if err != nil {
		return nil, transportError(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, data)
	}
	msg, err := message.Parse(data)
	if err != nil {
		e := mapperError(fmt.Errorf("invalid response envelope: %w", err))
		e.StatusCode = resp.StatusCode
		return nil, e
	}
	if msg.Type == message.ErrorMessageType {
		return nil, envelopeError(msg)
	}
	return msg, nil
}

// Process applies mapper to the result of Request. Mapper failures are
// returned as *Error wrapping the mapper's error.
func Process[T any](msg *message.Message, err error, mapper func(*message.Message) (T, error)) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	out, err := mapper(msg)
	if err != nil {
		return zero, mapperError(err)
	}
	return out, nil
}

func successMapper(m *message.Message) (bool, error) {
	return message.IsSuccess(m), nil
}

func stringMapper(m *message.Message) (string, error) {
	return message.AsString(m), nil
}

// query builds query parameters from key/value pairs, dropping empty values.
func query(kv ...string) url.Values {
	q := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			q.Set(kv[i], kv[i+1])
		}
	}
	return q
}
