package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jgarciait/osl-app-ct-sub002/internal/api"
	"github.com/jgarciait/osl-app-ct-sub002/internal/listsync"
	"github.com/jgarciait/osl-app-ct-sub002/internal/permission"
	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
	"github.com/jgarciait/osl-app-ct-sub002/internal/session"
)

// DefaultStreamBuffer is the client-side event buffer per stream.
const DefaultStreamBuffer = 64

// ResponseError is a non-OK reply from the server.
type ResponseError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("server returned %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap maps 401 replies to session.ErrNoSession.
func (e *ResponseError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return session.ErrNoSession
	}
	return nil
}

// Client talks to a legisync server. It implements listsync.Source and
// permission.Provider, so a remote process can run synchronizers and a
// permission gate against the server.
type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	dialer *websocket.Dialer
	logger *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithDialer sets the WebSocket dialer.
func WithDialer(d *websocket.Dialer) ClientOption {
	return func(c *Client) { c.dialer = d }
}

// WithClientLogger sets the logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the server at baseURL authenticating with
// token.
func NewClient(baseURL, token string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base:   u,
		token:  token,
		http:   &http.Client{Timeout: 30 * time.Second},
		dialer: websocket.DefaultDialer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Select implements listsync.Source.
func (c *Client) Select(ctx context.Context, table string, filter record.Filter, order []record.SortKey) ([]record.Record, error) {
	q := url.Values{}
	if len(filter) > 0 {
		data, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("encode filter: %w", err)
		}
		q.Set("filter", string(data))
	}
	if len(order) > 0 {
		q.Set("order", api.EncodeOrder(order))
	}

	var list api.List
	if err := c.do(ctx, http.MethodGet, api.PathTables+url.PathEscape(table), q, nil, &list); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	if list.Records == nil {
		list.Records = []record.Record{}
	}
	return list.Records, nil
}

// Insert creates a row through the server.
func (c *Client) Insert(ctx context.Context, table string, fields map[string]any) (record.Record, error) {
	var m api.Mutation
	if err := c.do(ctx, http.MethodPost, api.PathTables+url.PathEscape(table), nil, fields, &m); err != nil {
		return record.Record{}, fmt.Errorf("insert %s: %w", table, err)
	}
	if m.Record == nil {
		return record.Record{}, fmt.Errorf("insert %s: response without record", table)
	}
	return *m.Record, nil
}

// Update patches a row through the server.
func (c *Client) Update(ctx context.Context, table string, id int64, patch map[string]any) (record.Record, error) {
	var m api.Mutation
	if err := c.do(ctx, http.MethodPatch, rowPath(table, id), nil, patch, &m); err != nil {
		return record.Record{}, fmt.Errorf("update %s %d: %w", table, id, err)
	}
	if m.Record == nil {
		return record.Record{}, fmt.Errorf("update %s %d: response without record", table, id)
	}
	return *m.Record, nil
}

// Delete removes a row and its relation rows through the server.
func (c *Client) Delete(ctx context.Context, table string, id int64) error {
	if err := c.do(ctx, http.MethodDelete, rowPath(table, id), nil, nil, nil); err != nil {
		return fmt.Errorf("delete %s %d: %w", table, id, err)
	}
	return nil
}

// Session returns the session the server associates with the token.
func (c *Client) Session(ctx context.Context) (session.Session, error) {
	var s session.Session
	if err := c.do(ctx, http.MethodGet, api.PathSession, nil, nil, &s); err != nil {
		return session.Session{}, fmt.Errorf("load session: %w", err)
	}
	return s, nil
}

// Load implements permission.Provider. The server resolves the set from the
// token, so s only has to be present.
func (c *Client) Load(ctx context.Context, _ session.Session) (permission.Set, error) {
	var set permission.Set
	if err := c.do(ctx, http.MethodGet, api.PathPermissions, nil, nil, &set); err != nil {
		return permission.Set{}, fmt.Errorf("load permissions: %w", err)
	}
	return set, nil
}

// Schemas returns the tables the server exposes.
func (c *Client) Schemas(ctx context.Context) ([]record.Schema, error) {
	var out []record.Schema
	if err := c.do(ctx, http.MethodGet, api.PathSchemas, nil, nil, &out); err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	return out, nil
}

// Subscribe implements listsync.Source over the WebSocket endpoint.
func (c *Client) Subscribe(ctx context.Context, table string, mask record.EventMask) (listsync.Stream, error) {
	u := c.endpoint(api.PathSubscribe, api.SubscribeQuery(table, mask))
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	ws, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("subscribe %s: %w", table, responseError(resp))
		}
		return nil, fmt.Errorf("subscribe %s: %w", table, err)
	}

	st := &clientStream{
		ws:     ws,
		events: make(chan record.ChangeEvent, DefaultStreamBuffer),
		done:   make(chan struct{}),
	}
	go st.read()
	st.stop = context.AfterFunc(ctx, func() { st.shutdown() })

	c.logger.Debug("subscribed", "table", table, "mask", mask.String())
	return st, nil
}

func rowPath(table string, id int64) string {
	return api.PathTables + url.PathEscape(table) + "/" + strconv.FormatInt(id, 10)
}

func (c *Client) endpoint(path string, q url.Values) *url.URL {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = q.Encode()
	return &u
}

// do sends one API request and decodes the envelope's data into out.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, q).String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return responseError(resp)
	}

	var env api.Response[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if env.Status != api.StatusOK {
		return &ResponseError{StatusCode: resp.StatusCode, Code: errorCode(env.Error), Message: errorMessage(env.Error)}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// responseError reads the error envelope of a failed reply, falling back
// to the status text when the body is not an envelope.
func responseError(resp *http.Response) error {
	re := &ResponseError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return re
	}
	var env api.Response[json.RawMessage]
	if json.Unmarshal(data, &env) == nil && env.Error != nil {
		re.Code = env.Error.Code
		re.Message = env.Error.Message
	} else if msg := strings.TrimSpace(string(data)); msg != "" {
		re.Message = msg
	}
	return re
}

func errorCode(e *api.Error) string {
	if e == nil {
		return api.CodeInternal
	}
	return e.Code
}

func errorMessage(e *api.Error) string {
	if e == nil {
		return "malformed error response"
	}
	return e.Message
}

// clientStream is a listsync.Stream over one WebSocket connection.
type clientStream struct {
	ws     *websocket.Conn
	events chan record.ChangeEvent
	done   chan struct{}
	stop   func() bool
	once   sync.Once

	mu  sync.Mutex
	err error
}

func (s *clientStream) Events() <-chan record.ChangeEvent {
	return s.events
}

func (s *clientStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *clientStream) Close() error {
	s.stop()
	s.shutdown()
	return nil
}

func (s *clientStream) shutdown() {
	s.once.Do(func() {
		s.mu.Lock()
		close(s.done)
		s.mu.Unlock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = s.ws.Close()
	})
}

func (s *clientStream) read() {
	defer close(s.events)
	for {
		var ev record.ChangeEvent
		if err := s.ws.ReadJSON(&ev); err != nil {
			s.fail(err)
			return
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// fail records why the stream ended unless it was closed locally.
func (s *clientStream) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return
	default:
	}
	s.err = fmt.Errorf("read frame: %w", err)
}
