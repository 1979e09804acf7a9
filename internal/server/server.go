// Package server exposes the store, the realtime hub and the permission
// gate over HTTP.
//
// Every /api route requires a session. The permission set of the session is
// resolved once per request and mounted in the request context; handlers
// check it with permission.Allowed before touching the store.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jgarciait/osl-app-ct-sub002/internal/api"
	"github.com/jgarciait/osl-app-ct-sub002/internal/metrics"
	"github.com/jgarciait/osl-app-ct-sub002/internal/notify"
	"github.com/jgarciait/osl-app-ct-sub002/internal/permission"
	"github.com/jgarciait/osl-app-ct-sub002/internal/realtime"
	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
	"github.com/jgarciait/osl-app-ct-sub002/internal/session"
	"github.com/jgarciait/osl-app-ct-sub002/internal/store"
)

// Options wires the server's collaborators. Store, Hub, Sessions and
// Provider are required.
type Options struct {
	Store     *store.Store
	Hub       *realtime.Hub
	Sessions  *session.Manager
	Provider  permission.Provider
	Messages  *notify.Messages
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	LoginPath string
}

// Server is the HTTP front of a legisync process.
type Server struct {
	store     *store.Store
	hub       *realtime.Hub
	sessions  *session.Manager
	provider  permission.Provider
	registry  *record.Registry
	messages  *messageSet
	metrics   *metrics.Metrics
	logger    *slog.Logger
	loginPath string
	handler   http.Handler
}

// New validates opts and builds the route table.
func New(opts Options) (*Server, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("server: store is required")
	case opts.Hub == nil:
		return nil, errors.New("server: hub is required")
	case opts.Sessions == nil:
		return nil, errors.New("server: session manager is required")
	case opts.Provider == nil:
		return nil, errors.New("server: permission provider is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}

	s := &Server{
		store:     opts.Store,
		hub:       opts.Hub,
		sessions:  opts.Sessions,
		provider:  opts.Provider,
		registry:  opts.Store.Registry(),
		messages:  newMessageSet(opts.Messages),
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		loginPath: opts.LoginPath,
	}
	s.handler = chain(
		recoveryMiddleware(s.logger),
		requestIDMiddleware,
		s.accessLogMiddleware,
	)(s.routes())
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+api.PathHealth, s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET "+api.PathMetrics, s.metrics.Handler())
	}
	mux.HandleFunc("GET "+s.loginPath, s.handleLogin)

	mux.Handle("GET "+api.PathSession, s.authed(http.HandlerFunc(s.handleSession)))
	mux.Handle("GET "+api.PathPermissions, s.authed(http.HandlerFunc(s.handlePermissions)))
	mux.Handle("GET "+api.PathSchemas, s.authed(http.HandlerFunc(s.handleSchemas)))

	mux.Handle("GET "+api.PathTables+"{table}", s.authed(http.HandlerFunc(s.handleList)))
	mux.Handle("GET "+api.PathTables+"{table}/{id}", s.authed(http.HandlerFunc(s.handleGet)))
	mux.Handle("POST "+api.PathTables+"{table}", s.authed(http.HandlerFunc(s.handleInsert)))
	mux.Handle("PATCH "+api.PathTables+"{table}/{id}", s.authed(http.HandlerFunc(s.handleUpdate)))
	mux.Handle("DELETE "+api.PathTables+"{table}/{id}", s.authed(http.HandlerFunc(s.handleDelete)))

	ws := realtime.NewHandler(s.hub, s.registry, s.logger)
	mux.Handle("GET "+api.PathSubscribe, s.authed(s.requireTableView(ws)))

	return mux
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
// The hub is closed first so WebSocket handlers, which Shutdown does not
// wait for, end their streams.
func (s *Server) Run(ctx context.Context, addr string, timeouts Timeouts) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, timeouts)
}

// Timeouts are the http.Server limits.
type Timeouts struct {
	Read     time.Duration
	Write    time.Duration
	Idle     time.Duration
	Shutdown time.Duration
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, timeouts Timeouts) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: timeouts.Read,
		ReadTimeout:       timeouts.Read,
		WriteTimeout:      timeouts.Write,
		IdleTimeout:       timeouts.Idle,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("server shutting down")
	s.hub.Close()

	shutdownCtx := context.Background()
	if timeouts.Shutdown > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(shutdownCtx, timeouts.Shutdown)
		defer cancel()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
