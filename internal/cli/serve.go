package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jgarciait/osl-app-ct-sub002/internal/metrics"
	"github.com/jgarciait/osl-app-ct-sub002/internal/notify"
	"github.com/jgarciait/osl-app-ct-sub002/internal/permission"
	"github.com/jgarciait/osl-app-ct-sub002/internal/realtime"
	"github.com/jgarciait/osl-app-ct-sub002/internal/server"
	"github.com/jgarciait/osl-app-ct-sub002/internal/session"
	"github.com/jgarciait/osl-app-ct-sub002/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		Long: `Open the database and serve the table API, live subscriptions and
metrics until interrupted.

Exit codes:
  0 - Clean shutdown
  2 - Configuration, database or listen error

Examples:
  legisync serve --config legisync.yaml
  LEGISYNC_PERMISSIONS_MODE=development legisync serve --addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if err := cfg.RequireSecret(); err != nil {
		return WrapExitError(ExitCommandError, "cannot serve", err)
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	if err := cfg.EnsureDirectories(); err != nil {
		return WrapExitError(ExitCommandError, "failed to prepare data directory", err)
	}

	m := metrics.New()
	hub := realtime.NewHub(
		realtime.WithBufferSize(cfg.Sync.BufferSize),
		realtime.WithMetrics(m),
		realtime.WithLogger(logger),
	)

	st, err := store.Open(cfg.Database.Path,
		store.WithPublisher(hub),
		store.WithLogger(logger),
		store.WithLocale(cfg.LocaleTag()),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	sessions, err := session.NewManager([]byte(cfg.Auth.Secret), cfg.Auth.TokenTTL)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create session manager", err)
	}

	provider, err := permission.NewProvider(cfg.PermissionMode(), cfg.Permissions.Policy, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load permissions", err)
	}

	srv, err := server.New(server.Options{
		Store:     st,
		Hub:       hub,
		Sessions:  sessions,
		Provider:  provider,
		Messages:  notify.NewMessages(cfg.LocaleTag()),
		Metrics:   m,
		Logger:    logger,
		LoginPath: cfg.Auth.LoginPath,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create server", err)
	}

	logger.Info("starting legisync",
		"addr", cfg.Server.Addr,
		"database", cfg.Database.Path,
		"permissions", cfg.Permissions.Mode,
		"locale", cfg.Locale,
	)
	err = srv.Run(ctx, cfg.Server.Addr, server.Timeouts{
		Read:     cfg.Server.ReadTimeout,
		Write:    cfg.Server.WriteTimeout,
		Idle:     cfg.Server.IdleTimeout,
		Shutdown: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "server stopped", err)
	}
	logger.Info("legisync stopped")
	return nil
}
