package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jgarciait/osl-app-ct-sub002/internal/config"
	"github.com/jgarciait/osl-app-ct-sub002/internal/realtime"
	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
	"github.com/jgarciait/osl-app-ct-sub002/internal/session"
	"github.com/jgarciait/osl-app-ct-sub002/internal/store"
)

// RemoteFlags select a running server instead of the local database.
type RemoteFlags struct {
	Server string
	Token  string
}

func (f *RemoteFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Server, "server", "", "server URL (overrides client.server_url)")
	cmd.Flags().StringVar(&f.Token, "token", "", "session token (overrides client.token)")
}

// apply merges the flags into cfg.Client.
func (f *RemoteFlags) apply(cfg *config.Config) {
	if f.Server != "" {
		cfg.Client.ServerURL = f.Server
	}
	if f.Token != "" {
		cfg.Client.Token = f.Token
	}
}

// reader is the read side shared by the store and the remote client.
type reader interface {
	Select(ctx context.Context, table string, filter record.Filter, order []record.SortKey) ([]record.Record, error)
}

// backend is an opened data source with the schemas visible through it.
type backend struct {
	reader  reader
	schemas []record.Schema
	remote  *realtime.Client
	close   func() error
}

func (b *backend) lookup(table string) (record.Schema, bool) {
	for _, s := range b.schemas {
		if s.Name == table {
			return s, true
		}
	}
	return record.Schema{}, false
}

// openBackend connects to the configured server, or opens the local
// database when no server URL is set.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	if cfg.Client.ServerURL != "" {
		client, err := newRemoteClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		schemas, err := client.Schemas(ctx)
		if err != nil {
			return nil, remoteError("failed to load schemas", err)
		}
		return &backend{reader: client, schemas: schemas, remote: client, close: func() error { return nil }}, nil
	}

	st, err := store.Open(cfg.Database.Path, store.WithLogger(logger), store.WithLocale(cfg.LocaleTag()))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	reg := st.Registry()
	schemas := make([]record.Schema, 0, len(reg.Names()))
	for _, name := range reg.Names() {
		s, _ := reg.Lookup(name)
		schemas = append(schemas, s)
	}
	return &backend{reader: st, schemas: schemas, close: st.Close}, nil
}

func newRemoteClient(cfg *config.Config, logger *slog.Logger) (*realtime.Client, error) {
	client, err := realtime.NewClient(cfg.Client.ServerURL, cfg.Client.Token, realtime.WithClientLogger(logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid server URL", err)
	}
	return client, nil
}

// remoteError maps client failures to exit codes. Authentication failures
// get a hint to issue a token.
func remoteError(message string, err error) error {
	if session.IsAuthError(err) {
		return WrapExitError(ExitCommandError, message+" (session required; see legisync token)", err)
	}
	return WrapExitError(ExitCommandError, message, err)
}

// parseFilter turns field=value pairs into a filter. Values are int64,
// true, false or null when they parse as such, strings otherwise.
func parseFilter(pairs []string) (record.Filter, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	f := make(record.Filter, len(pairs))
	for _, p := range pairs {
		field, raw, ok := strings.Cut(p, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("filter %q: want field=value", p)
		}
		f[field] = parseValue(raw)
	}
	return f, nil
}

func parseValue(raw string) any {
	switch raw {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	return raw
}
