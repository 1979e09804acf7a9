package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jgarciait/osl-app-ct-sub002/internal/listsync"
	"github.com/jgarciait/osl-app-ct-sub002/internal/notify"
	"github.com/jgarciait/osl-app-ct-sub002/internal/permission"
	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
	"github.com/jgarciait/osl-app-ct-sub002/internal/session"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Remote RemoteFlags
	Where  []string
	Events string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <table>",
		Short: "Follow a table live from a running server",
		Long: `Mirror a table from a running server and redraw it on every change.

Notifications for inserts, updates, deletes and reconnects are printed to
stderr. On a terminal the screen is redrawn in place; otherwise each change
appends the full list (one JSON document per line with --format json).

Examples:
  legisync watch comisiones --server http://localhost:8080 --token $TOKEN
  legisync watch expresiones --where estado=radicada --events INSERT,DELETE`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, opts, args[0], cmd)
		},
	}

	opts.Remote.register(cmd)
	cmd.Flags().StringArrayVarP(&opts.Where, "where", "w", nil, "equality filter field=value (repeatable)")
	cmd.Flags().StringVar(&opts.Events, "events", "", "event kinds to follow, e.g. INSERT,DELETE (default: all)")

	return cmd
}

func runWatch(ctx context.Context, opts *WatchOptions, table string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	filter, err := parseFilter(opts.Where)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalid, "invalid filter", err)
	}
	mask := record.MaskAll
	if opts.Events != "" {
		if mask, err = record.ParseEventMask(opts.Events); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInvalid, "invalid --events", err)
		}
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load configuration", err)
	}
	opts.Remote.apply(cfg)
	if cfg.Client.ServerURL == "" {
		return formatter.Fail(ExitCommandError, ErrCodeUnsupported,
			"watch needs a running server: set --server or client.server_url", nil)
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	client, err := newRemoteClient(cfg, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeRemote, "invalid server URL", err)
	}
	sess, err := client.Session(ctx)
	if err != nil {
		err = remoteError("failed to resolve session", err)
		return formatter.Fail(ExitCommandError, ErrCodeRemote, "failed to resolve session", err)
	}
	schemas, err := client.Schemas(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeRemote, "failed to load schemas", err)
	}
	var sch record.Schema
	found := false
	for _, s := range schemas {
		if s.Name == table {
			sch, found = s, true
		}
	}
	if !found {
		return formatter.Fail(ExitCommandError, ErrCodeUnknown,
			fmt.Sprintf("unknown or not viewable table %q", table), nil)
	}
	if filter, err = sch.CheckFilter(filter); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalid, "invalid filter", err)
	}

	tag := cfg.LocaleTag()
	out := cmd.OutOrStdout()
	view := &watchView{
		out:      out,
		format:   opts.Format,
		terminal: isTerminal(out),
		schema:   sch,
		user:     sess.UserID,
		role:     sess.Role,
	}

	gate := permission.NewGate(client, logger)
	view.gate = gate
	state := session.NewState()
	unbind := gate.Bind(ctx, state)
	defer unbind()
	state.SignIn(sess)

	sink := notify.NewAsync(notify.NewWriterSink(cmd.ErrOrStderr(), isTerminal(cmd.ErrOrStderr())), 32, logger)
	defer sink.Close()

	syncer := listsync.New(client, sch,
		listsync.WithComparator(record.ComparatorFor(record.NewCollator(tag), sch)),
		listsync.WithFilter(filter),
		listsync.WithMask(mask),
		listsync.WithNotifier(sink),
		listsync.WithMessages(notify.NewMessages(tag)),
		listsync.WithLogger(logger),
		listsync.WithReconnect(cfg.Sync.ReconnectMin, cfg.Sync.ReconnectMax),
	)
	defer syncer.Close()

	removeColl := syncer.OnChange(view.setCollection)
	defer removeColl()
	removeGate := gate.OnChange(view.redraw)
	defer removeGate()

	err = syncer.Run(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return formatter.Fail(ExitCommandError, ErrCodeRemote, "watch stopped", err)
}

// watchView redraws the mirrored collection. Calls come from the
// synchronizer and gate goroutines, so state is guarded by mu.
type watchView struct {
	mu       sync.Mutex
	out      io.Writer
	format   string
	terminal bool
	schema   record.Schema
	user     string
	role     string
	gate     *permission.Gate
	coll     listsync.Collection
	loaded   bool
}

func (v *watchView) setCollection(c listsync.Collection) {
	v.mu.Lock()
	v.coll = c
	v.loaded = true
	v.mu.Unlock()
	v.redraw()
}

func (v *watchView) redraw() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.loaded {
		return
	}

	result := ListResult{
		Table:   v.schema.Name,
		Title:   v.schema.Title,
		Columns: v.schema.Columns,
		Records: v.coll.Records(),
	}
	if v.format == "json" {
		f := &OutputFormatter{Format: v.format, Writer: v.out}
		_ = f.Success(result)
		return
	}

	if v.terminal {
		fmt.Fprint(v.out, "\x1b[H\x1b[2J")
	} else {
		fmt.Fprintln(v.out)
	}
	fmt.Fprintf(v.out, "%s (%s) · %s\n", v.user, v.role, v.capabilities())
	_ = result.RenderText(v.out)
}

// capabilities summarizes the write actions the gate grants on the table.
func (v *watchView) capabilities() string {
	var granted []string
	for _, action := range []string{permission.ActionCreate, permission.ActionUpdate, permission.ActionDelete} {
		q := permission.Query{Resource: v.schema.Name, Action: action}
		name, st := permission.Guard(v.gate, q, action, "")
		if st == permission.Loading {
			return "permissions loading"
		}
		if name != "" {
			granted = append(granted, name)
		}
	}
	if v.schema.ReadOnly || len(granted) == 0 {
		return "read-only"
	}
	return "may " + strings.Join(granted, ", ")
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
