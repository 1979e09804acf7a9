package cli

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgarciait/osl-app-ct-sub002/internal/permission"
	"github.com/jgarciait/osl-app-ct-sub002/internal/realtime"
	"github.com/jgarciait/osl-app-ct-sub002/internal/server"
	"github.com/jgarciait/osl-app-ct-sub002/internal/session"
	"github.com/jgarciait/osl-app-ct-sub002/internal/store"
)

// remoteEnv is a running server over the test environment's database.
type remoteEnv struct {
	*testEnv
	store *store.Store
	hub   *realtime.Hub
	url   string
	token string
}

func newRemoteEnv(t *testing.T) *remoteEnv {
	t.Helper()
	env := newTestEnv(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hub := realtime.NewHub(realtime.WithLogger(logger))
	st, err := store.Open(env.db, store.WithPublisher(hub), store.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sessions, err := session.NewManager([]byte(testSecret), time.Hour)
	require.NoError(t, err)
	token, _, err := sessions.Issue("ana", "editor")
	require.NoError(t, err)

	srv, err := server.New(server.Options{
		Store:    st,
		Hub:      hub,
		Sessions: sessions,
		Provider: permission.DevelopmentProvider{},
		Logger:   logger,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(hub.Close)

	return &remoteEnv{testEnv: env, store: st, hub: hub, url: ts.URL, token: token}
}

func TestList_Remote(t *testing.T) {
	env := newRemoteEnv(t)
	_, err := env.store.Insert(t.Context(), "seed", "legisladores", map[string]any{"apellido": "Ñúñez", "nombre": "Ana"})
	require.NoError(t, err)
	_, err = env.store.Insert(t.Context(), "seed", "legisladores", map[string]any{"apellido": "Navarro", "nombre": "Luis"})
	require.NoError(t, err)

	out, _, err := execute(t, "list", "legisladores", "--config", env.config,
		"--server", env.url, "--token", env.token, "--format", "json")
	require.NoError(t, err)

	resp := decodeList(t, out)
	require.Len(t, resp.Data.Records, 2)
	assert.Equal(t, "Navarro", resp.Data.Records[0].String("apellido"))
	assert.Equal(t, "Ñúñez", resp.Data.Records[1].String("apellido"))
}

func TestList_RemoteRequiresSession(t *testing.T) {
	env := newRemoteEnv(t)

	_, _, err := execute(t, "list", "comisiones", "--config", env.config, "--server", env.url, "--token", "bogus")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "session required")
}

func TestCheck_Remote(t *testing.T) {
	env := newRemoteEnv(t)

	out, _, err := execute(t, "check", "comisiones", "delete", "--config", env.config,
		"--server", env.url, "--token", env.token)
	require.NoError(t, err)
	assert.Contains(t, out, "granted: editor may delete comisiones")
}

func TestWatch_RequiresServer(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := execute(t, "watch", "comisiones", "--config", env.config)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestWatch_FollowsInserts(t *testing.T) {
	env := newRemoteEnv(t)
	_, err := env.store.Insert(t.Context(), "seed", "comisiones", map[string]any{"tipo": "Senado", "nombre": "Hacienda"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	out, errOut := &syncBuffer{}, &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		_, _, err := executeContext(ctx, t, out, errOut, "watch", "comisiones",
			"--config", env.config, "--server", env.url, "--token", env.token, "--format", "json")
		done <- err
	}()

	require.Eventually(t, func() bool { return env.hub.Subscribers("comisiones") == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "Hacienda") }, 5*time.Second, 10*time.Millisecond)

	_, err = env.store.Insert(t.Context(), "seed", "comisiones", map[string]any{"tipo": "Cámara", "nombre": "Agricultura"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "Agricultura") }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return containsAll(errOut.String(), "Registro agregado", "Agricultura") },
		5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatch_ShowsSignedInCapabilities(t *testing.T) {
	env := newRemoteEnv(t)
	_, err := env.store.Insert(t.Context(), "seed", "comisiones", map[string]any{"tipo": "Senado", "nombre": "Hacienda"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	out, errOut := &syncBuffer{}, &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		_, _, err := executeContext(ctx, t, out, errOut, "watch", "comisiones",
			"--config", env.config, "--server", env.url, "--token", env.token)
		done <- err
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "ana (editor) · may create, update, delete")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatch_RejectsUnknownFilterColumn(t *testing.T) {
	env := newRemoteEnv(t)

	out, _, err := execute(t, "watch", "comisiones", "--where", "color=rojo",
		"--config", env.config, "--server", env.url, "--token", env.token)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "invalid filter")
}

func TestWatchView_Capabilities(t *testing.T) {
	env := newRemoteEnv(t)
	client, err := realtime.NewClient(env.url, env.token)
	require.NoError(t, err)

	gate := permission.NewGate(permission.ProviderFunc(func(context.Context, session.Session) (permission.Set, error) {
		return permission.Set{Permissions: map[string][]string{"comisiones": {"view", "update"}}}, nil
	}), nil)
	schemas, err := client.Schemas(t.Context())
	require.NoError(t, err)

	view := &watchView{gate: gate, schema: schemas[0]}
	assert.Equal(t, "permissions loading", view.capabilities())

	gate.Load(t.Context(), session.Session{UserID: "ana", Role: "editor"}, true)
	assert.Equal(t, "may update", view.capabilities())

	for _, s := range schemas {
		if s.ReadOnly {
			view.schema = s
		}
	}
	assert.Equal(t, "read-only", view.capabilities())
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
