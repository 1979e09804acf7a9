package permission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgarciait/osl-app-ct-sub002/internal/session"
)

var viewComisiones = Query{Resource: "comisiones", Action: ActionView}

func roleProvider() Provider {
	return ProviderFunc(func(_ context.Context, s session.Session) (Set, error) {
		switch s.Role {
		case "admin":
			return AllowAll(), nil
		case "lector":
			return Set{Permissions: map[string][]string{"comisiones": {ActionView}}}, nil
		case "roto":
			return Set{}, errors.New("policy unavailable")
		default:
			return Empty(), nil
		}
	})
}

func TestGate_LoadingThenTerminal(t *testing.T) {
	g := NewGate(roleProvider(), quietLogger())
	assert.Equal(t, Loading, g.Status(viewComisiones))
	_, ok := g.Set()
	assert.False(t, ok)

	g.Load(context.Background(), session.Session{UserID: "u", Role: "lector"}, true)
	assert.Equal(t, Granted, g.Status(viewComisiones))
	assert.Equal(t, Denied, g.Status(Query{Resource: "comisiones", Action: ActionDelete}))
}

func TestGate_ProviderErrorDenies(t *testing.T) {
	g := NewGate(roleProvider(), quietLogger())
	g.Load(context.Background(), session.Session{UserID: "u", Role: "roto"}, true)
	assert.Equal(t, Denied, g.Status(viewComisiones))
}

func TestGate_StaleLoadIsDiscarded(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	slow := ProviderFunc(func(_ context.Context, s session.Session) (Set, error) {
		if s.Role == "admin" {
			close(entered)
			<-release
			return AllowAll(), nil
		}
		return Empty(), nil
	})
	g := NewGate(slow, quietLogger())

	done := make(chan struct{})
	go func() {
		g.Load(context.Background(), session.Session{UserID: "old", Role: "admin"}, true)
		close(done)
	}()
	<-entered
	assert.Equal(t, Loading, g.Status(viewComisiones))

	g.Load(context.Background(), session.Session{UserID: "new", Role: "nadie"}, true)
	close(release)
	<-done

	assert.Equal(t, Denied, g.Status(viewComisiones), "older admin load must not win")
}

func TestGate_BindReloadsOnSessionChange(t *testing.T) {
	st := session.NewState()
	g := NewGate(roleProvider(), quietLogger())

	var mu sync.Mutex
	changes := 0
	g.OnChange(func() {
		mu.Lock()
		changes++
		mu.Unlock()
	})

	unbind := g.Bind(context.Background(), st)
	defer unbind()

	require.Eventually(t, func() bool { return g.Status(viewComisiones) == Denied }, time.Second, time.Millisecond, "signed out denies")

	st.SignIn(session.Session{ID: "s1", UserID: "u", Role: "admin"})
	require.Eventually(t, func() bool { return g.Status(viewComisiones) == Granted }, time.Second, time.Millisecond)

	st.SignOut()
	require.Eventually(t, func() bool { return g.Status(viewComisiones) == Denied }, time.Second, time.Millisecond)

	// Three loads, each entering and leaving Loading.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return changes == 6
	}, time.Second, time.Millisecond)
}

func TestGate_BindThenImmediateSignInSettlesOnNewSession(t *testing.T) {
	for i := range 200 {
		st := session.NewState()
		g := NewGate(roleProvider(), quietLogger())

		unbind := g.Bind(context.Background(), st)
		st.SignIn(session.Session{ID: "s1", UserID: "u", Role: "admin"})

		require.Eventually(t, func() bool { return g.Status(viewComisiones) == Granted },
			time.Second, time.Millisecond, "run %d: signed-in admin must be granted", i)
		unbind()
	}
}

func TestGuard(t *testing.T) {
	g := NewGate(roleProvider(), quietLogger())

	out, st := Guard(g, viewComisiones, "tabla", "sin acceso")
	assert.Equal(t, "", out)
	assert.Equal(t, Loading, st)

	g.Load(context.Background(), session.Session{UserID: "u", Role: "lector"}, true)
	out, st = Guard(g, viewComisiones, "tabla", "sin acceso")
	assert.Equal(t, "tabla", out)
	assert.Equal(t, Granted, st)

	out, st = Guard(g, Query{Resource: "auditoria", Action: ActionView}, "tabla", "sin acceso")
	assert.Equal(t, "sin acceso", out)
	assert.Equal(t, Denied, st)
	assert.Equal(t, "denied", st.String())
}
