package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jgarciait/osl-app-ct-sub002/internal/store"
)

const testSecret = "cli-test-secret-0123456789abcdef"

const testPolicy = `roles: {
	admin: admin: true
	editor: permissions: {
		comisiones: ["view", "create", "update"]
		expresiones: ["view", "create", "update", "delete"]
	}
	lector: permissions: comisiones: ["view"]
}
`

// testEnv is a config file and database in a temp directory.
type testEnv struct {
	dir    string
	config string
	db     string
}

// newTestEnv writes a development-mode config. extra lines are appended
// verbatim to the YAML document.
func newTestEnv(t *testing.T, extra ...string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:    dir,
		config: filepath.Join(dir, "legisync.yaml"),
		db:     filepath.Join(dir, "data", "legisync.db"),
	}
	doc := fmt.Sprintf(`database:
  path: %s
auth:
  secret: %s
permissions:
  mode: development
%s`, env.db, testSecret, strings.Join(extra, "\n"))
	require.NoError(t, os.WriteFile(env.config, []byte(doc), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Dir(env.db), 0o755))
	return env
}

// seed inserts rows into table through the store.
func (e *testEnv) seed(t *testing.T, table string, rows ...map[string]any) {
	t.Helper()
	st, err := store.Open(e.db)
	require.NoError(t, err)
	defer st.Close()
	for _, row := range rows {
		_, err := st.Insert(context.Background(), "seed", table, row)
		require.NoError(t, err)
	}
}

func (e *testEnv) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return executeContext(context.Background(), t, &bytes.Buffer{}, &bytes.Buffer{}, args...)
}

func executeContext(ctx context.Context, t *testing.T, out, errOut interface {
	Write([]byte) (int, error)
	String() string
}, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	err := cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

// syncBuffer is a bytes.Buffer safe for concurrent writers and readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
