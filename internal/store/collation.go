package store

import (
	"database/sql"
	"sync"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/text/language"

	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

// CollationName is the SQLite collation that orders text like
// record.Comparator does for the store's locale.
const CollationName = "locale"

var (
	driversMu sync.Mutex
	drivers   = map[string]string{}
)

// driverFor returns a database/sql driver name whose connections carry the
// locale collation for tag. sql.Register panics on duplicates, so each locale
// is registered at most once per process.
func driverFor(tag language.Tag) string {
	key := tag.String()

	driversMu.Lock()
	defer driversMu.Unlock()

	if name, ok := drivers[key]; ok {
		return name
	}
	name := "sqlite3_legisync_" + key
	col := record.NewCollator(tag)
	sql.Register(name, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterCollation(CollationName, col.CompareStrings)
		},
	})
	drivers[key] = name
	return name
}
