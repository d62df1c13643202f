package store

import "errors"

// ErrFTS5Required is returned by NewSQLite when the binary was built
// without the sqlite_fts5 tag; the full-text index needs the FTS5
// extension compiled into the driver.
var ErrFTS5Required = errors.New("sqlite backend requires FTS5 (build with -tags sqlite_fts5, or set store.driver to memory)")

// SQLiteConfig holds configuration for the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file. ":memory:" gives an ephemeral database.
	Path string
}

// ApplyDefaults sets default values for unset fields.
func (c *SQLiteConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "vcond.db"
	}
}
