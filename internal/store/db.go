package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the profile's SQLite database.
type DB struct {
	*sql.DB
}

// dsnOptions are the go-sqlite3 connection parameters. The credential table
// is tiny, but the CLI and the daemon may open the file at the same time.
const dsnOptions = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// Open connects to the SQLite file at path, creating it if needed.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &DB{conn}, nil
}

// OpenMigrated opens the database at path and brings its schema up to date.
func OpenMigrated(path string) (*DB, SchemaChange, error) {
	db, err := Open(path)
	if err != nil {
		return nil, SchemaChange{}, err
	}
	change, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, change, err
	}
	return db, change, nil
}
