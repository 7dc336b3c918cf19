package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pawprox/pawchat/internal/store/migrations"
)

// SchemaChange reports the schema version before and after Migrate.
type SchemaChange struct {
	From  uint
	To    uint
	Dirty bool
}

// Changed reports whether any migration ran.
func (c SchemaChange) Changed() bool { return c.From != c.To }

// Migrate applies the embedded migrations that have not run yet.
func (db *DB) Migrate() (SchemaChange, error) {
	var change SchemaChange
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return change, fmt.Errorf("load migrations: %w", err)
	}
	drv, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return change, fmt.Errorf("sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", drv)
	if err != nil {
		return change, fmt.Errorf("prepare migrations: %w", err)
	}

	change.From, _, err = m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return change, fmt.Errorf("read schema version: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return change, fmt.Errorf("apply migrations: %w", err)
	}
	change.To, change.Dirty, _ = m.Version()
	return change, nil
}
