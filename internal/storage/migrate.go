package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SchemaVersion is the newest migration shipped with the binary.
const SchemaVersion uint = 2

// RunMigrations brings the database at dbPath up to SchemaVersion.
// fresh reports whether the database had no schema before this run, which is
// the only situation in which first-run seeding is allowed.
func RunMigrations(dbPath string) (fresh bool, err error) {
	return migrateTo(dbPath, 0)
}

// migrateTo migrates to target, or all the way up when target is 0.
func migrateTo(dbPath string, target uint) (bool, error) {
	// Create a separate connection for migrations to avoid interfering with the main connection
	migrateDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return false, fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	driver, err := sqlite.WithInstance(migrateDB, &sqlite.Config{})
	if err != nil {
		return false, fmt.Errorf("create sqlite driver: %w", err)
	}

	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return false, fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "sqlite", driver)
	if err != nil {
		return false, fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	fresh := false
	if _, dirty, err := m.Version(); errors.Is(err, migrate.ErrNilVersion) {
		fresh = true
	} else if err != nil {
		return false, fmt.Errorf("read schema version: %w", err)
	} else if dirty {
		return false, fmt.Errorf("schema is dirty, manual repair needed")
	}

	if target == 0 {
		err = m.Up()
	} else {
		err = m.Migrate(target)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return false, fmt.Errorf("run migrations: %w", err)
	}

	return fresh, nil
}
