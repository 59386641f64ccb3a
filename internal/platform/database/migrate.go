package database

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Direction selects which way Migrate moves the schema.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// MigrationStatus reports the schema version after a run.
type MigrationStatus struct {
	Version uint
	Dirty   bool
	Changed bool
}

// Migrate applies the embedded SQL migrations in files to db. steps limits a
// down migration to that many versions; zero rolls everything back. The
// caller keeps ownership of db.
func Migrate(db *sql.DB, files fs.FS, dir Direction, steps int, logger *slog.Logger) (MigrationStatus, error) {
	var status MigrationStatus
	if logger == nil {
		logger = slog.Default()
	}

	src, err := iofs.New(files, ".")
	if err != nil {
		return status, fmt.Errorf("open migration source: %w", err)
	}
	defer src.Close() //nolint:errcheck // read-only embedded source

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		return status, fmt.Errorf("open migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return status, fmt.Errorf("create migrator: %w", err)
	}
	m.Log = migrateLogger{logger: logger}

	switch dir {
	case Up:
		err = m.Up()
	case Down:
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	default:
		return status, fmt.Errorf("unknown migration direction %q", dir)
	}
	switch {
	case errors.Is(err, migrate.ErrNoChange):
	case err != nil:
		return status, fmt.Errorf("migrate %s: %w", dir, err)
	default:
		status.Changed = true
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return status, fmt.Errorf("read schema version: %w", err)
	}
	status.Version = version
	status.Dirty = dirty
	return status, nil
}

type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...), "component", "migrate")
}

func (l migrateLogger) Verbose() bool {
	return false
}
