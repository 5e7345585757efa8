package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations
var migrations embed.FS

func migrationSource(driver string) (source.Driver, error) {
	src, err := iofs.New(migrations, "migrations/"+driver)
	if err != nil {
		return nil, fmt.Errorf("loading %s migrations: %w", driver, err)
	}
	return src, nil
}

// migrateSQLite applies the sqlite schema on an already open db.
// The migrate instance is not closed since that would close db.
func migrateSQLite(db *sql.DB, log *zap.Logger) error {
	src, err := migrationSource("sqlite")
	if err != nil {
		return err
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	return up(m, log)
}

// migratePostgres opens its own connection through the pgx5 driver.
func migratePostgres(dsn string, log *zap.Logger) error {
	src, err := migrationSource("postgres")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, pgx5URL(dsn))
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	defer m.Close()
	return up(m, log)
}

func up(m *migrate.Migrate, log *zap.Logger) error {
	log.Info("applying database migrations")
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("migration version: %w", err)
	}
	log.Info("database migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

func pgx5URL(dsn string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, scheme) {
			return "pgx5://" + strings.TrimPrefix(dsn, scheme)
		}
	}
	return dsn
}
