package postgres

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Направления миграций.
const (
	MigrateUp   = "up"
	MigrateDown = "down"
)

// Migrate применяет (up) или откатывает (down) встроенные миграции.
// Отсутствие изменений ошибкой не считается.
func Migrate(dsn, direction string) error {
	const op = "storage.postgres.Migrate"

	if dsn == "" {
		return fmt.Errorf("%s: empty dsn", op)
	}
	if direction != MigrateUp && direction != MigrateDown {
		return fmt.Errorf("%s: direction must be up or down, got %q", op, direction)
	}

	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("%s: source: %w", op, err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _, _ = m.Close() }()

	switch direction {
	case MigrateUp:
		err = m.Up()
	case MigrateDown:
		err = m.Down()
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s: %s: %w", op, direction, err)
	}

	return nil
}
