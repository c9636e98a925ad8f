package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()

// droppedOnForceReset lists every table BringUpToDate's migrations create,
// in FK-safe drop order. Kept in sync by hand since FORCE_RESET_DB is a
// debug-only escape hatch, not a migration itself.
var droppedOnForceReset = []string{
	"bookmarks",
	"finished_reading_sessions",
	"reading_sessions",
	"sessions",
	"logs",
	"jobs",
	"media_metadata",
	"media",
	"series",
	"libraries",
	"bun_migrations",
	"bun_migration_locks",
}

// BringUpToDate runs all pending migrations. When forceReset is true (only
// honored by the caller in the debug profile) it
// drops every table this module owns first, so the full migration chain
// reapplies against an empty database.
func BringUpToDate(ctx context.Context, db *bun.DB, forceReset bool) (*migrate.MigrationGroup, error) {
	if forceReset {
		for _, table := range droppedOnForceReset {
			if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
				return nil, errors.Wrapf(err, "failed to drop table %s for force reset", table)
			}
		}
	}

	migrator := migrate.NewMigrator(db, Migrations)
	err := migrator.Init(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return group, nil
}
