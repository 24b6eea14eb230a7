package migrate

import (
	"context"
	"fmt"

	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"gatehouse/migrations"
)

// baselineSteps lists the table each migration creates, in version order.
var baselineSteps = []struct {
	version int64
	table   string
}{
	{1, "users"},
	{2, "oauth_attempts"},
}

// Apply runs any pending SQL migrations bundled with the binary.
func Apply(ctx context.Context, db *sqlx.DB, logger *slog.Logger) error {
	goose.SetBaseFS(migrations.Files)
	goose.SetLogger(gooseSlogLogger{logger: logger})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migrate: set goose dialect: %w", err)
	}

	if err := bootstrapBaseline(ctx, db, logger); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, db.DB, "."); err != nil {
		return fmt.Errorf("migrate: goose up: %w", err)
	}

	return nil
}

// bootstrapBaseline records migrations whose tables were created before goose
// tracked this database, so Up does not try to create them again.
func bootstrapBaseline(ctx context.Context, db *sqlx.DB, logger *slog.Logger) error {
	baseline, err := baselineVersion(ctx, func(ctx context.Context, table string) (bool, error) {
		return tableExists(ctx, db, table)
	})
	if err != nil {
		return fmt.Errorf("migrate: check existing tables: %w", err)
	}
	if baseline == 0 {
		return nil
	}

	if _, err := goose.EnsureDBVersionContext(ctx, db.DB); err != nil {
		return fmt.Errorf("migrate: ensure goose table: %w", err)
	}
	current, err := goose.GetDBVersionContext(ctx, db.DB)
	if err != nil {
		return fmt.Errorf("migrate: check goose version: %w", err)
	}
	if current != 0 {
		return nil
	}

	query := fmt.Sprintf(`INSERT INTO %s (version_id, is_applied) VALUES ($1, TRUE)`, goose.TableName())
	for version := int64(1); version <= baseline; version++ {
		if _, err := db.ExecContext(ctx, query, version); err != nil {
			return fmt.Errorf("migrate: record baseline version %d: %w", version, err)
		}
	}
	if logger != nil {
		logger.Info("goose baseline recorded", "version", baseline)
	}
	return nil
}

// baselineVersion returns the highest migration version whose table exists
// along with the tables of every earlier version. Zero means a fresh database.
func baselineVersion(ctx context.Context, exists func(context.Context, string) (bool, error)) (int64, error) {
	var baseline int64
	for _, step := range baselineSteps {
		ok, err := exists(ctx, step.table)
		if err != nil {
			return 0, fmt.Errorf("table %s: %w", step.table, err)
		}
		if !ok {
			break
		}
		baseline = step.version
	}
	return baseline, nil
}

func tableExists(ctx context.Context, db *sqlx.DB, table string) (bool, error) {
	var exists bool
	err := db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM pg_tables WHERE schemaname = current_schema() AND tablename = $1)`,
		table,
	)
	return exists, err
}
