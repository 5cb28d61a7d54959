package store

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

const versionTable = "storekit_schema"

// Migrate applies migrations in order, skipping those already applied.
// Migration i (zero-based) brings the schema to version i+1; the current
// version is kept in a one-row table. Each migration runs in its own
// transaction. Safe to call repeatedly with a growing list.
func (s *Store) Migrate(ctx context.Context, migrations ...string) error {
	table := s.dialect.Quote(versionTable)
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (version INTEGER NOT NULL)", table)); err != nil {
		return fmt.Errorf("create version table: %w", err)
	}

	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for i := version; i < len(migrations); i++ {
		if err := s.migrate(ctx, i+1, migrations[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) migrate(ctx context.Context, version int, ddl string) error {
	table := s.dialect.Quote(versionTable)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate to v%d: %w", version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrate to v%d: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
		return fmt.Errorf("migrate to v%d: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, s.dialect.Rebind(fmt.Sprintf("INSERT INTO %s (version) VALUES (?)", table)), version); err != nil {
		return fmt.Errorf("migrate to v%d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate to v%d: %w", version, err)
	}
	s.log.Info("migrated", zap.Int("version", version))
	return nil
}

// SchemaVersion returns the number of applied migrations.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	q := fmt.Sprintf("SELECT MAX(version) FROM %s", s.dialect.Quote(versionTable))
	if err := s.db.QueryRowContext(ctx, q).Scan(&version); err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}
	return int(version.Int64), nil
}
