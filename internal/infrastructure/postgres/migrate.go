package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stock-ledger/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLockID clave del advisory lock que serializa migraciones entre réplicas.
const migrationLockID = 7_314_002

// Migrator aplica las migraciones embebidas en orden de nombre, una vez cada una.
type Migrator struct {
	db  TxBeginner
	fs  fs.FS
	log *logger.Logger
}

// NewMigrator usa las migraciones embebidas en el binario.
func NewMigrator(db TxBeginner, log *logger.Logger) *Migrator {
	if log == nil {
		log = logger.Nop()
	}
	sub, _ := fs.Sub(migrationsFS, "migrations")
	return &Migrator{db: db, fs: sub, log: log.Named("migrate")}
}

// Migrate aplica las migraciones pendientes. Cada archivo corre en su propia transacción.
func (m *Migrator) Migrate(ctx context.Context) error {
	names, err := fs.Glob(m.fs, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := fs.ReadFile(m.fs, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		applied, err := m.apply(ctx, name, string(body))
		if err != nil {
			return err
		}
		if applied {
			m.log.Info().Str("migration", name).Msg("migración aplicada")
		}
	}
	return nil
}

func (m *Migrator) apply(ctx context.Context, name, body string) (bool, error) {
	tx, err := m.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin migration %s: %w", name, err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", int64(migrationLockID)); err != nil {
		return false, fmt.Errorf("lock migrations: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return false, fmt.Errorf("create schema_migrations: %w", err)
	}
	tag, err := tx.Exec(ctx, "INSERT INTO schema_migrations (name) VALUES ($1) ON CONFLICT (name) DO NOTHING", name)
	if err != nil {
		return false, fmt.Errorf("register migration %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if _, err := tx.Exec(ctx, body); err != nil {
		return false, fmt.Errorf("apply migration %s: %w", name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit migration %s: %w", name, err)
	}
	return true, nil
}
