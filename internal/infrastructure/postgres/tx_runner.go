package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

var tracer = otel.Tracer("stock-ledger/postgres")

// Ensure TxRunner implements inventory.TxRunner and inventory.SnapshotRunner.
var (
	_ inventory.TxRunner       = (*TxRunner)(nil)
	_ inventory.SnapshotRunner = (*TxRunner)(nil)
)

var (
	writeTx    = pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}
	snapshotTx = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
)

// TxOptions límites de cada transacción del motor.
type TxOptions struct {
	StatementTimeout time.Duration
	LockTimeout      time.Duration
}

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL: READ COMMITTED para escribir,
// REPEATABLE READ de solo lectura para leer una instantánea consistente.
type TxRunner struct {
	db   TxBeginner
	opts TxOptions
	log  *logger.Logger
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(db TxBeginner, opts TxOptions, log *logger.Logger) *TxRunner {
	if log == nil {
		log = logger.Nop()
	}
	return &TxRunner{db: db, opts: opts, log: log.Named("tx_runner")}
}

// Run inicia una transacción, fija los timeouts locales, ejecuta fn con repos atados a la tx
// y hace Commit o Rollback. Un lock_timeout agotado se reporta como domain.ErrConflict.
func (r *TxRunner) Run(ctx context.Context, fn func(ctx context.Context, repos inventory.Repositories) error) error {
	return r.traced(ctx, writeTx, fn)
}

// RunSnapshot ejecuta fn en una transacción REPEATABLE READ de solo lectura: todas sus consultas
// ven el mismo estado confirmado. No toma bloqueos de fila.
func (r *TxRunner) RunSnapshot(ctx context.Context, fn func(ctx context.Context, repos inventory.Repositories) error) error {
	return r.traced(ctx, snapshotTx, fn)
}

func (r *TxRunner) traced(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context, repos inventory.Repositories) error) error {
	ctx, span := tracer.Start(ctx, "transaction", trace.WithAttributes(
		attribute.String("tx.isolation", string(opts.IsoLevel)),
		attribute.String("tx.access_mode", string(opts.AccessMode)),
	))
	defer span.End()

	err := r.run(ctx, opts, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *TxRunner) run(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context, repos inventory.Repositories) error) error {
	tx, err := r.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		// Contexto propio: el Rollback debe completarse aunque ctx esté cancelado.
		if rbErr := tx.Rollback(context.Background()); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			r.log.Error().Err(rbErr).Msg("rollback")
		}
	}()

	if r.opts.StatementTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", r.opts.StatementTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}
	if r.opts.LockTimeout > 0 && opts.AccessMode != pgx.ReadOnly {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.opts.LockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("set lock_timeout: %w", err)
		}
	}

	if err := fn(ctx, NewRepositories(tx)); err != nil {
		if isLockTimeout(err) {
			return fmt.Errorf("%w: tiempo de espera agotado por bloqueo de saldo: %v", domain.ErrConflict, err)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// NewRepositories arma los repositorios sobre un Querier (pool o tx).
func NewRepositories(q Querier) inventory.Repositories {
	return inventory.Repositories{
		Supplies:  NewSupplyRepository(q),
		Lots:      NewLotRepository(q),
		Locations: NewLocationRepository(q),
		Balances:  NewBalanceRepository(q),
		Movements: NewStockMovementRepository(q),
		Sequences: NewSequenceRepository(q),
	}
}
