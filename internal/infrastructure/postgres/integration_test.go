package postgres_test

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/postgres"
	"github.com/jhoicas/stock-ledger/pkg/config"
)

// TestLedger_PostgreSQL corre contra una base real. Se omite si TEST_DATABASE_URL no está definido.
func TestLedger_PostgreSQL(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL no definido")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := postgres.NewPool(ctx, config.DBConfig{DatabaseURL: dsn, MaxConns: 16})
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, postgres.NewMigrator(pool, nil).Migrate(ctx))

	tenantID, supplyID, locA, locB := uuid.NewString(), uuid.NewString(), uuid.NewString(), uuid.NewString()
	_, err = pool.Exec(ctx, `INSERT INTO supplies (id, tenant_id, sku, name) VALUES ($1, $2, 'HAR-001', 'Harina')`, supplyID, tenantID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO locations (id, tenant_id, code, name) VALUES ($1, $2, 'A', 'Bodega A'), ($3, $2, 'B', 'Bodega B')`, locA, tenantID, locB)
	require.NoError(t, err)

	runner := postgres.NewTxRunner(pool, postgres.TxOptions{StatementTimeout: 5 * time.Second, LockTimeout: 3 * time.Second}, nil)
	engine := inventory.NewMovementEngine(runner, nil, nil, inventory.EngineConfig{}, nil)

	register := func(typ, from, to, qty string) (*inventory.MovementResult, error) {
		return engine.Register(ctx, inventory.MovementInputDTO{
			TenantID:       tenantID,
			UserID:         uuid.NewString(),
			Type:           typ,
			SupplyID:       supplyID,
			FromLocationID: from,
			ToLocationID:   to,
			Quantity:       decimal.RequireFromString(qty),
		})
	}

	res, err := register(entity.MovementTypeIN, "", locA, "10")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Movement.Number)

	t.Run("salidas concurrentes no dejan saldo negativo", func(t *testing.T) {
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			ok      int
			numbers []int64
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r, err := register(entity.MovementTypeOUT, locA, "", "3")
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					ok++
					numbers = append(numbers, r.Movement.Number)
					return
				}
				assert.True(t, errors.Is(err, domain.ErrInsufficientStock), err)
			}()
		}
		wg.Wait()

		assert.Equal(t, 3, ok)
		sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
		assert.Equal(t, []int64{2, 3, 4}, numbers)

		b, err := postgres.NewRepositories(pool).Balances.Get(ctx, entity.BalanceKey{TenantID: tenantID, LocationID: locA, SupplyID: supplyID})
		require.NoError(t, err)
		require.NotNil(t, b)
		assert.True(t, decimal.NewFromInt(1).Equal(b.Quantity), b.Quantity.String())
	})

	t.Run("traslado atómico y libro inmutable", func(t *testing.T) {
		res, err := register(entity.MovementTypeTRANSFER, locA, locB, "1")
		require.NoError(t, err)
		require.NotNil(t, res.FromBalance)
		require.NotNil(t, res.ToBalance)
		assert.True(t, res.FromBalance.Quantity.IsZero())
		assert.True(t, decimal.NewFromInt(1).Equal(res.ToBalance.Quantity))

		_, err = pool.Exec(ctx, `UPDATE stock_movements SET quantity = 99 WHERE id = $1`, res.Movement.ID)
		assert.Error(t, err)
	})

	balance := func(t *testing.T, location string) *entity.InventoryBalance {
		t.Helper()
		b, err := postgres.NewRepositories(pool).Balances.Get(ctx, entity.BalanceKey{TenantID: tenantID, LocationID: location, SupplyID: supplyID})
		require.NoError(t, err)
		require.NotNil(t, b)
		return b
	}

	// Con orden de bloqueo inconsistente, A→B y B→A simultáneos terminan en deadlock (40P01).
	t.Run("traslados cruzados concurrentes sin deadlock", func(t *testing.T) {
		_, err := register(entity.MovementTypeIN, "", locA, "50")
		require.NoError(t, err)
		_, err = register(entity.MovementTypeIN, "", locB, "50")
		require.NoError(t, err)
		before := balance(t, locA).Quantity.Add(balance(t, locB).Quantity)

		var wg sync.WaitGroup
		errs := make(chan error, 20)
		for i := 0; i < 20; i++ {
			from, to := locA, locB
			if i%2 == 1 {
				from, to = locB, locA
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := register(entity.MovementTypeTRANSFER, from, to, "1"); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}

		after := balance(t, locA).Quantity.Add(balance(t, locB).Quantity)
		assert.True(t, before.Equal(after), "antes %s, después %s", before, after)
	})

	t.Run("creación concurrente del mismo saldo", func(t *testing.T) {
		locC := uuid.NewString()
		_, err := pool.Exec(ctx, `INSERT INTO locations (id, tenant_id, code, name) VALUES ($1, $2, 'C', 'Bodega C')`, locC, tenantID)
		require.NoError(t, err)

		const n = 10
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := register(entity.MovementTypeIN, "", locC, "2"); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}

		b := balance(t, locC)
		assert.True(t, decimal.NewFromInt(2*n).Equal(b.Quantity), b.Quantity.String())
		assert.Equal(t, int64(n), b.Version)
	})

	t.Run("conciliación sobre instantánea", func(t *testing.T) {
		drifts, checked, err := inventory.NewReconcileUseCase(runner, nil).Reconcile(ctx, repository.BalanceFilter{TenantID: tenantID})
		require.NoError(t, err)
		assert.Equal(t, 3, checked)
		assert.Empty(t, drifts)
	})
}
