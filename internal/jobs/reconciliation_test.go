package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Reconcile(ctx context.Context, filter repository.BalanceFilter) ([]inventory.Drift, int, error) {
	args := m.Called(ctx, filter)
	var drifts []inventory.Drift
	if v := args.Get(0); v != nil {
		drifts = v.([]inventory.Drift)
	}
	return drifts, args.Int(1), args.Error(2)
}

func TestRunOnce_ReportaDiferencias(t *testing.T) {
	rec := new(MockReconciler)
	drift := inventory.Drift{
		Key:      entity.BalanceKey{TenantID: "t1", LocationID: "A", SupplyID: "s1"},
		Balance:  decimal.NewFromInt(11),
		Replayed: decimal.NewFromInt(10),
	}
	rec.On("Reconcile", mock.Anything, repository.BalanceFilter{TenantID: "t1"}).
		Return([]inventory.Drift{drift}, 5, nil).Once()

	js, err := NewScheduler(rec, ReconcileConfig{Interval: time.Hour, TenantID: "t1"}, nil)
	require.NoError(t, err)
	defer js.Stop()

	assert.Equal(t, 1, js.RunOnce(context.Background()))
	rec.AssertExpectations(t)
}

func TestRunOnce_Error(t *testing.T) {
	rec := new(MockReconciler)
	rec.On("Reconcile", mock.Anything, repository.BalanceFilter{}).
		Return(nil, 0, errors.New("db down")).Once()

	js, err := NewScheduler(rec, ReconcileConfig{Interval: time.Hour}, nil)
	require.NoError(t, err)
	defer js.Stop()

	assert.Equal(t, 0, js.RunOnce(context.Background()))
	rec.AssertExpectations(t)
}

func TestRunOnce_AplicaTimeout(t *testing.T) {
	rec := new(MockReconciler)
	rec.On("Reconcile", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), mock.Anything).Return(nil, 3, nil).Once()

	js, err := NewScheduler(rec, ReconcileConfig{Interval: time.Hour, Timeout: time.Minute}, nil)
	require.NoError(t, err)
	defer js.Stop()

	assert.Equal(t, 0, js.RunOnce(context.Background()))
	rec.AssertExpectations(t)
}
