package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

func TestBalanceKey(t *testing.T) {
	assert.Equal(t, "stock-ledger:balance:t1:A:s1:-",
		BalanceKey(entity.BalanceKey{TenantID: "t1", LocationID: "A", SupplyID: "s1"}))
	assert.Equal(t, "stock-ledger:balance:t1:A:s1:l1",
		BalanceKey(entity.BalanceKey{TenantID: "t1", LocationID: "A", SupplyID: "s1", LotID: "l1"}))
}

func TestEncodeDecodeBalance(t *testing.T) {
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	in := &entity.InventoryBalance{
		ID: "b1", TenantID: "t1", LocationID: "A", SupplyID: "s1", LotID: "l1",
		Quantity: decimal.RequireFromString("12.3456"), Version: 9, CreatedAt: now, UpdatedAt: now,
	}
	data, err := encodeBalance(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"quantity":"12.3456"`)

	out, err := decodeBalance(data)
	require.NoError(t, err)
	assert.True(t, out.Quantity.Equal(in.Quantity))
	assert.Equal(t, in.Key(), out.Key())
	assert.Equal(t, int64(9), out.Version)
	assert.True(t, out.UpdatedAt.Equal(now))
}

func TestNewRedisClient_URL(t *testing.T) {
	c, err := NewRedisClient("redis://cache:6380/2", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", c.Options().Addr)
	assert.Equal(t, 2, c.Options().DB)

	_, err = NewRedisClient("redis://cache:6380/no-db", "", 0)
	assert.Error(t, err)
}

func TestRedisBalanceCache_ErrorDeConexion(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	c := NewRedisBalanceCache(client, time.Minute)

	_, err := c.Get(context.Background(), entity.BalanceKey{TenantID: "t1", LocationID: "A", SupplyID: "s1"})
	assert.Error(t, err)
	err = c.Set(context.Background(), &entity.InventoryBalance{TenantID: "t1", LocationID: "A", SupplyID: "s1", Version: 1})
	assert.Error(t, err)
}

func TestNewRedisBalanceCache_TTLSiemprePositivo(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	assert.Equal(t, DefaultTTL, NewRedisBalanceCache(client, 0).ttl)
	assert.Equal(t, DefaultTTL, NewRedisBalanceCache(client, -time.Second).ttl)
	assert.Equal(t, 30*time.Second, NewRedisBalanceCache(client, 30*time.Second).ttl)
}

// Requiere un Redis real: TEST_REDIS_ADDR=localhost:6379 go test ./internal/infrastructure/cache/...
func TestRedisBalanceCache_NoReemplazaVersionMasNueva(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR no definido")
	}
	client, err := NewRedisClient(addr, "", 0)
	require.NoError(t, err)
	defer client.Close()
	ctx := context.Background()
	c := NewRedisBalanceCache(client, time.Minute)

	key := entity.BalanceKey{TenantID: uuid.NewString(), LocationID: uuid.NewString(), SupplyID: uuid.NewString()}
	balance := func(q string, version int64) *entity.InventoryBalance {
		return &entity.InventoryBalance{
			ID: "b1", TenantID: key.TenantID, LocationID: key.LocationID, SupplyID: key.SupplyID,
			Quantity: decimal.RequireFromString(q), Version: version,
		}
	}
	t.Cleanup(func() { client.Del(ctx, BalanceKey(key)) })

	written, err := c.SetIfNewer(ctx, balance("70", 2))
	require.NoError(t, err)
	assert.True(t, written)

	// Lectura tomada antes del Commit que llega tarde: no debe pisar la versión 2.
	written, err = c.SetIfNewer(ctx, balance("100", 1))
	require.NoError(t, err)
	assert.False(t, written)

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "70", got.Quantity.String())
	assert.Equal(t, int64(2), got.Version)

	ttl, err := client.PTTL(ctx, BalanceKey(key)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	written, err = c.SetIfNewer(ctx, balance("65", 3))
	require.NoError(t, err)
	assert.True(t, written)

	// Una entrada ilegible se reemplaza.
	require.NoError(t, client.Set(ctx, BalanceKey(key), "{", time.Minute).Err())
	written, err = c.SetIfNewer(ctx, balance("65", 3))
	require.NoError(t, err)
	assert.True(t, written)
}
