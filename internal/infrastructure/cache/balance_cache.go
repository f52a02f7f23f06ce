package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

var _ inventory.BalanceCache = (*RedisBalanceCache)(nil)

const keyPrefix = "stock-ledger:balance"

// DefaultTTL vida de una entrada cuando no se configura una positiva. Redis trata 0 como "sin
// expiración", que aquí no se admite.
const DefaultTTL = 5 * time.Minute

// setIfNewer escribe ARGV[1] con TTL ARGV[3] (ms) solo si la entrada no existe, es ilegible o su
// version es menor que ARGV[2]. Devuelve 1 si escribió.
var setIfNewer = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current then
	local ok, cached = pcall(cjson.decode, current)
	if ok and type(cached) == 'table' then
		local version = tonumber(cached['version'])
		if version and version >= tonumber(ARGV[2]) then
			return 0
		end
	end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// RedisBalanceCache caché de lectura de saldos en Redis. La llenan las consultas y el motor después
// de cada Commit; una entrada solo se reemplaza por otra de versión mayor.
type RedisBalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient crea el cliente. Acepta "host:port" o "redis://host:port/db".
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("REDIS_ADDR: %w", err)
		}
		if password != "" {
			opts.Password = password
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}), nil
}

// NewRedisBalanceCache construye la caché con el TTL de cada entrada. Un ttl no positivo usa DefaultTTL.
func NewRedisBalanceCache(client *redis.Client, ttl time.Duration) *RedisBalanceCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisBalanceCache{client: client, ttl: ttl}
}

// BalanceKey clave Redis de un saldo: stock-ledger:balance:{tenant}:{ubicación}:{insumo}:{lote|-}.
func BalanceKey(k entity.BalanceKey) string {
	lot := k.LotID
	if lot == "" {
		lot = "-"
	}
	return fmt.Sprintf("%s:%s:%s:%s:%s", keyPrefix, k.TenantID, k.LocationID, k.SupplyID, lot)
}

type cachedBalance struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenant_id"`
	LocationID string          `json:"location_id"`
	SupplyID   string          `json:"supply_id"`
	LotID      string          `json:"lot_id,omitempty"`
	Quantity   decimal.Decimal `json:"quantity"`
	Version    int64           `json:"version"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func encodeBalance(b *entity.InventoryBalance) ([]byte, error) {
	return json.Marshal(cachedBalance(*b))
}

func decodeBalance(data []byte) (*entity.InventoryBalance, error) {
	var c cachedBalance
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	b := entity.InventoryBalance(c)
	return &b, nil
}

// Get devuelve el saldo en caché o (nil, nil) si no está.
func (c *RedisBalanceCache) Get(ctx context.Context, key entity.BalanceKey) (*entity.InventoryBalance, error) {
	data, err := c.client.Get(ctx, BalanceKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get balance: %w", err)
	}
	b, err := decodeBalance(data)
	if err != nil {
		// Entrada ilegible: se trata como ausente.
		_ = c.client.Del(ctx, BalanceKey(key)).Err()
		return nil, nil
	}
	return b, nil
}

// Set guarda el saldo con el TTL configurado salvo que la caché ya tenga esa versión o una posterior.
func (c *RedisBalanceCache) Set(ctx context.Context, b *entity.InventoryBalance) error {
	_, err := c.SetIfNewer(ctx, b)
	return err
}

// SetIfNewer es Set e informa si la entrada se escribió.
func (c *RedisBalanceCache) SetIfNewer(ctx context.Context, b *entity.InventoryBalance) (bool, error) {
	data, err := encodeBalance(b)
	if err != nil {
		return false, fmt.Errorf("encode balance: %w", err)
	}
	ttl := c.ttl.Milliseconds()
	if ttl < 1 {
		ttl = 1
	}
	written, err := setIfNewer.Run(ctx, c.client, []string{BalanceKey(b.Key())}, data, b.Version, ttl).Int()
	if err != nil {
		return false, fmt.Errorf("redis set balance: %w", err)
	}
	return written == 1, nil
}
