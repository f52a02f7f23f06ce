package inventory_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// memState estado de la "base de datos" en memoria. Los catálogos son de solo lectura.
type memState struct {
	supplies  map[string]*entity.Supply
	lots      map[string]*entity.Lot
	locations map[string]*entity.Location
	balances  map[entity.BalanceKey]*entity.InventoryBalance
	movements []*entity.StockMovement
	seq       map[string]int64
	// raceKey simula que otra transacción crea la fila justo antes de nuestro INSERT.
	raceKey      *entity.BalanceKey
	raceQuantity decimal.Decimal
}

func (s *memState) clone() *memState {
	c := *s
	c.balances = make(map[entity.BalanceKey]*entity.InventoryBalance, len(s.balances))
	for k, b := range s.balances {
		cp := *b
		c.balances[k] = &cp
	}
	c.movements = append([]*entity.StockMovement(nil), s.movements...)
	c.seq = make(map[string]int64, len(s.seq))
	for k, v := range s.seq {
		c.seq[k] = v
	}
	return &c
}

// memStore serializa las transacciones con un mutex global: equivale a bloquear todas las filas.
type memStore struct {
	mu     sync.Mutex
	state  *memState
	runs   int
	failAt string // "sequence" o "movement": error de infraestructura inyectado

	// Ganchos de una sola ejecución para intercalar un Commit entre dos lecturas.
	afterBalanceGet  func() // lectura fuera de transacción (consultas)
	afterBalanceList func() // lectura dentro de RunSnapshot
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		supplies:  map[string]*entity.Supply{},
		lots:      map[string]*entity.Lot{},
		locations: map[string]*entity.Location{},
		balances:  map[entity.BalanceKey]*entity.InventoryBalance{},
		seq:       map[string]int64{},
	}}
}

func (m *memStore) addSupply(tenantID, id string, active bool) {
	m.state.supplies[id] = &entity.Supply{ID: id, TenantID: tenantID, SKU: id, Name: id, Active: active}
}

func (m *memStore) addLocation(tenantID, id string, active bool) {
	m.state.locations[id] = &entity.Location{ID: id, TenantID: tenantID, Code: id, Name: id, Active: active}
}

func (m *memStore) addLot(tenantID, supplyID, id string) {
	m.state.lots[id] = &entity.Lot{ID: id, TenantID: tenantID, SupplyID: supplyID, Code: id}
}

func (m *memStore) balance(key entity.BalanceKey) (decimal.Decimal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.state.balances[key]
	if !ok {
		return decimal.Zero, false
	}
	return b.Quantity, true
}

func (m *memStore) movementCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.movements)
}

func (m *memStore) Run(ctx context.Context, fn func(ctx context.Context, repos inventory.Repositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs++
	tx := m.state.clone()
	repos := inventory.Repositories{
		Supplies:  memSupplies{tx},
		Lots:      memLots{tx},
		Locations: memLocations{tx},
		Balances:  memBalances{tx},
		Movements: memMovements{st: tx, failAt: m.failAt},
		Sequences: memSequences{st: tx, failAt: m.failAt},
	}
	if err := fn(ctx, repos); err != nil {
		return err
	}
	m.state = tx
	return nil
}

// RunSnapshot toma una copia del estado confirmado y ejecuta fn sin retener el mutex:
// los Commit concurrentes no son visibles para fn.
func (m *memStore) RunSnapshot(ctx context.Context, fn func(ctx context.Context, repos inventory.Repositories) error) error {
	m.mu.Lock()
	snap := m.state.clone()
	hook := m.afterBalanceList
	m.afterBalanceList = nil
	m.mu.Unlock()

	return fn(ctx, inventory.Repositories{
		Supplies:  memSupplies{snap},
		Lots:      memLots{snap},
		Locations: memLocations{snap},
		Balances:  hookedBalances{BalanceRepository: memBalances{snap}, afterList: hook},
		Movements: memMovements{st: snap},
		Sequences: memSequences{st: snap},
	})
}

type hookedBalances struct {
	repository.BalanceRepository
	afterList func()
}

func (h hookedBalances) List(ctx context.Context, f repository.BalanceFilter) ([]*entity.InventoryBalance, error) {
	out, err := h.BalanceRepository.List(ctx, f)
	if h.afterList != nil {
		h.afterList()
	}
	return out, err
}

type memSupplies struct{ st *memState }

func (r memSupplies) GetByID(_ context.Context, tenantID, id string) (*entity.Supply, error) {
	s, ok := r.st.supplies[id]
	if !ok || s.TenantID != tenantID {
		return nil, nil
	}
	return s, nil
}

type memLots struct{ st *memState }

func (r memLots) GetByID(_ context.Context, tenantID, id string) (*entity.Lot, error) {
	l, ok := r.st.lots[id]
	if !ok || l.TenantID != tenantID {
		return nil, nil
	}
	return l, nil
}

type memLocations struct{ st *memState }

func (r memLocations) GetByID(_ context.Context, tenantID, id string) (*entity.Location, error) {
	l, ok := r.st.locations[id]
	if !ok || l.TenantID != tenantID {
		return nil, nil
	}
	return l, nil
}

type memBalances struct{ st *memState }

func (r memBalances) Get(_ context.Context, key entity.BalanceKey) (*entity.InventoryBalance, error) {
	b, ok := r.st.balances[key]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (r memBalances) GetForUpdate(ctx context.Context, key entity.BalanceKey) (*entity.InventoryBalance, error) {
	return r.Get(ctx, key)
}

func (r memBalances) Create(_ context.Context, b *entity.InventoryBalance) (bool, error) {
	key := b.Key()
	if r.st.raceKey != nil && *r.st.raceKey == key {
		r.st.raceKey = nil
		r.st.balances[key] = &entity.InventoryBalance{
			ID: "concurrent", TenantID: key.TenantID, LocationID: key.LocationID, SupplyID: key.SupplyID,
			LotID: key.LotID, Quantity: r.st.raceQuantity, Version: 1,
		}
		return false, nil
	}
	if _, ok := r.st.balances[key]; ok {
		return false, nil
	}
	cp := *b
	r.st.balances[key] = &cp
	return true, nil
}

func (r memBalances) UpdateQuantity(_ context.Context, b *entity.InventoryBalance, q decimal.Decimal, at time.Time) error {
	stored, ok := r.st.balances[b.Key()]
	if !ok || stored.Version != b.Version {
		return domain.ErrConflict
	}
	stored.Quantity = q
	stored.Version++
	stored.UpdatedAt = at
	*b = *stored
	return nil
}

func (r memBalances) List(_ context.Context, f repository.BalanceFilter) ([]*entity.InventoryBalance, error) {
	var out []*entity.InventoryBalance
	for _, b := range r.st.balances {
		if (f.TenantID != "" && b.TenantID != f.TenantID) || (f.LocationID != "" && b.LocationID != f.LocationID) ||
			(f.SupplyID != "" && b.SupplyID != f.SupplyID) || (f.ExcludeZero && b.Quantity.IsZero()) {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Compare(out[j].Key()) < 0 })
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

type memMovements struct {
	st     *memState
	failAt string
}

func (r memMovements) Create(_ context.Context, m *entity.StockMovement) error {
	if r.failAt == "movement" {
		return errors.New("connection reset")
	}
	r.st.movements = append(r.st.movements, m)
	return nil
}

func (r memMovements) GetByID(_ context.Context, tenantID, id string) (*entity.StockMovement, error) {
	for _, m := range r.st.movements {
		if m.ID == id && m.TenantID == tenantID {
			return m, nil
		}
	}
	return nil, nil
}

func (r memMovements) List(_ context.Context, f repository.MovementFilter) ([]*entity.StockMovement, error) {
	var out []*entity.StockMovement
	for _, m := range r.st.movements {
		if m.TenantID == f.TenantID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r memMovements) ListByBalanceKey(_ context.Context, key entity.BalanceKey) ([]*entity.StockMovement, error) {
	var out []*entity.StockMovement
	for _, m := range r.st.movements {
		if m.TenantID == key.TenantID && m.SupplyID == key.SupplyID && m.LotID == key.LotID &&
			(m.FromLocationID == key.LocationID || m.ToLocationID == key.LocationID) {
			out = append(out, m)
		}
	}
	return out, nil
}

type memSequences struct {
	st     *memState
	failAt string
}

func (r memSequences) Next(_ context.Context, tenantID string, year int, key string) (int64, error) {
	if r.failAt == "sequence" {
		return 0, errors.New("connection reset")
	}
	k := fmt.Sprintf("%s|%d|%s", tenantID, year, key)
	r.st.seq[k]++
	return r.st.seq[k], nil
}

// Vista sin transacción para los casos de uso de consulta.
func (m *memStore) movementsRepo() repository.StockMovementRepository {
	return lockedMovements{m}
}

func (m *memStore) balancesRepo() repository.BalanceRepository {
	return lockedBalances{m}
}

type lockedMovements struct{ m *memStore }

func (l lockedMovements) Create(ctx context.Context, mv *entity.StockMovement) error {
	return errors.New("solo lectura")
}

func (l lockedMovements) GetByID(ctx context.Context, tenantID, id string) (*entity.StockMovement, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	return memMovements{st: l.m.state}.GetByID(ctx, tenantID, id)
}

func (l lockedMovements) List(ctx context.Context, f repository.MovementFilter) ([]*entity.StockMovement, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	return memMovements{st: l.m.state}.List(ctx, f)
}

func (l lockedMovements) ListByBalanceKey(ctx context.Context, key entity.BalanceKey) ([]*entity.StockMovement, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	return memMovements{st: l.m.state}.ListByBalanceKey(ctx, key)
}

type lockedBalances struct{ m *memStore }

func (l lockedBalances) Get(ctx context.Context, key entity.BalanceKey) (*entity.InventoryBalance, error) {
	l.m.mu.Lock()
	b, err := memBalances{l.m.state}.Get(ctx, key)
	hook := l.m.afterBalanceGet
	l.m.afterBalanceGet = nil
	l.m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return b, err
}

func (l lockedBalances) GetForUpdate(ctx context.Context, key entity.BalanceKey) (*entity.InventoryBalance, error) {
	return nil, errors.New("solo lectura")
}

func (l lockedBalances) Create(ctx context.Context, b *entity.InventoryBalance) (bool, error) {
	return false, errors.New("solo lectura")
}

func (l lockedBalances) UpdateQuantity(ctx context.Context, b *entity.InventoryBalance, q decimal.Decimal, at time.Time) error {
	return errors.New("solo lectura")
}

func (l lockedBalances) List(ctx context.Context, f repository.BalanceFilter) ([]*entity.InventoryBalance, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	return memBalances{l.m.state}.List(ctx, f)
}

// fakeCache reproduce el contrato de la caché Redis: Set no reemplaza una versión igual o mayor.
type fakeCache struct {
	mu       sync.Mutex
	items    map[entity.BalanceKey]*entity.InventoryBalance
	sets     []entity.BalanceKey // escrituras aceptadas
	rejected int
	gets     int
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: map[entity.BalanceKey]*entity.InventoryBalance{}}
}

func (c *fakeCache) Get(_ context.Context, key entity.BalanceKey) (*entity.InventoryBalance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	b, ok := c.items[key]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (c *fakeCache) Set(ctx context.Context, b *entity.InventoryBalance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.items[b.Key()]; ok && cur.Version >= b.Version {
		c.rejected++
		return nil
	}
	cp := *b
	c.items[b.Key()] = &cp
	c.sets = append(c.sets, b.Key())
	return nil
}

func (c *fakeCache) put(b *entity.InventoryBalance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *b
	c.items[b.Key()] = &cp
}

type fakePublisher struct {
	mu        sync.Mutex
	published []*inventory.MovementResult
	err       error
	// block, si no es nil, retiene cada publicación hasta que se cierre o venza ctx.
	block chan struct{}
}

func (p *fakePublisher) PublishMovement(ctx context.Context, r *inventory.MovementResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, r)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}
