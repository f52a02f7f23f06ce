package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

var tracer = otel.Tracer("stock-ledger/inventory")

// DefaultSequenceKey clave del consecutivo de movimientos.
const DefaultSequenceKey = "stock_movement"

const (
	defaultEffectsTimeout = 3 * time.Second
	defaultPublishQueue   = 1024
)

// EngineConfig parámetros del motor de movimientos.
type EngineConfig struct {
	SequenceKey  string         // clave del consecutivo; por defecto DefaultSequenceKey
	NumberPrefix string         // prefijo del número legible; por defecto DefaultNumberPrefix
	Location     *time.Location // zona horaria que define el año del consecutivo; por defecto UTC
	Now          func() time.Time
	// EffectsTimeout límite de cada efecto posterior al Commit (escritura en caché, publicación).
	EffectsTimeout time.Duration
	// PublishQueue capacidad de la cola de eventos pendientes de publicar.
	PublishQueue int
}

// MovementInputDTO entrada para registrar un movimiento de inventario.
// TenantID y UserID los inyecta el llamador (token). IDs vacíos = no informado.
type MovementInputDTO struct {
	TenantID             string
	UserID               string
	Type                 string
	SupplyID             string
	LotID                string
	FromLocationID       string
	ToLocationID         string
	Quantity             decimal.Decimal
	PresentationID       string
	PresentationQuantity *decimal.Decimal
	ReferenceType        string
	ReferenceID          string
	Note                 string
}

// normalize valida el formato de los IDs y los deja en forma canónica, así dos clientes que
// escriben el mismo UUID con distinto formato tocan la misma clave de saldo.
func (in MovementInputDTO) normalize() (MovementInputDTO, error) {
	if in.TenantID == "" {
		return in, domain.NewValidationError("tenant_id", "requerido")
	}
	err := normalizeIDs(
		idField{"tenant_id", &in.TenantID},
		idField{"user_id", &in.UserID},
		idField{"supply_id", &in.SupplyID},
		idField{"lot_id", &in.LotID},
		idField{"from_location_id", &in.FromLocationID},
		idField{"to_location_id", &in.ToLocationID},
		idField{"presentation_id", &in.PresentationID},
	)
	return in, err
}

func (in MovementInputDTO) shape() inventory.Shape {
	return inventory.Shape{
		Type:                 in.Type,
		SupplyID:             in.SupplyID,
		LotID:                in.LotID,
		FromLocationID:       in.FromLocationID,
		ToLocationID:         in.ToLocationID,
		Quantity:             in.Quantity,
		PresentationID:       in.PresentationID,
		PresentationQuantity: in.PresentationQuantity,
		ReferenceType:        in.ReferenceType,
		ReferenceID:          in.ReferenceID,
	}
}

// MovementResult movimiento creado y saldos resultantes de origen y destino (si aplican).
type MovementResult struct {
	Movement    *entity.StockMovement
	FromBalance *entity.InventoryBalance
	ToBalance   *entity.InventoryBalance
}

// MovementEngine registra movimientos (IN, OUT, TRANSFER, ADJUSTMENT) en una sola transacción:
// valida, resuelve entidades, bloquea saldos (SELECT FOR UPDATE en orden canónico), actualiza saldos,
// asigna consecutivo y guarda el movimiento. Cualquier error hace Rollback; no hay reintentos internos.
type MovementEngine struct {
	txRunner  TxRunner
	cache     BalanceCache
	publisher MovementPublisher
	cfg       EngineConfig
	log       *logger.Logger

	// Cola de publicación: un único worker conserva el orden de Commit.
	mu      sync.RWMutex
	closed  bool
	pending chan pendingEvent
	done    chan struct{}
}

type pendingEvent struct {
	ctx    context.Context
	result *MovementResult
}

// NewMovementEngine construye el motor. cache y publisher son opcionales (nil).
// Con publisher, el motor arranca un worker de publicación que se detiene con Close.
func NewMovementEngine(
	txRunner TxRunner,
	cache BalanceCache,
	publisher MovementPublisher,
	cfg EngineConfig,
	log *logger.Logger,
) *MovementEngine {
	if cfg.SequenceKey == "" {
		cfg.SequenceKey = DefaultSequenceKey
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.EffectsTimeout <= 0 {
		cfg.EffectsTimeout = defaultEffectsTimeout
	}
	if cfg.PublishQueue <= 0 {
		cfg.PublishQueue = defaultPublishQueue
	}
	if log == nil {
		log = logger.Nop()
	}
	e := &MovementEngine{
		txRunner:  txRunner,
		cache:     cache,
		publisher: publisher,
		cfg:       cfg,
		log:       log.Named("movement_engine"),
	}
	if publisher != nil {
		e.pending = make(chan pendingEvent, cfg.PublishQueue)
		e.done = make(chan struct{})
		go e.publishLoop()
	}
	return e
}

// Close deja de aceptar eventos y espera a que se publiquen los encolados o a que venza ctx.
func (e *MovementEngine) Close(ctx context.Context) error {
	if e.pending == nil {
		return nil
	}
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.pending)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("eventos pendientes sin publicar: %w", ctx.Err())
	}
}

// Register abre una transacción propia, aplica el movimiento y hace Commit o Rollback.
// Tras el Commit escribe los saldos nuevos en la caché y encola el evento del movimiento.
func (e *MovementEngine) Register(ctx context.Context, input MovementInputDTO) (*MovementResult, error) {
	ctx, span := tracer.Start(ctx, "inventory.register_movement", trace.WithAttributes(
		attribute.String("tenant.id", input.TenantID),
		attribute.String("movement.type", input.Type),
		attribute.String("supply.id", input.SupplyID),
	))
	defer span.End()

	input, err := input.normalize()
	if err == nil {
		err = inventory.ValidateShape(input.shape())
	}
	if err != nil {
		e.logAborted(input, err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var result *MovementResult
	err = e.txRunner.Run(ctx, func(ctx context.Context, repos Repositories) error {
		r, err := e.apply(ctx, repos, input)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		e.logAborted(input, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("movement.id", result.Movement.ID),
		attribute.Int64("movement.number", result.Movement.Number),
	)
	e.log.Debug().
		Str("tenant_id", input.TenantID).
		Str("movement_id", result.Movement.ID).
		Int64("number", result.Movement.Number).
		Int("number_year", result.Movement.NumberYear).
		Str("type", input.Type).
		Str("quantity", input.Quantity.String()).
		Msg("movimiento registrado")

	e.NotifyCommitted(ctx, result)
	return result, nil
}

// RegisterInTx aplica el movimiento usando los repositorios de una transacción del llamador
// (p. ej. la contabilización de un pedido). El llamador hace Commit/Rollback y, tras el Commit,
// debe invocar NotifyCommitted.
func (e *MovementEngine) RegisterInTx(ctx context.Context, repos Repositories, input MovementInputDTO) (*MovementResult, error) {
	input, err := input.normalize()
	if err != nil {
		return nil, err
	}
	if err := inventory.ValidateShape(input.shape()); err != nil {
		return nil, err
	}
	return e.apply(ctx, repos, input)
}

// NotifyCommitted ejecuta los efectos posteriores al Commit. Los fallos se registran y no se propagan:
// el movimiento ya es definitivo, por eso los efectos no se cortan si el llamador cancela ctx.
// La caché se actualiza antes de volver; la publicación queda encolada.
func (e *MovementEngine) NotifyCommitted(ctx context.Context, result *MovementResult) {
	if result == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if e.cache != nil {
		cacheCtx, cancel := context.WithTimeout(ctx, e.cfg.EffectsTimeout)
		for _, b := range []*entity.InventoryBalance{result.FromBalance, result.ToBalance} {
			if b == nil {
				continue
			}
			if err := e.cache.Set(cacheCtx, b); err != nil {
				e.log.Warn().Err(err).
					Str("movement_id", result.Movement.ID).
					Str("balance_id", b.ID).
					Int64("version", b.Version).
					Msg("actualizar caché de saldos")
			}
		}
		cancel()
	}
	if e.pending != nil {
		e.enqueue(ctx, result)
	}
}

func (e *MovementEngine) enqueue(ctx context.Context, result *MovementResult) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.log.Error().Str("movement_id", result.Movement.ID).Msg("motor cerrado, evento no publicado")
		return
	}
	select {
	case e.pending <- pendingEvent{ctx: ctx, result: result}:
	default:
		e.log.Error().
			Str("movement_id", result.Movement.ID).
			Int("queue", cap(e.pending)).
			Msg("cola de publicación llena, evento no publicado")
	}
}

func (e *MovementEngine) publishLoop() {
	defer close(e.done)
	for ev := range e.pending {
		ctx, cancel := context.WithTimeout(ev.ctx, e.cfg.EffectsTimeout)
		if err := e.publisher.PublishMovement(ctx, ev.result); err != nil {
			e.log.Warn().Err(err).Str("movement_id", ev.result.Movement.ID).Msg("publicar movimiento")
		}
		cancel()
	}
}

// apply: RESOLVE_ENTITIES → LOCK_BALANCES → UPDATE_BALANCES → ALLOCATE_SEQUENCE → RECORD_MOVEMENT.
func (e *MovementEngine) apply(ctx context.Context, repos Repositories, input MovementInputDTO) (*MovementResult, error) {
	if err := e.resolveEntities(ctx, repos, input); err != nil {
		return nil, err
	}

	deltas := inventory.PlanDeltas(input.TenantID, input.LotID, input.shape())
	locked, err := e.lockBalances(ctx, repos.Balances, deltas)
	if err != nil {
		return nil, err
	}

	now := e.cfg.Now()
	balances, err := e.updateBalances(ctx, repos.Balances, deltas, locked, now)
	if err != nil {
		return nil, err
	}

	year := now.In(e.cfg.Location).Year()
	number, err := repos.Sequences.Next(ctx, input.TenantID, year, e.cfg.SequenceKey)
	if err != nil {
		return nil, err
	}

	mov := &entity.StockMovement{
		ID:                   uuid.New().String(),
		TenantID:             input.TenantID,
		Number:               number,
		NumberYear:           year,
		Type:                 input.Type,
		SupplyID:             input.SupplyID,
		LotID:                input.LotID,
		FromLocationID:       input.FromLocationID,
		ToLocationID:         input.ToLocationID,
		Quantity:             input.Quantity,
		PresentationID:       input.PresentationID,
		PresentationQuantity: input.PresentationQuantity,
		ReferenceType:        input.ReferenceType,
		ReferenceID:          input.ReferenceID,
		Note:                 input.Note,
		CreatedBy:            input.UserID,
		CreatedAt:            now,
	}
	if err := repos.Movements.Create(ctx, mov); err != nil {
		return nil, err
	}

	result := &MovementResult{Movement: mov}
	for i, d := range deltas {
		if d.Side == inventory.SideSource {
			result.FromBalance = balances[i]
		} else {
			result.ToBalance = balances[i]
		}
	}
	return result, nil
}

// resolveEntities valida insumo, lote y ubicaciones antes de tomar cualquier bloqueo.
func (e *MovementEngine) resolveEntities(ctx context.Context, repos Repositories, input MovementInputDTO) error {
	supply, err := repos.Supplies.GetByID(ctx, input.TenantID, input.SupplyID)
	if err != nil {
		return err
	}
	if supply == nil || supply.TenantID != input.TenantID || !supply.Active {
		return domain.NewNotFoundError("supply", input.SupplyID)
	}

	if input.LotID != "" {
		lot, err := repos.Lots.GetByID(ctx, input.TenantID, input.LotID)
		if err != nil {
			return err
		}
		if lot == nil || lot.TenantID != input.TenantID || lot.SupplyID != input.SupplyID {
			return domain.NewNotFoundError("lot", input.LotID)
		}
	}

	// El origen puede estar inactivo (vaciar una bodega que cierra); el destino no.
	if input.FromLocationID != "" {
		from, err := repos.Locations.GetByID(ctx, input.TenantID, input.FromLocationID)
		if err != nil {
			return err
		}
		if from == nil || from.TenantID != input.TenantID {
			return domain.NewNotFoundError("from_location", input.FromLocationID)
		}
	}
	if input.ToLocationID != "" {
		to, err := repos.Locations.GetByID(ctx, input.TenantID, input.ToLocationID)
		if err != nil {
			return err
		}
		if to == nil || to.TenantID != input.TenantID || !to.Active {
			return domain.NewNotFoundError("to_location", input.ToLocationID)
		}
	}
	return nil
}

// lockBalances bloquea las filas existentes en el orden de deltas (canónico). El resultado queda
// alineado con deltas; nil si la fila aún no existe.
func (e *MovementEngine) lockBalances(ctx context.Context, repo repository.BalanceRepository, deltas []inventory.Delta) ([]*entity.InventoryBalance, error) {
	locked := make([]*entity.InventoryBalance, len(deltas))
	for i, d := range deltas {
		b, err := repo.GetForUpdate(ctx, d.Key)
		if err != nil {
			return nil, err
		}
		locked[i] = b
	}
	return locked, nil
}

// updateBalances calcula todos los saldos nuevos con los bloqueos tomados y, solo si ninguno queda
// negativo, los persiste: crea la fila (versión 1) o la actualiza incrementando la versión.
func (e *MovementEngine) updateBalances(
	ctx context.Context,
	repo repository.BalanceRepository,
	deltas []inventory.Delta,
	locked []*entity.InventoryBalance,
	now time.Time,
) ([]*entity.InventoryBalance, error) {
	next := make([]decimal.Decimal, len(deltas))
	for i, d := range deltas {
		current := decimal.Zero
		if locked[i] != nil {
			current = locked[i].Quantity
		}
		q, ok := inventory.ApplyDelta(current, d.Amount)
		if !ok {
			return nil, insufficientStock(d, current)
		}
		if !inventory.WithinCapacity(q) {
			return nil, capacityExceeded(d)
		}
		next[i] = q
	}

	out := make([]*entity.InventoryBalance, len(deltas))
	for i, d := range deltas {
		if b := locked[i]; b != nil {
			if err := repo.UpdateQuantity(ctx, b, next[i], now); err != nil {
				return nil, err
			}
			out[i] = b
			continue
		}

		b := &entity.InventoryBalance{
			ID:         uuid.New().String(),
			TenantID:   d.Key.TenantID,
			LocationID: d.Key.LocationID,
			SupplyID:   d.Key.SupplyID,
			LotID:      d.Key.LotID,
			Quantity:   next[i],
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		created, err := repo.Create(ctx, b)
		if err != nil {
			return nil, err
		}
		if !created {
			// Otra transacción creó la clave después de nuestro SELECT FOR UPDATE: se bloquea su fila y se recalcula.
			existing, err := repo.GetForUpdate(ctx, d.Key)
			if err != nil {
				return nil, err
			}
			if existing == nil {
				return nil, fmt.Errorf("saldo %s/%s/%s: creación concurrente sin fila visible: %w",
					d.Key.LocationID, d.Key.SupplyID, d.Key.LotID, domain.ErrConflict)
			}
			q, ok := inventory.ApplyDelta(existing.Quantity, d.Amount)
			if !ok {
				return nil, insufficientStock(d, existing.Quantity)
			}
			if !inventory.WithinCapacity(q) {
				return nil, capacityExceeded(d)
			}
			if err := repo.UpdateQuantity(ctx, existing, q, now); err != nil {
				return nil, err
			}
			b = existing
		}
		out[i] = b
	}
	return out, nil
}

func insufficientStock(d inventory.Delta, available decimal.Decimal) error {
	return &domain.InsufficientStockError{
		LocationID: d.Key.LocationID,
		SupplyID:   d.Key.SupplyID,
		LotID:      d.Key.LotID,
		Available:  available,
		Requested:  d.Amount.Neg(),
	}
}

func capacityExceeded(d inventory.Delta) error {
	return domain.NewValidationError("quantity",
		fmt.Sprintf("el saldo resultante en %s superaría %s", d.Key.LocationID, inventory.MaxQuantity))
}

func (e *MovementEngine) logAborted(input MovementInputDTO, err error) {
	var ev = e.log.Error()
	if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) {
		ev = e.log.Warn()
	}
	ev.Err(err).
		Str("tenant_id", input.TenantID).
		Str("type", input.Type).
		Str("supply_id", input.SupplyID).
		Str("quantity", input.Quantity.String()).
		Msg("movimiento abortado")
}
