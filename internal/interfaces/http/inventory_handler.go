package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// MovementRegistrar registra movimientos (lo implementa *inventory.MovementEngine).
type MovementRegistrar interface {
	RegisterMovementFromRequest(ctx context.Context, tenantID, userID string, in dto.RegisterMovementRequest) (*dto.MovementResultResponse, error)
}

// LedgerReader consultas de solo lectura sobre el libro (lo implementa *inventory.LedgerQueryUseCase).
type LedgerReader interface {
	GetMovement(ctx context.Context, tenantID, id string) (*dto.MovementResponse, error)
	ListMovements(ctx context.Context, tenantID string, q dto.ListMovementsQuery) ([]dto.MovementResponse, error)
	GetBalance(ctx context.Context, key entity.BalanceKey) (*dto.BalanceResponse, error)
	ListBalances(ctx context.Context, tenantID string, q dto.ListBalancesQuery) ([]dto.BalanceResponse, error)
}

// LedgerReconciler compara saldos contra el libro (lo implementa *inventory.ReconcileUseCase).
type LedgerReconciler interface {
	ReconcileResponse(ctx context.Context, filter repository.BalanceFilter) (*dto.ReconcileResponse, error)
}

// InventoryHandler maneja las peticiones HTTP de movimientos y saldos (protegido).
type InventoryHandler struct {
	engine     MovementRegistrar
	ledger     LedgerReader
	reconciler LedgerReconciler
}

// NewInventoryHandler construye el handler.
func NewInventoryHandler(engine MovementRegistrar, ledger LedgerReader, reconciler LedgerReconciler) *InventoryHandler {
	return &InventoryHandler{engine: engine, ledger: ledger, reconciler: reconciler}
}

// RegisterMovement godoc
// @Summary      Registrar movimiento de inventario
// @Description  IN requiere to_location_id, OUT from_location_id, TRANSFER ambas (distintas), ADJUSTMENT una de las dos.
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body      dto.RegisterMovementRequest  true  "type, supply_id, quantity, ubicaciones"
// @Success      201   {object}  dto.MovementResultResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/inventory/movements [post]
func (h *InventoryHandler) RegisterMovement(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	userID := GetUserID(c)
	if tenantID == "" || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var in dto.RegisterMovementRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	out, err := h.engine.RegisterMovementFromRequest(c.UserContext(), tenantID, userID, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// GetMovement godoc
// @Summary      Obtener movimiento por ID
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        id   path      string  true  "ID del movimiento"
// @Success      200  {object}  dto.MovementResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/inventory/movements/{id} [get]
func (h *InventoryHandler) GetMovement(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	out, err := h.ledger.GetMovement(c.UserContext(), tenantID, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}

// ListMovements godoc
// @Summary      Listar movimientos del libro
// @Description  Más recientes primero. from/to en RFC3339.
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        location_id     query  string  false  "Origen o destino"
// @Param        supply_id       query  string  false  "Insumo"
// @Param        lot_id          query  string  false  "Lote"
// @Param        type            query  string  false  "IN, OUT, TRANSFER, ADJUSTMENT"
// @Param        reference_type  query  string  false  "Tipo de documento origen"
// @Param        reference_id    query  string  false  "ID de documento origen"
// @Param        from            query  string  false  "Desde (RFC3339)"
// @Param        to              query  string  false  "Hasta (RFC3339)"
// @Param        limit           query  int     false  "Máximo 100"
// @Param        offset          query  int     false  "Desplazamiento"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/inventory/movements [get]
func (h *InventoryHandler) ListMovements(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	q := dto.ListMovementsQuery{
		LocationID:    c.Query("location_id"),
		SupplyID:      c.Query("supply_id"),
		LotID:         c.Query("lot_id"),
		Type:          c.Query("type"),
		ReferenceType: c.Query("reference_type"),
		ReferenceID:   c.Query("reference_id"),
		From:          c.Query("from"),
		To:            c.Query("to"),
		PageRequest:   dto.PageRequest{Limit: c.QueryInt("limit", 20), Offset: c.QueryInt("offset", 0)},
	}
	list, err := h.ledger.ListMovements(c.UserContext(), tenantID, q)
	if err != nil {
		return writeError(c, err)
	}
	q.DefaultPage()
	return c.JSON(fiber.Map{
		"items": list,
		"page":  dto.PageResponse{Limit: q.Limit, Offset: q.Offset},
	})
}

// ListBalances godoc
// @Summary      Consultar saldos
// @Description  Con location_id y supply_id devuelve el saldo exacto de esa clave (cero si no hay fila); sin ellos lista.
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        location_id   query  string  false  "Ubicación"
// @Param        supply_id     query  string  false  "Insumo"
// @Param        lot_id        query  string  false  "Lote"
// @Param        exclude_zero  query  bool    false  "Omitir saldos en cero"
// @Param        limit         query  int     false  "Máximo 100"
// @Param        offset        query  int     false  "Desplazamiento"
// @Success      200  {object}  map[string]interface{}
// @Router       /api/inventory/balances [get]
func (h *InventoryHandler) ListBalances(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	locationID := c.Query("location_id")
	supplyID := c.Query("supply_id")
	lotID := c.Query("lot_id")

	if locationID != "" && supplyID != "" {
		out, err := h.ledger.GetBalance(c.UserContext(), entity.BalanceKey{
			TenantID:   tenantID,
			LocationID: locationID,
			SupplyID:   supplyID,
			LotID:      lotID,
		})
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(out)
	}

	q := dto.ListBalancesQuery{
		LocationID:  locationID,
		SupplyID:    supplyID,
		LotID:       lotID,
		ExcludeZero: c.QueryBool("exclude_zero", false),
		PageRequest: dto.PageRequest{Limit: c.QueryInt("limit", 20), Offset: c.QueryInt("offset", 0)},
	}
	list, err := h.ledger.ListBalances(c.UserContext(), tenantID, q)
	if err != nil {
		return writeError(c, err)
	}
	q.DefaultPage()
	return c.JSON(fiber.Map{
		"items": list,
		"page":  dto.PageResponse{Limit: q.Limit, Offset: q.Offset},
	})
}

// Reconcile godoc
// @Summary      Conciliar saldos contra el libro
// @Description  Reconstruye cada saldo del tenant desde sus movimientos y reporta diferencias. No corrige nada.
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        location_id  query  string  false  "Limitar a una ubicación"
// @Param        supply_id    query  string  false  "Limitar a un insumo"
// @Success      200  {object}  dto.ReconcileResponse
// @Failure      500  {object}  dto.ErrorResponse
// @Router       /api/inventory/reconcile [post]
func (h *InventoryHandler) Reconcile(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	out, err := h.reconciler.ReconcileResponse(c.UserContext(), repository.BalanceFilter{
		TenantID:   tenantID,
		LocationID: c.Query("location_id"),
		SupplyID:   c.Query("supply_id"),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}
