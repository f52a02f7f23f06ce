package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
)

// Pinger verifica la conexión a la base de datos (lo implementa *pgxpool.Pool).
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Engine     MovementRegistrar
	Ledger     LedgerReader
	Reconciler LedgerReconciler
	DB         Pinger
	JWTSecret  string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", healthHandler(deps.DB))

	api := app.Group("/api")

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	inv := protected.Group("/inventory")
	h := NewInventoryHandler(deps.Engine, deps.Ledger, deps.Reconciler)
	inv.Post("/movements", h.RegisterMovement)
	inv.Get("/movements", h.ListMovements)
	inv.Get("/movements/:id", h.GetMovement)
	inv.Get("/balances", h.ListBalances)
	inv.Post("/reconcile", h.Reconcile)
}

// healthHandler responde 200 si la base de datos contesta, 503 si no.
func healthHandler(db Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Code: "DB_UNAVAILABLE", Message: "base de datos no disponible"})
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}
