package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/cache"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/messaging"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/stock-ledger/internal/interfaces/http"
	"github.com/jhoicas/stock-ledger/internal/jobs"
	"github.com/jhoicas/stock-ledger/pkg/config"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	if cfg.DB.Migrate {
		if err := postgres.NewMigrator(pool, log).Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("migraciones")
		}
	}

	loc, err := cfg.Inventory.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("zona horaria del inventario")
	}

	// Caché de saldos (opcional). El motor la actualiza tras cada Commit pero nunca la consulta para decidir.
	var balanceCache inventory.BalanceCache
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("cliente Redis")
		}
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("Redis no responde; la caché fallará en caliente")
		}
		balanceCache = cache.NewRedisBalanceCache(rdb, cfg.Redis.TTL)
	}

	// Publicación de movimientos confirmados (opcional).
	var publisher inventory.MovementPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		writer := messaging.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, messaging.WriterConfig{
			MaxAttempts:  cfg.Kafka.MaxAttempts,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		})
		kp := messaging.NewKafkaMovementPublisher(writer, cfg.Inventory.NumberPrefix)
		defer func() {
			if err := kp.Close(); err != nil {
				log.Error().Err(err).Msg("cerrar productor Kafka")
			}
		}()
		publisher = kp
	}

	txRunner := postgres.NewTxRunner(pool, postgres.TxOptions{
		StatementTimeout: cfg.Inventory.StatementTimeout,
		LockTimeout:      cfg.Inventory.LockTimeout,
	}, log)
	engine := inventory.NewMovementEngine(txRunner, balanceCache, publisher, inventory.EngineConfig{
		SequenceKey:    cfg.Inventory.SequenceKey,
		NumberPrefix:   cfg.Inventory.NumberPrefix,
		Location:       loc,
		EffectsTimeout: cfg.Inventory.EffectsTimeout,
		PublishQueue:   cfg.Inventory.PublishQueue,
	}, log)

	repos := postgres.NewRepositories(pool)
	ledgerUC := inventory.NewLedgerQueryUseCase(repos.Movements, repos.Balances, balanceCache, cfg.Inventory.NumberPrefix, log)
	reconcileUC := inventory.NewReconcileUseCase(txRunner, log)

	var scheduler *jobs.Scheduler
	if cfg.Reconcile.Enabled {
		scheduler, err = jobs.NewScheduler(reconcileUC, jobs.ReconcileConfig{
			Interval: cfg.Reconcile.Interval,
			TenantID: cfg.Reconcile.TenantID,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("scheduler de conciliación")
		}
		scheduler.Start()
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Stock Ledger API",
	}))

	httpRouter.Router(app, httpRouter.RouterDeps{
		Engine:     engine,
		Ledger:     ledgerUC,
		Reconciler: reconcileUC,
		DB:         pool,
		JWTSecret:  cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}
	if scheduler != nil {
		if err := scheduler.Stop(); err != nil {
			log.Error().Err(err).Msg("detener conciliación")
		}
	}
	// Antes de cerrar el productor Kafka (defer): vacía la cola de eventos del motor.
	if err := engine.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("cerrar motor de movimientos")
	}

	log.Info().Msg("aplicación detenida")
}
