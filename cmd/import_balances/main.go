// import_balances carga saldos iniciales desde un CSV como movimientos ADJUSTMENT
// con reference_type OPENING_BALANCE. Cada lote de carga comparte un reference_id.
//
// Uso: go run ./cmd/import_balances -tenant <id> -user <id> [-charset iso-8859-1] [-sep ';'] saldos.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/cache"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/postgres"
	"github.com/jhoicas/stock-ledger/pkg/config"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

func main() {
	tenantID := flag.String("tenant", "", "tenant dueño de los saldos (obligatorio)")
	userID := flag.String("user", "", "usuario que registra la carga (obligatorio)")
	charset := flag.String("charset", "utf-8", "utf-8 | iso-8859-1 | windows-1252")
	sep := flag.String("sep", ",", "separador de columnas")
	dryRun := flag.Bool("dry-run", false, "solo valida el archivo")
	flag.Parse()

	if *tenantID == "" || *userID == "" || flag.NArg() != 1 || len([]rune(*sep)) != 1 {
		flag.Usage()
		os.Exit(2)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Abrir CSV: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	rows, err := parseRows(f, *charset, []rune(*sep)[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Leer CSV: %v\n", err)
		os.Exit(1)
	}
	if *dryRun {
		fmt.Printf("%d filas válidas\n", len(rows))
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cargar configuración: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	loc, err := cfg.Inventory.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("zona horaria del inventario")
	}
	txRunner := postgres.NewTxRunner(pool, postgres.TxOptions{
		StatementTimeout: cfg.Inventory.StatementTimeout,
		LockTimeout:      cfg.Inventory.LockTimeout,
	}, log)

	// Misma caché que la API: los saldos cargados reemplazan las entradas viejas.
	var balanceCache inventory.BalanceCache
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("cliente Redis")
		}
		defer rdb.Close()
		balanceCache = cache.NewRedisBalanceCache(rdb, cfg.Redis.TTL)
	}

	engine := inventory.NewMovementEngine(txRunner, balanceCache, nil, inventory.EngineConfig{
		SequenceKey:    cfg.Inventory.SequenceKey,
		NumberPrefix:   cfg.Inventory.NumberPrefix,
		Location:       loc,
		EffectsTimeout: cfg.Inventory.EffectsTimeout,
	}, log)

	batchID := uuid.NewString()
	created, errs := importRows(ctx, engine, *tenantID, *userID, batchID, rows)
	for _, e := range errs {
		log.Error().Err(e).Msg("fila rechazada")
	}
	log.Info().
		Str("batch_id", batchID).
		Int("created", created).
		Int("rejected", len(errs)).
		Msg("carga de saldos iniciales terminada")
	if len(errs) > 0 {
		os.Exit(1)
	}
}
