package jobs

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// Reconciler lo implementa inventory.ReconcileUseCase.
type Reconciler interface {
	Reconcile(ctx context.Context, filter repository.BalanceFilter) ([]inventory.Drift, int, error)
}

// ReconcileConfig parámetros del job de conciliación.
type ReconcileConfig struct {
	Interval time.Duration
	TenantID string        // vacío = todos los tenants
	Timeout  time.Duration // límite de cada corrida; por defecto Interval
}

// Scheduler agenda la conciliación periódica del libro contra los saldos.
type Scheduler struct {
	scheduler  gocron.Scheduler
	reconciler Reconciler
	cfg        ReconcileConfig
	log        *logger.Logger
}

// NewScheduler crea el scheduler y registra el job de conciliación.
func NewScheduler(reconciler Reconciler, cfg ReconcileConfig, log *logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	js := &Scheduler{scheduler: s, reconciler: reconciler, cfg: cfg, log: log.Named("reconcile_job")}

	_, err = s.NewJob(
		gocron.DurationJob(cfg.Interval),
		gocron.NewTask(func() { js.RunOnce(context.Background()) }),
		gocron.WithName("ledger-reconciliation"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, err
	}
	return js, nil
}

// Start inicia el scheduler.
func (js *Scheduler) Start() {
	js.log.Info().Dur("interval", js.cfg.Interval).Msg("conciliación periódica iniciada")
	js.scheduler.Start()
}

// Stop detiene el scheduler esperando la corrida en curso.
func (js *Scheduler) Stop() error {
	return js.scheduler.Shutdown()
}

// RunOnce ejecuta una conciliación y registra el resultado. Devuelve la cantidad de diferencias.
func (js *Scheduler) RunOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, js.cfg.Timeout)
	defer cancel()

	start := time.Now()
	drifts, checked, err := js.reconciler.Reconcile(ctx, repository.BalanceFilter{TenantID: js.cfg.TenantID})
	if err != nil {
		js.log.Error().Err(err).Int("checked", checked).Msg("conciliación fallida")
		return 0
	}
	ev := js.log.Info()
	if len(drifts) > 0 {
		ev = js.log.Error()
	}
	ev.Int("checked", checked).
		Int("drifts", len(drifts)).
		Dur("elapsed", time.Since(start)).
		Msg("conciliación terminada")
	return len(drifts)
}
