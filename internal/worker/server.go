package worker

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"madangbot/internal/app"
	"madangbot/internal/config"
	"madangbot/internal/domain"

	"github.com/rs/zerolog/log"
)

type Config struct {
	Interval      time.Duration
	DraftInterval time.Duration
}

func Run(cfg Config) error {
	appCfg := config.MustLoad()
	appCfg.App.SetupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, appCfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Interval <= 0 {
		cfg.Interval = appCfg.Worker.Interval
	}
	if cfg.DraftInterval <= 0 {
		cfg.DraftInterval = appCfg.Worker.DraftInterval
	}

	if cfg.DraftInterval > 0 {
		drafts := NewScheduler(cfg.DraftInterval, func(ctx context.Context) {
			if id, planned, err := a.Planner.PlanIfIdle(ctx); err != nil {
				log.Ctx(ctx).Error().Err(err).Msg("draft planning failed")
			} else if planned {
				log.Ctx(ctx).Info().Str("task_id", id).Msg("draft queued by timer")
			}
		})
		go drafts.Run(ctx)
	}

	cycles := NewScheduler(cfg.Interval, func(ctx context.Context) {
		report, err := a.Cycle.Run(ctx)
		if errors.Is(err, domain.ErrCycleRunning) {
			log.Ctx(ctx).Info().Msg("previous cycle still running, skipping")
			return
		}
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("cycle failed")
			return
		}
		log.Ctx(ctx).Info().Interface("report", report).Msg("cycle finished")
	})

	log.Info().Dur("interval", cfg.Interval).Msg("worker started")
	cycles.Run(ctx)
	log.Info().Msg("worker stopped")
	return nil
}
