package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Scheduler calls tick right away and then every Interval. Ticks never
// overlap: a tick that runs long swallows the ticks it covers.
type Scheduler struct {
	Interval time.Duration
	tick     func(ctx context.Context)
}

func NewScheduler(interval time.Duration, tick func(ctx context.Context)) *Scheduler {
	return &Scheduler{Interval: interval, tick: tick}
}

func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		s.runTick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	logger := log.With().Str("tick_id", uuid.NewString()).Logger()
	ctx = logger.WithContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Err(fmt.Errorf("%v", r)).Msg("panic in scheduled tick")
		}
	}()
	s.tick(ctx)
}
