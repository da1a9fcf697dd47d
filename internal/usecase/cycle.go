package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"madangbot/internal/domain"
	"madangbot/internal/ports"

	"github.com/rs/zerolog/log"
)

type CycleReport struct {
	StartedAt          time.Time    `json:"startedAt"`
	FinishedAt         time.Time    `json:"finishedAt"`
	Worker             *Result      `json:"worker,omitempty"`
	WorkerError        string       `json:"workerError,omitempty"`
	Notifications      *ScanResult  `json:"notifications,omitempty"`
	NotificationsError string       `json:"notificationsError,omitempty"`
	NewPosts           *WatchResult `json:"newPosts,omitempty"`
	NewPostsError      string       `json:"newPostsError,omitempty"`
}

// Cycle runs worker, notification scan and new-post scan in that order.
// A failing stage never stops the next one. Overlapping runs are refused,
// both inside the process and across processes sharing Lock.
type Cycle struct {
	Worker  *Worker
	Sensor  *Sensor
	Lock    ports.RunLock
	LockTTL time.Duration

	mu sync.Mutex
}

func (c *Cycle) Run(ctx context.Context) (CycleReport, error) {
	if !c.mu.TryLock() {
		return CycleReport{}, domain.ErrCycleRunning
	}
	defer c.mu.Unlock()

	if c.Lock != nil {
		release, ok, err := c.Lock.TryAcquire(ctx, c.LockTTL)
		if err != nil {
			return CycleReport{}, fmt.Errorf("run lock: %w", err)
		}
		if !ok {
			return CycleReport{}, domain.ErrCycleRunning
		}
		defer func() {
			// released even if ctx is already cancelled
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Ctx(ctx).Warn().Err(err).Msg("release run lock")
			}
		}()
	}

	report := CycleReport{StartedAt: time.Now().UTC()}

	if err := stage(ctx, "worker", func(ctx context.Context) error {
		res, err := c.Worker.ProcessOne(ctx)
		if err == nil {
			report.Worker = &res
		}
		return err
	}); err != nil {
		report.WorkerError = err.Error()
	}

	if err := stage(ctx, "notifications", func(ctx context.Context) error {
		res, err := c.Sensor.ScanNotifications(ctx)
		report.Notifications = &res
		return err
	}); err != nil {
		report.NotificationsError = err.Error()
	}

	if err := stage(ctx, "new_posts", func(ctx context.Context) error {
		res, err := c.Sensor.ScanNewPosts(ctx)
		report.NewPosts = &res
		return err
	}); err != nil {
		report.NewPostsError = err.Error()
	}

	report.FinishedAt = time.Now().UTC()
	return report, nil
}

// stage runs fn with its own logger and turns a panic into an error.
func stage(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	logger := log.Ctx(ctx).With().Str("stage", name).Logger()
	ctx = logger.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", name, r)
		}
		if err != nil {
			logger.Error().Err(err).Msg("stage failed")
		}
	}()
	return fn(ctx)
}
