// Package app wires configuration into the queue, worker, sensor and cycle.
package app

import (
	"context"
	"fmt"

	"madangbot/internal/config"
	"madangbot/internal/infra/gemini"
	"madangbot/internal/infra/notify"
	"madangbot/internal/infra/platform"
	"madangbot/internal/infra/postgres"
	"madangbot/internal/infra/redisq"
	"madangbot/internal/ports"
	"madangbot/internal/usecase"

	"github.com/rs/zerolog/log"
)

const cycleLockName = "cycle"

type App struct {
	Cfg     *config.Config
	Queue   *usecase.Queue
	Worker  *usecase.Worker
	Sensor  *usecase.Sensor
	Cycle   *usecase.Cycle
	Planner *usecase.Planner

	closers []func()
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type stores struct {
	tasks   ports.TaskStore
	cursors ports.CursorStore
	lock    ports.RunLock
	creds   ports.CredentialSource
}

// New connects every backend named by cfg. Close releases them.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Cfg: cfg}

	st, err := a.openStores(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	pc, err := platform.New(cfg.Platform)
	if err != nil {
		a.Close()
		return nil, err
	}

	gen, err := gemini.New(ctx, cfg.Gemini)
	if err != nil {
		a.Close()
		return nil, err
	}

	var notifier ports.Notifier
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Notify)
	}

	a.wire(st, pc, gen, notifier)
	return a, nil
}

// wire builds the use cases on top of opened stores and clients.
func (a *App) wire(st stores, pc ports.Platform, gen ports.Generator, notifier ports.Notifier) {
	cfg := a.Cfg
	creds := usecase.CredentialChain{}
	if st.creds != nil {
		creds = append(creds, st.creds)
	}
	creds = append(creds, usecase.StaticCredential{AgentID: cfg.Agent.ID, Name: cfg.Agent.Name, APIKey: cfg.Agent.APIKey})

	a.Queue = usecase.NewQueue(st.tasks)
	a.Worker = &usecase.Worker{
		Queue:             a.Queue,
		Credentials:       creds,
		Publisher:         pc,
		Generator:         gen,
		Notifier:          notifier,
		ClaimLease:        cfg.Worker.ClaimLease,
		RateLimitCooldown: cfg.Worker.RateLimitCooldown,
		CallTimeout:       cfg.Platform.Timeout,
		GenerateTimeout:   cfg.Gemini.Budget(),
	}
	a.Sensor = &usecase.Sensor{
		Queue:             a.Queue,
		Credentials:       creds,
		Notifications:     pc,
		Posts:             pc,
		Publisher:         pc,
		Generator:         gen,
		Notifier:          notifier,
		Cursors:           st.cursors,
		NotificationLimit: cfg.Worker.NotificationLimit,
		PostLimit:         cfg.Worker.PostLimit,
		EngageProbability: cfg.Worker.EngageProbability,
		ReplyCooldown:     cfg.Worker.ReplyCooldown,
		CallTimeout:       cfg.Platform.Timeout,
		GenerateTimeout:   cfg.Gemini.Budget(),
	}
	a.Cycle = &usecase.Cycle{
		Worker:  a.Worker,
		Sensor:  a.Sensor,
		Lock:    st.lock,
		LockTTL: cfg.Worker.LockTTL,
	}
	a.Planner = &usecase.Planner{
		Queue:       a.Queue,
		Credentials: creds,
		Generator:   gen,
		Topics:      cfg.App.Topics,
		Submadang:   cfg.Worker.DefaultSubmadang,
		CallTimeout: cfg.Gemini.Budget(),
	}
}

func (a *App) openStores(ctx context.Context) (stores, error) {
	switch a.Cfg.Store.Backend {
	case "postgres":
		pool, err := postgres.Connect(ctx, a.Cfg.Postgres.DSN)
		if err != nil {
			return stores{}, err
		}
		a.closers = append(a.closers, pool.Close)
		if err := postgres.Migrate(ctx, pool); err != nil {
			return stores{}, err
		}
		log.Ctx(ctx).Info().Msg("using postgres store")
		return stores{
			tasks:   postgres.NewTaskStore(pool),
			cursors: postgres.NewCursorStore(pool),
			lock:    postgres.NewAdvisoryLock(pool, cycleLockName),
			creds:   postgres.NewCredentialStore(pool),
		}, nil
	case "redis":
		cli, err := redisq.New(a.Cfg.Redis)
		if err != nil {
			return stores{}, err
		}
		a.closers = append(a.closers, func() { _ = cli.Close() })
		if err := cli.Connect(ctx); err != nil {
			return stores{}, err
		}
		st := stores{
			tasks:   cli,
			cursors: redisq.NewCursorStore(cli),
			lock:    redisq.NewLock(cli, cycleLockName),
		}
		// credentials still live in postgres when a DSN is configured
		if a.Cfg.Postgres.DSN != "" {
			pool, err := postgres.Connect(ctx, a.Cfg.Postgres.DSN)
			if err != nil {
				return stores{}, err
			}
			a.closers = append(a.closers, pool.Close)
			if err := postgres.Migrate(ctx, pool); err != nil {
				return stores{}, err
			}
			st.creds = postgres.NewCredentialStore(pool)
		}
		log.Ctx(ctx).Info().Msg("using redis store")
		return st, nil
	default:
		return stores{}, fmt.Errorf("unknown store backend %q", a.Cfg.Store.Backend)
	}
}
