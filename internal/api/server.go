package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"madangbot/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type CycleRunner interface {
	Run(ctx context.Context) (usecase.CycleReport, error)
}

type Processor interface {
	ProcessOne(ctx context.Context) (usecase.Result, error)
}

type DraftPlanner interface {
	Plan(ctx context.Context, topic string) (string, error)
}

type Deps struct {
	Queue   *usecase.Queue
	Cycle   CycleRunner
	Worker  Processor
	Planner DraftPlanner
}

func NewServer(d Deps) *Server {
	s := &Server{deps: d}
	r := chi.NewRouter()

	r.Get("/health", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/run", s.runCycle)
		r.Post("/worker/process", s.processOne)
		r.Post("/drafts", s.createDraft)
		r.Route("/queue", func(r chi.Router) {
			r.Get("/stats", s.queueStats)
			r.Get("/tasks", s.listTasks)
			r.Get("/tasks/{id}", s.getTask)
			r.Delete("/tasks/{id}", s.deleteTask)
		})
	})

	s.router = r
	return s
}

type Server struct {
	deps   Deps
	router *chi.Mux
}

func (s *Server) Handler() http.Handler {
	return chainMiddleware(
		s.router,
		recoverHandler,
		requestIDHandler,
		realIPHandler,
		loggerHandler(func(w http.ResponseWriter, r *http.Request) bool { return r.URL.Path == "/health" }),
		corsHandler,
	)
}

// cycleWriteTimeout covers a POST /api/run cycle, which sleeps the reply
// cooldown between replies.
const cycleWriteTimeout = 10 * time.Minute

func (s *Server) httpServer(port int) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cycleWriteTimeout,
	}
}

// Run serves the agent API on port. Writes may take up to cycleWriteTimeout
// so a manual cycle can finish. SIGINT or SIGTERM drains in-flight requests
// for up to 30s.
func (s *Server) Run(port int) {
	httpServer := s.httpServer(port)

	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Fatal().Err(err).Msg("Server forced to shutdown")
		}

		close(done)
	}()

	log.Info().Msgf("server serving on port %d", port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Failed to listen and serve")
	}

	<-done
	log.Info().Msg("Server stopped")
}
