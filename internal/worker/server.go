package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Server bundles the asynq worker and the scheduler that feeds it the
// periodic sweep. Both run on the same Redis the broadcast channel uses.
type Server struct {
	srv       *asynq.Server
	scheduler *asynq.Scheduler
	handler   *SweepHandler

	sweepEvery     string
	staleAfter     time.Duration
	emptyRoomAfter time.Duration
}

func NewServer(redisOpt asynq.RedisClientOpt, handler *SweepHandler, sweepEvery string, staleAfter, emptyRoomAfter time.Duration) *Server {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 2,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retry, _ := asynq.GetRetryCount(ctx)
			slog.Error("worker task failed", "type", task.Type(), "retry", retry, "err", err)
		}),
	})
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})

	return &Server{
		srv:            srv,
		scheduler:      scheduler,
		handler:        handler,
		sweepEvery:     sweepEvery,
		staleAfter:     staleAfter,
		emptyRoomAfter: emptyRoomAfter,
	}
}

// Start registers handlers and the periodic sweep, then runs the worker.
// Call from its own goroutine.
func (s *Server) Start() error {
	task, err := NewRoomSweepTask(s.staleAfter, s.emptyRoomAfter)
	if err != nil {
		return err
	}
	if _, err := s.scheduler.Register(s.sweepEvery, task); err != nil {
		return err
	}
	go func() {
		if err := s.scheduler.Run(); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			slog.Error("worker scheduler stopped", "err", err)
		}
	}()

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeRoomSweep, s.handler.ProcessTask)

	slog.Info("worker starting", "sweep_every", s.sweepEvery)
	if err := s.srv.Run(mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown() {
	s.scheduler.Shutdown()
	s.srv.Shutdown()
}
