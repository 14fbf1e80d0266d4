package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Worker processes queued tasks. Every failure is logged centrally through
// asynq's error handler, so task handlers only return errors.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *slog.Logger
}

func NewWorker(redisOpt asynq.RedisConnOpt, queues map[string]int, concurrency int, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 5
	}
	if len(queues) == 0 {
		queues = DefaultQueues
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Queues:      queues,
		Concurrency: concurrency,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.ErrorContext(ctx, "task failed",
				slog.String("task_type", task.Type()),
				slog.Any("error", err))
		}),
	})

	return &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
		log:    log,
	}
}

func (w *Worker) RegisterHandler(taskType string, handler asynq.Handler) {
	w.mux.Handle(taskType, handler)
}

// Run blocks until Shutdown is called.
func (w *Worker) Run() error {
	w.log.Info("jobs worker started")
	return w.server.Run(w.mux)
}

func (w *Worker) Shutdown() {
	w.log.Info("jobs worker stopping")
	w.server.Shutdown()
}
