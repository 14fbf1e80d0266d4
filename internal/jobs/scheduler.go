package jobs

import (
	"log/slog"

	"github.com/hibiken/asynq"
)

// Scheduler enqueues recurring tasks on cron schedules.
type Scheduler struct {
	sched *asynq.Scheduler
	log   *slog.Logger
}

func NewScheduler(redisOpt asynq.RedisConnOpt, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}

	return &Scheduler{
		sched: asynq.NewScheduler(redisOpt, nil),
		log:   log,
	}
}

// RegisterTasks binds the recurring ranking warm to its cron expression.
func (s *Scheduler) RegisterTasks(rankingWarmCron string, warmLimit int) error {
	task, err := NewRankingWarmTask(warmLimit)
	if err != nil {
		return err
	}

	entryID, err := s.sched.Register(rankingWarmCron, task)
	if err != nil {
		return err
	}

	s.log.Info("scheduled ranking warm",
		slog.String("cron", rankingWarmCron),
		slog.String("entry_id", entryID))

	return nil
}

// Run starts the scheduling loop in the background.
func (s *Scheduler) Run() {
	go func() {
		if err := s.sched.Run(); err != nil {
			s.log.Error("scheduler stopped", slog.Any("error", err))
		}
	}()
}

func (s *Scheduler) Shutdown() {
	s.sched.Shutdown()
}
