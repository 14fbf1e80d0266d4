package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// TaskTypeRankingWarm re-primes the first page of the overall ranking
	// after dropping stale entries. Purely an optimization: correctness
	// relies on TTL expiry, not on this task running.
	TaskTypeRankingWarm = "ranking:warm"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// DefaultQueues is the worker's queue priority map.
var DefaultQueues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

type RankingWarmPayload struct {
	Limit int `json:"limit"`
}

func NewRankingWarmTask(limit int) (*asynq.Task, error) {
	payload, err := json.Marshal(RankingWarmPayload{Limit: limit})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeRankingWarm, payload, asynq.Queue(QueueLow)), nil
}
