package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/smiletrip/smilecoin/internal/jobs"
	"github.com/smiletrip/smilecoin/internal/ranking"
)

// RankingWarmHandler drops ranking cache entries and recomputes the first
// page of the overall ranking so the next reader hits warm cache.
type RankingWarmHandler struct {
	rankings *ranking.Engine
	log      *slog.Logger
}

func NewRankingWarmHandler(rankings *ranking.Engine, log *slog.Logger) *RankingWarmHandler {
	return &RankingWarmHandler{rankings: rankings, log: log}
}

func (h *RankingWarmHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.RankingWarmPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		if h.log != nil {
			h.log.ErrorContext(ctx, "ranking warm: failed to decode payload",
				slog.String("task_type", t.Type()), slog.Any("error", err))
		}
		return err
	}

	limit := payload.Limit
	if limit <= 0 {
		limit = 20
	}

	if err := h.rankings.Refresh(ctx); err != nil {
		return err
	}

	page, err := h.rankings.Overall(ctx, 1, limit, nil)
	if err != nil {
		return err
	}

	if h.log != nil {
		h.log.InfoContext(ctx, "ranking cache warmed",
			slog.Int("entries", len(page.Entries)),
			slog.Int("total_items", page.TotalItems),
		)
	}

	return nil
}
