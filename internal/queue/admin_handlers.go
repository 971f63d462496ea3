package queue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pasar/internal/common"
)

// AdminHandler exposes the operational endpoints for the task queue: dead
// task inspection, replay, and depth statistics.
type AdminHandler struct {
	Store             Store
	Queue             Enqueuer
	DefaultKind       string
	Logger            zerolog.Logger
	VisibilityTimeout time.Duration
}

type deadTaskView struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"`
	DedupKey  string    `json:"dedupKey,omitempty"`
	Attempts  int       `json:"attempts"`
	LastError *string   `json:"lastError,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type replayPayload struct {
	IDs  []uuid.UUID `json:"ids"`
	Kind string      `json:"kind"`
}

// ListDLQ returns dead tasks, newest first, optionally filtered by kind.
func (h *AdminHandler) ListDLQ(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	page, perPage := common.ParsePagination(r, 50)
	offset := (page - 1) * perPage

	tasks, err := h.Store.ListDeadTasks(r.Context(), kind, perPage, offset)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list dead tasks", nil)
		return
	}
	total, err := h.Store.CountDeadTasks(r.Context(), kind)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to count dead tasks", nil)
		return
	}
	h.refreshDeadGauge(r.Context(), kind, total)

	items := make([]deadTaskView, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, deadTaskView{
			ID:        t.ID,
			Kind:      t.Kind,
			DedupKey:  t.DedupKey,
			Attempts:  t.Attempts,
			LastError: t.LastError,
			CreatedAt: t.CreatedAt,
		})
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": items,
		"meta": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(total)},
	})
}

// ReplayDLQ re-enqueues dead tasks either by explicit id or in bulk by kind.
// A replayed task keeps its payload and runs with a fresh attempt budget.
func (h *AdminHandler) ReplayDLQ(w http.ResponseWriter, r *http.Request) {
	var req replayPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid replay request", nil)
		return
	}
	if len(req.IDs) == 0 && req.Kind == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "ids or kind required", nil)
		return
	}

	replayed := 0
	if len(req.IDs) > 0 {
		for _, id := range req.IDs {
			task, err := h.Store.GetDeadTask(r.Context(), id)
			if err != nil {
				continue
			}
			if err := h.replayOne(r.Context(), task); err == nil {
				replayed++
			}
		}
	} else {
		batch, err := h.Store.ListDeadTasks(r.Context(), req.Kind, 100, 0)
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load dead tasks", nil)
			return
		}
		for _, task := range batch {
			if err := h.replayOne(r.Context(), task); err == nil {
				replayed++
			}
		}
	}

	if req.Kind != "" {
		if total, err := h.Store.CountDeadTasks(r.Context(), req.Kind); err == nil {
			h.refreshDeadGauge(r.Context(), req.Kind, total)
		}
	}
	common.JSON(w, http.StatusOK, map[string]any{"replayed": replayed})
}

func (h *AdminHandler) replayOne(ctx context.Context, dead DeadTask) error {
	msg, err := decodeEnvelope(string(dead.Payload))
	if err != nil {
		return err
	}
	task := Task{
		Kind:        msg.Kind,
		Payload:     msg.Payload,
		MaxAttempts: msg.MaxAttempts,
	}
	if err := h.Queue.Enqueue(ctx, task); err != nil {
		h.Logger.Error().Err(err).Str("id", dead.ID.String()).Msg("replay enqueue failed")
		return err
	}
	if err := h.Store.RemoveDeadTask(ctx, dead.ID); err != nil {
		h.Logger.Error().Err(err).Str("id", dead.ID.String()).Msg("replayed task not removed from dead store")
		return err
	}
	h.Logger.Info().Str("id", dead.ID.String()).Str("kind", dead.Kind).Msg("dead task replayed")
	return nil
}

// Stats reports queue depth per state plus dead task totals.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = h.DefaultKind
	}
	ks := keyspace{prefix: h.Queue.Prefix}

	ready, err := h.Queue.R.ZCard(r.Context(), ks.ready(kind)).Result()
	if err != nil && !errors.Is(err, context.Canceled) {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "queue unavailable", nil)
		return
	}
	processing, _ := h.Queue.R.ZCard(r.Context(), ks.processing(kind)).Result()
	dead, _ := h.Store.CountDeadTasks(r.Context(), kind)

	var oldestLag time.Duration
	if entries, err := h.Queue.R.ZRangeWithScores(r.Context(), ks.ready(kind), 0, 0).Result(); err == nil && len(entries) > 0 {
		due := time.Unix(0, int64(entries[0].Score))
		if lag := time.Since(due); lag > 0 {
			oldestLag = lag
		}
	}

	Depth.WithLabelValues(queueLabel(kind)).Set(float64(ready))
	h.refreshDeadGauge(r.Context(), kind, dead)

	common.JSON(w, http.StatusOK, map[string]any{
		"kind":              kind,
		"ready":             ready,
		"processing":        processing,
		"dead":              dead,
		"oldestLagSeconds":  oldestLag.Seconds(),
		"visibilityTimeout": h.VisibilityTimeout.String(),
	})
}

func (h *AdminHandler) refreshDeadGauge(_ context.Context, kind string, total int64) {
	if kind == "" {
		return
	}
	DeadSize.WithLabelValues(queueLabel(kind)).Set(float64(total))
}