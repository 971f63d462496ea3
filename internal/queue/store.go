package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStoreUnavailable indicates the dead-task store dependency is not configured.
var ErrStoreUnavailable = errors.New("queue: store unavailable")

// DeadTask is a task that exhausted its attempt budget, parked in the
// queue_dlq table until an operator replays or discards it.
type DeadTask struct {
	ID        uuid.UUID
	Kind      string
	DedupKey  string
	Payload   []byte
	Attempts  int
	LastError *string
	CreatedAt time.Time
}

// Store persists dead tasks so they survive Redis restarts and can be
// inspected and replayed through the admin API.
type Store interface {
	AddDeadTask(ctx context.Context, task DeadTask) (uuid.UUID, error)
	GetDeadTask(ctx context.Context, id uuid.UUID) (DeadTask, error)
	RemoveDeadTask(ctx context.Context, id uuid.UUID) error
	ListDeadTasks(ctx context.Context, kind string, limit, offset int) ([]DeadTask, error)
	CountDeadTasks(ctx context.Context, kind string) (int64, error)
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const deadTaskColumns = `id, kind, idem_key, payload, attempts, last_error, created_at`

func (s *pgStore) AddDeadTask(ctx context.Context, task DeadTask) (uuid.UUID, error) {
	if s == nil || s.pool == nil {
		return uuid.Nil, ErrStoreUnavailable
	}
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `INSERT INTO queue_dlq (kind, idem_key, payload, attempts, last_error)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		task.Kind, task.DedupKey, task.Payload, task.Attempts, task.LastError).Scan(&id)
	return id, err
}

func (s *pgStore) GetDeadTask(ctx context.Context, id uuid.UUID) (DeadTask, error) {
	if s == nil || s.pool == nil {
		return DeadTask{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+deadTaskColumns+` FROM queue_dlq WHERE id = $1`, id)
	var task DeadTask
	err := row.Scan(&task.ID, &task.Kind, &task.DedupKey, &task.Payload, &task.Attempts, &task.LastError, &task.CreatedAt)
	return task, err
}

func (s *pgStore) RemoveDeadTask(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM queue_dlq WHERE id = $1`, id)
	return err
}

func (s *pgStore) ListDeadTasks(ctx context.Context, kind string, limit, offset int) ([]DeadTask, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	if limit < 1 {
		limit = 1
	} else if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	kind = strings.TrimSpace(kind)
	rows, err := s.pool.Query(ctx, `SELECT `+deadTaskColumns+` FROM queue_dlq
WHERE $1 = '' OR kind = $1
ORDER BY created_at DESC LIMIT $2 OFFSET $3`, kind, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]DeadTask, 0, limit)
	for rows.Next() {
		var task DeadTask
		if err := rows.Scan(&task.ID, &task.Kind, &task.DedupKey, &task.Payload, &task.Attempts, &task.LastError, &task.CreatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (s *pgStore) CountDeadTasks(ctx context.Context, kind string) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrStoreUnavailable
	}
	var total int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM queue_dlq WHERE $1 = '' OR kind = $1`,
		strings.TrimSpace(kind)).Scan(&total)
	return total, err
}
