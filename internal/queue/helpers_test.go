package queue

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// memStore is an in-memory Store for worker and admin handler tests.
type memStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]DeadTask
}

func newMemStore() *memStore {
	return &memStore{tasks: map[uuid.UUID]DeadTask{}}
}

func (s *memStore) AddDeadTask(_ context.Context, task DeadTask) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task.ID = uuid.New()
	s.tasks[task.ID] = task
	return task.ID, nil
}

func (s *memStore) GetDeadTask(_ context.Context, id uuid.UUID) (DeadTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return DeadTask{}, pgx.ErrNoRows
	}
	return task, nil
}

func (s *memStore) RemoveDeadTask(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	return nil
}

func (s *memStore) ListDeadTasks(_ context.Context, kind string, limit, offset int) ([]DeadTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DeadTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		if kind != "" && task.Kind != kind {
			continue
		}
		out = append(out, task)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) CountDeadTasks(_ context.Context, kind string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, task := range s.tasks {
		if kind == "" || task.Kind == kind {
			n++
		}
	}
	return n, nil
}

func (s *memStore) all() []DeadTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DeadTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		out = append(out, task)
	}
	return out
}
