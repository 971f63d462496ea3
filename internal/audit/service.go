package audit

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-pasar/internal/common"
)

// Actor describes who performed an audited action.
type Actor struct {
	ID    string
	Roles []string
}

// Entry is one persisted audit record.
type Entry struct {
	ID         int64     `json:"id"`
	ActorID    string    `json:"actorId"`
	ActorRoles string    `json:"actorRoles"`
	Action     string    `json:"action"`
	Entity     string    `json:"entity"`
	EntityID   string    `json:"entityId"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int32     `json:"statusCode"`
	RequestID  string    `json:"requestId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store defines the database operations required for auditing.
type Store interface {
	InsertAuditLog(ctx context.Context, entry Entry) (int64, error)
	ListAuditLogs(ctx context.Context, entity string, limit, offset int) ([]Entry, error)
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

func (s *pgStore) InsertAuditLog(ctx context.Context, entry Entry) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `INSERT INTO audit_log (actor_id, actor_roles, action, entity, entity_id, method, path, status_code, request_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		entry.ActorID, entry.ActorRoles, entry.Action, entry.Entity, entry.EntityID,
		entry.Method, entry.Path, entry.StatusCode, entry.RequestID).Scan(&id)
	return id, err
}

func (s *pgStore) ListAuditLogs(ctx context.Context, entity string, limit, offset int) ([]Entry, error) {
	entity = strings.TrimSpace(entity)
	query := `SELECT id, actor_id, actor_roles, action, entity, entity_id, method, path, status_code, request_id, created_at
FROM audit_log ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	args := []any{limit, offset}
	if entity != "" {
		query = `SELECT id, actor_id, actor_roles, action, entity, entity_id, method, path, status_code, request_id, created_at
FROM audit_log WHERE entity = $3 ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		args = append(args, entity)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorRoles, &e.Action, &e.Entity, &e.EntityID,
			&e.Method, &e.Path, &e.StatusCode, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Service persists audit entries for administrative mutations.
type Service struct {
	Store        Store
	Enabled      bool
	SamplingRate float64
}

// Record persists one audit entry when auditing is enabled.
func (s Service) Record(ctx context.Context, actor Actor, action, entity, entityID string, req *http.Request, status int) error {
	if !s.Enabled {
		return nil
	}
	if s.SamplingRate > 0 && s.SamplingRate < 1 {
		if rand.Float64() > s.SamplingRate {
			return nil
		}
	}
	if req == nil {
		return errors.New("audit: request is required")
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}

	if status == 0 {
		status = http.StatusOK
	}
	actorID := strings.TrimSpace(actor.ID)
	if actorID == "" {
		actorID = "anonymous"
	}

	_, err := s.Store.InsertAuditLog(ctx, Entry{
		ActorID:    actorID,
		ActorRoles: strings.Join(actor.Roles, ","),
		Action:     buildAction(action, req.Method, req.URL.Path),
		Entity:     buildEntity(entity, req.URL.Path),
		EntityID:   strings.TrimSpace(entityID),
		Method:     req.Method,
		Path:       req.URL.Path,
		StatusCode: int32(status),
		RequestID:  req.Header.Get("X-Request-ID"),
	})
	return err
}

// ActorFromContext derives the acting customer from gateway headers.
func ActorFromContext(ctx context.Context) Actor {
	id, _ := common.CustomerID(ctx)
	return Actor{ID: id, Roles: common.Roles(ctx)}
}

func buildAction(action, method, path string) string {
	trimmed := strings.TrimSpace(action)
	if trimmed != "" {
		return trimmed
	}
	if path == "" {
		path = "/"
	}
	return strings.ToUpper(method) + " " + path
}

func buildEntity(entity, path string) string {
	trimmed := strings.TrimSpace(entity)
	if trimmed != "" {
		return trimmed
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) >= 3 && segments[0] == "api" && segments[1] == "v1" {
		return strings.Join(segments[2:], ".")
	}
	if len(segments) == 0 || segments[0] == "" {
		return "unknown"
	}
	return strings.Join(segments, ".")
}
