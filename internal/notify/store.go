package notify

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-pasar/internal/events"
)

// ErrStoreUnavailable indicates the webhook store dependency is not configured.
var ErrStoreUnavailable = errors.New("notify: store unavailable")

// Store defines the persistence operations webhook delivery requires.
type Store interface {
	CreateEndpoint(ctx context.Context, ep Endpoint) (Endpoint, error)
	UpdateEndpoint(ctx context.Context, ep Endpoint) (Endpoint, error)
	GetEndpoint(ctx context.Context, id string) (Endpoint, error)
	ListEndpoints(ctx context.Context, limit, offset int) ([]Endpoint, error)
	DeleteEndpoint(ctx context.Context, id string) error
	ListActiveEndpointsForTopic(ctx context.Context, topic string) ([]Endpoint, error)

	EnqueueDelivery(ctx context.Context, endpointID string, eventID int64, maxAttempt int32) (Delivery, error)
	GetDelivery(ctx context.Context, id string) (Delivery, error)
	MarkDelivering(ctx context.Context, id string) error
	MarkDelivered(ctx context.Context, id string, responseStatus int32) error
	MarkFailedWithBackoff(ctx context.Context, id string, delaySec int32, lastError string) error
	MoveToDLQ(ctx context.Context, id string, lastError string) error
	ResetDeliveryForReplay(ctx context.Context, id string) (Delivery, error)
	ListDeliveries(ctx context.Context, endpointID string, limit, offset int) ([]Delivery, error)

	GetDomainEvent(ctx context.Context, id int64) (events.Event, error)
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const endpointColumns = `id, url, secret, topics, active, created_at`

func (s *pgStore) CreateEndpoint(ctx context.Context, ep Endpoint) (Endpoint, error) {
	if s == nil || s.pool == nil {
		return Endpoint{}, ErrStoreUnavailable
	}
	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO webhook_endpoints (id, url, secret, topics, active)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+endpointColumns, ep.ID, ep.URL, ep.Secret, ep.Topics, ep.Active)
	return scanEndpoint(row)
}

func (s *pgStore) UpdateEndpoint(ctx context.Context, ep Endpoint) (Endpoint, error) {
	if s == nil || s.pool == nil {
		return Endpoint{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `UPDATE webhook_endpoints
SET url = $2, secret = $3, topics = $4, active = $5
WHERE id = $1
RETURNING `+endpointColumns, ep.ID, ep.URL, ep.Secret, ep.Topics, ep.Active)
	return scanEndpoint(row)
}

func (s *pgStore) GetEndpoint(ctx context.Context, id string) (Endpoint, error) {
	if s == nil || s.pool == nil {
		return Endpoint{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints WHERE id = $1`, id)
	return scanEndpoint(row)
}

func (s *pgStore) ListEndpoints(ctx context.Context, limit, offset int) ([]Endpoint, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pool.Query(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEndpoints(rows)
}

func (s *pgStore) DeleteEndpoint(ctx context.Context, id string) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM webhook_endpoints WHERE id = $1`, id)
	return err
}

func (s *pgStore) ListActiveEndpointsForTopic(ctx context.Context, topic string) ([]Endpoint, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints
WHERE active AND (topics = '{}' OR $1 = ANY (topics))`, topic)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEndpoints(rows)
}

const deliveryColumns = `id, endpoint_id, event_id, status, attempt, max_attempt, next_attempt_at, last_error, response_status, created_at, updated_at`

func (s *pgStore) EnqueueDelivery(ctx context.Context, endpointID string, eventID int64, maxAttempt int32) (Delivery, error) {
	if s == nil || s.pool == nil {
		return Delivery{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO webhook_deliveries (id, endpoint_id, event_id, status, max_attempt)
VALUES ($1, $2, $3, 'pending', $4)
ON CONFLICT (endpoint_id, event_id) DO NOTHING
RETURNING `+deliveryColumns, uuid.NewString(), endpointID, eventID, maxAttempt)
	del, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Delivery{}, ErrDuplicateDelivery
	}
	return del, err
}

// ErrDuplicateDelivery marks an endpoint/event pair that is already scheduled.
var ErrDuplicateDelivery = errors.New("notify: delivery already scheduled")

func (s *pgStore) GetDelivery(ctx context.Context, id string) (Delivery, error) {
	if s == nil || s.pool == nil {
		return Delivery{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = $1`, id)
	return scanDelivery(row)
}

func (s *pgStore) MarkDelivering(ctx context.Context, id string) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `UPDATE webhook_deliveries
SET status = 'delivering', attempt = attempt + 1, updated_at = now()
WHERE id = $1`, id)
	return err
}

func (s *pgStore) MarkDelivered(ctx context.Context, id string, responseStatus int32) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `UPDATE webhook_deliveries
SET status = 'delivered', response_status = $2, last_error = NULL, updated_at = now()
WHERE id = $1`, id, responseStatus)
	return err
}

func (s *pgStore) MarkFailedWithBackoff(ctx context.Context, id string, delaySec int32, lastError string) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `UPDATE webhook_deliveries
SET status = 'failed', last_error = $3, next_attempt_at = now() + make_interval(secs => $2), updated_at = now()
WHERE id = $1`, id, delaySec, lastError)
	return err
}

func (s *pgStore) MoveToDLQ(ctx context.Context, id string, lastError string) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `UPDATE webhook_deliveries
SET status = 'dlq', last_error = $2, updated_at = now()
WHERE id = $1`, id, lastError)
	return err
}

func (s *pgStore) ResetDeliveryForReplay(ctx context.Context, id string) (Delivery, error) {
	if s == nil || s.pool == nil {
		return Delivery{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `UPDATE webhook_deliveries
SET status = 'pending', attempt = 0, last_error = NULL, next_attempt_at = now(), updated_at = now()
WHERE id = $1
RETURNING `+deliveryColumns, id)
	return scanDelivery(row)
}

func (s *pgStore) ListDeliveries(ctx context.Context, endpointID string, limit, offset int) ([]Delivery, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var (
		rows pgx.Rows
		err  error
	)
	if endpointID != "" {
		rows, err = s.pool.Query(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries
WHERE endpoint_id = $1 ORDER BY updated_at DESC LIMIT $2 OFFSET $3`, endpointID, limit, offset)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries
ORDER BY updated_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deliveries := make([]Delivery, 0, limit)
	for rows.Next() {
		del, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, del)
	}
	return deliveries, rows.Err()
}

func (s *pgStore) GetDomainEvent(ctx context.Context, id int64) (events.Event, error) {
	if s == nil || s.pool == nil {
		return events.Event{}, ErrStoreUnavailable
	}
	var ev events.Event
	err := s.pool.QueryRow(ctx, `SELECT id, topic, aggregate_id, payload, occurred_at
FROM domain_events WHERE id = $1`, id).
		Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt)
	return ev, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEndpoint(row rowScanner) (Endpoint, error) {
	var ep Endpoint
	if err := row.Scan(&ep.ID, &ep.URL, &ep.Secret, &ep.Topics, &ep.Active, &ep.CreatedAt); err != nil {
		return Endpoint{}, err
	}
	return ep, nil
}

func collectEndpoints(rows pgx.Rows) ([]Endpoint, error) {
	var endpoints []Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, rows.Err()
}

func scanDelivery(row rowScanner) (Delivery, error) {
	var (
		del        Delivery
		lastErr    sql.NullString
		respStatus sql.NullInt32
		nextAt     sql.NullTime
	)
	err := row.Scan(&del.ID, &del.EndpointID, &del.EventID, &del.Status, &del.Attempt, &del.MaxAttempt,
		&nextAt, &lastErr, &respStatus, &del.CreatedAt, &del.UpdatedAt)
	if err != nil {
		return Delivery{}, err
	}
	if lastErr.Valid {
		del.LastError = &lastErr.String
	}
	if respStatus.Valid {
		del.ResponseStatus = &respStatus.Int32
	}
	if nextAt.Valid {
		del.NextAttemptAt = nextAt.Time
	}
	return del, nil
}
