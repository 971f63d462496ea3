package store

import (
	"context"
	"time"

	"github.com/noah-isme/backend-pasar/internal/events"
)

// InsertDomainEvent persists one domain event and returns it with its
// assigned id and timestamp.
func (s *Store) InsertDomainEvent(ctx context.Context, topic, aggregateID string, payload []byte) (events.Event, error) {
	var id int64
	var occurredAt time.Time
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO domain_events (topic, aggregate_id, payload)
		 VALUES ($1, $2, $3)
		 RETURNING id, occurred_at`, topic, aggregateID, payload).
		Scan(&id, &occurredAt)
	if err != nil {
		return events.Event{}, err
	}
	return events.Event{
		ID:          id,
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     payload,
		OccurredAt:  occurredAt,
	}, nil
}
