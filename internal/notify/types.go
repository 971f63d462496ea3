package notify

import "time"

// Delivery lifecycle states.
const (
	StatusPending    = "pending"
	StatusDelivering = "delivering"
	StatusDelivered  = "delivered"
	StatusFailed     = "failed"
	StatusDLQ        = "dlq"
)

// Endpoint is a registered webhook subscriber. Topics lists the domain event
// topics the endpoint receives; an empty list means every topic.
type Endpoint struct {
	ID        string
	URL       string
	Secret    string
	Topics    []string
	Active    bool
	CreatedAt time.Time
}

// Delivery is one scheduled attempt series for an endpoint and event.
type Delivery struct {
	ID             string    `json:"id"`
	EndpointID     string    `json:"endpointId"`
	EventID        int64     `json:"eventId"`
	Status         string    `json:"status"`
	Attempt        int32     `json:"attempt"`
	MaxAttempt     int32     `json:"maxAttempt"`
	NextAttemptAt  time.Time `json:"nextAttemptAt"`
	LastError      *string   `json:"lastError,omitempty"`
	ResponseStatus *int32    `json:"responseStatus,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
