package resilience

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	// Closed accepts all requests and tracks failures.
	Closed State = iota
	// Open rejects requests until the cool-off period expires.
	Open
	// HalfOpen allows a single probe to decide between Closed and Open.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// outcomes is the rolling sample a closed breaker judges the downstream by.
type outcomes struct {
	ok     int
	failed int
}

func (o outcomes) total() int { return o.ok + o.failed }

func (o outcomes) failureRatio() float64 {
	t := o.total()
	if t == 0 {
		return 0
	}
	return float64(o.failed) / float64(t)
}

// Breaker is a failure-ratio circuit breaker guarding one downstream target.
type Breaker struct {
	mu        sync.Mutex
	state     State
	sample    outcomes
	threshold float64
	minSample int
	openFor   time.Duration
	openedAt  time.Time
	target    string
	logger    zerolog.Logger
}

// NewBreaker constructs a breaker that opens once the failure ratio over at
// least minSample observed requests reaches threshold, and stays open for
// openFor before probing again.
func NewBreaker(minSample int, threshold float64, openFor time.Duration) *Breaker {
	if minSample <= 0 {
		minSample = 1
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{
		state:     Closed,
		minSample: minSample,
		threshold: threshold,
		openFor:   openFor,
		logger:    zerolog.Nop(),
	}
}

// WithTarget sets the dependency name used in metric labels and logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = strings.TrimSpace(target)
	breakerState.WithLabelValues(b.label()).Set(float64(b.state))
	return b
}

// WithLogger sets the logger used for state transition events.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	return b
}

// Allow reports whether a request may proceed. An open breaker admits its
// first request after the cool-off, switching to half-open for that probe.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return true
	}
	if time.Since(b.openedAt) < b.openFor {
		return false
	}
	b.transition(ctx, HalfOpen)
	return true
}

// Report records a request outcome and drives the state machine.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		if success {
			b.transition(ctx, Closed)
		} else {
			b.transition(ctx, Open)
		}
		return
	}

	if success {
		b.sample.ok++
	} else {
		b.sample.failed++
	}
	if b.sample.total() < b.minSample {
		return
	}
	if b.sample.failureRatio() >= b.threshold {
		b.transition(ctx, Open)
		return
	}
	if b.sample.total() > b.minSample*2 {
		// keep the sample from growing without bound
		b.sample.ok = (b.sample.ok + 1) / 2
		b.sample.failed = (b.sample.failed + 1) / 2
	}
}

// transition must be called with the mutex held.
func (b *Breaker) transition(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	b.sample = outcomes{}
	if next == Open {
		b.openedAt = time.Now()
	} else {
		b.openedAt = time.Time{}
	}

	label := b.label()
	breakerState.WithLabelValues(label).Set(float64(next))
	breakerTransitions.WithLabelValues(label, prev.String(), next.String()).Inc()
	if next == Open {
		breakerOpened.WithLabelValues(label).Inc()
	}

	evt := b.transitionLogger(ctx).Info().
		Str("target", label).
		Str("from_state", prev.String()).
		Str("to_state", next.String())
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		evt = evt.Str("trace_id", span.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) label() string {
	if b.target == "" {
		return "default"
	}
	return b.target
}

func (b *Breaker) transitionLogger(ctx context.Context) *zerolog.Logger {
	if ctxLogger := zerolog.Ctx(ctx); ctxLogger.GetLevel() != zerolog.Disabled {
		return ctxLogger
	}
	return &b.logger
}

// Backoff returns the exponential backoff delay for the given attempt.
// Jitter is a fraction of the delay, e.g. 0.2 spreads it by up to 20%
// in either direction.
func Backoff(base time.Duration, attempt int, jitter float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if jitter <= 0 {
		return d
	}
	spread := (rand.Float64()*2 - 1) * jitter * float64(d)
	return d + time.Duration(spread)
}
