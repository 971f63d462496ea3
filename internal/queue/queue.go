package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pasar/internal/resilience"
)

// Task is a unit of asynchronous work, identified by kind and deduplicated
// by its idempotency key within the configured window.
type Task struct {
	Kind           string
	Payload        []byte
	IdempotencyKey string
	Attempt        int
	MaxAttempts    int
	Delay          time.Duration
}

// envelope is the wire form of a task inside the Redis sorted sets.
type envelope struct {
	Kind        string `json:"kind"`
	Key         string `json:"key,omitempty"`
	Payload     []byte `json:"payload"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	AvailableAt int64  `json:"available_at"`
}

func decodeEnvelope(raw string) (envelope, error) {
	var msg envelope
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return envelope{}, err
	}
	return msg, nil
}

// keyspace derives the Redis keys shared by the enqueuer and the worker.
type keyspace struct {
	prefix string
}

func (k keyspace) ready(kind string) string {
	if k.prefix == "" {
		return "queue:" + kind
	}
	return fmt.Sprintf("%s:queue:%s", k.prefix, kind)
}

func (k keyspace) processing(kind string) string {
	if k.prefix == "" {
		return "queue:" + kind + ":processing"
	}
	return fmt.Sprintf("%s:%s:processing", k.prefix, kind)
}

func (k keyspace) deadList(kind string) string {
	if k.prefix == "" {
		return "queue:" + kind + ":dlq"
	}
	return fmt.Sprintf("%s:%s:dlq", k.prefix, kind)
}

func (k keyspace) dedup(kind, key string) string {
	if k.prefix == "" {
		return fmt.Sprintf("queue:dedup:%s:%s", kind, key)
	}
	return fmt.Sprintf("%s:dedup:%s:%s", k.prefix, kind, key)
}

func validKind(kind string) bool {
	if kind == "" {
		return false
	}
	for i := 0; i < len(kind); i++ {
		c := kind[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == ':':
		default:
			return false
		}
	}
	return true
}

// Enqueuer publishes tasks to the Redis delayed queue.
type Enqueuer struct {
	R           *redis.Client
	Prefix      string
	DedupTTL    time.Duration
	MaxAttempts int
}

// Enqueue schedules the task. With an idempotency key the task is accepted at
// most once per deduplication window; duplicates are silently dropped.
func (e Enqueuer) Enqueue(ctx context.Context, t Task) error {
	if e.R == nil {
		return errors.New("queue: redis client not configured")
	}
	if !validKind(t.Kind) {
		return fmt.Errorf("queue: invalid task kind %q", t.Kind)
	}
	msg := envelope{
		Kind:        t.Kind,
		Key:         t.IdempotencyKey,
		Payload:     t.Payload,
		Attempt:     t.Attempt,
		MaxAttempts: t.MaxAttempts,
		AvailableAt: time.Now().Add(t.Delay).UnixNano(),
	}
	if msg.MaxAttempts <= 0 {
		msg.MaxAttempts = e.MaxAttempts
	}
	if msg.MaxAttempts <= 0 {
		msg.MaxAttempts = 10
	}

	ks := keyspace{prefix: e.Prefix}
	if msg.Key != "" {
		ttl := e.DedupTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		fresh, err := e.R.SetNX(ctx, ks.dedup(msg.Kind, msg.Key), "1", ttl).Result()
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return e.R.ZAdd(ctx, ks.ready(msg.Kind), redis.Z{Score: float64(msg.AvailableAt), Member: raw}).Err()
}

// Worker consumes tasks of one kind.
type Worker struct {
	R                 *redis.Client
	Prefix            string
	Kind              string
	Concurrency       int
	VisibilityTimeout time.Duration
	SoftDeadline      time.Duration
	Handler           func(context.Context, Task) error
	RetryBase         time.Duration
	RetryJitter       float64
	Store             Store
	Logger            *zerolog.Logger
}

// Run processes tasks until the context is cancelled. Claimed tasks move to a
// processing set scored by their visibility deadline; a ticker sweeps expired
// claims back onto the ready queue so crashed workers cannot strand work.
func (w Worker) Run(ctx context.Context) error {
	if w.R == nil {
		return errors.New("queue: worker redis client not configured")
	}
	if w.Handler == nil {
		return errors.New("queue: worker handler not configured")
	}
	if !validKind(w.Kind) {
		return fmt.Errorf("queue: invalid worker kind %q", w.Kind)
	}
	concurrency := w.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	visibility := w.VisibilityTimeout
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	retryBase := w.RetryBase
	if retryBase <= 0 {
		retryBase = 200 * time.Millisecond
	}

	ks := keyspace{prefix: w.Prefix}
	readyKey := ks.ready(w.Kind)
	processingKey := ks.processing(w.Kind)

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	sweep := time.NewTicker(time.Second)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-sweep.C:
			if err := w.sweepExpired(ctx, processingKey, readyKey); err != nil {
				return err
			}
		default:
		}

		popped, err := w.R.ZPopMin(ctx, readyKey, 1).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			if err == redis.Nil {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return err
		}
		if len(popped) == 0 {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		member, ok := popped[0].Member.(string)
		if !ok {
			continue
		}
		msg, err := decodeEnvelope(member)
		if err != nil {
			continue
		}
		now := time.Now().UnixNano()
		if msg.AvailableAt > now {
			// not due yet, push back and wait
			w.R.ZAdd(ctx, readyKey, redis.Z{Score: float64(msg.AvailableAt), Member: member})
			wait := time.Duration(msg.AvailableAt - now)
			if wait > time.Second {
				wait = time.Second
			}
			time.Sleep(wait)
			continue
		}

		msg.Attempt++
		claimed, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		claim := string(claimed)
		deadline := time.Now().Add(visibility).UnixNano()
		if err := w.R.ZAdd(ctx, processingKey, redis.Z{Score: float64(deadline), Member: claim}).Err(); err != nil {
			return err
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(claim string, m envelope) {
			defer func() { <-sem }()
			defer wg.Done()
			jobCtx := ctx
			var cancel context.CancelFunc
			if w.SoftDeadline > 0 {
				jobCtx, cancel = context.WithTimeout(ctx, w.SoftDeadline)
			} else {
				jobCtx, cancel = context.WithCancel(ctx)
			}
			defer cancel()
			err := w.Handler(jobCtx, Task{
				Kind:           w.Kind,
				Payload:        m.Payload,
				IdempotencyKey: m.Key,
				Attempt:        m.Attempt,
				MaxAttempts:    m.MaxAttempts,
			})
			// cleanup must outlive a cancelled run
			cleanupCtx := context.WithoutCancel(ctx)
			if err != nil {
				w.settleFailure(cleanupCtx, ks, readyKey, processingKey, claim, m, retryBase, err)
				return
			}
			w.settleOK(cleanupCtx, ks, processingKey, claim, m)
		}(claim, msg)
	}
}

func (w Worker) settleOK(ctx context.Context, ks keyspace, processingKey, claim string, msg envelope) {
	_ = w.R.ZRem(ctx, processingKey, claim)
	if msg.Key != "" {
		_ = w.R.Del(ctx, ks.dedup(msg.Kind, msg.Key)).Err()
	}
	ProcessedTotal.WithLabelValues(msg.Kind, "ok").Inc()
}

func (w Worker) settleFailure(ctx context.Context, ks keyspace, readyKey, processingKey, claim string, msg envelope, base time.Duration, cause error) {
	_ = w.R.ZRem(ctx, processingKey, claim)
	if msg.MaxAttempts > 0 && msg.Attempt >= msg.MaxAttempts {
		w.park(ctx, ks, msg, cause)
		if msg.Key != "" {
			_ = w.R.Del(ctx, ks.dedup(msg.Kind, msg.Key)).Err()
		}
		ProcessedTotal.WithLabelValues(msg.Kind, "dead").Inc()
		return
	}
	ProcessedTotal.WithLabelValues(msg.Kind, "retry").Inc()
	msg.AvailableAt = time.Now().Add(resilience.Backoff(base, msg.Attempt, w.RetryJitter)).UnixNano()
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_ = w.R.ZAdd(ctx, readyKey, redis.Z{Score: float64(msg.AvailableAt), Member: string(raw)}).Err()
}

// park moves an exhausted task into the dead-task store. Without a database
// store the payload lands in a Redis list so it is never silently lost.
func (w Worker) park(ctx context.Context, ks keyspace, msg envelope, cause error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if w.Store != nil {
		dead := DeadTask{
			Kind:     msg.Kind,
			DedupKey: msg.Key,
			Payload:  raw,
			Attempts: msg.Attempt,
		}
		if cause != nil {
			reason := cause.Error()
			dead.LastError = &reason
		}
		if _, err := w.Store.AddDeadTask(ctx, dead); err == nil {
			if w.Logger != nil {
				w.Logger.Warn().
					Str("kind", msg.Kind).
					Str("key", msg.Key).
					Int("attempts", msg.Attempt).
					Msg("task parked in dead letter store")
			}
			return
		}
	}
	_ = w.R.LPush(ctx, ks.deadList(msg.Kind), raw).Err()
}

func (w Worker) sweepExpired(ctx context.Context, processingKey, readyKey string) error {
	now := fmt.Sprintf("%f", float64(time.Now().UnixNano()))
	expired, err := w.R.ZRangeByScore(ctx, processingKey, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	for _, claim := range expired {
		msg, err := decodeEnvelope(claim)
		if err != nil {
			continue
		}
		_ = w.R.ZRem(ctx, processingKey, claim).Err()
		msg.AvailableAt = time.Now().UnixNano()
		raw, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		_ = w.R.ZAdd(ctx, readyKey, redis.Z{Score: float64(msg.AvailableAt), Member: raw}).Err()
	}
	return nil
}
