package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrQueueUnavailable marks an enqueue that failed after local retries.
// Callers must treat the job as not enqueued and retry; workers dedupe by
// claim/vault id, so a duplicate enqueue is harmless.
var ErrQueueUnavailable = errors.New("job queue unavailable")

const (
	defaultMaxAttempts = 3
	defaultBackoff     = 250 * time.Millisecond
)

// MintJob asks the mint worker to process one claim. Payloads carry opaque
// identifiers only, never secret material.
type MintJob struct {
	JobID      string    `json:"job_id"`
	ClaimID    string    `json:"claim_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// PrepareJob asks the webhook/prepare worker to process one funded vault.
type PrepareJob struct {
	JobID      string    `json:"job_id"`
	VaultID    string    `json:"vault_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Dispatcher hands work units off to durable Redis lists consumed by the
// out-of-band mint workers. Delivery is at-least-once: a crash between the
// domain write and the enqueue ack means "not yet enqueued" and the caller
// retries.
type Dispatcher interface {
	EnqueueMint(ctx context.Context, claimID string) error
	EnqueuePrepare(ctx context.Context, vaultID string) error
}

// pusher is the slice of the go-redis API the dispatcher needs.
type pusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

type dispatcher struct {
	rdb          pusher
	mintQueue    string
	prepareQueue string
	maxAttempts  int
	backoff      time.Duration
}

func NewDispatcher(rdb *redis.Client, mintQueue, prepareQueue string) Dispatcher {
	return newDispatcher(rdb, mintQueue, prepareQueue)
}

func newDispatcher(rdb pusher, mintQueue, prepareQueue string) *dispatcher {
	return &dispatcher{
		rdb:          rdb,
		mintQueue:    mintQueue,
		prepareQueue: prepareQueue,
		maxAttempts:  defaultMaxAttempts,
		backoff:      defaultBackoff,
	}
}

func (d *dispatcher) EnqueueMint(ctx context.Context, claimID string) error {
	job := MintJob{
		JobID:      uuid.NewString(),
		ClaimID:    claimID,
		EnqueuedAt: time.Now(),
	}
	return d.push(ctx, d.mintQueue, job)
}

func (d *dispatcher) EnqueuePrepare(ctx context.Context, vaultID string) error {
	job := PrepareJob{
		JobID:      uuid.NewString(),
		VaultID:    vaultID,
		EnqueuedAt: time.Now(),
	}
	return d.push(ctx, d.prepareQueue, job)
}

func (d *dispatcher) push(ctx context.Context, queueName string, job any) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		lastErr = d.rdb.RPush(ctx, queueName, payload).Err()
		if lastErr == nil {
			slog.Debug("Job enqueued",
				slog.String("type", "queue"),
				slog.String("queue", queueName),
				slog.Int("attempt", attempt))
			return nil
		}

		if attempt < d.maxAttempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrQueueUnavailable, ctx.Err())
			case <-time.After(d.backoff):
			}
		}
	}

	slog.Error("Failed to enqueue job",
		slog.String("type", "queue"),
		slog.String("queue", queueName),
		slog.Int("attempts", d.maxAttempts),
		slog.Any("error", lastErr))
	return fmt.Errorf("%w: %v", ErrQueueUnavailable, lastErr)
}
