package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/sjawhar/ghost-interviewer/internal/queue"
	"github.com/sjawhar/ghost-interviewer/internal/storage"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultBatchSize    = 10
	MaxPublishAttempts  = 5
)

type Store interface {
	PendingJobs(ctx context.Context, limit int) ([]storage.OutboxJob, error)
	MarkJobSent(ctx context.Context, id int64) error
	MarkJobFailed(ctx context.Context, id int64, message string, maxRetries int) (bool, error)
}

// Relay polls evaluation_jobs and publishes pending rows to the job queue.
// A row is marked sent only after the broker accepted it, so a crash
// between the two yields a duplicate delivery, never a lost one.
type Relay struct {
	store        Store
	publisher    queue.Publisher
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int
	kick         chan struct{}
}

type Option func(*Relay)

func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRelay(store Store, publisher queue.Publisher, opts ...Option) *Relay {
	r := &Relay{
		store:        store,
		publisher:    publisher,
		logger:       slog.Default(),
		pollInterval: DefaultPollInterval,
		batchSize:    DefaultBatchSize,
		kick:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Kick asks the relay to poll now instead of waiting for the next tick.
func (r *Relay) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Run polls until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("outbox relay starting", "poll_interval", r.pollInterval, "batch_size", r.batchSize)
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("outbox relay batch failed", "event", "relay_batch_failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
		case <-r.kick:
		}
	}
}

// ProcessBatch publishes up to one batch of pending rows and returns how
// many were sent.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	jobs, err := r.store.PendingJobs(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, job := range jobs {
		if err := r.publisher.Publish(ctx, queue.Job{InterviewID: job.InterviewID}); err != nil {
			failed, markErr := r.store.MarkJobFailed(ctx, job.ID, err.Error(), MaxPublishAttempts)
			if markErr != nil {
				return sent, markErr
			}
			if failed {
				r.logger.Error("evaluation job could not be published, giving up",
					"interview_id", job.InterviewID,
					"event", "relay_publish_abandoned",
					"job_id", job.ID,
					"reason", job.Reason,
					"attempts", job.RetryCount+1,
					"alert", true,
					"error", err,
				)
			} else {
				r.logger.Warn("evaluation job publish failed",
					"interview_id", job.InterviewID,
					"event", "relay_publish_failed",
					"job_id", job.ID,
					"attempts", job.RetryCount+1,
					"error", err,
				)
			}
			continue
		}

		if err := r.store.MarkJobSent(ctx, job.ID); err != nil {
			return sent, err
		}
		sent++
		r.logger.Info("evaluation job enqueued",
			"interview_id", job.InterviewID,
			"event", "job_enqueued",
			"job_id", job.ID,
			"reason", job.Reason,
		)
	}
	return sent, nil
}
