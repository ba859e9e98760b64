package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sjawhar/ghost-interviewer/internal/interview"
	"github.com/sjawhar/ghost-interviewer/internal/queue"
	"github.com/sjawhar/ghost-interviewer/internal/storage"
)

// DefaultMaxAttempts is the total number of deliveries a job gets before it
// is abandoned.
const DefaultMaxAttempts = 3

// ErrDropped marks a job that can never succeed: the interview is gone or
// has no transcript. Dropped jobs are acked, not retried.
var ErrDropped = errors.New("evaluation job dropped")

type Store interface {
	GetInterview(ctx context.Context, id string) (interview.Interview, error)
	FindReportID(ctx context.Context, interviewID string) (string, error)
	SaveReport(ctx context.Context, report interview.Report) (string, bool, error)
}

type Scorer interface {
	Score(ctx context.Context, iv interview.Interview) (interview.Report, error)
}

// Archiver receives each newly created report after it is committed.
type Archiver interface {
	Archive(ctx context.Context, iv interview.Interview, report interview.Report) error
}

type Worker struct {
	store       Store
	scorer      Scorer
	archivers   []Archiver
	notify      func(interview.Interview, interview.Report)
	maxAttempts int
	logger      *slog.Logger
}

type Option func(*Worker)

func WithMaxAttempts(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

func WithArchiver(a Archiver) Option {
	return func(w *Worker) {
		if a != nil {
			w.archivers = append(w.archivers, a)
		}
	}
}

// WithNotify is called once per newly created report.
func WithNotify(fn func(interview.Interview, interview.Report)) Option {
	return func(w *Worker) {
		w.notify = fn
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

func NewWorker(store Store, scorer Scorer, opts ...Option) *Worker {
	w := &Worker{
		store:       store,
		scorer:      scorer,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Handle is a queue.Handler.
func (w *Worker) Handle(ctx context.Context, d queue.Delivery) queue.Disposition {
	id := d.Job.InterviewID
	log := w.logger.With("interview_id", id, "attempt", d.Attempt)

	_, err := w.Evaluate(ctx, id)
	switch {
	case err == nil:
		return queue.Ack
	case errors.Is(err, ErrDropped):
		log.Warn("evaluation job dropped", "event", "evaluation_dropped", "error", err)
		return queue.Ack
	case d.Attempt < w.maxAttempts:
		log.Warn("evaluation failed, retry scheduled",
			"event", "evaluation_retry_scheduled",
			"max_attempts", w.maxAttempts,
			"error", err,
		)
		return queue.Retry
	default:
		log.Error("evaluation abandoned after final attempt",
			"event", "evaluation_abandoned",
			"alert", true,
			"max_attempts", w.maxAttempts,
			"error", err,
		)
		return queue.Abandon
	}
}

// Evaluate scores one interview and commits its report. It returns the id
// of the report for the interview, whether created now or earlier.
func (w *Worker) Evaluate(ctx context.Context, interviewID string) (string, error) {
	log := w.logger.With("interview_id", interviewID)

	iv, err := w.store.GetInterview(ctx, interviewID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("%w: interview %s not found", ErrDropped, interviewID)
	}
	if err != nil {
		return "", fmt.Errorf("load interview %s: %w", interviewID, err)
	}
	if !iv.HasTranscript() {
		return "", fmt.Errorf("%w: interview %s has no transcript", ErrDropped, interviewID)
	}

	// Checked before scoring; the storage uniqueness constraint covers the
	// race where two deliveries both pass this point.
	existing, err := w.store.FindReportID(ctx, interviewID)
	if err != nil {
		return "", fmt.Errorf("check existing report: %w", err)
	}
	if existing != "" {
		log.Info("report already exists", "event", "evaluation_duplicate", "report_id", existing)
		return existing, nil
	}

	report, err := w.scorer.Score(ctx, iv)
	if err != nil {
		return "", fmt.Errorf("score interview: %w", err)
	}
	if err := report.Check(); err != nil {
		return "", fmt.Errorf("invalid report: %w", err)
	}
	report.InterviewID = interviewID

	reportID, created, err := w.store.SaveReport(ctx, report)
	if err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	if !created {
		log.Info("report committed by a concurrent delivery", "event", "evaluation_duplicate", "report_id", reportID)
		return reportID, nil
	}

	report.ID = reportID
	log.Info("report created",
		"event", "evaluation_created",
		"report_id", reportID,
		"overall_score", report.OverallScore,
		"role_eligibility", string(report.RoleEligibility),
	)

	iv.Status = interview.StatusEvaluated
	for _, a := range w.archivers {
		if err := a.Archive(ctx, iv, report); err != nil {
			log.Warn("report archive failed", "event", "report_archive_failed", "error", err)
		}
	}
	if w.notify != nil {
		w.notify(iv, report)
	}
	return reportID, nil
}
