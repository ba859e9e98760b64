package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sjawhar/ghost-interviewer/internal/interview"
)

// Reasons an evaluation job row was written. A row is unique per
// (interview, reason), so each path enqueues at most once.
const (
	JobReasonHandoff  = "handoff"
	JobReasonRecovery = "recovery"
)

const (
	JobPending = "pending"
	JobSent    = "sent"
	JobFailed  = "failed"
)

// OutboxJob is an evaluation job waiting to be relayed to the queue.
type OutboxJob struct {
	ID           int64
	InterviewID  string
	Reason       string
	Status       string
	RetryCount   int
	ErrorMessage string
	CreatedAt    time.Time
	ProcessedAt  *time.Time
}

type RequeueOutcome string

const (
	RequeueEnqueued         RequeueOutcome = "enqueued"
	RequeueNotFound         RequeueOutcome = "not_found"
	RequeueNotCompleted     RequeueOutcome = "not_completed"
	RequeueAlreadyEvaluated RequeueOutcome = "already_evaluated"
	RequeueAlreadyQueued    RequeueOutcome = "already_queued"
	RequeueAlreadyRecovered RequeueOutcome = "already_recovered"
)

// RequeueEvaluation writes a recovery job for a completed interview that has
// no report and no job still waiting in the outbox.
func (s *SQLiteStore) RequeueEvaluation(ctx context.Context, interviewID string) (RequeueOutcome, error) {
	var outcome RequeueOutcome
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		iv, err := getInterview(ctx, tx, interviewID)
		if errors.Is(err, ErrNotFound) {
			outcome = RequeueNotFound
			return nil
		}
		if err != nil {
			return err
		}

		reportID, err := findReportID(ctx, tx, interviewID)
		if err != nil {
			return err
		}
		if reportID != "" || iv.Status == interview.StatusEvaluated {
			outcome = RequeueAlreadyEvaluated
			return nil
		}
		if iv.Status != interview.StatusCompleted || !iv.HasTranscript() {
			outcome = RequeueNotCompleted
			return nil
		}

		var pending int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM evaluation_jobs WHERE interview_id = ? AND status = ?`,
			interviewID, JobPending,
		).Scan(&pending); err != nil {
			return fmt.Errorf("count pending jobs for interview %s: %w", interviewID, err)
		}
		if pending > 0 {
			outcome = RequeueAlreadyQueued
			return nil
		}

		inserted, err := insertJob(ctx, tx, interviewID, JobReasonRecovery, s.now())
		if err != nil {
			return err
		}
		if inserted {
			outcome = RequeueEnqueued
		} else {
			outcome = RequeueAlreadyRecovered
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// PendingJobs returns up to limit unsent jobs, oldest first.
func (s *SQLiteStore) PendingJobs(ctx context.Context, limit int) ([]OutboxJob, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, interview_id, reason, status, retry_count, error_message, created_at, processed_at
		 FROM evaluation_jobs
		 WHERE status = ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		JobPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	jobs := make([]OutboxJob, 0, limit)
	for rows.Next() {
		var job OutboxJob
		var createdAt string
		var processedAt sql.NullString
		if err := rows.Scan(&job.ID, &job.InterviewID, &job.Reason, &job.Status, &job.RetryCount, &job.ErrorMessage, &createdAt, &processedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		if job.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse job %d created_at: %w", job.ID, err)
		}
		if job.ProcessedAt, err = parseNullTime(processedAt); err != nil {
			return nil, fmt.Errorf("parse job %d processed_at: %w", job.ID, err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}
	return jobs, nil
}

func (s *SQLiteStore) MarkJobSent(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE evaluation_jobs SET status = ?, processed_at = ?, error_message = '' WHERE id = ?`,
		JobSent, formatTime(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("mark job %d sent: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark job sent rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("job %d: %w", id, ErrNotFound)
	}
	return nil
}

// MarkJobFailed records a publish failure. Once retry_count reaches
// maxRetries the row is moved to failed and true is returned.
func (s *SQLiteStore) MarkJobFailed(ctx context.Context, id int64, message string, maxRetries int) (bool, error) {
	var failed bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var retries int
		err := tx.QueryRowContext(ctx, `SELECT retry_count FROM evaluation_jobs WHERE id = ?`, id).Scan(&retries)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("job %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("query job %d: %w", id, err)
		}

		retries++
		status := JobPending
		if retries >= maxRetries {
			status = JobFailed
			failed = true
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE evaluation_jobs SET retry_count = ?, status = ?, error_message = ? WHERE id = ?`,
			retries, status, message, id,
		); err != nil {
			return fmt.Errorf("mark job %d failed: %w", id, err)
		}
		return nil
	})
	return failed, err
}

// CountJobs returns how many job rows exist for an interview, in any status.
func (s *SQLiteStore) CountJobs(ctx context.Context, interviewID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM evaluation_jobs WHERE interview_id = ?`, interviewID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count jobs for interview %s: %w", interviewID, err)
	}
	return n, nil
}

func insertJob(ctx context.Context, tx *sql.Tx, interviewID, reason string, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO evaluation_jobs(interview_id, reason, status, created_at) VALUES(?, ?, ?, ?)`,
		interviewID, reason, JobPending, formatTime(now),
	)
	if err != nil {
		return false, fmt.Errorf("enqueue %s job for interview %s: %w", reason, interviewID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enqueue job rows affected: %w", err)
	}
	return rows > 0, nil
}
