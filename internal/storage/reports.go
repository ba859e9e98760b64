package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sjawhar/ghost-interviewer/internal/interview"
)

// FindReportID returns the id of the report for interviewID, or "" if none
// exists yet.
func (s *SQLiteStore) FindReportID(ctx context.Context, interviewID string) (string, error) {
	return findReportID(ctx, s.db, interviewID)
}

func (s *SQLiteStore) GetReport(ctx context.Context, interviewID string) (interview.Report, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM reports WHERE interview_id = ?`, interviewID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return interview.Report{}, fmt.Errorf("report for interview %s: %w", interviewID, ErrNotFound)
	}
	if err != nil {
		return interview.Report{}, fmt.Errorf("query report for interview %s: %w", interviewID, err)
	}

	var report interview.Report
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return interview.Report{}, fmt.Errorf("parse report for interview %s: %w", interviewID, err)
	}
	return report, nil
}

// SaveReport inserts the report and advances the interview to evaluated in
// one transaction. If a report already exists for the interview the stored
// id is returned with created == false and nothing is written.
func (s *SQLiteStore) SaveReport(ctx context.Context, report interview.Report) (string, bool, error) {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = s.now()
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return "", false, fmt.Errorf("marshal report: %w", err)
	}

	var reportID string
	var created bool
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		iv, err := getInterview(ctx, tx, report.InterviewID)
		if err != nil {
			return err
		}

		existing, err := findReportID(ctx, tx, report.InterviewID)
		if err != nil {
			return err
		}
		if existing != "" {
			reportID = existing
			return nil
		}

		if !interview.CanTransition(iv.Status, interview.StatusEvaluated) {
			return fmt.Errorf("save report for interview %s in status %s: %w", iv.ID, iv.Status, ErrInvalidState)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO reports(id, interview_id, overall_score, role_eligibility, recommendation, payload, generated_at)
			 VALUES(?, ?, ?, ?, ?, ?, ?)`,
			report.ID,
			report.InterviewID,
			report.OverallScore,
			string(report.RoleEligibility),
			report.Recommendation,
			string(payload),
			formatTime(report.GeneratedAt),
		)
		if err != nil {
			return fmt.Errorf("insert report for interview %s: %w", report.InterviewID, err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert report rows affected: %w", err)
		}
		if rows == 0 {
			existing, err := findReportID(ctx, tx, report.InterviewID)
			if err != nil {
				return err
			}
			reportID = existing
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE interviews SET status = ? WHERE id = ? AND status = ?`,
			string(interview.StatusEvaluated), report.InterviewID, string(iv.Status),
		); err != nil {
			return fmt.Errorf("mark interview %s evaluated: %w", report.InterviewID, err)
		}

		reportID = report.ID
		created = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return reportID, created, nil
}

func findReportID(ctx context.Context, q querier, interviewID string) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, `SELECT id FROM reports WHERE interview_id = ?`, interviewID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query report id for interview %s: %w", interviewID, err)
	}
	return id, nil
}
