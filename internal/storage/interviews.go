package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sjawhar/ghost-interviewer/internal/interview"
)

const interviewColumns = `id, candidate_name, candidate_email, role, job_description, skills, status, room_name, transcript, created_at, started_at, ended_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateInterview inserts a pending interview. An empty ID is generated;
// an empty RoomName becomes roomPrefix + ID.
func (s *SQLiteStore) CreateInterview(ctx context.Context, iv interview.Interview, roomPrefix string) (interview.Interview, error) {
	if strings.TrimSpace(iv.CandidateName) == "" {
		return interview.Interview{}, errors.New("candidate name is required")
	}
	if strings.TrimSpace(iv.Role) == "" {
		return interview.Interview{}, errors.New("role is required")
	}

	if iv.ID == "" {
		iv.ID = uuid.NewString()
	}
	if iv.RoomName == "" {
		iv.RoomName = roomPrefix + iv.ID
	}
	iv.Status = interview.StatusPending
	iv.CreatedAt = s.now()
	if iv.Skills == nil {
		iv.Skills = []string{}
	}

	skills, err := json.Marshal(iv.Skills)
	if err != nil {
		return interview.Interview{}, fmt.Errorf("marshal skills: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO interviews(id, candidate_name, candidate_email, role, job_description, skills, status, room_name, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		iv.ID,
		iv.CandidateName,
		iv.CandidateEmail,
		iv.Role,
		iv.JobDescription,
		string(skills),
		string(iv.Status),
		iv.RoomName,
		formatTime(iv.CreatedAt),
	)
	if err != nil {
		return interview.Interview{}, fmt.Errorf("create interview %s: %w", iv.ID, err)
	}
	return iv, nil
}

func (s *SQLiteStore) GetInterview(ctx context.Context, id string) (interview.Interview, error) {
	return getInterview(ctx, s.db, id)
}

// StartInterview moves a pending interview to active. Interviews already
// past pending are returned unchanged.
func (s *SQLiteStore) StartInterview(ctx context.Context, id string) (interview.Interview, error) {
	var out interview.Interview
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		iv, err := getInterview(ctx, tx, id)
		if err != nil {
			return err
		}
		if !interview.CanTransition(iv.Status, interview.StatusActive) {
			out = iv
			return nil
		}

		now := s.now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE interviews SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
			string(interview.StatusActive), formatTime(now), id, string(iv.Status),
		); err != nil {
			return fmt.Errorf("start interview %s: %w", id, err)
		}
		iv.Status = interview.StatusActive
		iv.StartedAt = &now
		out = iv
		return nil
	})
	return out, err
}

// CommitTranscript stores the transcript, marks the interview completed and
// enqueues one evaluation job, all in one transaction. A replay for an
// interview that is already completed or evaluated changes nothing and
// returns the stored interview with ErrAlreadyCommitted.
func (s *SQLiteStore) CommitTranscript(ctx context.Context, id, text string) (interview.Interview, error) {
	var out interview.Interview
	var replay bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		iv, err := getInterview(ctx, tx, id)
		if err != nil {
			return err
		}
		if !iv.Status.AcceptsTranscript() {
			out = iv
			replay = true
			return nil
		}

		now := s.now()
		res, err := tx.ExecContext(ctx,
			`UPDATE interviews SET transcript = ?, status = ?, ended_at = ? WHERE id = ? AND status = ?`,
			text, string(interview.StatusCompleted), formatTime(now), id, string(iv.Status),
		)
		if err != nil {
			return fmt.Errorf("commit transcript for interview %s: %w", id, err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("commit transcript rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("commit transcript for interview %s: %w", id, ErrInvalidState)
		}

		if _, err := insertJob(ctx, tx, id, JobReasonHandoff, now); err != nil {
			return err
		}

		iv.Transcript = text
		iv.Status = interview.StatusCompleted
		iv.EndedAt = &now
		out = iv
		return nil
	})
	if err != nil {
		return interview.Interview{}, err
	}
	if replay {
		return out, ErrAlreadyCommitted
	}
	return out, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getInterview(ctx context.Context, q querier, id string) (interview.Interview, error) {
	row := q.QueryRowContext(ctx, `SELECT `+interviewColumns+` FROM interviews WHERE id = ?`, id)
	iv, err := scanInterview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return interview.Interview{}, fmt.Errorf("interview %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return interview.Interview{}, fmt.Errorf("query interview %s: %w", id, err)
	}
	return iv, nil
}

func scanInterview(row rowScanner) (interview.Interview, error) {
	var iv interview.Interview
	var skills, status, createdAt string
	var startedAt, endedAt sql.NullString
	if err := row.Scan(
		&iv.ID, &iv.CandidateName, &iv.CandidateEmail, &iv.Role, &iv.JobDescription,
		&skills, &status, &iv.RoomName, &iv.Transcript, &createdAt, &startedAt, &endedAt,
	); err != nil {
		return interview.Interview{}, err
	}

	if err := json.Unmarshal([]byte(skills), &iv.Skills); err != nil {
		return interview.Interview{}, fmt.Errorf("parse skills for interview %s: %w", iv.ID, err)
	}

	parsedStatus, err := interview.ParseStatus(status)
	if err != nil {
		return interview.Interview{}, err
	}
	iv.Status = parsedStatus

	if iv.CreatedAt, err = parseTime(createdAt); err != nil {
		return interview.Interview{}, fmt.Errorf("parse interview %s created_at: %w", iv.ID, err)
	}
	if iv.StartedAt, err = parseNullTime(startedAt); err != nil {
		return interview.Interview{}, fmt.Errorf("parse interview %s started_at: %w", iv.ID, err)
	}
	if iv.EndedAt, err = parseNullTime(endedAt); err != nil {
		return interview.Interview{}, fmt.Errorf("parse interview %s ended_at: %w", iv.ID, err)
	}
	return iv, nil
}
