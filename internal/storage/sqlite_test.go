package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sjawhar/ghost-interviewer/internal/interview"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func createTestInterview(t *testing.T, store *SQLiteStore) interview.Interview {
	t.Helper()

	iv, err := store.CreateInterview(context.Background(), interview.Interview{
		CandidateName:  "Ada Lovelace",
		CandidateEmail: "ada@example.com",
		Role:           "Backend Engineer",
		Skills:         []string{"Go", "SQL"},
	}, "interview-")
	if err != nil {
		t.Fatalf("CreateInterview failed: %v", err)
	}
	return iv
}

func commitTestInterview(t *testing.T, store *SQLiteStore) interview.Interview {
	t.Helper()

	iv := createTestInterview(t, store)
	committed, err := store.CommitTranscript(context.Background(), iv.ID, "Interviewer: Hello\n\nCandidate: Hi")
	if err != nil {
		t.Fatalf("CommitTranscript failed: %v", err)
	}
	return committed
}

func TestSQLitePragmas(t *testing.T) {
	store := newTestSQLiteStore(t)

	var mode string
	if err := store.DB().QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode failed: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("expected journal_mode wal, got %q", mode)
	}

	var timeout int
	if err := store.DB().QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
		t.Fatalf("PRAGMA busy_timeout failed: %v", err)
	}
	if timeout < 5000 {
		t.Fatalf("expected busy_timeout >= 5000, got %d", timeout)
	}
}

func TestCreateAndGetInterview(t *testing.T) {
	store := newTestSQLiteStore(t)
	created := createTestInterview(t, store)

	if created.Status != interview.StatusPending {
		t.Fatalf("expected pending status, got %q", created.Status)
	}
	if created.RoomName != "interview-"+created.ID {
		t.Fatalf("unexpected room name %q", created.RoomName)
	}

	got, err := store.GetInterview(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetInterview failed: %v", err)
	}
	if got.CandidateName != "Ada Lovelace" || len(got.Skills) != 2 || got.Skills[1] != "SQL" {
		t.Fatalf("unexpected interview: %+v", got)
	}
	if got.StartedAt != nil || got.EndedAt != nil {
		t.Fatalf("expected no timestamps on a pending interview, got %+v", got)
	}
}

func TestCreateInterviewRequiresFields(t *testing.T) {
	store := newTestSQLiteStore(t)
	if _, err := store.CreateInterview(context.Background(), interview.Interview{Role: "SRE"}, "interview-"); err == nil {
		t.Fatal("expected error for missing candidate name")
	}
	if _, err := store.CreateInterview(context.Background(), interview.Interview{CandidateName: "Ada"}, "interview-"); err == nil {
		t.Fatal("expected error for missing role")
	}
}

func TestGetInterviewNotFound(t *testing.T) {
	store := newTestSQLiteStore(t)
	if _, err := store.GetInterview(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStartInterviewIsIdempotent(t *testing.T) {
	store := newTestSQLiteStore(t)
	iv := createTestInterview(t, store)

	first, err := store.StartInterview(context.Background(), iv.ID)
	if err != nil {
		t.Fatalf("StartInterview failed: %v", err)
	}
	if first.Status != interview.StatusActive || first.StartedAt == nil {
		t.Fatalf("expected active interview with started_at, got %+v", first)
	}

	second, err := store.StartInterview(context.Background(), iv.ID)
	if err != nil {
		t.Fatalf("second StartInterview failed: %v", err)
	}
	if !second.StartedAt.Equal(*first.StartedAt) {
		t.Fatalf("expected started_at unchanged, got %v then %v", first.StartedAt, second.StartedAt)
	}
}

func TestCommitTranscriptEnqueuesOneJob(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	iv := createTestInterview(t, store)
	if _, err := store.StartInterview(ctx, iv.ID); err != nil {
		t.Fatalf("StartInterview failed: %v", err)
	}

	committed, err := store.CommitTranscript(ctx, iv.ID, "Interviewer: Hello")
	if err != nil {
		t.Fatalf("CommitTranscript failed: %v", err)
	}
	if committed.Status != interview.StatusCompleted {
		t.Fatalf("expected completed, got %q", committed.Status)
	}
	if committed.EndedAt == nil || !committed.EndedAt.Equal(fixed) {
		t.Fatalf("expected ended_at %v, got %v", fixed, committed.EndedAt)
	}

	jobs, err := store.PendingJobs(ctx, 10)
	if err != nil {
		t.Fatalf("PendingJobs failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].InterviewID != iv.ID || jobs[0].Reason != JobReasonHandoff {
		t.Fatalf("expected one handoff job, got %+v", jobs)
	}
}

func TestCommitTranscriptReplayIsNoOp(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	iv := commitTestInterview(t, store)

	replayed, err := store.CommitTranscript(ctx, iv.ID, "Interviewer: something else")
	if !errors.Is(err, ErrAlreadyCommitted) {
		t.Fatalf("expected ErrAlreadyCommitted, got %v", err)
	}
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrAlreadyCommitted to wrap ErrInvalidState, got %v", err)
	}
	if replayed.Transcript != "Interviewer: Hello\n\nCandidate: Hi" {
		t.Fatalf("expected stored transcript unchanged, got %q", replayed.Transcript)
	}

	n, err := store.CountJobs(ctx, iv.ID)
	if err != nil {
		t.Fatalf("CountJobs failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 job after replay, got %d", n)
	}
}

func TestCommitTranscriptConcurrentReplays(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	iv := createTestInterview(t, store)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CommitTranscript(ctx, iv.ID, "Candidate: Hi")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var committed, replays int
	for err := range results {
		switch {
		case err == nil:
			committed++
		case errors.Is(err, ErrAlreadyCommitted):
			replays++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if committed != 1 || replays != workers-1 {
		t.Fatalf("expected 1 commit and %d replays, got %d and %d", workers-1, committed, replays)
	}

	n, _ := store.CountJobs(ctx, iv.ID)
	if n != 1 {
		t.Fatalf("expected exactly 1 job, got %d", n)
	}
}

func TestCommitTranscriptUnknownInterview(t *testing.T) {
	store := newTestSQLiteStore(t)
	if _, err := store.CommitTranscript(context.Background(), "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveReportIsIdempotent(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	iv := commitTestInterview(t, store)

	id, created, err := store.SaveReport(ctx, sampleReport(iv.ID))
	if err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
	if !created || id == "" {
		t.Fatalf("expected a new report, got id=%q created=%v", id, created)
	}

	again, created, err := store.SaveReport(ctx, sampleReport(iv.ID))
	if err != nil {
		t.Fatalf("second SaveReport failed: %v", err)
	}
	if created || again != id {
		t.Fatalf("expected existing id %q with created=false, got %q created=%v", id, again, created)
	}

	got, err := store.GetInterview(ctx, iv.ID)
	if err != nil {
		t.Fatalf("GetInterview failed: %v", err)
	}
	if got.Status != interview.StatusEvaluated {
		t.Fatalf("expected evaluated, got %q", got.Status)
	}

	report, err := store.GetReport(ctx, iv.ID)
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if report.ID != id || report.RoleEligibility != interview.Hire || report.CompetencyScores["communication"].Score != 7 {
		t.Fatalf("unexpected stored report: %+v", report)
	}
}

func TestSaveReportRequiresCompleted(t *testing.T) {
	store := newTestSQLiteStore(t)
	iv := createTestInterview(t, store)

	_, _, err := store.SaveReport(context.Background(), sampleReport(iv.ID))
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if id, _ := store.FindReportID(context.Background(), iv.ID); id != "" {
		t.Fatalf("expected no report, got %q", id)
	}
}

func TestStoreTransitionsFollowLifecycle(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	iv := createTestInterview(t, store)

	steps := []struct {
		name string
		to   interview.Status
		run  func() error
	}{
		{"start", interview.StatusActive, func() error { _, err := store.StartInterview(ctx, iv.ID); return err }},
		{"commit", interview.StatusCompleted, func() error { _, err := store.CommitTranscript(ctx, iv.ID, "Candidate: Hi"); return err }},
		{"report", interview.StatusEvaluated, func() error { _, _, err := store.SaveReport(ctx, sampleReport(iv.ID)); return err }},
	}

	for round := 0; round < 2; round++ {
		for _, step := range steps {
			before, err := store.GetInterview(ctx, iv.ID)
			if err != nil {
				t.Fatalf("GetInterview failed: %v", err)
			}
			legal := interview.CanTransition(before.Status, step.to)
			_ = step.run()

			after, err := store.GetInterview(ctx, iv.ID)
			if err != nil {
				t.Fatalf("GetInterview failed: %v", err)
			}
			if legal && after.Status != step.to {
				t.Fatalf("round %d %s: expected %s -> %s, got %s", round, step.name, before.Status, step.to, after.Status)
			}
			if !legal && after.Status != before.Status {
				t.Fatalf("round %d %s: illegal %s -> %s changed status to %s", round, step.name, before.Status, step.to, after.Status)
			}
		}
	}

	final, err := store.GetInterview(ctx, iv.ID)
	if err != nil {
		t.Fatalf("GetInterview failed: %v", err)
	}
	if final.Status != interview.StatusEvaluated {
		t.Fatalf("expected evaluated, got %s", final.Status)
	}
}

func TestReportUniquePerInterview(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	iv := commitTestInterview(t, store)

	if _, _, err := store.SaveReport(ctx, sampleReport(iv.ID)); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
	_, err := store.DB().ExecContext(ctx,
		`INSERT INTO reports(id, interview_id, overall_score, role_eligibility, recommendation, payload, generated_at)
		 VALUES('other', ?, 5, 'Hire', '', '{}', '2026-03-01T00:00:00Z')`, iv.ID)
	if err == nil {
		t.Fatal("expected unique constraint violation for a second report row")
	}
}

func TestRequeueEvaluation(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	if out, err := store.RequeueEvaluation(ctx, "missing"); err != nil || out != RequeueNotFound {
		t.Fatalf("expected not_found, got %q err=%v", out, err)
	}

	pending := createTestInterview(t, store)
	if out, _ := store.RequeueEvaluation(ctx, pending.ID); out != RequeueNotCompleted {
		t.Fatalf("expected not_completed, got %q", out)
	}

	iv := commitTestInterview(t, store)
	if out, _ := store.RequeueEvaluation(ctx, iv.ID); out != RequeueAlreadyQueued {
		t.Fatalf("expected already_queued while handoff job pending, got %q", out)
	}

	jobs, _ := store.PendingJobs(ctx, 10)
	for _, job := range jobs {
		if err := store.MarkJobSent(ctx, job.ID); err != nil {
			t.Fatalf("MarkJobSent failed: %v", err)
		}
	}

	first, err := store.RequeueEvaluation(ctx, iv.ID)
	if err != nil || first != RequeueEnqueued {
		t.Fatalf("expected enqueued, got %q err=%v", first, err)
	}
	second, err := store.RequeueEvaluation(ctx, iv.ID)
	if err != nil || second != RequeueAlreadyQueued {
		t.Fatalf("expected already_queued, got %q err=%v", second, err)
	}

	jobs, _ = store.PendingJobs(ctx, 10)
	for _, job := range jobs {
		_ = store.MarkJobSent(ctx, job.ID)
	}
	third, _ := store.RequeueEvaluation(ctx, iv.ID)
	if third != RequeueAlreadyRecovered {
		t.Fatalf("expected already_recovered, got %q", third)
	}
	if n, _ := store.CountJobs(ctx, iv.ID); n != 2 {
		t.Fatalf("expected handoff + recovery rows, got %d", n)
	}

	if _, _, err := store.SaveReport(ctx, sampleReport(iv.ID)); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
	if out, _ := store.RequeueEvaluation(ctx, iv.ID); out != RequeueAlreadyEvaluated {
		t.Fatalf("expected already_evaluated, got %q", out)
	}
}

func TestMarkJobFailedGivesUp(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	commitTestInterview(t, store)

	jobs, _ := store.PendingJobs(ctx, 10)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 pending job, got %d", len(jobs))
	}
	id := jobs[0].ID

	for i := 1; i < 3; i++ {
		failed, err := store.MarkJobFailed(ctx, id, "broker down", 3)
		if err != nil {
			t.Fatalf("MarkJobFailed failed: %v", err)
		}
		if failed {
			t.Fatalf("expected job still pending after %d failures", i)
		}
	}
	failed, err := store.MarkJobFailed(ctx, id, "broker down", 3)
	if err != nil || !failed {
		t.Fatalf("expected job failed on third failure, got failed=%v err=%v", failed, err)
	}

	jobs, _ = store.PendingJobs(ctx, 10)
	if len(jobs) != 0 {
		t.Fatalf("expected no pending jobs, got %+v", jobs)
	}
	if _, err := store.MarkJobFailed(ctx, 999, "x", 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown job, got %v", err)
	}
}

func TestPendingJobsOrderAndLimit(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		store.now = func() time.Time { return at }
		ids = append(ids, commitTestInterview(t, store).ID)
	}

	jobs, err := store.PendingJobs(ctx, 2)
	if err != nil {
		t.Fatalf("PendingJobs failed: %v", err)
	}
	if len(jobs) != 2 || jobs[0].InterviewID != ids[0] || jobs[1].InterviewID != ids[1] {
		t.Fatalf("expected oldest two jobs, got %+v", jobs)
	}
}
