package evaluation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sjawhar/ghost-interviewer/internal/interview"
	"github.com/sjawhar/ghost-interviewer/internal/outbox"
	"github.com/sjawhar/ghost-interviewer/internal/queue"
	"github.com/sjawhar/ghost-interviewer/internal/storage"
	"github.com/sjawhar/ghost-interviewer/internal/transcript"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func completedInterview(t *testing.T, store *storage.SQLiteStore, text string) string {
	t.Helper()
	ctx := context.Background()
	iv, err := store.CreateInterview(ctx, interview.Interview{
		CandidateName: "Ada",
		Role:          "Backend Engineer",
		Skills:        []string{"Go"},
	}, "interview-")
	if err != nil {
		t.Fatalf("CreateInterview failed: %v", err)
	}
	if _, err := store.CommitTranscript(ctx, iv.ID, text); err != nil {
		t.Fatalf("CommitTranscript failed: %v", err)
	}
	return iv.ID
}

type scorerMock struct {
	mu    sync.Mutex
	calls int
	fail  int
	err   error
	score float64
}

func (m *scorerMock) Score(_ context.Context, iv interview.Interview) (interview.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil && (m.fail == 0 || m.calls <= m.fail) {
		return interview.Report{}, m.err
	}
	score := m.score
	if score == 0 {
		score = 7
	}
	return interview.Report{
		InterviewID:      iv.ID,
		OverallScore:     score,
		RoleEligibility:  interview.Hire,
		Recommendation:   "Hire for the platform team.",
		SkillScores:      []interview.SkillScore{{Skill: "Go", Score: 8, Evidence: "channels"}},
		CompetencyScores: map[string]interview.CompetencyScore{"communication": {Score: 7}},
	}, nil
}

func (m *scorerMock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type archiverMock struct {
	mu      sync.Mutex
	reports []interview.Report
	err     error
}

func (a *archiverMock) Archive(_ context.Context, _ interview.Interview, report interview.Report) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reports = append(a.reports, report)
	return a.err
}

func TestEvaluateCreatesReport(t *testing.T) {
	store := newTestStore(t)
	scorer := &scorerMock{}
	archiver := &archiverMock{err: errors.New("drive offline")}
	var notified []string
	w := NewWorker(store, scorer,
		WithLogger(quietLogger()),
		WithArchiver(archiver),
		WithNotify(func(iv interview.Interview, r interview.Report) {
			notified = append(notified, iv.ID+"/"+string(iv.Status))
		}),
	)
	ctx := context.Background()
	id := completedInterview(t, store, "Interviewer: Hello\n\nCandidate: Hi")

	reportID, err := w.Evaluate(ctx, id)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if reportID == "" {
		t.Fatal("expected report id")
	}

	iv, err := store.GetInterview(ctx, id)
	if err != nil {
		t.Fatalf("GetInterview failed: %v", err)
	}
	if iv.Status != interview.StatusEvaluated {
		t.Fatalf("expected evaluated, got %s", iv.Status)
	}
	report, err := store.GetReport(ctx, id)
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if report.ID != reportID || report.OverallScore != 7 {
		t.Fatalf("unexpected stored report %+v", report)
	}

	// Archive failure is logged, never fatal.
	if len(archiver.reports) != 1 || archiver.reports[0].ID != reportID {
		t.Fatalf("expected one archived report, got %+v", archiver.reports)
	}
	if len(notified) != 1 || notified[0] != id+"/evaluated" {
		t.Fatalf("unexpected notifications %v", notified)
	}
}

func TestEvaluateSecondDeliveryIsNoop(t *testing.T) {
	store := newTestStore(t)
	scorer := &scorerMock{}
	archiver := &archiverMock{}
	w := NewWorker(store, scorer, WithLogger(quietLogger()), WithArchiver(archiver))
	id := completedInterview(t, store, "Candidate: Hi")

	first := w.Handle(context.Background(), queue.Delivery{Job: queue.Job{InterviewID: id}, Attempt: 1})
	second := w.Handle(context.Background(), queue.Delivery{Job: queue.Job{InterviewID: id}, Attempt: 1})
	if first != queue.Ack || second != queue.Ack {
		t.Fatalf("expected both deliveries acked, got %s and %s", first, second)
	}
	if scorer.Calls() != 1 {
		t.Fatalf("expected scorer called once, got %d", scorer.Calls())
	}
	if len(archiver.reports) != 1 {
		t.Fatalf("expected one archive call, got %d", len(archiver.reports))
	}

	existing, err := w.Evaluate(context.Background(), id)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	stored, _ := store.FindReportID(context.Background(), id)
	if existing != stored {
		t.Fatalf("expected existing report id %q, got %q", stored, existing)
	}
}

func TestHandleDropsPermanentFailures(t *testing.T) {
	store := newTestStore(t)
	scorer := &scorerMock{}
	w := NewWorker(store, scorer, WithLogger(quietLogger()))
	ctx := context.Background()

	if got := w.Handle(ctx, queue.Delivery{Job: queue.Job{InterviewID: "missing"}, Attempt: 1}); got != queue.Ack {
		t.Fatalf("expected ack for unknown interview, got %s", got)
	}
	if _, err := w.Evaluate(ctx, "missing"); !errors.Is(err, ErrDropped) {
		t.Fatalf("expected ErrDropped, got %v", err)
	}

	// A pending interview has no transcript yet.
	iv, err := store.CreateInterview(ctx, interview.Interview{CandidateName: "Ada", Role: "SRE"}, "interview-")
	if err != nil {
		t.Fatalf("CreateInterview failed: %v", err)
	}
	if got := w.Handle(ctx, queue.Delivery{Job: queue.Job{InterviewID: iv.ID}, Attempt: 1}); got != queue.Ack {
		t.Fatalf("expected ack for empty transcript, got %s", got)
	}
	if scorer.Calls() != 0 {
		t.Fatalf("expected no scoring for dropped jobs, got %d", scorer.Calls())
	}
}

func TestHandleRetryBound(t *testing.T) {
	store := newTestStore(t)
	scorer := &scorerMock{err: errors.New("model timeout")}
	w := NewWorker(store, scorer, WithLogger(quietLogger()))
	ctx := context.Background()
	id := completedInterview(t, store, "Candidate: Hi")

	want := []queue.Disposition{queue.Retry, queue.Retry, queue.Abandon}
	for i, disp := range want {
		got := w.Handle(ctx, queue.Delivery{Job: queue.Job{InterviewID: id}, Attempt: i + 1})
		if got != disp {
			t.Fatalf("attempt %d: expected %s, got %s", i+1, disp, got)
		}
	}
	if scorer.Calls() != 3 {
		t.Fatalf("expected 3 scoring calls, got %d", scorer.Calls())
	}

	iv, err := store.GetInterview(ctx, id)
	if err != nil {
		t.Fatalf("GetInterview failed: %v", err)
	}
	if iv.Status != interview.StatusCompleted {
		t.Fatalf("expected status to stay completed, got %s", iv.Status)
	}
	if reportID, _ := store.FindReportID(ctx, id); reportID != "" {
		t.Fatalf("expected no report, got %q", reportID)
	}
}

func TestHandleRetriesInvalidReport(t *testing.T) {
	store := newTestStore(t)
	w := NewWorker(store, &scorerMock{score: 42}, WithLogger(quietLogger()), WithMaxAttempts(2))
	id := completedInterview(t, store, "Candidate: Hi")

	if got := w.Handle(context.Background(), queue.Delivery{Job: queue.Job{InterviewID: id}, Attempt: 1}); got != queue.Retry {
		t.Fatalf("expected retry for out of range score, got %s", got)
	}
	if got := w.Handle(context.Background(), queue.Delivery{Job: queue.Job{InterviewID: id}, Attempt: 2}); got != queue.Abandon {
		t.Fatalf("expected abandon on final attempt, got %s", got)
	}
}

func TestConcurrentDeliveriesCreateOneReport(t *testing.T) {
	store := newTestStore(t)
	scorer := &scorerMock{}
	w := NewWorker(store, scorer, WithLogger(quietLogger()))
	id := completedInterview(t, store, "Candidate: Hi")

	const workers = 6
	ids := make(chan string, workers)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reportID, err := w.Evaluate(context.Background(), id)
			if err != nil {
				t.Errorf("Evaluate failed: %v", err)
				return
			}
			ids <- reportID
		}()
	}
	wg.Wait()
	close(ids)

	var first string
	for reportID := range ids {
		if first == "" {
			first = reportID
		}
		if reportID != first {
			t.Fatalf("expected a single report id, got %q and %q", first, reportID)
		}
	}

	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM reports WHERE interview_id = ?`, id).Scan(&count); err != nil {
		t.Fatalf("count reports: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 report row, got %d", count)
	}
}

func TestEndToEndSentinelToEvaluated(t *testing.T) {
	store := newTestStore(t)
	q := queue.NewMemory(time.Millisecond)
	relay := outbox.NewRelay(store, q, outbox.WithLogger(quietLogger()))
	scorer := &scorerMock{}

	done := make(chan string, 1)
	w := NewWorker(store, scorer,
		WithLogger(quietLogger()),
		WithNotify(func(iv interview.Interview, _ interview.Report) { done <- iv.ID }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = q.Consume(ctx, w.Handle) }()

	iv, err := store.CreateInterview(ctx, interview.Interview{CandidateName: "Ada", Role: "SRE"}, "interview-")
	if err != nil {
		t.Fatalf("CreateInterview failed: %v", err)
	}

	acc := transcript.NewAccumulator()
	acc.Append(transcript.Utterance{Role: transcript.Interviewer, Text: "Hello, welcome."})
	acc.Append(transcript.Utterance{Role: transcript.Candidate, Text: "Hi"})
	acc.Append(transcript.Utterance{Role: transcript.Interviewer, Text: "Thanks. [INTERVIEW_COMPLETE]"})
	text := acc.Seal()
	if lines := strings.Count(text, "\n\n") + 1; lines != 3 {
		t.Fatalf("expected 3 transcript blocks, got %d", lines)
	}

	committed, err := store.CommitTranscript(ctx, iv.ID, text)
	if err != nil {
		t.Fatalf("CommitTranscript failed: %v", err)
	}
	if committed.Status != interview.StatusCompleted {
		t.Fatalf("expected completed, got %s", committed.Status)
	}
	if n, err := relay.ProcessBatch(ctx); err != nil || n != 1 {
		t.Fatalf("expected one job relayed, got %d, %v", n, err)
	}

	select {
	case got := <-done:
		if got != iv.ID {
			t.Fatalf("unexpected interview evaluated %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for evaluation")
	}

	report, err := store.GetReport(ctx, iv.ID)
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if report.OverallScore < 1 || report.OverallScore > 10 || !report.RoleEligibility.Valid() {
		t.Fatalf("report outside schema: %+v", report)
	}
	final, _ := store.GetInterview(ctx, iv.ID)
	if final.Status != interview.StatusEvaluated {
		t.Fatalf("expected evaluated, got %s", final.Status)
	}
}
