package interview

import "testing"

func TestCanTransitionIsMonotonic(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusActive, true},
		{StatusPending, StatusCompleted, true},
		{StatusActive, StatusCompleted, true},
		{StatusCompleted, StatusEvaluated, true},
		{StatusPending, StatusEvaluated, false},
		{StatusActive, StatusEvaluated, false},
		{StatusActive, StatusPending, false},
		{StatusCompleted, StatusActive, false},
		{StatusEvaluated, StatusCompleted, false},
		{StatusEvaluated, StatusEvaluated, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := ParseStatus("completed"); err != nil || s != StatusCompleted {
		t.Fatalf("expected completed, got %q err=%v", s, err)
	}
	if _, err := ParseStatus("archived"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestStatusAcceptsTranscript(t *testing.T) {
	if !StatusPending.AcceptsTranscript() || !StatusActive.AcceptsTranscript() {
		t.Fatal("pending and active must accept a transcript")
	}
	if StatusCompleted.AcceptsTranscript() || StatusEvaluated.AcceptsTranscript() {
		t.Fatal("completed and evaluated must not accept a transcript")
	}
}

func TestReportCheck(t *testing.T) {
	ok := Report{OverallScore: 7, RoleEligibility: Hire}
	if err := ok.Check(); err != nil {
		t.Fatalf("expected valid report, got %v", err)
	}

	if err := (Report{OverallScore: 11, RoleEligibility: Hire}).Check(); err == nil {
		t.Fatal("expected out of range score to fail")
	}
	if err := (Report{OverallScore: 5, RoleEligibility: "Maybe"}).Check(); err == nil {
		t.Fatal("expected unknown eligibility to fail")
	}
}

func TestIDFromRoom(t *testing.T) {
	id, ok := IDFromRoom("interview-", "interview-abc-123")
	if !ok || id != "abc-123" {
		t.Fatalf("expected abc-123, got %q ok=%v", id, ok)
	}
	for _, room := range []string{"lobby-abc", "interview-", ""} {
		if _, ok := IDFromRoom("interview-", room); ok {
			t.Fatalf("expected %q to be rejected", room)
		}
	}
}
