package session

import (
	"testing"

	"github.com/sjawhar/ghost-interviewer/internal/transcript"
)

func TestDetectorSentinelOnInterviewerUtterance(t *testing.T) {
	d := NewDetector("")
	u := transcript.Utterance{Role: transcript.Interviewer, Text: "Thanks for your time. [INTERVIEW_COMPLETE]"}
	if got := d.OnUtterance(u, false); got != TriggerSentinel {
		t.Fatalf("expected sentinel trigger, got %q", got)
	}
}

func TestDetectorIgnoresCandidateSentinel(t *testing.T) {
	d := NewDetector("")
	u := transcript.Utterance{Role: transcript.Candidate, Text: "[INTERVIEW_COMPLETE]"}
	if got := d.OnUtterance(u, false); got != TriggerNone {
		t.Fatalf("expected no trigger for candidate, got %q", got)
	}
}

func TestDetectorIgnoresPartialFragments(t *testing.T) {
	d := NewDetector("")
	u := transcript.Utterance{Role: transcript.Interviewer, Text: "Thanks. [INTERVIEW_COMPLETE]"}
	if got := d.OnUtterance(u, true); got != TriggerNone {
		t.Fatalf("expected no trigger for partial, got %q", got)
	}
}

func TestDetectorMarkerIsExact(t *testing.T) {
	d := NewDetector("")
	for _, text := range []string{"[interview_complete]", "INTERVIEW_COMPLETE", "[INTERVIEW COMPLETE]"} {
		u := transcript.Utterance{Role: transcript.Interviewer, Text: text}
		if got := d.OnUtterance(u, false); got != TriggerNone {
			t.Fatalf("expected %q not to trigger, got %q", text, got)
		}
	}
}

func TestDetectorCustomSentinel(t *testing.T) {
	d := NewDetector("<<END>>")
	u := transcript.Utterance{Role: transcript.Interviewer, Text: "bye <<END>>"}
	if got := d.OnUtterance(u, false); got != TriggerSentinel {
		t.Fatalf("expected sentinel trigger, got %q", got)
	}
}

func TestDetectorDisconnectNeedsTranscript(t *testing.T) {
	d := NewDetector("")
	if got := d.OnDisconnect(0); got != TriggerNone {
		t.Fatalf("expected no trigger for empty session, got %q", got)
	}
	if got := d.OnDisconnect(2); got != TriggerDisconnect {
		t.Fatalf("expected disconnect trigger, got %q", got)
	}
}
