package session

import (
	"strings"

	"github.com/sjawhar/ghost-interviewer/internal/transcript"
)

const DefaultSentinel = "[INTERVIEW_COMPLETE]"

type Trigger string

const (
	TriggerNone       Trigger = ""
	TriggerSentinel   Trigger = "sentinel"
	TriggerDisconnect Trigger = "disconnect"
)

// Detector classifies the end of an interview. It holds no per-session
// state and may be shared between sessions.
type Detector struct {
	sentinel string
}

func NewDetector(sentinel string) *Detector {
	if strings.TrimSpace(sentinel) == "" {
		sentinel = DefaultSentinel
	}
	return &Detector{sentinel: sentinel}
}

// OnUtterance fires the sentinel trigger for a committed interviewer
// utterance that contains the marker. Partial fragments and candidate
// speech never end the interview.
func (d *Detector) OnUtterance(u transcript.Utterance, partial bool) Trigger {
	if partial || u.Role != transcript.Interviewer {
		return TriggerNone
	}
	if strings.Contains(u.Text, d.sentinel) {
		return TriggerSentinel
	}
	return TriggerNone
}

// OnDisconnect fires only when something was captured; an empty session is
// discarded rather than finalized.
func (d *Detector) OnDisconnect(captured int) Trigger {
	if captured <= 0 {
		return TriggerNone
	}
	return TriggerDisconnect
}
