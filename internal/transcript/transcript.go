package transcript

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	Interviewer Role = "interviewer"
	Candidate   Role = "candidate"
)

// ParseRole accepts the session roles plus the chat-style aliases voice
// agents emit ("assistant" for the interviewer, "user" for the candidate).
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "interviewer", "assistant", "agent":
		return Interviewer, nil
	case "candidate", "user":
		return Candidate, nil
	default:
		return "", fmt.Errorf("unknown speaker role %q", raw)
	}
}

// Label is the rendered speaker prefix.
func (r Role) Label() string {
	switch r {
	case Interviewer:
		return "Interviewer"
	case Candidate:
		return "Candidate"
	default:
		return string(r)
	}
}

type Utterance struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func (u Utterance) Format() string {
	return u.Role.Label() + ": " + strings.TrimSpace(u.Text)
}

// Render joins utterances in the given order, one "<Role>: <text>" block
// per utterance separated by a blank line.
func Render(utterances []Utterance) string {
	lines := make([]string, 0, len(utterances))
	for _, u := range utterances {
		lines = append(lines, u.Format())
	}
	return strings.Join(lines, "\n\n")
}

// Accumulator collects committed utterances for one session in arrival
// order. It is owned by a single goroutine and is not safe for concurrent
// use.
type Accumulator struct {
	utterances []Utterance
	sealed     bool
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append adds u unless its text is blank or the accumulator is sealed.
func (a *Accumulator) Append(u Utterance) bool {
	if a.sealed || strings.TrimSpace(u.Text) == "" {
		return false
	}
	u.Text = strings.TrimSpace(u.Text)
	a.utterances = append(a.utterances, u)
	return true
}

func (a *Accumulator) Len() int {
	return len(a.utterances)
}

// Utterances returns a copy of the accumulated utterances.
func (a *Accumulator) Utterances() []Utterance {
	if len(a.utterances) == 0 {
		return nil
	}
	out := make([]Utterance, len(a.utterances))
	copy(out, a.utterances)
	return out
}

// Seal freezes the accumulator and returns the rendered transcript. Later
// appends are rejected.
func (a *Accumulator) Seal() string {
	a.sealed = true
	return Render(a.utterances)
}
