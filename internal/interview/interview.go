package interview

import (
	"fmt"
	"strings"
	"time"
)

// Status is the persisted lifecycle state of an interview. Transitions only
// move forward: pending -> active -> completed -> evaluated.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusEvaluated Status = "evaluated"
)

var statusRank = map[Status]int{
	StatusPending:   0,
	StatusActive:    1,
	StatusCompleted: 2,
	StatusEvaluated: 3,
}

func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	if _, ok := statusRank[s]; !ok {
		return "", fmt.Errorf("unknown interview status %q", raw)
	}
	return s, nil
}

func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanTransition reports whether from -> to is a single legal step.
// pending -> completed is allowed because a session may never be marked
// active by the API before its transcript arrives.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusActive || to == StatusCompleted
	case StatusActive:
		return to == StatusCompleted
	case StatusCompleted:
		return to == StatusEvaluated
	default:
		return false
	}
}

// AcceptsTranscript is true while a transcript commit is still possible.
func (s Status) AcceptsTranscript() bool {
	return CanTransition(s, StatusCompleted)
}

type Interview struct {
	ID             string     `json:"id"`
	CandidateName  string     `json:"candidate_name"`
	CandidateEmail string     `json:"candidate_email"`
	Role           string     `json:"role"`
	JobDescription string     `json:"job_description"`
	Skills         []string   `json:"skills_to_cover"`
	Status         Status     `json:"status"`
	RoomName       string     `json:"room_name,omitempty"`
	Transcript     string     `json:"transcript,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

// HasTranscript is false for a missing or whitespace-only transcript.
func (i Interview) HasTranscript() bool {
	return strings.TrimSpace(i.Transcript) != ""
}

// IDFromRoom maps a room handle such as "interview-<id>" back to the
// interview id. ok is false when the room does not carry the prefix.
func IDFromRoom(prefix, room string) (string, bool) {
	if prefix == "" || !strings.HasPrefix(room, prefix) {
		return "", false
	}
	id := strings.TrimPrefix(room, prefix)
	if strings.TrimSpace(id) == "" {
		return "", false
	}
	return id, true
}
