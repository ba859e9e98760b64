package server

import "time"

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type SessionStartedEvent struct {
	Event
	InterviewID string `json:"interview_id"`
	Room        string `json:"room"`
}

type UtteranceEvent struct {
	Event
	InterviewID string `json:"interview_id"`
	Role        string `json:"role"`
	Text        string `json:"text"`
}

type SessionFinalizedEvent struct {
	Event
	InterviewID string `json:"interview_id"`
	Trigger     string `json:"trigger"`
	Utterances  int    `json:"utterances"`
	Delivered   bool   `json:"delivered"`
}

type SessionDiscardedEvent struct {
	Event
	InterviewID string `json:"interview_id"`
}

type InterviewCompletedEvent struct {
	Event
	InterviewID string `json:"interview_id"`
	Status      string `json:"status"`
}

type InterviewEvaluatedEvent struct {
	Event
	InterviewID     string  `json:"interview_id"`
	ReportID        string  `json:"report_id"`
	OverallScore    float64 `json:"overall_score"`
	RoleEligibility string  `json:"role_eligibility"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
