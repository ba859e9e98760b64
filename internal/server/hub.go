package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sjawhar/ghost-interviewer/internal/interview"
	"github.com/sjawhar/ghost-interviewer/internal/transcript"
)

// Hub fans dashboard events out to websocket subscribers. Slow subscribers
// miss events rather than block the sender.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{clients: make(map[chan []byte]struct{}), logger: logger}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) BroadcastSessionStarted(interviewID, room string) {
	h.broadcastEvent(SessionStartedEvent{
		Event:       newEvent("session_started", time.Now().UTC()),
		InterviewID: interviewID,
		Room:        room,
	})
}

func (h *Hub) BroadcastUtterance(interviewID string, u transcript.Utterance) {
	h.broadcastEvent(UtteranceEvent{
		Event:       newEvent("utterance", u.Timestamp),
		InterviewID: interviewID,
		Role:        string(u.Role),
		Text:        u.Text,
	})
}

func (h *Hub) BroadcastSessionFinalized(interviewID, trigger string, utterances int, delivered bool) {
	h.broadcastEvent(SessionFinalizedEvent{
		Event:       newEvent("session_finalized", time.Now().UTC()),
		InterviewID: interviewID,
		Trigger:     trigger,
		Utterances:  utterances,
		Delivered:   delivered,
	})
}

func (h *Hub) BroadcastSessionDiscarded(interviewID string) {
	h.broadcastEvent(SessionDiscardedEvent{
		Event:       newEvent("session_discarded", time.Now().UTC()),
		InterviewID: interviewID,
	})
}

func (h *Hub) BroadcastInterviewCompleted(iv interview.Interview) {
	h.broadcastEvent(InterviewCompletedEvent{
		Event:       newEvent("interview_completed", time.Now().UTC()),
		InterviewID: iv.ID,
		Status:      string(iv.Status),
	})
}

func (h *Hub) BroadcastInterviewEvaluated(iv interview.Interview, report interview.Report) {
	h.broadcastEvent(InterviewEvaluatedEvent{
		Event:           newEvent("interview_evaluated", report.GeneratedAt),
		InterviewID:     iv.ID,
		ReportID:        report.ID,
		OverallScore:    report.OverallScore,
		RoleEligibility: string(report.RoleEligibility),
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("event marshal error", "error", err)
		return
	}
	h.Broadcast(payload)
}
