package recovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sjawhar/ghost-interviewer/internal/interview"
	"github.com/sjawhar/ghost-interviewer/internal/storage"
)

// EventRoomFinished is the only room lifecycle event the sweep acts on.
const EventRoomFinished = "room_finished"

type Room struct {
	Name string `json:"name"`
	SID  string `json:"sid,omitempty"`
}

// RoomEvent is a room lifecycle webhook payload.
type RoomEvent struct {
	Event string `json:"event"`
	Room  Room   `json:"room"`
}

type Store interface {
	RequeueEvaluation(ctx context.Context, interviewID string) (storage.RequeueOutcome, error)
}

// Kicker wakes the outbox relay so a recovery job is published without
// waiting for the next poll.
type Kicker interface {
	Kick()
}

type Sweeper struct {
	store      Store
	kicker     Kicker
	roomPrefix string
	logger     *slog.Logger
}

func NewSweeper(store Store, kicker Kicker, roomPrefix string, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: store, kicker: kicker, roomPrefix: roomPrefix, logger: logger}
}

// OnRoomEvent re-enqueues evaluation for the room's interview when it has a
// committed transcript and no report. Repeated events are no-ops. Rooms
// that do not belong to an interview are ignored.
func (s *Sweeper) OnRoomEvent(ctx context.Context, ev RoomEvent) (storage.RequeueOutcome, error) {
	if ev.Event != EventRoomFinished {
		return "", nil
	}

	id, ok := interview.IDFromRoom(s.roomPrefix, ev.Room.Name)
	if !ok {
		s.logger.Debug("ignoring room event", "event", "sweep_ignored", "room", ev.Room.Name)
		return "", nil
	}

	log := s.logger.With("interview_id", id, "room", ev.Room.Name)
	outcome, err := s.store.RequeueEvaluation(ctx, id)
	if err != nil {
		log.Error("recovery sweep failed", "event", "sweep_failed", "error", err)
		return "", fmt.Errorf("requeue evaluation for %s: %w", id, err)
	}

	switch outcome {
	case storage.RequeueEnqueued:
		log.Info("evaluation re-enqueued", "event", "sweep_enqueued")
		if s.kicker != nil {
			s.kicker.Kick()
		}
	case storage.RequeueNotCompleted:
		// The transcript never reached the durable layer. Nothing to recover
		// automatically.
		log.Warn("room finished without a committed transcript", "event", "sweep_not_completed")
	default:
		log.Info("recovery not needed", "event", "sweep_skipped", "outcome", string(outcome))
	}
	return outcome, nil
}
