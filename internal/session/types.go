package session

import (
	"context"

	"github.com/sjawhar/ghost-interviewer/internal/handoff"
	"github.com/sjawhar/ghost-interviewer/internal/transcript"
)

// Handoff delivers a finalized transcript to the durable layer. One call is
// one attempt.
type Handoff interface {
	Deliver(ctx context.Context, interviewID, transcript string) (handoff.Response, error)
}

type EventBroadcaster interface {
	BroadcastSessionStarted(interviewID, room string)
	BroadcastUtterance(interviewID string, u transcript.Utterance)
	BroadcastSessionFinalized(interviewID, trigger string, utterances int, delivered bool)
	BroadcastSessionDiscarded(interviewID string)
}
