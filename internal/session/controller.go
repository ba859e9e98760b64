package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/sjawhar/ghost-interviewer/internal/transcript"
)

type State int

const (
	StateIdle State = iota
	StateActive
	StateFinalized
	StateDiscarded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateFinalized:
		return "finalized"
	case StateDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// Outcome describes how a session ended. It is available once Done is
// closed.
type Outcome struct {
	State      State
	Trigger    Trigger
	Transcript string
	Utterances int
	Delivered  bool
	Duplicate  bool
	Err        error
}

type eventKind int

const (
	eventStart eventKind = iota
	eventUtterance
	eventDisconnect
)

type event struct {
	kind    eventKind
	role    transcript.Role
	text    string
	partial bool
}

const eventBuffer = 64

type ControllerConfig struct {
	InterviewID string
	Room        string
	Detector    *Detector
	Handoff     Handoff
	Hub         EventBroadcaster
	Logger      *slog.Logger
	// OnRelease runs on the session goroutine after the handoff returns and
	// before Done is closed.
	OnRelease func(c *Controller, o Outcome)
	Now       func() time.Time
}

// Controller is the reactor for one live interview. Every state change
// happens on the goroutine running Run, fed by a single event channel, so
// the session finalizes at most once no matter how triggers interleave.
type Controller struct {
	id        string
	room      string
	detector  *Detector
	handoff   Handoff
	hub       EventBroadcaster
	logger    *slog.Logger
	onRelease func(*Controller, Outcome)
	now       func() time.Time

	events  chan event
	done    chan struct{}
	outcome Outcome

	// Owned by the Run goroutine.
	state State
	acc   *transcript.Accumulator
}

func NewController(cfg ControllerConfig) *Controller {
	if cfg.Detector == nil {
		cfg.Detector = NewDetector("")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Controller{
		id:        cfg.InterviewID,
		room:      cfg.Room,
		detector:  cfg.Detector,
		handoff:   cfg.Handoff,
		hub:       cfg.Hub,
		logger:    cfg.Logger.With("interview_id", cfg.InterviewID, "room", cfg.Room),
		onRelease: cfg.OnRelease,
		now:       cfg.Now,
		events:    make(chan event, eventBuffer),
		done:      make(chan struct{}),
		acc:       transcript.NewAccumulator(),
	}
}

func (c *Controller) InterviewID() string { return c.id }

func (c *Controller) Room() string { return c.room }

func (c *Controller) Start() error {
	return c.send(context.Background(), event{kind: eventStart})
}

// Utterance queues one speaker turn. Partial fragments are accepted and
// ignored; only committed turns reach the transcript.
func (c *Controller) Utterance(role transcript.Role, text string, partial bool) error {
	return c.send(context.Background(), event{kind: eventUtterance, role: role, text: text, partial: partial})
}

func (c *Controller) Disconnect() error {
	return c.send(context.Background(), event{kind: eventDisconnect})
}

func (c *Controller) disconnect(ctx context.Context) error {
	return c.send(ctx, event{kind: eventDisconnect})
}

func (c *Controller) send(ctx context.Context, ev event) error {
	select {
	case <-c.done:
		return ErrSessionClosed
	default:
	}
	select {
	case c.events <- ev:
		return nil
	case <-c.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Outcome returns the terminal outcome, or false while the session is live.
func (c *Controller) Outcome() (Outcome, bool) {
	select {
	case <-c.done:
		return c.outcome, true
	default:
		return Outcome{}, false
	}
}

func (c *Controller) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-c.done:
		return c.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Run processes events until the session finalizes or is discarded.
// Cancelling ctx is treated as a disconnect; the handoff itself is not
// cancelled so an in-flight transcript is never dropped.
func (c *Controller) Run(ctx context.Context) {
	defer close(c.done)

	for {
		select {
		case ev := <-c.events:
			if c.handle(ctx, ev) {
				return
			}
		case <-ctx.Done():
			if c.drain(ctx) {
				return
			}
			c.handle(ctx, event{kind: eventDisconnect})
			return
		}
	}
}

// drain handles events already accepted by send without blocking, so
// utterances queued before cancellation still reach the handoff. It reports
// whether one of them ended the session.
func (c *Controller) drain(ctx context.Context) bool {
	for {
		select {
		case ev := <-c.events:
			if c.handle(ctx, ev) {
				return true
			}
		default:
			return false
		}
	}
}

func (c *Controller) handle(ctx context.Context, ev event) bool {
	switch ev.kind {
	case eventStart:
		c.activate()
		return false

	case eventUtterance:
		c.activate()
		if ev.partial {
			return false
		}
		u := transcript.Utterance{Role: ev.role, Text: ev.text, Timestamp: c.now()}
		if !c.acc.Append(u) {
			return false
		}
		c.logger.Debug("utterance appended",
			"event", "utterance_appended",
			"role", ev.role,
			"count", c.acc.Len(),
		)
		if c.hub != nil {
			c.hub.BroadcastUtterance(c.id, u)
		}
		if trig := c.detector.OnUtterance(u, false); trig != TriggerNone {
			c.finalize(ctx, trig)
			return true
		}
		return false

	case eventDisconnect:
		trig := c.detector.OnDisconnect(c.acc.Len())
		if trig == TriggerNone {
			c.discard()
			return true
		}
		c.finalize(ctx, trig)
		return true
	}
	return false
}

func (c *Controller) activate() {
	if c.state != StateIdle {
		return
	}
	c.state = StateActive
	c.logger.Info("session started", "event", "session_started")
	if c.hub != nil {
		c.hub.BroadcastSessionStarted(c.id, c.room)
	}
}

func (c *Controller) finalize(ctx context.Context, trig Trigger) {
	c.state = StateFinalized
	text := c.acc.Seal()

	out := Outcome{
		State:      StateFinalized,
		Trigger:    trig,
		Transcript: text,
		Utterances: c.acc.Len(),
	}

	resp, err := c.handoff.Deliver(context.WithoutCancel(ctx), c.id, text)
	if err != nil {
		out.Err = err
	} else {
		out.Delivered = true
		out.Duplicate = resp.Duplicate
	}

	c.logger.Info("session finalized",
		"event", "session_finalized",
		"trigger", string(trig),
		"utterances", out.Utterances,
		"delivered", out.Delivered,
	)
	if c.hub != nil {
		c.hub.BroadcastSessionFinalized(c.id, string(trig), out.Utterances, out.Delivered)
	}
	c.release(out)
}

func (c *Controller) discard() {
	c.state = StateDiscarded
	c.acc.Seal()
	c.logger.Info("session discarded with empty transcript", "event", "session_discarded")
	if c.hub != nil {
		c.hub.BroadcastSessionDiscarded(c.id)
	}
	c.release(Outcome{State: StateDiscarded})
}

func (c *Controller) release(out Outcome) {
	c.outcome = out
	if c.onRelease != nil {
		c.onRelease(c, out)
	}
}
