package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sjawhar/ghost-interviewer/internal/interview"
)

type Config struct {
	Detector   *Detector
	Handoff    Handoff
	Hub        EventBroadcaster
	Logger     *slog.Logger
	RoomPrefix string
}

// Manager owns one Controller per live room. A room that finalized is
// never reopened, so a reconnecting agent cannot hand off twice.
type Manager struct {
	detector   *Detector
	handoff    Handoff
	hub        EventBroadcaster
	logger     *slog.Logger
	roomPrefix string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*Controller
	finished map[string]struct{}
	closing  bool
}

func NewManager(cfg Config) *Manager {
	if cfg.Detector == nil {
		cfg.Detector = NewDetector("")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RoomPrefix == "" {
		cfg.RoomPrefix = "interview-"
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		detector:   cfg.Detector,
		handoff:    cfg.Handoff,
		hub:        cfg.Hub,
		logger:     cfg.Logger,
		roomPrefix: cfg.RoomPrefix,
		ctx:        ctx,
		cancel:     cancel,
		sessions:   make(map[string]*Controller),
		finished:   make(map[string]struct{}),
	}
}

// Open returns the live controller for room, starting one if needed.
func (m *Manager) Open(room string) (*Controller, error) {
	id, ok := interview.IDFromRoom(m.roomPrefix, room)
	if !ok {
		return nil, fmt.Errorf("%w: room %q", ErrUnknownSession, room)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closing {
		return nil, ErrSessionClosed
	}
	if _, done := m.finished[room]; done {
		return nil, fmt.Errorf("%w: room %q already finalized", ErrSessionClosed, room)
	}
	if c, ok := m.sessions[room]; ok {
		return c, nil
	}

	c := NewController(ControllerConfig{
		InterviewID: id,
		Room:        room,
		Detector:    m.detector,
		Handoff:     m.handoff,
		Hub:         m.hub,
		Logger:      m.logger,
		OnRelease:   m.release,
	})
	m.sessions[room] = c

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		c.Run(m.ctx)
	}()
	return c, nil
}

func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) release(c *Controller, out Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[c.Room()] == c {
		delete(m.sessions, c.Room())
	}
	if out.State == StateFinalized {
		m.finished[c.Room()] = struct{}{}
	}
}

// Shutdown stops accepting sessions, disconnects every live one and waits
// for their handoffs. If ctx expires first the remaining sessions are
// cancelled, which still finalizes them, and ctx.Err() is returned.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	live := make([]*Controller, 0, len(m.sessions))
	for _, c := range m.sessions {
		live = append(live, c)
	}
	m.mu.Unlock()

	m.logger.Info("session manager shutting down", "event", "shutdown", "live_sessions", len(live))
	for _, c := range live {
		if err := c.disconnect(ctx); err != nil && ctx.Err() != nil {
			break
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		return ctx.Err()
	}
}
