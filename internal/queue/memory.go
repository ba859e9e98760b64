package queue

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process queue with the same delivery contract as the
// broker: at-least-once, retries redelivered after a fixed delay.
type Memory struct {
	retryDelay time.Duration

	mu        sync.Mutex
	ready     []Delivery
	delayed   int
	published int
	notify    chan struct{}
}

func NewMemory(retryDelay time.Duration) *Memory {
	return &Memory{
		retryDelay: retryDelay,
		notify:     make(chan struct{}, 1),
	}
}

func (m *Memory) Publish(_ context.Context, job Job) error {
	if _, err := encodeJob(job); err != nil {
		return err
	}
	m.mu.Lock()
	m.published++
	m.ready = append(m.ready, Delivery{Job: job, Attempt: 1})
	m.mu.Unlock()
	m.wake()
	return nil
}

// Depth counts deliveries that are ready or waiting out a retry delay.
func (m *Memory) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ready) + m.delayed
}

// Published counts every Publish call, not redeliveries.
func (m *Memory) Published() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published
}

func (m *Memory) Consume(ctx context.Context, h Handler) error {
	for {
		d, ok := m.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-m.notify:
				continue
			}
		}

		if h(ctx, d) == Retry {
			m.scheduleRetry(Delivery{Job: d.Job, Attempt: d.Attempt + 1})
		}
	}
}

func (m *Memory) pop() (Delivery, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ready) == 0 {
		return Delivery{}, false
	}
	d := m.ready[0]
	m.ready = m.ready[1:]
	return d, true
}

func (m *Memory) scheduleRetry(d Delivery) {
	m.mu.Lock()
	m.delayed++
	m.mu.Unlock()

	time.AfterFunc(m.retryDelay, func() {
		m.mu.Lock()
		m.delayed--
		m.ready = append(m.ready, d)
		m.mu.Unlock()
		m.wake()
	})
}

func (m *Memory) wake() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}
