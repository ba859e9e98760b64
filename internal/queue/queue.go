package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Job is an evaluation request. It carries only the interview id; the
// worker re-reads current state on every delivery.
type Job struct {
	InterviewID string `json:"interview_id"`
}

// Delivery is one at-least-once delivery of a Job. Attempt starts at 1.
type Delivery struct {
	Job     Job
	Attempt int
}

// Disposition is the consumer's verdict on a delivery.
type Disposition int

const (
	// Ack removes the delivery: done, or dropped as permanent.
	Ack Disposition = iota
	// Retry schedules another attempt after the queue's retry delay.
	Retry
	// Abandon removes the delivery after the final failed attempt.
	Abandon
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Retry:
		return "retry"
	case Abandon:
		return "abandon"
	default:
		return fmt.Sprintf("disposition(%d)", int(d))
	}
}

type Handler func(ctx context.Context, d Delivery) Disposition

type Publisher interface {
	Publish(ctx context.Context, job Job) error
}

type Consumer interface {
	// Consume blocks, handing deliveries to h until ctx is done.
	Consume(ctx context.Context, h Handler) error
}

func encodeJob(job Job) ([]byte, error) {
	if strings.TrimSpace(job.InterviewID) == "" {
		return nil, fmt.Errorf("job has no interview id")
	}
	body, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	return body, nil
}

func decodeJob(body []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return Job{}, fmt.Errorf("invalid job format: %w", err)
	}
	if strings.TrimSpace(job.InterviewID) == "" {
		return Job{}, fmt.Errorf("invalid job format: missing interview_id")
	}
	return job, nil
}
