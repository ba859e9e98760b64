package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const attemptHeader = "x-attempt"

// RabbitMQ is a durable work queue plus a retry queue. Retried messages sit
// in the retry queue until their per-message expiration and are
// dead-lettered back onto the work queue by the broker. The delay lives on
// each message, so changing it never conflicts with the declared queue.
type RabbitMQ struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	queue      string
	retryQueue string
	retryDelay time.Duration
	logger     *slog.Logger

	publishMu sync.Mutex
}

func DialRabbitMQ(url, queue string, retryDelay time.Duration, logger *slog.Logger) (*RabbitMQ, error) {
	if url == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	if queue == "" {
		queue = "evaluation_jobs"
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	r := &RabbitMQ{
		conn:       conn,
		ch:         ch,
		queue:      queue,
		retryQueue: queue + ".retry",
		retryDelay: retryDelay,
		logger:     logger,
	}
	if err := r.declare(); err != nil {
		_ = r.Close()
		return nil, err
	}

	logger.Info("connected to rabbitmq", "queue", queue, "retry_queue", r.retryQueue, "retry_delay", retryDelay)
	return r, nil
}

func (r *RabbitMQ) declare() error {
	if _, err := r.ch.QueueDeclare(
		r.queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", r.queue, err)
	}

	if _, err := r.ch.QueueDeclare(
		r.retryQueue,
		true,
		false,
		false,
		false,
		retryQueueArgs(r.queue),
	); err != nil {
		return fmt.Errorf("declare retry queue %s: %w", r.retryQueue, err)
	}
	return nil
}

func retryQueueArgs(workQueue string) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": workQueue,
	}
}

// newPublishing builds a persistent job message. A positive delay sets the
// expiration that holds it in the retry queue.
func newPublishing(body []byte, attempt int, delay time.Duration) amqp.Publishing {
	msg := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{attemptHeader: int32(attempt)},
	}
	if delay > 0 {
		ms := delay.Milliseconds()
		if ms < 1 {
			ms = 1
		}
		msg.Expiration = strconv.FormatInt(ms, 10)
	}
	return msg
}

func (r *RabbitMQ) Close() error {
	var errs []error
	if r.ch != nil {
		errs = append(errs, r.ch.Close())
	}
	if r.conn != nil {
		errs = append(errs, r.conn.Close())
	}
	return errors.Join(errs...)
}

func (r *RabbitMQ) Publish(ctx context.Context, job Job) error {
	return r.publish(ctx, r.queue, job, 1, 0)
}

func (r *RabbitMQ) publish(ctx context.Context, routingKey string, job Job, attempt int, delay time.Duration) error {
	body, err := encodeJob(job)
	if err != nil {
		return err
	}

	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	if err := r.ch.PublishWithContext(
		ctx,
		"", // default exchange
		routingKey,
		false, // mandatory
		false, // immediate
		newPublishing(body, attempt, delay),
	); err != nil {
		return fmt.Errorf("publish job for interview %s to %s: %w", job.InterviewID, routingKey, err)
	}
	return nil
}

// Consume processes one delivery at a time with manual acks. A Retry
// disposition republishes to the retry queue before acking the original,
// so a crash in between yields a duplicate rather than a lost job.
func (r *RabbitMQ) Consume(ctx context.Context, h Handler) error {
	if err := r.ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := r.ch.ConsumeWithContext(
		ctx,
		r.queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	r.logger.Info("rabbitmq consumer started", "queue", r.queue)
	defer r.logger.Info("rabbitmq consumer stopped", "queue", r.queue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("rabbitmq delivery channel closed")
			}
			r.handle(ctx, msg, h)
		}
	}
}

func (r *RabbitMQ) handle(ctx context.Context, msg amqp.Delivery, h Handler) {
	job, err := decodeJob(msg.Body)
	if err != nil {
		r.logger.Error("dropping malformed job", "event", "job_malformed", "error", err)
		if err := msg.Ack(false); err != nil {
			r.logger.Error("ack failed", "error", err)
		}
		return
	}

	d := Delivery{Job: job, Attempt: attemptFromHeaders(msg.Headers)}
	switch h(ctx, d) {
	case Retry:
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		err := r.publish(pubCtx, r.retryQueue, job, d.Attempt+1, r.retryDelay)
		cancel()
		if err != nil {
			r.logger.Error("schedule retry failed, requeueing",
				"interview_id", job.InterviewID,
				"event", "retry_publish_failed",
				"error", err,
			)
			if err := msg.Nack(false, true); err != nil {
				r.logger.Error("nack failed", "error", err)
			}
			return
		}
		fallthrough
	default:
		if err := msg.Ack(false); err != nil {
			r.logger.Error("ack failed", "interview_id", job.InterviewID, "error", err)
		}
	}
}

func attemptFromHeaders(headers amqp.Table) int {
	raw, ok := headers[attemptHeader]
	if !ok {
		return 1
	}
	var n int
	switch v := raw.(type) {
	case int32:
		n = int(v)
	case int64:
		n = int(v)
	case int:
		n = v
	case int16:
		n = int(v)
	case string:
		n, _ = strconv.Atoi(v)
	}
	if n < 1 {
		return 1
	}
	return n
}
