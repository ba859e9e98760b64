package handoff

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sjawhar/ghost-interviewer/internal/interview"
	"github.com/sjawhar/ghost-interviewer/internal/storage"
)

const (
	CompletePath   = "/api/webhooks/interview-complete"
	SecretHeader   = "X-Webhook-Secret"
	DefaultTimeout = 30 * time.Second
)

// ErrRejected wraps any non-2xx answer from the durable layer.
var ErrRejected = errors.New("handoff rejected")

// Request is the body of a transcript handoff.
type Request struct {
	InterviewID string `json:"interview_id" validate:"required"`
	Transcript  string `json:"transcript" validate:"required"`
}

// Response is the durable layer's answer. Duplicate is true when the
// interview had already been committed and nothing changed.
type Response struct {
	InterviewID string           `json:"interview_id"`
	Status      interview.Status `json:"status"`
	Duplicate   bool             `json:"duplicate"`
}

type Option func(*options)

type options struct {
	timeout    time.Duration
	secret     string
	httpClient *http.Client
	logger     *slog.Logger
	notify     func(interview.Interview)
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithSecret(secret string) Option {
	return func(o *options) {
		o.secret = secret
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithNotify registers a callback run after a fresh in-process commit.
func WithNotify(fn func(interview.Interview)) Option {
	return func(o *options) {
		o.notify = fn
	}
}

func buildOptions(opts []Option) options {
	o := options{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{}
	}
	return o
}

// HTTP hands transcripts to the durable layer's webhook. Each Deliver is a
// single attempt bounded by the configured timeout.
type HTTP struct {
	url string
	o   options
}

func NewHTTP(baseURL string, opts ...Option) *HTTP {
	return &HTTP{
		url: strings.TrimRight(baseURL, "/") + CompletePath,
		o:   buildOptions(opts),
	}
}

func (h *HTTP) Deliver(ctx context.Context, interviewID, transcript string) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, h.o.timeout)
	defer cancel()

	resp, err := h.post(ctx, interviewID, transcript)
	logResult(h.o.logger, interviewID, len(transcript), resp, err)
	return resp, err
}

func (h *HTTP) post(ctx context.Context, interviewID, transcript string) (Response, error) {
	body, err := json.Marshal(Request{InterviewID: interviewID, Transcript: transcript})
	if err != nil {
		return Response{}, fmt.Errorf("marshal handoff: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build handoff request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.o.secret != "" {
		req.Header.Set(SecretHeader, h.o.secret)
	}

	res, err := h.o.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("post handoff: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return Response{}, fmt.Errorf("read handoff response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return Response{}, fmt.Errorf("%w: status %d: %s", ErrRejected, res.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out Response
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return Response{}, fmt.Errorf("decode handoff response: %w", err)
		}
	}
	if out.InterviewID == "" {
		out.InterviewID = interviewID
	}
	return out, nil
}

// Committer is the durable commit the in-process handoff calls directly.
type Committer interface {
	CommitTranscript(ctx context.Context, id, text string) (interview.Interview, error)
}

// Local commits in the same process, for single-binary deployments.
type Local struct {
	store Committer
	o     options
}

func NewLocal(store Committer, opts ...Option) *Local {
	return &Local{store: store, o: buildOptions(opts)}
}

func (l *Local) Deliver(ctx context.Context, interviewID, transcript string) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, l.o.timeout)
	defer cancel()

	iv, err := l.store.CommitTranscript(ctx, interviewID, transcript)
	var resp Response
	switch {
	case err == nil:
		resp = Response{InterviewID: iv.ID, Status: iv.Status}
		if l.o.notify != nil {
			l.o.notify(iv)
		}
	case errors.Is(err, storage.ErrAlreadyCommitted):
		resp = Response{InterviewID: iv.ID, Status: iv.Status, Duplicate: true}
		err = nil
	default:
		err = fmt.Errorf("%w: %w", ErrRejected, err)
	}

	logResult(l.o.logger, interviewID, len(transcript), resp, err)
	return resp, err
}

func logResult(logger *slog.Logger, interviewID string, size int, resp Response, err error) {
	switch {
	case err != nil:
		logger.Error("transcript handoff failed",
			"interview_id", interviewID,
			"event", "handoff_failed",
			"transcript_bytes", size,
			"error", err,
		)
	case resp.Duplicate:
		logger.Info("transcript handoff already committed",
			"interview_id", interviewID,
			"event", "handoff_duplicate",
			"status", resp.Status,
		)
	default:
		logger.Info("transcript handed off",
			"interview_id", interviewID,
			"event", "handoff_delivered",
			"status", resp.Status,
			"transcript_bytes", size,
		)
	}
}
