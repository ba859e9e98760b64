package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/sjawhar/ghost-interviewer/internal/config"
	"github.com/sjawhar/ghost-interviewer/internal/evaluation"
	"github.com/sjawhar/ghost-interviewer/internal/gdrive"
	"github.com/sjawhar/ghost-interviewer/internal/handoff"
	"github.com/sjawhar/ghost-interviewer/internal/interview"
	"github.com/sjawhar/ghost-interviewer/internal/llm"
	"github.com/sjawhar/ghost-interviewer/internal/outbox"
	"github.com/sjawhar/ghost-interviewer/internal/queue"
	"github.com/sjawhar/ghost-interviewer/internal/scoring"
	"github.com/sjawhar/ghost-interviewer/internal/server"
	"github.com/sjawhar/ghost-interviewer/internal/session"
	"github.com/sjawhar/ghost-interviewer/internal/storage"
)

const sessionDrainTimeout = 45 * time.Second

type jobQueue interface {
	queue.Publisher
	queue.Consumer
}

// app holds what every command shares. Components are built lazily so a
// command only opens what it uses.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	hub    *server.Hub

	store   *storage.SQLiteStore
	queue   jobQueue
	durable bool
	closers []func()
}

func newApp() (*app, error) {
	cfg, warnings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	for _, w := range warnings {
		logger.Warn(w, "event", "config_warning")
	}

	return &app{cfg: cfg, logger: logger, hub: server.NewHub(logger)}, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) openStore() (*storage.SQLiteStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, err := storage.NewSQLiteStore(a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, func() { _ = store.Close() })
	return store, nil
}

// openQueue dials RabbitMQ when a broker URL is configured and falls back to
// an in-process queue otherwise.
func (a *app) openQueue() (jobQueue, error) {
	if a.queue != nil {
		return a.queue, nil
	}
	if a.cfg.RabbitMQURL == "" {
		a.queue = queue.NewMemory(a.cfg.ParsedRetryDelay())
		return a.queue, nil
	}
	rmq, err := queue.DialRabbitMQ(a.cfg.RabbitMQURL, a.cfg.QueueName, a.cfg.ParsedRetryDelay(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq init failed: %w", err)
	}
	a.queue = rmq
	a.durable = true
	a.closers = append(a.closers, func() { _ = rmq.Close() })
	return rmq, nil
}

func (a *app) newRelay(store *storage.SQLiteStore, q jobQueue) *outbox.Relay {
	return outbox.NewRelay(store, q,
		outbox.WithPollInterval(a.cfg.ParsedOutboxPollInterval()),
		outbox.WithBatchSize(a.cfg.OutboxBatchSize),
		outbox.WithLogger(a.logger),
	)
}

func (a *app) newScorer() *scoring.Scorer {
	keys := llm.Keys{
		llm.ProviderGemini:    a.cfg.GeminiAPIKey,
		llm.ProviderOpenAI:    a.cfg.OpenAIAPIKey,
		llm.ProviderAnthropic: a.cfg.AnthropicAPIKey,
	}
	return scoring.New(a.cfg.ScoringModel, keys.Factory(
		llm.WithJSONOutput(),
		llm.WithTemperature(scoring.Temperature),
		llm.WithMaxTokens(scoring.MaxTokens),
	))
}

func (a *app) newWorker(ctx context.Context, store *storage.SQLiteStore, scorer *scoring.Scorer) *evaluation.Worker {
	opts := []evaluation.Option{
		evaluation.WithMaxAttempts(a.cfg.MaxAttempts),
		evaluation.WithLogger(a.logger),
		evaluation.WithArchiver(storage.NewWriter(a.cfg.ReportDir)),
		evaluation.WithNotify(a.hub.BroadcastInterviewEvaluated),
	}
	if a.cfg.GDriveFolderID != "" {
		exporter, err := gdrive.NewExporter(ctx, a.cfg.GoogleCredentialsFile, a.cfg.GDriveFolderID, storage.RenderMarkdown)
		if err != nil {
			a.logger.Warn("drive export disabled", "event", "gdrive_disabled", "error", err)
		} else {
			opts = append(opts, evaluation.WithArchiver(exporter))
		}
	}
	return evaluation.NewWorker(store, scorer, opts...)
}

// newLocalHandoff commits straight to the store and wakes the relay so the
// evaluation job is published without waiting for the next poll.
func (a *app) newLocalHandoff(store *storage.SQLiteStore, relay *outbox.Relay) *handoff.Local {
	return handoff.NewLocal(store,
		handoff.WithLogger(a.logger),
		handoff.WithNotify(func(iv interview.Interview) {
			a.hub.BroadcastInterviewCompleted(iv)
			relay.Kick()
		}),
	)
}

func (a *app) newSessionManager(h session.Handoff) *session.Manager {
	manager := session.NewManager(session.Config{
		Detector:   session.NewDetector(a.cfg.SentinelMarker),
		Handoff:    h,
		Hub:        a.hub,
		Logger:     a.logger,
		RoomPrefix: a.cfg.RoomPrefix,
	})
	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sessionDrainTimeout)
		defer cancel()
		if err := manager.Shutdown(ctx); err != nil {
			a.logger.Warn("session shutdown incomplete", "event", "shutdown", "error", err)
		}
	})
	return manager
}

// audioDialer enables binary audio frames on the session ingress when a
// Deepgram key is configured.
func (a *app) audioDialer() server.AudioDialer {
	if a.cfg.DeepgramAPIKey == "" {
		return nil
	}
	client.Init(client.InitLib{LogLevel: client.LogLevelDefault})
	return session.DeepgramDialer{
		APIKey:     a.cfg.DeepgramAPIKey,
		Model:      a.cfg.DeepgramModel,
		SampleRate: a.cfg.AudioSampleRate,
		Logger:     a.logger,
	}
}
