package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sjawhar/ghost-interviewer/internal/handoff"
	"github.com/sjawhar/ghost-interviewer/internal/recovery"
	"github.com/sjawhar/ghost-interviewer/internal/session"
	"github.com/sjawhar/ghost-interviewer/internal/storage"
	"github.com/sjawhar/ghost-interviewer/internal/transcript"
)

// Committer is the durable side of a transcript handoff.
type Committer interface {
	Deliver(ctx context.Context, interviewID, transcript string) (handoff.Response, error)
}

type RoomEventHandler interface {
	OnRoomEvent(ctx context.Context, ev recovery.RoomEvent) (storage.RequeueOutcome, error)
}

type SkillExtractor interface {
	ExtractSkills(ctx context.Context, role, jobDescription string) ([]string, error)
}

type SessionOpener interface {
	Open(room string) (*session.Controller, error)
}

// AudioDialer opens a live transcription stream that feeds sink.
type AudioDialer interface {
	Dial(ctx context.Context, sink session.UtteranceSink, role transcript.Role) (session.AudioStream, error)
}

// Deps selects which surfaces Handler mounts. A nil Store skips the
// interview API and webhooks; a nil Sessions skips the session ingress.
type Deps struct {
	Store      Store
	Commit     Committer
	Recovery   RoomEventHandler
	Skills     SkillExtractor
	Sessions   SessionOpener
	Audio      AudioDialer
	Hub        *Hub
	Secret     string
	RoomPrefix string
	Logger     *slog.Logger
}

func Handler(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Hub == nil {
		d.Hub = NewHub(d.Logger)
	}
	if d.RoomPrefix == "" {
		d.RoomPrefix = "interview-"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	registerWSRoute(mux, d.Hub, d.Logger)
	if d.Store != nil {
		registerAPIRoutes(mux, d)
		registerWebhookRoutes(mux, d)
	}
	if d.Sessions != nil {
		registerSessionRoute(mux, d)
	}
	return mux
}

// Serve runs the HTTP server until ctx is done, then shuts it down.
func Serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", "error", err)
		return err
	}
	logger.Info("http server stopped", "addr", addr)
	return nil
}
