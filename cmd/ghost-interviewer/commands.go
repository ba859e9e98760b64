package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sjawhar/ghost-interviewer/internal/config"
	"github.com/sjawhar/ghost-interviewer/internal/handoff"
	"github.com/sjawhar/ghost-interviewer/internal/recovery"
	"github.com/sjawhar/ghost-interviewer/internal/server"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the API, session ingress, outbox relay and evaluation worker in one process",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			q, err := a.openQueue()
			if err != nil {
				return err
			}
			relay := a.newRelay(store, q)
			scorer := a.newScorer()
			worker := a.newWorker(ctx, store, scorer)
			local := a.newLocalHandoff(store, relay)
			manager := a.newSessionManager(local)

			handler := server.Handler(server.Deps{
				Store:      store,
				Commit:     local,
				Recovery:   recovery.NewSweeper(store, relay, a.cfg.RoomPrefix, a.logger),
				Skills:     scorer,
				Sessions:   manager,
				Audio:      a.audioDialer(),
				Hub:        a.hub,
				Secret:     a.cfg.WebhookSecret,
				RoomPrefix: a.cfg.RoomPrefix,
				Logger:     a.logger,
			})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return relay.Run(gctx) })
			g.Go(func() error { return q.Consume(gctx, worker.Handle) })
			g.Go(func() error { return server.Serve(gctx, a.cfg.ListenAddr, handler, a.logger) })
			return g.Wait()
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the interview API, webhooks and outbox relay",
	Long:  "Run the interview API, webhooks and outbox relay. Without a RabbitMQ URL the evaluation worker also runs in-process.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			q, err := a.openQueue()
			if err != nil {
				return err
			}
			relay := a.newRelay(store, q)
			scorer := a.newScorer()
			local := a.newLocalHandoff(store, relay)

			handler := server.Handler(server.Deps{
				Store:      store,
				Commit:     local,
				Recovery:   recovery.NewSweeper(store, relay, a.cfg.RoomPrefix, a.logger),
				Skills:     scorer,
				Hub:        a.hub,
				Secret:     a.cfg.WebhookSecret,
				RoomPrefix: a.cfg.RoomPrefix,
				Logger:     a.logger,
			})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return relay.Run(gctx) })
			if !a.durable {
				worker := a.newWorker(ctx, store, scorer)
				a.logger.Info("no broker configured, evaluating in-process", "event", "worker_inprocess")
				g.Go(func() error { return q.Consume(gctx, worker.Handle) })
			}
			g.Go(func() error { return server.Serve(gctx, a.cfg.ListenAddr, handler, a.logger) })
			return g.Wait()
		})
	},
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the session ingress and hand transcripts off to the backend over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			remote := handoff.NewHTTP(a.cfg.BackendURL,
				handoff.WithTimeout(a.cfg.ParsedHandoffTimeout()),
				handoff.WithSecret(a.cfg.WebhookSecret),
				handoff.WithLogger(a.logger),
			)
			manager := a.newSessionManager(remote)

			handler := server.Handler(server.Deps{
				Sessions:   manager,
				Audio:      a.audioDialer(),
				Hub:        a.hub,
				RoomPrefix: a.cfg.RoomPrefix,
				Logger:     a.logger,
			})
			return server.Serve(ctx, a.cfg.GatewayAddr, handler, a.logger)
		})
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume evaluation jobs from RabbitMQ and write reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if a.cfg.RabbitMQURL == "" {
				return errors.New("worker needs a broker; set " + config.EnvPrefix + "RABBITMQ_URL")
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			q, err := a.openQueue()
			if err != nil {
				return err
			}
			worker := a.newWorker(ctx, store, a.newScorer())
			a.logger.Info("evaluation worker started", "event", "worker_started", "queue", a.cfg.QueueName)
			return q.Consume(ctx, worker.Handle)
		})
	},
}

// withApp builds the shared app, runs fn until SIGINT or SIGTERM and then
// releases everything fn opened in reverse order.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.logger.Info("ghost-interviewer starting", "event", "startup", "command", cmd.Name())
	err = fn(ctx, a)
	a.logger.Info("ghost-interviewer shutting down", "event", "shutdown", "command", cmd.Name())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
