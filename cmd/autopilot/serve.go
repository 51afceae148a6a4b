package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autopilot/api"
	"autopilot/kafka"
	"autopilot/orchestrator"
	"autopilot/publisher"

	"github.com/spf13/cobra"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestrator loop, publisher and HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "HTTP API port (overrides PORT)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Server.Port = servePort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.log

	loop := orchestrator.NewLoop(a.executor, a.repo, a.state,
		orchestrator.WithLogger(log.WithField("component", "orchestrator")))
	if err := loop.Start(ctx); err != nil {
		return err
	}

	var sinks []publisher.Sink
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers)
		if err != nil {
			log.WithError(err).Warn("Kafka producer unavailable; posts will not be announced")
		} else {
			defer producer.Close()
			sinks = append(sinks, publisher.NewKafkaSink(producer, cfg.Kafka.PostsTopic))
		}

		consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.ControlTopic,
			GroupID: cfg.Kafka.GroupID,
			Handler: loop.ControlHandler(),
			Logger:  log.WithField("component", "kafka"),
		})
		if err != nil {
			log.WithError(err).Warn("Kafka control consumer unavailable")
		} else {
			defer consumer.Close()
			go func() {
				if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.WithError(err).Error("Failed to start Kafka consumer")
				}
			}()
		}
	}
	if path := cfg.Publish.YouTubeServiceAccount; path != "" {
		uploader, err := publisher.NewYouTubeUploader(ctx, path)
		if err != nil {
			log.WithError(err).Warn("YouTube publishing disabled")
		} else {
			sinks = append(sinks, publisher.NewYouTubeSink(uploader, log.WithField("component", "youtube")))
		}
	}

	dispatcher := publisher.NewDispatcher(a.repo, a.reporter, sinks,
		publisher.WithSchedule(cfg.Publish.Schedule),
		publisher.WithObserver(a.metrics),
		publisher.WithLogger(log.WithField("component", "publisher")),
	)
	if err := dispatcher.Start(ctx); err != nil {
		return err
	}

	server := api.NewServer(loop, a.state, a.repo, a.reporter,
		api.WithAssistant(a.client),
		api.WithMetrics(a.metrics),
		api.WithLogger(log.WithField("component", "api")),
	)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", httpServer.Addr).Info("Starting API server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err := <-errCh:
		log.WithError(err).Error("API server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown error")
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("Publisher did not stop cleanly")
	}
	if err := loop.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Cycle still running at shutdown")
	}
	log.Info("Server stopped")
	return nil
}
