package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/carlos-dev-research/web-rag-chatbot/internal/config"
	sl "github.com/carlos-dev-research/web-rag-chatbot/internal/lib/logger/sl"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/rabbitmq"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/uploads"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/worker"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the config file")
	flag.Parse()

	cfg := config.MustLoadWorker(*configPath)
	log := setupLogger(cfg.Env)

	log.Info("Starting worker", slog.String("env", cfg.Env), slog.String("queue", cfg.RabbitMQ.QueueName))

	if err := startConsumer(ctx, cfg, log); err != nil {
		log.Error("failed to init rabbitmq", sl.Err(err))
		os.Exit(1)
	}
}

func startConsumer(ctx context.Context, cfg *config.Worker, log *slog.Logger) error {
	r, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		return err
	}
	defer r.Close()

	h := worker.New(log, uploads.New(cfg.Uploads.Dir, cfg.Uploads.MaxAge))

	done := make(chan struct{})

	go func() {
		defer close(done)

		if err := r.StartReading(ctx, h.Handle); err != nil {
			log.Error("consumer stopped", sl.Err(err))
		}
	}()

	log.Info("consumer successfully started")

	select {
	case <-ctx.Done():
		log.Info("shutting down consumer...")
		<-done
	case <-done:
		log.Info("consumer finished the work")
	}

	log.Info("worker gracefully stopped")

	return nil
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
