package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/carlos-dev-research/web-rag-chatbot/internal/auth"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/chat"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/config"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/http_server"
	sl "github.com/carlos-dev-research/web-rag-chatbot/internal/lib/logger/sl"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/llm"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/rabbitmq"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/session"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/storage/memory"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/storage/postgres"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/transcribe"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/uploads"

	"github.com/spf13/cobra"
)

type store interface {
	auth.UserSaver
	auth.UserProvider
	auth.TokenSaver
	session.Conversations
	Close()
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := resolveConfigPath(*configPath)
			if err != nil {
				return err
			}

			cfg := config.MustLoad(path)

			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := setupLogger(cfg.Env)

	log.Info("starting assistant", slog.String("env", cfg.Env), slog.String("storage", cfg.Storage.Driver))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	storage, err := openStore(ctx, log, cfg)
	if err != nil {
		log.Error("failed to open storage", sl.Err(err))
		return err
	}
	defer storage.Close()

	var publisher http_server.Publisher = rabbitmq.LogPublisher{Log: log}
	if cfg.RabbitMQ.URL != "" {
		msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
		if err != nil {
			log.Error("failed to connect rabbitmq", sl.Err(err))
			return err
		}
		defer msgBroker.Close()

		publisher = msgBroker
	} else {
		log.Warn("rabbitmq url is empty, account events are only logged")
	}

	provider, err := llm.NewProvider(cfg.Model)
	if err != nil {
		return err
	}
	model := llm.New(provider, cfg.Model.SystemPrompt, cfg.Model.MaxTokens, modelOptions(log, cfg.Model)...)

	authService := auth.New(log, storage, storage, storage, cfg.Tokens.Secret)
	sessions := session.NewFactory(authService, storage)

	router := http_server.NewRouter(log, cfg, http_server.Services{
		Auth:        authService,
		Sessions:    sessions,
		Chat:        chat.New(log, sessions, model, cfg.Model.SaveTimeout),
		Uploads:     uploads.New(cfg.Uploads.Dir, cfg.Uploads.MaxAge),
		Transcriber: newTranscriber(cfg),
		Publisher:   publisher,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running", slog.String("address", srv.Addr), slog.String("model", model.Name()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", sl.Err(err))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", sl.Err(err))
	} else {
		log.Info("Server stopped gracefully")
	}

	return nil
}

func openStore(ctx context.Context, log *slog.Logger, cfg *config.Config) (store, error) {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		log.Warn("using in-memory storage, data is lost on restart")
		return memory.New(), nil
	case config.StoragePostgres:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		storage, err := postgres.New(connectCtx, cfg.Postgres)
		if err != nil {
			return nil, err
		}

		if cfg.Postgres.AutoMigrate {
			if err := storage.Migrate(ctx); err != nil {
				storage.Close()
				return nil, err
			}
			log.Info("migrations applied")
		}

		return storage, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func modelOptions(log *slog.Logger, cfg config.Model) []llm.Option {
	counter, err := llm.NewTiktokenCounter(cfg.TokenEncoding)
	if err != nil {
		log.Warn("token encoding unavailable, estimating chat memory size", sl.Err(err))
		counter = llm.EstimateTokens
	}

	opts := []llm.Option{llm.WithMemory(cfg.MemoryTokens, counter)}

	docs, err := llm.LoadDocuments(cfg.DataDir, cfg.ContextMaxBytes)
	if err != nil {
		log.Warn("failed to load documents, replies are not grounded", sl.Err(err))
		return opts
	}
	if docs != "" {
		log.Info("documents loaded", slog.String("dir", cfg.DataDir), slog.Int("bytes", len(docs)))
		opts = append(opts, llm.WithDocuments(docs))
	}

	return opts
}

// newTranscriber reuses the model endpoint when no transcription endpoint is set.
func newTranscriber(cfg *config.Config) *transcribe.Whisper {
	apiKey := cfg.Transcription.APIKey
	if apiKey == "" {
		apiKey = cfg.Model.APIKey
	}
	baseURL := cfg.Transcription.BaseURL
	if baseURL == "" && cfg.Model.Provider == config.ProviderOpenAI {
		baseURL = cfg.Model.BaseURL
	}

	return transcribe.NewWhisper(apiKey, baseURL, cfg.Transcription.Model)
}
