// Package worker reacts to account lifecycle events published by the API.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	sl "github.com/carlos-dev-research/web-rag-chatbot/internal/lib/logger/sl"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/models"
)

type UploadPurger interface {
	Purge(user string) error
}

type Handler struct {
	log     *slog.Logger
	uploads UploadPurger
}

func New(log *slog.Logger, uploads UploadPurger) *Handler {
	return &Handler{log: log, uploads: uploads}
}

// Handle decodes one event. Malformed messages are logged and dropped.
func (h *Handler) Handle(_ context.Context, body []byte) error {
	const op = "worker.Handle"

	log := h.log.With(slog.String("op", op))

	var event models.AccountEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Error("failed to unmarshal message", sl.Err(err))
		return nil
	}

	log = log.With(slog.String("type", event.Type), slog.String("user", event.User))

	switch event.Type {
	case models.EventUserDeleted:
		if err := h.uploads.Purge(event.User); err != nil {
			log.Error("failed to purge uploads", sl.Err(err))
			return fmt.Errorf("%s: %w", op, err)
		}
		log.Info("uploads purged")
	case models.EventUserRegistered:
		log.Info("user registered")
	default:
		log.Warn("unknown event type")
	}

	return nil
}
