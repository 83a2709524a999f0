package conversation

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	resp "github.com/carlos-dev-research/web-rag-chatbot/internal/lib/api/response"
	sl "github.com/carlos-dev-research/web-rag-chatbot/internal/lib/logger/sl"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/models"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/session"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	User           string `validate:"required"`
	Token          string `validate:"required"`
	ConversationID string `validate:"required"`
}

type Response struct {
	ConversationID string        `json:"conversation_id"`
	Conversation   []models.Turn `json:"conversation"`
}

type SessionOpener interface {
	Open(ctx context.Context, user, token string) (*session.Session, error)
}

// New serves a stored conversation. A conversation that is missing or
// belongs to someone else is reported as an internal error, never as a
// distinct "not found".
func New(
	log *slog.Logger,
	validate *validator.Validate,
	sessions SessionOpener,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.conversation.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		q := r.URL.Query()
		req := Request{
			User:           q.Get("user"),
			Token:          q.Get("token"),
			ConversationID: q.Get("conversation_id"),
		}

		if err := validate.Struct(req); err != nil {
			log.Info("Invalid request", sl.Err(err))
			resp.Render(w, r, http.StatusBadRequest, resp.MsgBadInput)

			return
		}

		sess, err := sessions.Open(r.Context(), req.User, req.Token)
		if err != nil {
			if errors.Is(err, session.ErrUnauthorized) {
				resp.Render(w, r, http.StatusUnauthorized, resp.MsgUnauthorized)
				return
			}

			log.Error("failed to open session", sl.Err(err))
			resp.Render(w, r, http.StatusInternalServerError, resp.MsgInternal)

			return
		}

		conv, err := sess.ReadConversation(r.Context(), req.ConversationID)
		if err != nil {
			if errors.Is(err, session.ErrUnauthorized) {
				resp.Render(w, r, http.StatusUnauthorized, resp.MsgUnauthorized)
				return
			}

			log.Error("failed to read conversation", sl.Err(err))
			resp.Render(w, r, http.StatusInternalServerError, resp.MsgInternal)

			return
		}

		if conv.Turns == nil {
			conv.Turns = []models.Turn{}
		}

		render.JSON(w, r, Response{
			ConversationID: conv.ID,
			Conversation:   conv.Turns,
		})
	}
}
