package delete_conversation

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	resp "github.com/carlos-dev-research/web-rag-chatbot/internal/lib/api/response"
	sl "github.com/carlos-dev-research/web-rag-chatbot/internal/lib/logger/sl"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/session"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

const msgDeleted = "Conversation deleted successfully"

type Request struct {
	User           string `validate:"required"`
	Token          string `validate:"required"`
	ConversationID string `validate:"required"`
}

type SessionOpener interface {
	Open(ctx context.Context, user, token string) (*session.Session, error)
}

// New deletes one conversation. Deleting an id that is absent or owned by
// another user answers exactly like a bad token.
func New(
	log *slog.Logger,
	validate *validator.Validate,
	sessions SessionOpener,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.delete_conversation.New"

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
		if err == nil {
			err = sess.DeleteConversation(r.Context(), req.ConversationID)
		}

		switch {
		case err == nil:
			render.JSON(w, r, resp.OK(msgDeleted))
		case errors.Is(err, session.ErrUnauthorized), errors.Is(err, session.ErrNotFound):
			resp.Render(w, r, http.StatusUnauthorized, resp.MsgUnauthorized)
		default:
			log.Error("failed to delete conversation", sl.Err(err))
			resp.Render(w, r, http.StatusInternalServerError, resp.MsgInternal)
		}
	}
}
