package delete_user

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	resp "github.com/carlos-dev-research/web-rag-chatbot/internal/lib/api/response"
	sl "github.com/carlos-dev-research/web-rag-chatbot/internal/lib/logger/sl"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/models"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/session"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

const msgDeleted = "User deleted successfully"

type Request struct {
	User     string `validate:"required"`
	Token    string `validate:"required"`
	Password string `validate:"required"`
}

type SessionOpener interface {
	Open(ctx context.Context, user, token string) (*session.Session, error)
}

type Publisher interface {
	Publish(ctx context.Context, event models.AccountEvent) error
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	sessions SessionOpener,
	publisher Publisher,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.delete_user.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		q := r.URL.Query()
		req := Request{
			User:     q.Get("user"),
			Token:    q.Get("token"),
			Password: q.Get("password"),
		}

		if err := validate.Struct(req); err != nil {
			log.Info("Invalid request", sl.Err(err))
			resp.Render(w, r, http.StatusBadRequest, resp.MsgBadInput)

			return
		}

		sess, err := sessions.Open(r.Context(), req.User, req.Token)
		if err == nil {
			err = sess.DeleteUser(r.Context(), req.Password)
		}

		switch {
		case err == nil:
		case errors.Is(err, session.ErrUnauthorized), errors.Is(err, session.ErrInvalidCredentials):
			resp.Render(w, r, http.StatusUnauthorized, resp.MsgUnauthorized)
			return
		default:
			log.Error("failed to delete user", sl.Err(err))
			resp.Render(w, r, http.StatusInternalServerError, resp.MsgInternal)
			return
		}

		log.Info("user deleted")

		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
		defer cancel()

		event := models.AccountEvent{Type: models.EventUserDeleted, User: req.User, At: time.Now().UTC()}
		if err := publisher.Publish(pubCtx, event); err != nil {
			log.Error("failed to publish account event", sl.Err(err))
		}

		render.JSON(w, r, resp.OK(msgDeleted))
	}
}
