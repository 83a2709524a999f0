package logout

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

const msgLoggedOut = "Logout successful"

type Request struct {
	User  string `validate:"required"`
	Token string `validate:"required"`
}

type SessionOpener interface {
	Open(ctx context.Context, user, token string) (*session.Session, error)
}

// New godoc
// @Summary      Log out
// @Description  Revokes the given token. Other tokens of the same user stay valid.
// @Tags         auth
// @Produce      json
// @Param        user   query  string  true  "user"
// @Param        token  query  string  true  "token to revoke"
// @Success      200  {object}  resp.Message  "Logout successful"
// @Failure      400  {object}  resp.Response
// @Failure      401  {object}  resp.Response
// @Failure      500  {object}  resp.Response
// @Router       /logout [delete]
func New(
	log *slog.Logger,
	validate *validator.Validate,
	sessions SessionOpener,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.logout.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		q := r.URL.Query()
		req := Request{User: q.Get("user"), Token: q.Get("token")}

		if err := validate.Struct(req); err != nil {
			log.Info("Invalid request", sl.Err(err))
			resp.Render(w, r, http.StatusBadRequest, resp.MsgBadInput)

			return
		}

		sess, err := sessions.Open(r.Context(), req.User, req.Token)
		if err != nil {
			writeErr(w, r, log, err)
			return
		}

		if err := sess.Logout(r.Context()); err != nil {
			writeErr(w, r, log, err)
			return
		}

		log.Info("logout successful")

		render.JSON(w, r, resp.OK(msgLoggedOut))
	}
}

func writeErr(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	if errors.Is(err, session.ErrUnauthorized) {
		resp.Render(w, r, http.StatusUnauthorized, resp.MsgUnauthorized)
		return
	}

	log.Error("failed to log out", sl.Err(err))
	resp.Render(w, r, http.StatusInternalServerError, resp.MsgInternal)
}
