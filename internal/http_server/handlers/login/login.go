package login

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/carlos-dev-research/web-rag-chatbot/internal/auth"
	resp "github.com/carlos-dev-research/web-rag-chatbot/internal/lib/api/response"
	sl "github.com/carlos-dev-research/web-rag-chatbot/internal/lib/logger/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	User string `json:"user" validate:"required"`
	Pass string `json:"password" validate:"required"`
}

type Response struct {
	Token string `json:"token"`
}

type TokenIssuer interface {
	CreateToken(ctx context.Context, email, pass string, duration time.Duration) (string, error)
}

// New godoc
// @Summary      Issue a session token
// @Description  Checks the user's password and returns a token valid for the configured TTL.
// @Description  Credentials travel in a JSON body, not in the query string like the other endpoints.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        credentials  body  Request  true  "user and password"
// @Success      200  {object}  Response
// @Failure      400  {object}  resp.Response  "Bad input arguments"
// @Failure      401  {object}  resp.Response  "Unable to get authorization"
// @Failure      500  {object}  resp.Response  "Internal server error"
// @Router       /get-auth [post]
func New(
	log *slog.Logger,
	validate *validator.Validate,
	issuer TokenIssuer,
	tokenTTL time.Duration,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.login.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error(http.StatusBadRequest, resp.MsgBadInput))

			return
		}

		if err := validate.Struct(req); err != nil {
			var validateErr validator.ValidationErrors
			errors.As(err, &validateErr)

			log.Info("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(http.StatusBadRequest, validateErr))

			return
		}

		token, err := issuer.CreateToken(r.Context(), req.User, req.Pass, tokenTTL)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error(http.StatusUnauthorized, resp.MsgUnauthorized))

				return
			}

			log.Error("failed to issue token", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error(http.StatusInternalServerError, resp.MsgInternal))

			return
		}

		log.Info("token issued")

		render.JSON(w, r, Response{Token: token})
	}
}
