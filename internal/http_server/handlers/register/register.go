package register

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/carlos-dev-research/web-rag-chatbot/internal/auth"
	resp "github.com/carlos-dev-research/web-rag-chatbot/internal/lib/api/response"
	sl "github.com/carlos-dev-research/web-rag-chatbot/internal/lib/logger/sl"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

const msgCreateFailed = "Unable to Create User"

type Request struct {
	User string `json:"user" validate:"required,max=255"`
	Pass string `json:"password" validate:"required"`
}

type Response struct {
	Token string `json:"token"`
}

type Accounts interface {
	CreateUser(ctx context.Context, email, pass string) error
	CreateToken(ctx context.Context, email, pass string, duration time.Duration) (string, error)
}

type Publisher interface {
	Publish(ctx context.Context, event models.AccountEvent) error
}

// New godoc
// @Summary      Create an account
// @Description  Creates the user and returns a first session token.
// @Description  Credentials travel in a JSON body, not in the query string like the other endpoints.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        credentials  body  Request  true  "user and password"
// @Success      200  {object}  Response
// @Failure      400  {object}  resp.Response  "Bad input arguments"
// @Failure      401  {object}  resp.Response  "Unable to Create User"
// @Failure      500  {object}  resp.Response  "Internal server error"
// @Router       /register [post]
func New(
	log *slog.Logger,
	validate *validator.Validate,
	accounts Accounts,
	publisher Publisher,
	tokenTTL time.Duration,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.register.New"

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

		if err := accounts.CreateUser(r.Context(), req.User, req.Pass); err != nil {
			if errors.Is(err, auth.ErrUserExists) {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error(http.StatusUnauthorized, msgCreateFailed))

				return
			}

			log.Error("failed to register user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error(http.StatusInternalServerError, resp.MsgInternal))

			return
		}

		log.Info("User registered")

		token, err := accounts.CreateToken(r.Context(), req.User, req.Pass, tokenTTL)
		if err != nil {
			log.Error("failed to issue token for new user", sl.Err(err))

			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error(http.StatusUnauthorized, resp.MsgUnauthorized))

			return
		}

		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
		defer cancel()

		event := models.AccountEvent{Type: models.EventUserRegistered, User: req.User, At: time.Now().UTC()}
		if err := publisher.Publish(pubCtx, event); err != nil {
			log.Error("failed to publish account event", sl.Err(err))
		}

		render.JSON(w, r, Response{Token: token})
	}
}
