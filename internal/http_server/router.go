package http_server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/carlos-dev-research/web-rag-chatbot/internal/auth"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/chat"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/config"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/http_server/handlers/conversation"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/http_server/handlers/delete_conversation"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/http_server/handlers/delete_user"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/http_server/handlers/history"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/http_server/handlers/login"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/http_server/handlers/logout"
	register "github.com/carlos-dev-research/web-rag-chatbot/internal/http_server/handlers/register"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/http_server/handlers/stream"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/http_server/handlers/upload_audio"
	rateLimit "github.com/carlos-dev-research/web-rag-chatbot/internal/middleware/ratelimit"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/models"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/session"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Publisher interface {
	Publish(ctx context.Context, event models.AccountEvent) error
}

// Services are the long-lived handles shared by every request.
type Services struct {
	Auth        *auth.Auth
	Sessions    *session.Factory
	Chat        *chat.Orchestrator
	Uploads     upload_audio.Uploads
	Transcriber upload_audio.Transcriber
	Publisher   Publisher
}

func NewRouter(log *slog.Logger, cfg *config.Config, svc Services) *chi.Mux {
	validate := validator.New()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// middleware.Logger wraps the writer, which would hide SetWriteDeadline
	// from the stream handler.
	r.Get("/stream-send",
		stream.New(log, validate, svc.Chat),
	)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Logger)

		r.With(rateLimit.GetAuth(cfg.RateLimits.GetAuth)).Post("/get-auth",
			login.New(log, validate, svc.Auth, cfg.Tokens.TTL),
		)
		r.With(rateLimit.Register(cfg.RateLimits.Register)).Post("/register",
			register.New(log, validate, svc.Auth, svc.Publisher, cfg.Tokens.TTL),
		)
		r.Get("/get-chat-history",
			history.New(log, validate, svc.Sessions),
		)
		r.Get("/get-conversation",
			conversation.New(log, validate, svc.Sessions),
		)
		r.Delete("/delete-conversation",
			delete_conversation.New(log, validate, svc.Sessions),
		)
		r.Delete("/logout",
			logout.New(log, validate, svc.Sessions),
		)
		r.With(rateLimit.DeleteUser(cfg.RateLimits.DeleteUser)).Delete("/delete-user",
			delete_user.New(log, validate, svc.Sessions, svc.Publisher),
		)
		r.With(rateLimit.UploadAudio()).Post("/upload-audio",
			upload_audio.New(log, validate, svc.Sessions, svc.Uploads, svc.Transcriber, cfg.Uploads.MaxSize),
		)

		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			render.JSON(w, r, map[string]string{"status": "ok"})
		})
	})

	return r
}
