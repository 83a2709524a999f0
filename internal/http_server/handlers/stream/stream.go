package stream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/carlos-dev-research/web-rag-chatbot/internal/chat"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/http_server/sse"
	resp "github.com/carlos-dev-research/web-rag-chatbot/internal/lib/api/response"
	sl "github.com/carlos-dev-research/web-rag-chatbot/internal/lib/logger/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	User           string `validate:"required"`
	Token          string `validate:"required"`
	ConversationID string
	Message        string `validate:"required"`
}

type Orchestrator interface {
	Prepare(ctx context.Context, req chat.Request) (*chat.Exchange, error)
}

// New godoc
// @Summary      Send a message and stream the reply
// @Description  Authorization and conversation errors are plain JSON responses.
// @Description  Once the stream starts the status is 200 and the events are
// @Description  conversation_id, chat (repeated, the last one with endOfMessage=true) or a single terminal error.
// @Tags         chat
// @Produce      text/event-stream
// @Param        user             query  string  true   "user"
// @Param        token            query  string  true   "token"
// @Param        conversation_id  query  string  false  "omit to start a new conversation"
// @Param        message          query  string  true   "message"
// @Success      200
// @Failure      400  {object}  resp.Response
// @Failure      401  {object}  resp.Response
// @Failure      500  {object}  resp.Response
// @Router       /stream-send [get]
func New(
	log *slog.Logger,
	validate *validator.Validate,
	orchestrator Orchestrator,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.stream.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		q := r.URL.Query()
		req := Request{
			User:           q.Get("user"),
			Token:          q.Get("token"),
			ConversationID: q.Get("conversation_id"),
			Message:        q.Get("message"),
		}

		if err := validate.Struct(req); err != nil {
			log.Info("Invalid request", sl.Err(err))
			resp.Render(w, r, http.StatusBadRequest, resp.MsgBadInput)

			return
		}

		ex, err := orchestrator.Prepare(r.Context(), chat.Request{
			User:           req.User,
			Token:          req.Token,
			ConversationID: req.ConversationID,
			Message:        req.Message,
		})
		if err != nil {
			if errors.Is(err, chat.ErrUnauthorized) {
				resp.Render(w, r, http.StatusUnauthorized, resp.MsgUnauthorized)
				return
			}

			log.Error("failed to prepare exchange", sl.Err(err))
			resp.Render(w, r, http.StatusInternalServerError, resp.MsgInternal)

			return
		}

		// The server-wide write timeout would cut long replies short.
		rc := http.NewResponseController(w)
		if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
			log.Warn("failed to clear write deadline", sl.Err(err))
		}

		out, err := sse.New(w)
		if err != nil {
			log.Error("failed to start event stream", sl.Err(err))
			resp.Render(w, r, http.StatusInternalServerError, resp.MsgInternal)

			return
		}

		if err := ex.Stream(r.Context(), out); err != nil {
			log.Warn("stream ended with error", sl.Err(err))
			return
		}

		log.Info("reply delivered", slog.String("conversation_id", ex.ConversationID()))
	}
}
