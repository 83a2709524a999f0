package upload_audio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"

	resp "github.com/carlos-dev-research/web-rag-chatbot/internal/lib/api/response"
	sl "github.com/carlos-dev-research/web-rag-chatbot/internal/lib/logger/sl"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/session"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

const msgProcessFailed = "Failed to process audio"

type Request struct {
	User  string `validate:"required"`
	Token string `validate:"required"`
}

type Response struct {
	Transcription string `json:"transcription"`
}

type SessionOpener interface {
	Open(ctx context.Context, user, token string) (*session.Session, error)
}

type Uploads interface {
	Save(user string, r io.Reader) (string, error)
	Remove(path string) error
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	sessions SessionOpener,
	uploads Uploads,
	transcriber Transcriber,
	maxSize int64,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.upload_audio.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		r.Body = http.MaxBytesReader(w, r.Body, maxSize)

		if err := r.ParseMultipartForm(maxSize); err != nil {
			log.Info("failed to parse multipart form", sl.Err(err))
			resp.Render(w, r, http.StatusBadRequest, resp.MsgBadInput)

			return
		}
		defer r.MultipartForm.RemoveAll()

		req := Request{User: r.FormValue("user"), Token: r.FormValue("token")}

		if err := validate.Struct(req); err != nil {
			log.Info("Invalid request", sl.Err(err))
			resp.Render(w, r, http.StatusBadRequest, resp.MsgBadInput)

			return
		}

		file, _, err := r.FormFile("audioFile")
		if err != nil {
			log.Info("missing audio file", sl.Err(err))
			resp.Render(w, r, http.StatusBadRequest, resp.MsgBadInput)

			return
		}
		defer file.Close()

		if _, err := sessions.Open(r.Context(), req.User, req.Token); err != nil {
			if errors.Is(err, session.ErrUnauthorized) {
				resp.Render(w, r, http.StatusUnauthorized, resp.MsgUnauthorized)
				return
			}

			log.Error("failed to open session", sl.Err(err))
			resp.Render(w, r, http.StatusInternalServerError, resp.MsgInternal)

			return
		}

		path, err := uploads.Save(req.User, file)
		if err != nil {
			log.Error("failed to save upload", sl.Err(err))
			resp.Render(w, r, http.StatusInternalServerError, resp.MsgInternal)

			return
		}
		defer func() {
			if err := uploads.Remove(path); err != nil {
				log.Warn("failed to remove upload", sl.Err(err))
			}
		}()

		text, err := transcribeFile(r.Context(), transcriber, path)
		if err != nil {
			log.Error("failed to transcribe audio", sl.Err(err))
			resp.Render(w, r, http.StatusInternalServerError, msgProcessFailed)

			return
		}

		render.JSON(w, r, Response{Transcription: text})
	}
}

func transcribeFile(ctx context.Context, t Transcriber, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return t.Transcribe(ctx, f, "audio.wav")
}
