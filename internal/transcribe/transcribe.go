package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var ErrTranscription = errors.New("transcription failed")

// Whisper transcribes audio through an OpenAI-compatible
// /audio/transcriptions endpoint.
type Whisper struct {
	client openai.Client
	model  string
}

func NewWhisper(apiKey, baseURL, model string, opts ...option.RequestOption) *Whisper {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)

	return &Whisper{
		client: openai.NewClient(reqOpts...),
		model:  model,
	}
}

func (w *Whisper) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	const op = "transcribe.Whisper.Transcribe"

	res, err := w.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(w.model),
		File:  openai.File(audio, filename, "audio/wav"),
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, ErrTranscription, err)
	}

	return strings.TrimSpace(res.Text), nil
}
