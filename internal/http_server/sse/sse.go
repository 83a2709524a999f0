// Package sse frames chat output as server-sent events.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	EventConversationID = "conversation_id"
	EventChat           = "chat"
	EventError          = "error"
)

var (
	ErrClosed               = errors.New("sse: stream closed")
	ErrStreamingUnsupported = errors.New("sse: streaming unsupported")
)

type ChatPayload struct {
	Response     *string `json:"response,omitempty"`
	EndOfMessage bool    `json:"endOfMessage"`
}

type ErrorPayload struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// Writer is not safe for concurrent use. Once a terminal event (the end of
// message or an error) has been written, every further call fails with
// ErrClosed.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

// New prepares w for streaming and sends the response headers.
func New(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Writer{w: w, flusher: flusher}, nil
}

// Send writes one named event and flushes it.
func (s *Writer) Send(event, data string) error {
	if s.closed {
		return ErrClosed
	}

	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(event)
	b.WriteByte('\n')
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	if _, err := fmt.Fprint(s.w, b.String()); err != nil {
		s.closed = true
		return fmt.Errorf("sse: write %s: %w", event, err)
	}

	s.flusher.Flush()

	return nil
}

func (s *Writer) ConversationID(id string) error {
	return s.Send(EventConversationID, id)
}

func (s *Writer) Chunk(fragment string) error {
	return s.sendJSON(EventChat, ChatPayload{Response: &fragment})
}

func (s *Writer) End() error {
	if err := s.sendJSON(EventChat, ChatPayload{EndOfMessage: true}); err != nil {
		return err
	}
	s.closed = true

	return nil
}

func (s *Writer) Error(status int, msg string) error {
	if err := s.sendJSON(EventError, ErrorPayload{Error: msg, Status: status}); err != nil {
		return err
	}
	s.closed = true

	return nil
}

func (s *Writer) sendJSON(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sse: encode %s: %w", event, err)
	}

	return s.Send(event, string(data))
}
