package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/carlos-dev-research/web-rag-chatbot/internal/models"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunk(content string) string {
	return fmt.Sprintf(`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"llama3.1","choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`, content)
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()

	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}

	return events
}

func TestOpenAI_Stream(t *testing.T) {
	var body map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hel", "lo", "!"} {
			fmt.Fprintf(w, "data: %s\n\n", chunk(part))
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenAI("key", srv.URL, "llama3.1", option.WithMaxRetries(0))

	ch, err := p.Stream(context.Background(), &Request{
		SystemPrompt: "be nice",
		Turns: []models.Turn{
			{Role: models.RoleUser, Content: "Hi"},
			{Role: models.RoleAssistant, Content: "Hello"},
			{Role: models.RoleUser, Content: "Again"},
		},
	})
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 4)

	var text strings.Builder
	for _, ev := range events[:3] {
		assert.Equal(t, EventTextDelta, ev.Type)
		text.WriteString(ev.TextDelta)
	}
	assert.Equal(t, "Hello!", text.String())
	assert.Equal(t, EventDone, events[3].Type)

	assert.Equal(t, "llama3.1", body["model"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "assistant", msgs[2].(map[string]any)["role"])
}

func TestOpenAI_StreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"model crashed","type":"server_error"}}`)
	}))
	defer srv.Close()

	p := NewOpenAI("key", srv.URL, "llama3.1", option.WithMaxRetries(0))

	ch, err := p.Stream(context.Background(), &Request{Turns: []models.Turn{{Role: models.RoleUser, Content: "Hi"}}})
	require.NoError(t, err)

	events := collect(t, ch)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Error(t, last.Error)
}

func TestOpenAI_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"llama3.1","choices":[{"index":0,"message":{"role":"assistant","content":"Weather Today"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	p := NewOpenAI("key", srv.URL, "llama3.1", option.WithMaxRetries(0))

	got, err := p.Complete(context.Background(), &Request{Turns: []models.Turn{{Role: models.RoleUser, Content: "Hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "Weather Today", got)
}
