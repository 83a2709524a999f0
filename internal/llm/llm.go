// Package llm adapts chat-completion backends to the conversation model used
// by the orchestrator: a streamed reply grounded on local documents and a
// short title.
package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/carlos-dev-research/web-rag-chatbot/internal/config"
	"github.com/carlos-dev-research/web-rag-chatbot/internal/models"
)

type EventType int

const (
	EventTextDelta EventType = iota
	EventDone
	EventError
)

// Event is one item of a streamed reply. The channel carrying events is
// closed right after an EventDone or EventError.
type Event struct {
	Type      EventType
	TextDelta string
	Error     error
}

type Request struct {
	SystemPrompt string
	Turns        []models.Turn
	MaxTokens    int64
}

type Provider interface {
	Name() string
	Stream(ctx context.Context, req *Request) (<-chan Event, error)
	Complete(ctx context.Context, req *Request) (string, error)
}

const titlePrompt = `Your only task is to create headline for the following text, the complete Output of the text should be less than 30 characters
Text:%s

Headline: `

const documentsPrompt = `

Here are the relevant documents for the context:

%s
Instruction: Use the previous chat history, or the context above, to interact and help the user.`

type Model struct {
	provider     Provider
	systemPrompt string
	maxTokens    int64
	documents    string
	memoryLimit  int
	countTokens  TokenCounter
}

type Option func(*Model)

// WithDocuments appends docs to the system prompt of every reply.
func WithDocuments(docs string) Option {
	return func(m *Model) {
		m.documents = docs
	}
}

// WithMemory keeps only as much prior history as fits in limit tokens.
// The newest turn is always sent. A limit of zero disables the bound.
func WithMemory(limit int, count TokenCounter) Option {
	return func(m *Model) {
		m.memoryLimit = limit
		if count != nil {
			m.countTokens = count
		}
	}
}

func New(provider Provider, systemPrompt string, maxTokens int64, opts ...Option) *Model {
	m := &Model{
		provider:     provider,
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
		countTokens:  EstimateTokens,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// NewProvider builds the backend named by cfg.Provider.
func NewProvider(cfg config.Model) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Name), nil
	case config.ProviderAnthropic:
		return NewAnthropic(cfg.APIKey, cfg.BaseURL, cfg.Name), nil
	default:
		return nil, fmt.Errorf("llm.NewProvider: unknown provider %q", cfg.Provider)
	}
}

func (m *Model) Name() string {
	return m.provider.Name()
}

// Stream generates a reply to turns fragment by fragment.
func (m *Model) Stream(ctx context.Context, turns []models.Turn) (<-chan Event, error) {
	const op = "llm.Model.Stream"

	ch, err := m.provider.Stream(ctx, m.request(turns))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return ch, nil
}

// Title asks the model for a headline for text. The result never exceeds
// models.MaxTitleLength runes; an empty answer falls back to text itself.
func (m *Model) Title(ctx context.Context, text string) (string, error) {
	const op = "llm.Model.Title"

	req := &Request{
		Turns: []models.Turn{{
			Role:    models.RoleUser,
			Content: fmt.Sprintf(titlePrompt, text),
		}},
		MaxTokens: 64,
	}

	title, err := m.provider.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	title = cleanTitle(title)
	if title == "" {
		title = cleanTitle(text)
	}

	return title, nil
}

func (m *Model) request(turns []models.Turn) *Request {
	system := m.systemPrompt
	if m.documents != "" {
		system += fmt.Sprintf(documentsPrompt, m.documents)
	}

	return &Request{
		SystemPrompt: system,
		Turns:        boundTurns(turns, m.memoryLimit, m.countTokens),
		MaxTokens:    m.maxTokens,
	}
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "Headline:")
	s = strings.Trim(strings.TrimSpace(s), `"'*`)
	s = strings.Join(strings.Fields(s), " ")

	return truncate(s, models.MaxTitleLength)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	return strings.TrimSpace(string([]rune(s)[:n]))
}

// send delivers ev unless ctx is done, so producers never block on a reader
// that went away.
func send(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
