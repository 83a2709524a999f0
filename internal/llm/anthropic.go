package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/carlos-dev-research/web-rag-chatbot/internal/models"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

const defaultAnthropicMaxTokens = 1024

type Anthropic struct {
	client anthropic.Client
	model  string
}

func NewAnthropic(apiKey, baseURL, model string, opts ...anthropicoption.RequestOption) *Anthropic {
	reqOpts := []anthropicoption.RequestOption{anthropicoption.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, anthropicoption.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)

	return &Anthropic{
		client: anthropic.NewClient(reqOpts...),
		model:  model,
	}
}

func (p *Anthropic) Name() string { return "anthropic" }

func (p *Anthropic) Stream(ctx context.Context, req *Request) (<-chan Event, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.params(req))

	ch := make(chan Event, 16)
	go p.processStream(ctx, stream, ch)

	return ch, nil
}

func (p *Anthropic) processStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], ch chan<- Event) {
	defer close(ch)
	defer stream.Close()

	for stream.Next() {
		event := stream.Current()

		switch variant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if d, ok := variant.Delta.AsAny().(anthropic.TextDelta); ok && d.Text != "" {
				if !send(ctx, ch, Event{Type: EventTextDelta, TextDelta: d.Text}) {
					return
				}
			}
		case anthropic.MessageStopEvent:
			send(ctx, ch, Event{Type: EventDone})
			return
		}
	}

	if err := stream.Err(); err != nil {
		send(ctx, ch, Event{Type: EventError, Error: fmt.Errorf("anthropic streaming error: %w", err)})
		return
	}

	send(ctx, ch, Event{Type: EventDone})
}

func (p *Anthropic) Complete(ctx context.Context, req *Request) (string, error) {
	msg, err := p.client.Messages.New(ctx, p.params(req))
	if err != nil {
		return "", fmt.Errorf("anthropic completion error: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	return b.String(), nil
}

func (p *Anthropic) params(req *Request) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		Messages:  buildAnthropicMessages(req.Turns),
		MaxTokens: maxTokens,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	return params
}

func buildAnthropicMessages(turns []models.Turn) []anthropic.MessageParam {
	msgs := make([]anthropic.MessageParam, 0, len(turns))

	for _, t := range turns {
		block := anthropic.NewTextBlock(t.Content)

		switch t.Role {
		case models.RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}

	return msgs
}
