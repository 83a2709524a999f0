package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/carlos-dev-research/web-rag-chatbot/internal/models"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint,
// including Ollama's /v1 API.
type OpenAI struct {
	client openai.Client
	model  string
}

func NewOpenAI(apiKey, baseURL, model string, opts ...option.RequestOption) *OpenAI {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)

	return &OpenAI{
		client: openai.NewClient(reqOpts...),
		model:  model,
	}
}

func (p *OpenAI) Name() string { return "openai" }

func (p *OpenAI) Stream(ctx context.Context, req *Request) (<-chan Event, error) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, p.params(req))

	ch := make(chan Event, 16)
	go p.processStream(ctx, stream, ch)

	return ch, nil
}

func (p *OpenAI) processStream(ctx context.Context, stream *ssestream.Stream[openai.ChatCompletionChunk], ch chan<- Event) {
	defer close(ch)
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}

		if text := chunk.Choices[0].Delta.Content; text != "" {
			if !send(ctx, ch, Event{Type: EventTextDelta, TextDelta: text}) {
				return
			}
		}
	}

	if err := stream.Err(); err != nil {
		send(ctx, ch, Event{Type: EventError, Error: fmt.Errorf("openai streaming error: %w", err)})
		return
	}

	send(ctx, ch, Event{Type: EventDone})
}

func (p *OpenAI) Complete(ctx context.Context, req *Request) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, p.params(req))
	if err != nil {
		return "", fmt.Errorf("openai completion error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("openai completion error: no choices returned")
	}

	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAI) params(req *Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: buildOpenAIMessages(req),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(req.MaxTokens)
	}

	return params
}

func buildOpenAIMessages(req *Request) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Turns)+1)

	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
	}

	for _, t := range req.Turns {
		switch t.Role {
		case models.RoleAssistant:
			assistant := openai.ChatCompletionAssistantMessageParam{
				Content: openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(t.Content)},
			}
			msgs = append(msgs, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		default:
			msgs = append(msgs, openai.UserMessage(t.Content))
		}
	}

	return msgs
}
