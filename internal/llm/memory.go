package llm

import (
	"fmt"

	"github.com/carlos-dev-research/web-rag-chatbot/internal/models"

	"github.com/weaviate/tiktoken-go"
)

type TokenCounter func(text string) int

// EstimateTokens assumes about four bytes per token.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// NewTiktokenCounter counts tokens with the named BPE encoding, e.g. "cl100k_base".
func NewTiktokenCounter(encoding string) (TokenCounter, error) {
	const op = "llm.NewTiktokenCounter"

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}, nil
}

// boundTurns drops the oldest turns until the rest fit in limit tokens. The
// last turn is kept whatever its size, and the result never starts with an
// assistant turn.
func boundTurns(turns []models.Turn, limit int, count TokenCounter) []models.Turn {
	if limit <= 0 || len(turns) <= 1 {
		return turns
	}

	last := len(turns) - 1
	start := last
	used := 0

	for i := last - 1; i >= 0; i-- {
		used += count(turns[i].Content)
		if used > limit {
			break
		}
		start = i
	}

	for start < last && turns[start].Role != models.RoleUser {
		start++
	}

	return turns[start:]
}
