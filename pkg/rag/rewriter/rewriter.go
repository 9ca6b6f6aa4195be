package rewriter

import (
	"context"
	"fmt"
	"strings"

	"docchat-be/pkg/llm"
	"docchat-be/pkg/rag"
)

const rewriteInstruction = "Given the above conversation, generate a search query to look up in order to get information relevant to the conversation. Respond with the search query only."

// Rewriter condenses a follow-up utterance plus conversation history
// into a standalone search query with one LLM round trip.
type Rewriter struct {
	provider llm.LLMProvider
}

func NewRewriter(provider llm.LLMProvider) *Rewriter {
	return &Rewriter{
		provider: provider,
	}
}

// Rewrite returns the search query for an utterance. With no prior
// history there is nothing to disambiguate, so the raw utterance comes
// back unchanged without touching the model.
func (r *Rewriter) Rewrite(ctx context.Context, history []llm.Message, utterance string) (string, error) {
	if len(history) == 0 {
		return utterance, nil
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, history...)
	messages = append(messages,
		llm.Message{Role: "user", Content: utterance},
		llm.Message{Role: "user", Content: rewriteInstruction},
	)

	query, err := r.provider.Chat(ctx, messages, llm.WithTemperature(0.0))
	if err != nil {
		return "", fmt.Errorf("%w: rewrite: %v", rag.ErrRetrievalUnavailable, err)
	}

	query = strings.TrimSpace(strings.Trim(strings.TrimSpace(query), `"`))
	if query == "" {
		return utterance, nil
	}
	return query, nil
}
