package answer

import (
	"context"
	"fmt"
	"strings"

	"docchat-be/internal/entity"
	"docchat-be/pkg/llm"
)

// Generator turns retrieved chunks, history, and the user's utterance
// into a streamed grounded answer. With no chunks the prompt simply
// carries no context block and the model answers from the conversation
// alone.
type Generator struct {
	provider    llm.LLMProvider
	temperature float64
}

func NewGenerator(provider llm.LLMProvider, temperature float64) *Generator {
	return &Generator{
		provider:    provider,
		temperature: temperature,
	}
}

// BuildPrompt assembles the grounded user prompt.
func BuildPrompt(chunks []entity.RetrievedChunk, utterance string) string {
	if len(chunks) == 0 {
		return utterance
	}

	var b strings.Builder
	b.WriteString("Answer the question based only on the following context:\n\n")
	for i, chunk := range chunks {
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, chunk.DocumentTitle, chunk.Text)
	}
	b.WriteString("Question: ")
	b.WriteString(utterance)
	return b.String()
}

// Stream forwards model increments to onDelta until the model finishes,
// the context ends, or onDelta rejects one. Errors come back raw; the
// caller decides whether output had already started.
func (g *Generator) Stream(ctx context.Context, history []llm.Message, chunks []entity.RetrievedChunk, utterance string, onDelta llm.DeltaFunc) error {
	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, llm.Message{
		Role:    "user",
		Content: BuildPrompt(chunks, utterance),
	})

	return g.provider.ChatStream(ctx, messages, onDelta, llm.WithTemperature(g.temperature))
}
