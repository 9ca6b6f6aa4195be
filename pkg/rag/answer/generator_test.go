package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"docchat-be/internal/entity"
	"docchat-be/pkg/llm"
)

type scriptedProvider struct {
	deltas   []string
	err      error
	lastSent []llm.Message
}

func (s *scriptedProvider) Chat(_ context.Context, _ []llm.Message, _ ...llm.Option) (string, error) {
	return "", errors.New("not used")
}

func (s *scriptedProvider) ChatStream(_ context.Context, history []llm.Message, onDelta llm.DeltaFunc, _ ...llm.Option) error {
	s.lastSent = history
	for _, d := range s.deltas {
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return s.err
}

func (s *scriptedProvider) Generate(_ context.Context, _ string, _ ...llm.Option) (string, error) {
	return "", errors.New("not used")
}

func TestBuildPromptWithoutChunks(t *testing.T) {
	got := BuildPrompt(nil, "what is the return policy?")
	if got != "what is the return policy?" {
		t.Errorf("prompt = %q, want the bare utterance", got)
	}
}

func TestBuildPromptWithChunks(t *testing.T) {
	chunks := []entity.RetrievedChunk{
		{DocumentTitle: "Returns FAQ", Text: "Items can be returned within 30 days."},
		{DocumentTitle: "Shipping", Text: "Orders ship in 2 days."},
	}

	got := BuildPrompt(chunks, "what is the return policy?")

	if !strings.HasPrefix(got, "Answer the question based only on the following context:") {
		t.Errorf("prompt missing grounding preamble: %q", got)
	}
	if !strings.Contains(got, "[1] Returns FAQ\nItems can be returned within 30 days.") {
		t.Errorf("prompt missing first chunk: %q", got)
	}
	if !strings.Contains(got, "[2] Shipping") {
		t.Errorf("prompt missing second chunk: %q", got)
	}
	if !strings.HasSuffix(got, "Question: what is the return policy?") {
		t.Errorf("prompt must end with the question: %q", got)
	}
}

func TestStreamForwardsDeltasInOrder(t *testing.T) {
	provider := &scriptedProvider{deltas: []string{"The ", "return ", "policy"}}
	g := NewGenerator(provider, 0.2)

	var got []string
	err := g.Stream(context.Background(), nil, nil, "returns?", func(delta string) error {
		got = append(got, delta)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(got, "") != "The return policy" {
		t.Errorf("streamed %q", strings.Join(got, ""))
	}
}

func TestStreamAppendsGroundedPromptAfterHistory(t *testing.T) {
	provider := &scriptedProvider{}
	g := NewGenerator(provider, 0.2)

	history := []llm.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}
	chunks := []entity.RetrievedChunk{{DocumentTitle: "Doc", Text: "ctx"}}

	if err := g.Stream(context.Background(), history, chunks, "question", func(string) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(provider.lastSent) != 3 {
		t.Fatalf("sent %d messages, want 3", len(provider.lastSent))
	}
	last := provider.lastSent[2]
	if last.Role != "user" {
		t.Errorf("grounded prompt role = %q", last.Role)
	}
	if last.Content != BuildPrompt(chunks, "question") {
		t.Errorf("grounded prompt not last: %q", last.Content)
	}
}

func TestStreamReturnsProviderErrorRaw(t *testing.T) {
	want := errors.New("upstream died")
	provider := &scriptedProvider{deltas: []string{"partial "}, err: want}
	g := NewGenerator(provider, 0.2)

	err := g.Stream(context.Background(), nil, nil, "q", func(string) error { return nil })
	if !errors.Is(err, want) {
		t.Errorf("error = %v, want the raw provider error", err)
	}
}

func TestStreamStopsWhenConsumerRejects(t *testing.T) {
	provider := &scriptedProvider{deltas: []string{"a", "b", "c"}}
	g := NewGenerator(provider, 0.2)

	stop := errors.New("consumer gone")
	var seen int
	err := g.Stream(context.Background(), nil, nil, "q", func(string) error {
		seen++
		if seen == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Errorf("error = %v, want consumer error", err)
	}
	if seen != 2 {
		t.Errorf("consumed %d deltas, want 2", seen)
	}
}
