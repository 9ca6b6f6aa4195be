package rewriter

import (
	"context"
	"errors"
	"testing"

	"docchat-be/pkg/llm"
	"docchat-be/pkg/rag"
)

type stubProvider struct {
	reply    string
	err      error
	calls    int
	lastSent []llm.Message
}

func (s *stubProvider) Chat(_ context.Context, history []llm.Message, _ ...llm.Option) (string, error) {
	s.calls++
	s.lastSent = history
	return s.reply, s.err
}

func (s *stubProvider) ChatStream(_ context.Context, _ []llm.Message, _ llm.DeltaFunc, _ ...llm.Option) error {
	return errors.New("not used")
}

func (s *stubProvider) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return s.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, options...)
}

func TestRewriteEmptyHistorySkipsModel(t *testing.T) {
	stub := &stubProvider{reply: "should not be used"}
	r := NewRewriter(stub)

	got, err := r.Rewrite(context.Background(), nil, "what is the return policy?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "what is the return policy?" {
		t.Errorf("query = %q, want raw utterance", got)
	}
	if stub.calls != 0 {
		t.Errorf("model called %d times, want 0", stub.calls)
	}
}

func TestRewriteUsesHistoryAndInstruction(t *testing.T) {
	stub := &stubProvider{reply: "return policy for laptops"}
	r := NewRewriter(stub)

	history := []llm.Message{
		{Role: "user", Content: "tell me about laptops"},
		{Role: "assistant", Content: "we sell laptops"},
	}

	got, err := r.Rewrite(context.Background(), history, "what about returns?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "return policy for laptops" {
		t.Errorf("query = %q", got)
	}

	if len(stub.lastSent) != 4 {
		t.Fatalf("sent %d messages, want 4", len(stub.lastSent))
	}
	if stub.lastSent[2].Content != "what about returns?" {
		t.Errorf("utterance not forwarded: %q", stub.lastSent[2].Content)
	}
	if stub.lastSent[3].Content != rewriteInstruction {
		t.Errorf("instruction not appended: %q", stub.lastSent[3].Content)
	}
}

func TestRewriteTrimsQuotes(t *testing.T) {
	stub := &stubProvider{reply: "  \"laptop return policy\"  "}
	r := NewRewriter(stub)

	got, err := r.Rewrite(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, "returns?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "laptop return policy" {
		t.Errorf("query = %q", got)
	}
}

func TestRewriteBlankReplyFallsBackToUtterance(t *testing.T) {
	stub := &stubProvider{reply: "   "}
	r := NewRewriter(stub)

	got, err := r.Rewrite(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, "returns?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "returns?" {
		t.Errorf("query = %q, want raw utterance", got)
	}
}

func TestRewriteModelFailureIsRetrievalUnavailable(t *testing.T) {
	stub := &stubProvider{err: errors.New("connection refused")}
	r := NewRewriter(stub)

	_, err := r.Rewrite(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, "returns?")
	if !errors.Is(err, rag.ErrRetrievalUnavailable) {
		t.Errorf("error = %v, want ErrRetrievalUnavailable", err)
	}
}
