package inference

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ragstack/ragserve/internal/session"
	"github.com/ragstack/ragserve/internal/vectorstore"
	"github.com/ragstack/ragserve/provider"
)

type fakeHandle struct {
	chunks []vectorstore.ScoredChunk
}

func (h *fakeHandle) Backend() vectorstore.Backend     { return vectorstore.FAISS }
func (h *fakeHandle) Retriever() vectorstore.Retriever { return h }
func (h *fakeHandle) TopK(ctx context.Context, queryVec []float32, k int) ([]vectorstore.ScoredChunk, error) {
	if k < len(h.chunks) {
		return h.chunks[:k], nil
	}
	return h.chunks, nil
}

type fakeProvider struct {
	response string
	chatErr  error
	gotMsgs  []provider.Message
}

func (p *fakeProvider) ChatCompletion(ctx context.Context, model string, messages []provider.Message) (string, error) {
	p.gotMsgs = messages
	if p.chatErr != nil {
		return "", p.chatErr
	}
	return p.response, nil
}

func (p *fakeProvider) CreateEmbedding(ctx context.Context, model string, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		vecs[i] = []float32{1, 0}
	}
	return vecs, nil
}

func view(history ...provider.Message) session.ChatView {
	return session.ChatView{
		Handle: &fakeHandle{chunks: []vectorstore.ScoredChunk{
			{Chunk: vectorstore.Chunk{ID: "c1", Text: "hello world context"}, Score: 0.9},
		}},
		ChatModel:      "chat-model",
		EmbeddingModel: "embed-model",
		History:        history,
	}
}

func TestRespond_Grounded(t *testing.T) {
	llm := &fakeProvider{response: "a grounded answer"}
	svc := &Service{Provider: llm, TopK: 2}

	out, err := svc.Respond(context.Background(), view(), "greet me")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if out != "a grounded answer" {
		t.Errorf("got %q", out)
	}
	if len(llm.gotMsgs) < 2 {
		t.Fatalf("expected system + user messages, got %d", len(llm.gotMsgs))
	}
	sys := llm.gotMsgs[0]
	if sys.Role != provider.RoleSystem || !strings.Contains(sys.Content, "hello world context") {
		t.Errorf("system message is not grounded in retrieved chunks: %+v", sys)
	}
	last := llm.gotMsgs[len(llm.gotMsgs)-1]
	if last.Role != provider.RoleUser || last.Content != "greet me" {
		t.Errorf("prompt must be the final message: %+v", last)
	}
}

func TestRespond_HistoryIncluded(t *testing.T) {
	llm := &fakeProvider{response: "ok"}
	svc := &Service{Provider: llm}
	history := []provider.Message{
		{Role: provider.RoleUser, Content: "earlier question"},
		{Role: provider.RoleAssistant, Content: "earlier answer"},
	}
	if _, err := svc.Respond(context.Background(), view(history...), "followup"); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if len(llm.gotMsgs) != 4 {
		t.Fatalf("expected system + 2 history + prompt, got %d", len(llm.gotMsgs))
	}
	if llm.gotMsgs[1].Content != "earlier question" || llm.gotMsgs[2].Content != "earlier answer" {
		t.Error("history not threaded through in order")
	}
}

func TestRespond_ModelFailure(t *testing.T) {
	llm := &fakeProvider{chatErr: errors.New("upstream 500")}
	svc := &Service{Provider: llm}
	_, err := svc.Respond(context.Background(), view(), "greet me")
	if !errors.Is(err, ErrInference) {
		t.Errorf("got %v, want ErrInference", err)
	}
}

func TestRespond_EmptyResponseIsError(t *testing.T) {
	llm := &fakeProvider{response: "   "}
	svc := &Service{Provider: llm}
	_, err := svc.Respond(context.Background(), view(), "greet me")
	if !errors.Is(err, ErrInference) {
		t.Errorf("got %v, want ErrInference for a blank model response", err)
	}
}
