package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/ragstack/ragserve/internal/vectorstore"
)

func TestBuildAndTopK(t *testing.T) {
	a := New()
	chunks := []vectorstore.Chunk{
		{ID: "c1", Text: "about cats"},
		{ID: "c2", Text: "about dogs"},
		{ID: "c3", Text: "about fish"},
	}
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
	handle, durableID, err := a.Build(context.Background(), chunks, vectors)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if durableID != string(vectorstore.FAISS) {
		t.Errorf("durable id %q", durableID)
	}

	hits, err := handle.Retriever().TopK(context.Background(), []float32{0.9, 0.1, 0}, 2)
	if err != nil {
		t.Fatalf("topk: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].ID != "c1" || hits[1].ID != "c2" {
		t.Errorf("ranking wrong: %q then %q", hits[0].ID, hits[1].ID)
	}
	if hits[0].Score <= hits[1].Score {
		t.Error("scores must be descending")
	}
}

func TestTopK_KLargerThanIndex(t *testing.T) {
	a := New()
	handle, _, err := a.Build(context.Background(),
		[]vectorstore.Chunk{{ID: "c1", Text: "only"}},
		[][]float32{{1, 0}},
	)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	hits, err := handle.Retriever().TopK(context.Background(), []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("topk: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("got %d hits, want 1", len(hits))
	}
}

func TestBuild_LengthMismatch(t *testing.T) {
	a := New()
	_, _, err := a.Build(context.Background(),
		[]vectorstore.Chunk{{ID: "c1"}, {ID: "c2"}},
		[][]float32{{1}},
	)
	if err == nil {
		t.Error("expected an error on mismatched lengths")
	}
}

func TestReconnect_AlwaysFails(t *testing.T) {
	a := New()
	_, err := a.Reconnect(context.Background(), string(vectorstore.FAISS))
	if !errors.Is(err, vectorstore.ErrReconnect) {
		t.Errorf("got %v, want ErrReconnect: the in-memory index cannot be reattached", err)
	}
}
