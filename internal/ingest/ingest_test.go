package ingest

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/ragstack/ragserve/internal/vectorstore"
	"github.com/ragstack/ragserve/internal/vectorstore/memory"
	"github.com/ragstack/ragserve/provider"
)

type fakeProvider struct {
	embedCalls int
	embedTexts []string
	fail       bool
}

func (p *fakeProvider) ChatCompletion(ctx context.Context, model string, messages []provider.Message) (string, error) {
	return "ok", nil
}

func (p *fakeProvider) CreateEmbedding(ctx context.Context, model string, texts []string) ([][]float32, error) {
	p.embedCalls++
	p.embedTexts = texts
	if p.fail {
		return nil, errors.New("embedding service down")
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{float32(len(texts[i])), 1}
	}
	return vecs, nil
}

func newPipeline(p provider.Provider) *Pipeline {
	return &Pipeline{
		Provider: p,
		Registry: vectorstore.NewRegistry(memory.New()),
	}
}

func TestSplitChunks(t *testing.T) {
	got := splitChunks("hello world", 5, 0)
	want := []string{"hello", " worl", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSplitChunks_Overlap(t *testing.T) {
	got := splitChunks("abcdef", 4, 2)
	want := []string{"abcd", "cdef"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestIngest_Scenario(t *testing.T) {
	llm := &fakeProvider{}
	p := newPipeline(llm)
	docs := []Document{{Name: "a.txt", Data: []byte("hello world")}}

	handle, durableID, err := p.Ingest(context.Background(), docs, "", "embed-model", 5, 0, vectorstore.FAISS)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if handle == nil || durableID == "" {
		t.Fatal("expected a handle and a durable identifier")
	}
	if llm.embedCalls != 1 {
		t.Errorf("expected one embedding call, got %d", llm.embedCalls)
	}
	want := []string{"hello", " worl", "d"}
	if !reflect.DeepEqual(llm.embedTexts, want) {
		t.Errorf("embedded chunks %q, want %q", llm.embedTexts, want)
	}
}

func TestIngest_ConfigurationErrors(t *testing.T) {
	p := newPipeline(&fakeProvider{})
	docs := []Document{{Name: "a.txt", Data: []byte("hello world")}}

	cases := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
		{"overlap exceeds size", 10, 12},
	}
	for _, tc := range cases {
		llm := &fakeProvider{}
		p.Provider = llm
		_, _, err := p.Ingest(context.Background(), docs, "", "m", tc.size, tc.overlap, vectorstore.FAISS)
		if !errors.Is(err, ErrConfiguration) {
			t.Errorf("%s: got %v, want ErrConfiguration", tc.name, err)
		}
		if llm.embedCalls != 0 {
			t.Errorf("%s: configuration errors must reject before any side effect", tc.name)
		}
	}
}

func TestIngest_EmptyInputs(t *testing.T) {
	p := newPipeline(&fakeProvider{})
	_, _, err := p.Ingest(context.Background(), nil, "", "m", 100, 10, vectorstore.FAISS)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("got %v, want ErrValidation for no documents and no links", err)
	}
}

func TestIngest_UnnamedDocument(t *testing.T) {
	p := newPipeline(&fakeProvider{})
	docs := []Document{{Name: "  ", Data: []byte("x")}}
	_, _, err := p.Ingest(context.Background(), docs, "", "m", 100, 10, vectorstore.FAISS)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("got %v, want ErrValidation for an unnamed upload", err)
	}
}

func TestIngest_EmbeddingFailure(t *testing.T) {
	p := newPipeline(&fakeProvider{fail: true})
	docs := []Document{{Name: "a.txt", Data: []byte("hello world")}}
	_, _, err := p.Ingest(context.Background(), docs, "", "m", 5, 0, vectorstore.FAISS)
	if !errors.Is(err, ErrIngestion) {
		t.Errorf("got %v, want ErrIngestion", err)
	}
}

func TestIngest_UnsupportedDocument(t *testing.T) {
	p := newPipeline(&fakeProvider{})
	docs := []Document{{Name: "report.pdf", Data: []byte("%PDF-1.4")}}
	_, _, err := p.Ingest(context.Background(), docs, "", "m", 100, 0, vectorstore.FAISS)
	if !errors.Is(err, ErrIngestion) {
		t.Errorf("got %v, want ErrIngestion wrapping the parser failure", err)
	}
}

func TestIngest_ScrapedTextOnly(t *testing.T) {
	p := newPipeline(&fakeProvider{})
	handle, _, err := p.Ingest(context.Background(), nil, "scraped page text", "m", 100, 0, vectorstore.FAISS)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if handle == nil {
		t.Fatal("expected a handle")
	}
}
