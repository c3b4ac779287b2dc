package ingest

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/ragstack/ragserve/internal/parser"
	"github.com/ragstack/ragserve/internal/vectorstore"
	"github.com/ragstack/ragserve/provider"
)

var (
	// ErrConfiguration covers bad chunk parameters; rejected before any
	// side effect.
	ErrConfiguration = errors.New("invalid ingestion configuration")
	// ErrValidation covers empty input sets and unnamed uploads; rejected
	// before the pipeline starts.
	ErrValidation = errors.New("invalid ingestion input")
	// ErrIngestion covers parser, embedding and backend-write failures
	// mid-pipeline.
	ErrIngestion = errors.New("ingestion failed")
)

// Document is one uploaded file: raw bytes plus the declared name the
// parser dispatches on.
type Document struct {
	Name string
	Data []byte
}

// Pipeline converts raw sources into an embedded, backend-resident index.
type Pipeline struct {
	Provider provider.Provider
	Registry *vectorstore.Registry
	Logger   *log.Logger
}

// Ingest extracts text from every document, concatenates it with the
// scraped text, chunks, embeds, and hands the pairs to the selected
// backend's build routine. Nothing is written to any backend until both
// the configuration and the input validate.
func (p *Pipeline) Ingest(ctx context.Context, docs []Document, scraped string, embeddingModel string, chunkSize, chunkOverlap int, backend vectorstore.Backend) (vectorstore.Handle, string, error) {
	if chunkSize <= 0 {
		return nil, "", fmt.Errorf("%w: chunk_size must be > 0, got %d", ErrConfiguration, chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, "", fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got %d for size %d", ErrConfiguration, chunkOverlap, chunkSize)
	}
	if len(docs) == 0 && strings.TrimSpace(scraped) == "" {
		return nil, "", fmt.Errorf("%w: no documents or links provided", ErrValidation)
	}
	for _, doc := range docs {
		if strings.TrimSpace(doc.Name) == "" {
			return nil, "", fmt.Errorf("%w: one of the uploaded files has no name", ErrValidation)
		}
	}

	adapter, err := p.Registry.Adapter(backend)
	if err != nil {
		return nil, "", err
	}

	var parts []string
	for _, doc := range docs {
		text, err := parser.ExtractText(doc.Name, doc.Data)
		if err != nil {
			return nil, "", fmt.Errorf("%w: parse %q: %v", ErrIngestion, doc.Name, err)
		}
		parts = append(parts, text)
	}
	if scraped != "" {
		parts = append(parts, scraped)
	}
	combined := strings.Join(parts, "\n")

	spans := splitChunks(combined, chunkSize, chunkOverlap)
	if len(spans) == 0 {
		return nil, "", fmt.Errorf("%w: sources contained no text", ErrValidation)
	}
	hash := sha1Hex(combined)
	chunks := make([]vectorstore.Chunk, len(spans))
	for i, span := range spans {
		chunks[i] = vectorstore.Chunk{
			ID:   fmt.Sprintf("%s#%03d", hash, i),
			Text: span,
		}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.Provider.CreateEmbedding(ctx, embeddingModel, texts)
	if err != nil {
		return nil, "", fmt.Errorf("%w: embedding stage (%s): %v", ErrIngestion, embeddingModel, err)
	}
	if len(vectors) != len(chunks) {
		return nil, "", fmt.Errorf("%w: embedding stage returned %d vectors for %d chunks", ErrIngestion, len(vectors), len(chunks))
	}

	handle, durableID, err := adapter.Build(ctx, chunks, vectors)
	if err != nil {
		return nil, "", fmt.Errorf("%w: build stage (%s): %v", ErrIngestion, backend, err)
	}
	if p.Logger != nil {
		p.Logger.Printf("ingested %d chunk(s) from %d document(s) into %s", len(chunks), len(docs), backend)
	}
	return handle, durableID, nil
}

// splitChunks cuts text into exact positional spans of at most size
// bytes, each successive span starting overlap bytes before the previous
// one ended.
func splitChunks(text string, size, overlap int) []string {
	if text == "" {
		return nil
	}
	var chunks []string
	for start := 0; start < len(text); {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
		start = end - overlap
	}
	return chunks
}

func sha1Hex(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}
