package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Backend identifies one of the supported vector store engines.
type Backend string

const (
	FAISS    Backend = "FAISS"
	Pinecone Backend = "Pinecone"
	Weaviate Backend = "Weaviate"
	Qdrant   Backend = "Qdrant"
	Milvus   Backend = "Milvus"
	Chroma   Backend = "Chroma"
)

var (
	// ErrUnknownBackend is returned when a backend name does not match any variant.
	ErrUnknownBackend = errors.New("unknown vector backend")
	// ErrReconnect is returned when a durable identifier no longer resolves
	// to an existing remote index.
	ErrReconnect = errors.New("vector backend reconnect failed")
)

// ParseBackend maps a user-supplied name onto a Backend, case-insensitively.
func ParseBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "faiss":
		return FAISS, nil
	case "pinecone":
		return Pinecone, nil
	case "weaviate":
		return Weaviate, nil
	case "qdrant":
		return Qdrant, nil
	case "milvus":
		return Milvus, nil
	case "chroma":
		return Chroma, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}

// Chunk is a bounded span of source text sized for embedding and retrieval.
type Chunk struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ScoredChunk is a retrieved chunk with its similarity score.
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// Retriever ranks stored chunks against a query embedding.
type Retriever interface {
	TopK(ctx context.Context, queryVec []float32, k int) ([]ScoredChunk, error)
}

// Handle is a live connection to a populated index. The session owns
// exactly one at a time; it is never persisted.
type Handle interface {
	Backend() Backend
	Retriever() Retriever
}

// Adapter is the uniform capability surface implemented once per backend.
// Build populates the index and returns a durable identifier sufficient to
// Reconnect later without re-ingesting; for in-process variants the index
// cannot be named-and-reconnected and Reconnect returns ErrReconnect.
type Adapter interface {
	Name() Backend
	Build(ctx context.Context, chunks []Chunk, vectors [][]float32) (Handle, string, error)
	Reconnect(ctx context.Context, durableID string) (Handle, error)
}

// Registry holds the configured adapter for each backend.
type Registry struct {
	adapters map[Backend]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[Backend]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}
	return &Registry{adapters: m}
}

// Adapter returns the adapter registered for the backend.
func (r *Registry) Adapter(b Backend) (Adapter, error) {
	a, ok := r.adapters[b]
	if !ok {
		return nil, fmt.Errorf("%w: %q not configured", ErrUnknownBackend, b)
	}
	return a, nil
}
