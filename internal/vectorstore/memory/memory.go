package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/ragstack/ragserve/internal/vectorstore"
)

// Adapter is the in-process variant: a brute-force cosine index over the
// chunk vectors. It has nothing server-side to reconnect to, so Reconnect
// always fails and the content must be re-ingested after a restart.
type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (a *Adapter) Name() vectorstore.Backend { return vectorstore.FAISS }

func (a *Adapter) Build(ctx context.Context, chunks []vectorstore.Chunk, vectors [][]float32) (vectorstore.Handle, string, error) {
	if len(chunks) != len(vectors) {
		return nil, "", errors.New("chunks and vectors length mismatch")
	}
	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	for _, v := range vectors {
		if len(v) != dim {
			return nil, "", errors.New("vector dimension mismatch")
		}
	}
	h := &handle{dimension: dim}
	h.chunks = append(h.chunks, chunks...)
	h.vectors = append(h.vectors, vectors...)
	return h, string(vectorstore.FAISS), nil
}

func (a *Adapter) Reconnect(ctx context.Context, durableID string) (vectorstore.Handle, error) {
	return nil, fmt.Errorf("%w: in-memory index lives only in-process, re-ingest to rebuild", vectorstore.ErrReconnect)
}

type handle struct {
	mu        sync.RWMutex
	dimension int
	chunks    []vectorstore.Chunk
	vectors   [][]float32
}

func (h *handle) Backend() vectorstore.Backend { return vectorstore.FAISS }
func (h *handle) Retriever() vectorstore.Retriever {
	return h
}

func (h *handle) TopK(ctx context.Context, queryVec []float32, k int) ([]vectorstore.ScoredChunk, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if k <= 0 {
		k = 5
	}
	if h.dimension != 0 && len(queryVec) != h.dimension {
		return nil, fmt.Errorf("query vector has dimension %d, index has %d", len(queryVec), h.dimension)
	}
	scored := make([]vectorstore.ScoredChunk, len(h.chunks))
	for i := range h.chunks {
		scored[i] = vectorstore.ScoredChunk{
			Chunk: h.chunks[i],
			Score: cosine(h.vectors[i], queryVec),
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
