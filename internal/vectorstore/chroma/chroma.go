package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ragstack/ragserve/internal/vectorstore"
)

// Adapter speaks to a Chroma server over its v1 REST API. Collections are
// addressed by UUID internally, so the adapter resolves the configured
// collection name to an id on Build/Reconnect. The name is the durable
// identifier.
type Adapter struct {
	url        string
	collection string
	client     *http.Client
}

type Config struct {
	URL        string
	Collection string
	Timeout    time.Duration
}

func New(cfg Config) *Adapter {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "ragserve"
	}
	return &Adapter{
		url:        cfg.URL,
		collection: collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (a *Adapter) Name() vectorstore.Backend { return vectorstore.Chroma }

func (a *Adapter) Build(ctx context.Context, chunks []vectorstore.Chunk, vectors [][]float32) (vectorstore.Handle, string, error) {
	if len(chunks) != len(vectors) {
		return nil, "", errors.New("chunks and vectors length mismatch")
	}
	var coll struct {
		ID string `json:"id"`
	}
	create := map[string]any{
		"name":          a.collection,
		"get_or_create": true,
		"metadata":      map[string]any{"hnsw:space": "cosine"},
	}
	if err := a.doJSON(ctx, http.MethodPost, a.url+"/api/v1/collections", create, &coll); err != nil {
		return nil, "", err
	}
	ids := make([]string, len(chunks))
	docs := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = chunks[i].ID
		docs[i] = chunks[i].Text
	}
	add := map[string]any{
		"ids":        ids,
		"embeddings": vectors,
		"documents":  docs,
	}
	if err := a.doJSON(ctx, http.MethodPost, fmt.Sprintf("%s/api/v1/collections/%s/add", a.url, coll.ID), add, nil); err != nil {
		return nil, "", err
	}
	return &handle{adapter: a, collectionID: coll.ID}, a.collection, nil
}

func (a *Adapter) Reconnect(ctx context.Context, durableID string) (vectorstore.Handle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url+"/api/v1/collections/"+durableID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: chroma: %v", vectorstore.ErrReconnect, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: chroma collection %q: %s", vectorstore.ErrReconnect, durableID, resp.Status)
	}
	var coll struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&coll); err != nil {
		return nil, fmt.Errorf("%w: chroma collection %q: %v", vectorstore.ErrReconnect, durableID, err)
	}
	a.collection = durableID
	return &handle{adapter: a, collectionID: coll.ID}, nil
}

type handle struct {
	adapter      *Adapter
	collectionID string
}

func (h *handle) Backend() vectorstore.Backend     { return vectorstore.Chroma }
func (h *handle) Retriever() vectorstore.Retriever { return h }

func (h *handle) TopK(ctx context.Context, queryVec []float32, k int) ([]vectorstore.ScoredChunk, error) {
	if k <= 0 {
		k = 5
	}
	query := map[string]any{
		"query_embeddings": [][]float32{queryVec},
		"n_results":        k,
		"include":          []string{"documents", "distances"},
	}
	var resp struct {
		IDs       [][]string  `json:"ids"`
		Documents [][]string  `json:"documents"`
		Distances [][]float64 `json:"distances"`
	}
	url := fmt.Sprintf("%s/api/v1/collections/%s/query", h.adapter.url, h.collectionID)
	if err := h.adapter.doJSON(ctx, http.MethodPost, url, query, &resp); err != nil {
		return nil, err
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}
	out := make([]vectorstore.ScoredChunk, 0, len(resp.IDs[0]))
	for i, id := range resp.IDs[0] {
		sc := vectorstore.ScoredChunk{Chunk: vectorstore.Chunk{ID: id}}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			sc.Text = resp.Documents[0][i]
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			// Chroma reports cosine distance; flip it so larger means closer.
			sc.Score = 1 - resp.Distances[0][i]
		}
		out = append(out, sc)
	}
	return out, nil
}

func (a *Adapter) doJSON(ctx context.Context, method, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("chroma %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
