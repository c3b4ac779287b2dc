package qdrant

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

// Adapter is a minimal REST client to Qdrant. It assumes cosine distance
// and creates the collection on Build if missing.
type Adapter struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func New(cfg Config) *Adapter {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "ragserve"
	}
	return &Adapter{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (a *Adapter) Name() vectorstore.Backend { return vectorstore.Qdrant }

func (a *Adapter) Build(ctx context.Context, chunks []vectorstore.Chunk, vectors [][]float32) (vectorstore.Handle, string, error) {
	if len(chunks) != len(vectors) {
		return nil, "", errors.New("chunks and vectors length mismatch")
	}
	if len(vectors) == 0 {
		return nil, "", errors.New("no vectors to index")
	}
	create := map[string]any{
		"vectors": map[string]any{
			"size":     len(vectors[0]),
			"distance": "Cosine",
		},
	}
	if err := a.doJSON(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s", a.url, a.collection), create, nil); err != nil {
		return nil, "", err
	}
	points := make([]map[string]any, len(chunks))
	for i := range chunks {
		points[i] = map[string]any{
			"id":      i,
			"vector":  vectors[i],
			"payload": map[string]any{"chunk_id": chunks[i].ID, "text": chunks[i].Text},
		}
	}
	upsert := map[string]any{"points": points}
	if err := a.doJSON(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s/points?wait=true", a.url, a.collection), upsert, nil); err != nil {
		return nil, "", err
	}
	return &handle{adapter: a}, a.collection, nil
}

func (a *Adapter) Reconnect(ctx context.Context, durableID string) (vectorstore.Handle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/collections/%s", a.url, durableID), nil)
	if err != nil {
		return nil, err
	}
	a.auth(req)
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant: %v", vectorstore.ErrReconnect, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: qdrant collection %q: %s", vectorstore.ErrReconnect, durableID, resp.Status)
	}
	a.collection = durableID
	return &handle{adapter: a}, nil
}

type handle struct {
	adapter *Adapter
}

func (h *handle) Backend() vectorstore.Backend     { return vectorstore.Qdrant }
func (h *handle) Retriever() vectorstore.Retriever { return h }

func (h *handle) TopK(ctx context.Context, queryVec []float32, k int) ([]vectorstore.ScoredChunk, error) {
	if k <= 0 {
		k = 5
	}
	a := h.adapter
	search := map[string]any{
		"vector":       queryVec,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := a.doJSON(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/search", a.url, a.collection), search, &resp); err != nil {
		return nil, err
	}
	out := make([]vectorstore.ScoredChunk, 0, len(resp.Result))
	for _, r := range resp.Result {
		sc := vectorstore.ScoredChunk{Score: r.Score}
		if v, ok := r.Payload["chunk_id"].(string); ok {
			sc.ID = v
		}
		if v, ok := r.Payload["text"].(string); ok {
			sc.Text = v
		}
		out = append(out, sc)
	}
	return out, nil
}

func (a *Adapter) auth(req *http.Request) {
	if a.apiKey != "" {
		req.Header.Set("api-key", a.apiKey)
	}
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
	a.auth(req)
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
