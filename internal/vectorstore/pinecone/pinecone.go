package pinecone

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

// Adapter talks to a Pinecone serverless index over its data-plane REST
// API. The index itself is provisioned out-of-band; Build upserts into it
// and the index name is the durable identifier.
type Adapter struct {
	host      string // e.g. https://myindex-abc123.svc.us-east-1.pinecone.io
	apiKey    string
	indexName string
	client    *http.Client
}

type Config struct {
	Host      string
	APIKey    string
	IndexName string
	Timeout   time.Duration
}

func New(cfg Config) *Adapter {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Adapter{
		host:      cfg.Host,
		apiKey:    cfg.APIKey,
		indexName: cfg.IndexName,
		client:    &http.Client{Timeout: timeout},
	}
}

func (a *Adapter) Name() vectorstore.Backend { return vectorstore.Pinecone }

func (a *Adapter) Build(ctx context.Context, chunks []vectorstore.Chunk, vectors [][]float32) (vectorstore.Handle, string, error) {
	if len(chunks) != len(vectors) {
		return nil, "", errors.New("chunks and vectors length mismatch")
	}
	type vector struct {
		ID       string            `json:"id"`
		Values   []float32         `json:"values"`
		Metadata map[string]string `json:"metadata"`
	}
	vecs := make([]vector, len(chunks))
	for i := range chunks {
		vecs[i] = vector{
			ID:       chunks[i].ID,
			Values:   vectors[i],
			Metadata: map[string]string{"text": chunks[i].Text},
		}
	}
	// Pinecone caps upsert batches at 2MB; chunked payloads keep well under it.
	const batch = 100
	for start := 0; start < len(vecs); start += batch {
		end := start + batch
		if end > len(vecs) {
			end = len(vecs)
		}
		body := map[string]any{"vectors": vecs[start:end]}
		if err := a.doJSON(ctx, a.host+"/vectors/upsert", body, nil); err != nil {
			return nil, "", err
		}
	}
	return &handle{adapter: a}, a.indexName, nil
}

func (a *Adapter) Reconnect(ctx context.Context, durableID string) (vectorstore.Handle, error) {
	var stats struct {
		TotalVectorCount int `json:"totalVectorCount"`
	}
	if err := a.doJSON(ctx, a.host+"/describe_index_stats", map[string]any{}, &stats); err != nil {
		return nil, fmt.Errorf("%w: pinecone index %q: %v", vectorstore.ErrReconnect, durableID, err)
	}
	if stats.TotalVectorCount == 0 {
		return nil, fmt.Errorf("%w: pinecone index %q is empty or was deleted", vectorstore.ErrReconnect, durableID)
	}
	a.indexName = durableID
	return &handle{adapter: a}, nil
}

type handle struct {
	adapter *Adapter
}

func (h *handle) Backend() vectorstore.Backend     { return vectorstore.Pinecone }
func (h *handle) Retriever() vectorstore.Retriever { return h }

func (h *handle) TopK(ctx context.Context, queryVec []float32, k int) ([]vectorstore.ScoredChunk, error) {
	if k <= 0 {
		k = 5
	}
	body := map[string]any{
		"vector":          queryVec,
		"topK":            k,
		"includeMetadata": true,
	}
	var resp struct {
		Matches []struct {
			ID       string            `json:"id"`
			Score    float64           `json:"score"`
			Metadata map[string]string `json:"metadata"`
		} `json:"matches"`
	}
	if err := h.adapter.doJSON(ctx, h.adapter.host+"/query", body, &resp); err != nil {
		return nil, err
	}
	out := make([]vectorstore.ScoredChunk, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		out = append(out, vectorstore.ScoredChunk{
			Chunk: vectorstore.Chunk{ID: m.ID, Text: m.Metadata["text"]},
			Score: m.Score,
		})
	}
	return out, nil
}

func (a *Adapter) doJSON(ctx context.Context, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", a.apiKey)
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("pinecone POST %s failed: %s", url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
