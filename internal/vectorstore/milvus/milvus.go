package milvus

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

// Adapter uses the Milvus RESTful v2 API. Responses arrive in a
// {code, message, data} envelope; a non-zero code is an error even on
// HTTP 200. The collection name is the durable identifier.
type Adapter struct {
	url        string
	token      string
	collection string
	client     *http.Client
}

type Config struct {
	URL        string
	Token      string
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
		token:      cfg.Token,
		collection: collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (a *Adapter) Name() vectorstore.Backend { return vectorstore.Milvus }

func (a *Adapter) Build(ctx context.Context, chunks []vectorstore.Chunk, vectors [][]float32) (vectorstore.Handle, string, error) {
	if len(chunks) != len(vectors) {
		return nil, "", errors.New("chunks and vectors length mismatch")
	}
	if len(vectors) == 0 {
		return nil, "", errors.New("no vectors to index")
	}
	// Drop-and-recreate so a rebuild fully replaces prior content.
	_ = a.post(ctx, "/v2/vectordb/collections/drop", map[string]any{"collectionName": a.collection}, nil)
	create := map[string]any{
		"collectionName": a.collection,
		"dimension":      len(vectors[0]),
		"metricType":     "COSINE",
	}
	if err := a.post(ctx, "/v2/vectordb/collections/create", create, nil); err != nil {
		return nil, "", err
	}
	rows := make([]map[string]any, len(chunks))
	for i := range chunks {
		rows[i] = map[string]any{
			"id":       i,
			"vector":   vectors[i],
			"chunk_id": chunks[i].ID,
			"text":     chunks[i].Text,
		}
	}
	insert := map[string]any{"collectionName": a.collection, "data": rows}
	if err := a.post(ctx, "/v2/vectordb/entities/insert", insert, nil); err != nil {
		return nil, "", err
	}
	return &handle{adapter: a}, a.collection, nil
}

func (a *Adapter) Reconnect(ctx context.Context, durableID string) (vectorstore.Handle, error) {
	describe := map[string]any{"collectionName": durableID}
	if err := a.post(ctx, "/v2/vectordb/collections/describe", describe, nil); err != nil {
		return nil, fmt.Errorf("%w: milvus collection %q: %v", vectorstore.ErrReconnect, durableID, err)
	}
	a.collection = durableID
	return &handle{adapter: a}, nil
}

type handle struct {
	adapter *Adapter
}

func (h *handle) Backend() vectorstore.Backend     { return vectorstore.Milvus }
func (h *handle) Retriever() vectorstore.Retriever { return h }

func (h *handle) TopK(ctx context.Context, queryVec []float32, k int) ([]vectorstore.ScoredChunk, error) {
	if k <= 0 {
		k = 5
	}
	a := h.adapter
	search := map[string]any{
		"collectionName": a.collection,
		"data":           [][]float32{queryVec},
		"limit":          k,
		"outputFields":   []string{"chunk_id", "text"},
	}
	var rows []struct {
		Distance float64 `json:"distance"`
		ChunkID  string  `json:"chunk_id"`
		Text     string  `json:"text"`
	}
	if err := a.post(ctx, "/v2/vectordb/entities/search", search, &rows); err != nil {
		return nil, err
	}
	out := make([]vectorstore.ScoredChunk, 0, len(rows))
	for _, r := range rows {
		out = append(out, vectorstore.ScoredChunk{
			Chunk: vectorstore.Chunk{ID: r.ChunkID, Text: r.Text},
			Score: r.Distance,
		})
	}
	return out, nil
}

func (a *Adapter) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("milvus POST %s failed: %s", path, resp.Status)
	}
	var envelope struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return err
	}
	if envelope.Code != 0 {
		return fmt.Errorf("milvus POST %s failed: code %d: %s", path, envelope.Code, envelope.Message)
	}
	if out != nil && len(envelope.Data) > 0 {
		return json.Unmarshal(envelope.Data, out)
	}
	return nil
}
