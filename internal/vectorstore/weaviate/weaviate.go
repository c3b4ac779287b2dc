package weaviate

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

// Adapter drives Weaviate over its REST and GraphQL endpoints with
// externally supplied vectors (vectorizer "none"). The class name is the
// durable identifier.
type Adapter struct {
	url    string
	apiKey string
	class  string
	client *http.Client
}

type Config struct {
	URL     string
	APIKey  string
	Class   string
	Timeout time.Duration
}

func New(cfg Config) *Adapter {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	class := cfg.Class
	if class == "" {
		class = "RagChunk"
	}
	return &Adapter{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		class:  class,
		client: &http.Client{Timeout: timeout},
	}
}

func (a *Adapter) Name() vectorstore.Backend { return vectorstore.Weaviate }

func (a *Adapter) Build(ctx context.Context, chunks []vectorstore.Chunk, vectors [][]float32) (vectorstore.Handle, string, error) {
	if len(chunks) != len(vectors) {
		return nil, "", errors.New("chunks and vectors length mismatch")
	}
	// Replace any previous class so the build is a full overwrite, then
	// recreate with vectorizer disabled.
	a.delete(ctx, a.class)
	schema := map[string]any{
		"class":      a.class,
		"vectorizer": "none",
		"properties": []map[string]any{
			{"name": "chunk_id", "dataType": []string{"text"}},
			{"name": "text", "dataType": []string{"text"}},
		},
	}
	if err := a.doJSON(ctx, http.MethodPost, a.url+"/v1/schema", schema, nil); err != nil {
		return nil, "", err
	}
	type object struct {
		Class      string         `json:"class"`
		Properties map[string]any `json:"properties"`
		Vector     []float32      `json:"vector"`
	}
	objects := make([]object, len(chunks))
	for i := range chunks {
		objects[i] = object{
			Class:      a.class,
			Properties: map[string]any{"chunk_id": chunks[i].ID, "text": chunks[i].Text},
			Vector:     vectors[i],
		}
	}
	if err := a.doJSON(ctx, http.MethodPost, a.url+"/v1/batch/objects", map[string]any{"objects": objects}, nil); err != nil {
		return nil, "", err
	}
	return &handle{adapter: a}, a.class, nil
}

func (a *Adapter) Reconnect(ctx context.Context, durableID string) (vectorstore.Handle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url+"/v1/schema/"+durableID, nil)
	if err != nil {
		return nil, err
	}
	a.auth(req)
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: weaviate: %v", vectorstore.ErrReconnect, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: weaviate class %q: %s", vectorstore.ErrReconnect, durableID, resp.Status)
	}
	a.class = durableID
	return &handle{adapter: a}, nil
}

type handle struct {
	adapter *Adapter
}

func (h *handle) Backend() vectorstore.Backend     { return vectorstore.Weaviate }
func (h *handle) Retriever() vectorstore.Retriever { return h }

func (h *handle) TopK(ctx context.Context, queryVec []float32, k int) ([]vectorstore.ScoredChunk, error) {
	if k <= 0 {
		k = 5
	}
	vec, err := json.Marshal(queryVec)
	if err != nil {
		return nil, err
	}
	a := h.adapter
	query := fmt.Sprintf(
		`{ Get { %s(nearVector: {vector: %s}, limit: %d) { chunk_id text _additional { certainty } } } }`,
		a.class, vec, k,
	)
	var resp struct {
		Data map[string]map[string][]struct {
			ChunkID    string `json:"chunk_id"`
			Text       string `json:"text"`
			Additional struct {
				Certainty float64 `json:"certainty"`
			} `json:"_additional"`
		} `json:"data"`
	}
	if err := a.doJSON(ctx, http.MethodPost, a.url+"/v1/graphql", map[string]any{"query": query}, &resp); err != nil {
		return nil, err
	}
	rows := resp.Data["Get"][a.class]
	out := make([]vectorstore.ScoredChunk, 0, len(rows))
	for _, r := range rows {
		out = append(out, vectorstore.ScoredChunk{
			Chunk: vectorstore.Chunk{ID: r.ChunkID, Text: r.Text},
			Score: r.Additional.Certainty,
		})
	}
	return out, nil
}

func (a *Adapter) delete(ctx context.Context, class string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, a.url+"/v1/schema/"+class, nil)
	if err != nil {
		return
	}
	a.auth(req)
	if resp, err := a.client.Do(req); err == nil {
		resp.Body.Close()
	}
}

func (a *Adapter) auth(req *http.Request) {
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
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
		return fmt.Errorf("weaviate %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
