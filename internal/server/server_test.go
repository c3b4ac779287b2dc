package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ragstack/ragserve/config"
	"github.com/ragstack/ragserve/internal/inference"
	"github.com/ragstack/ragserve/internal/ingest"
	"github.com/ragstack/ragserve/internal/scrape"
	"github.com/ragstack/ragserve/internal/session"
	"github.com/ragstack/ragserve/internal/vectorstore"
	"github.com/ragstack/ragserve/internal/vectorstore/memory"
	"github.com/ragstack/ragserve/provider"
)

type fakeProvider struct{}

func (fakeProvider) ChatCompletion(ctx context.Context, model string, messages []provider.Message) (string, error) {
	return "a grounded answer", nil
}

func (fakeProvider) CreateEmbedding(ctx context.Context, model string, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{float32(len(texts[i])), 1}
	}
	return vecs, nil
}

func newTestServer(t *testing.T) (*Server, *echo.Echo) {
	t.Helper()
	llm := fakeProvider{}
	registry := vectorstore.NewRegistry(memory.New())
	sess := session.New(session.NewFileStore(filepath.Join(t.TempDir(), "session_state.json")), nil)
	srv := &Server{
		Session:   sess,
		Pipeline:  &ingest.Pipeline{Provider: llm, Registry: registry},
		Scraper:   &scrape.Scraper{},
		Inference: &inference.Service{Provider: llm, TopK: 2},
		Defaults:  config.LLMConfig{EmbeddingModel: "embed-model"},
		Logger:    log.New(io.Discard, "", 0),
	}
	return srv, srv.Echo([]string{"*"})
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for name, content := range files {
		fw, err := w.CreateFormFile("doc_files", name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf, w.FormDataContentType()
}

func doPreprocess(t *testing.T, e *echo.Echo, fields map[string]string, files map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, fields, files)
	req := httptest.NewRequest(http.MethodPost, "/preprocess", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func doForm(e *echo.Echo, path string, form string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestChatBeforePreprocess(t *testing.T) {
	srv, e := newTestServer(t)
	rec := doForm(e, "/chat", "prompt=greet+me")
	if rec.Code != http.StatusPreconditionFailed {
		t.Errorf("got %d, want 412", rec.Code)
	}
	if len(srv.Session.State().Messages) != 0 {
		t.Error("a rejected chat must not mutate the history")
	}
}

func TestPreprocess_NoInput(t *testing.T) {
	_, e := newTestServer(t)
	rec := doPreprocess(t, e, map[string]string{
		"links": "[]", "chunk_size": "100", "chunk_overlap": "10",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400 for no documents and no links", rec.Code)
	}
}

func TestPreprocess_BadChunkConfig(t *testing.T) {
	_, e := newTestServer(t)
	rec := doPreprocess(t, e, map[string]string{
		"links": "[]", "chunk_size": "5", "chunk_overlap": "5",
	}, map[string]string{"a.txt": "hello world"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400 for overlap >= size", rec.Code)
	}
}

func TestPreprocess_InvalidLink(t *testing.T) {
	_, e := newTestServer(t)
	rec := doPreprocess(t, e, map[string]string{
		"links": `["not-a-url"]`, "chunk_size": "100", "chunk_overlap": "0",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400 for a malformed URL", rec.Code)
	}
}

func TestPreprocessThenChat(t *testing.T) {
	srv, e := newTestServer(t)

	rec := doPreprocess(t, e, map[string]string{
		"links": "[]", "chunk_size": "5", "chunk_overlap": "0",
	}, map[string]string{"a.txt": "hello world"})
	if rec.Code != http.StatusOK {
		t.Fatalf("preprocess: got %d: %s", rec.Code, rec.Body.String())
	}
	if !srv.Session.Ready() {
		t.Fatal("session should be Ready after preprocessing")
	}

	rec = doForm(e, "/chat", "prompt=greet+me")
	if rec.Code != http.StatusOK {
		t.Fatalf("chat: got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["response"] == "" {
		t.Error("chat must return a non-empty response")
	}
	msgs := srv.Session.State().Messages
	if len(msgs) != 2 || msgs[0].Role != provider.RoleUser || msgs[1].Role != provider.RoleAssistant {
		t.Errorf("exchange not recorded: %+v", msgs)
	}
}

func TestSelectVectorDB(t *testing.T) {
	srv, e := newTestServer(t)

	rec := doForm(e, "/select_vectordb", "vectordb=Qdrant")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	if srv.Session.State().SelectedBackend != "Qdrant" {
		t.Error("selection not recorded")
	}

	rec = doForm(e, "/select_vectordb", "vectordb=ElasticSearch")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400 for an unknown backend", rec.Code)
	}
}

func TestSelectChatModel(t *testing.T) {
	srv, e := newTestServer(t)
	rec := doForm(e, "/select_chat_model", "chat_model=llama-test")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	if srv.Session.State().SelectedChatModel != "llama-test" {
		t.Error("selection not recorded")
	}
}

func TestReset(t *testing.T) {
	_, e := newTestServer(t)

	rec := doPreprocess(t, e, map[string]string{
		"links": "[]", "chunk_size": "100", "chunk_overlap": "0",
	}, map[string]string{"a.txt": "some document text"})
	if rec.Code != http.StatusOK {
		t.Fatalf("preprocess: got %d", rec.Code)
	}

	rec = doForm(e, "/reset", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reset: got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doForm(e, "/chat", "prompt=anything")
	if rec.Code != http.StatusPreconditionFailed {
		t.Errorf("got %d, want 412 after reset", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	_, e := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("got %d", rec.Code)
	}
}
