package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ragstack/ragserve/internal/ingest"
	"github.com/ragstack/ragserve/internal/vectorstore"
)

// handlePreprocess accepts uploaded documents and a link set, runs the
// scrape-and-summarize chain, and feeds everything through the ingestion
// pipeline into the currently selected backend.
func (s *Server) handlePreprocess(c echo.Context) error {
	ctx := c.Request().Context()

	links, err := parseLinks(c.FormValue("links"))
	if err != nil {
		return err
	}
	docs, err := readUploads(c)
	if err != nil {
		return err
	}
	embeddingModel := strings.TrimSpace(c.FormValue("embedding_model"))
	if embeddingModel == "" {
		embeddingModel = s.Defaults.EmbeddingModel
	}
	chunkSize, err := formInt(c, "chunk_size")
	if err != nil {
		return err
	}
	chunkOverlap, err := formInt(c, "chunk_overlap")
	if err != nil {
		return err
	}
	if len(docs) == 0 && len(links) == 0 {
		return fmt.Errorf("%w: no documents or links provided for preprocessing", ingest.ErrValidation)
	}

	if err := s.Session.BeginIngestion(); err != nil {
		return err
	}

	scraped := ""
	if len(links) > 0 {
		scraped, err = s.Scraper.Run(ctx, links)
		if err != nil {
			s.Session.FailIngestion()
			ingestFailures.Inc()
			return fmt.Errorf("%w: scrape stage: %v", ingest.ErrIngestion, err)
		}
	}

	backend, err := vectorstore.ParseBackend(s.Session.State().SelectedBackend)
	if err != nil {
		s.Session.FailIngestion()
		return err
	}
	handle, durableID, err := s.Pipeline.Ingest(ctx, docs, scraped, embeddingModel, chunkSize, chunkOverlap, backend)
	if err != nil {
		s.Session.FailIngestion()
		ingestFailures.Inc()
		return err
	}
	if err := s.Session.CompleteIngestion(ctx, handle, durableID, embeddingModel); err != nil {
		ingestFailures.Inc()
		return err
	}
	ingestTotal.Inc()
	return c.JSON(http.StatusOK, map[string]string{"message": "Preprocessing completed successfully!"})
}

func (s *Server) handleSelectVectorDB(c echo.Context) error {
	name := c.FormValue("vectordb")
	if err := s.Session.SelectBackend(c.Request().Context(), name); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Selected Vector Database: " + name})
}

func (s *Server) handleSelectChatModel(c echo.Context) error {
	model := strings.TrimSpace(c.FormValue("chat_model"))
	if model == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "chat_model is required")
	}
	if err := s.Session.SelectChatModel(c.Request().Context(), model); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Selected Chat Model: " + model})
}

func (s *Server) handleChat(c echo.Context) error {
	ctx := c.Request().Context()
	prompt := strings.TrimSpace(c.FormValue("prompt"))
	if prompt == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt is required")
	}

	view, err := s.Session.BeginChat()
	if err != nil {
		return err
	}
	response, err := s.Inference.Respond(ctx, view, prompt)
	if err != nil {
		chatFailures.Inc()
		return err
	}
	// The exchange is recorded only after a successful model call.
	if err := s.Session.AppendExchange(ctx, prompt, response); err != nil {
		return err
	}
	chatTotal.Inc()
	return c.JSON(http.StatusOK, map[string]string{"response": response})
}

func (s *Server) handleReset(c echo.Context) error {
	if err := s.Session.Reset(c.Request().Context()); err != nil {
		return err
	}
	if s.Scraper != nil && s.Scraper.Cache != nil {
		if err := s.Scraper.Cache.Clear(); err != nil {
			return err
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Chat history reset and session state cleared!"})
}

// parseLinks decodes the JSON link array and validates every URL before
// any work starts.
func parseLinks(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var links []string
	if err := json.Unmarshal([]byte(raw), &links); err != nil {
		return nil, fmt.Errorf("%w: links must be a JSON array of strings: %v", ingest.ErrValidation, err)
	}
	for _, link := range links {
		u, err := url.Parse(link)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%w: invalid URL: %s", ingest.ErrValidation, link)
		}
	}
	return links, nil
}

func readUploads(c echo.Context) ([]ingest.Document, error) {
	form, err := c.MultipartForm()
	if err != nil {
		if err == http.ErrNotMultipart || err == http.ErrMissingBoundary {
			return nil, nil
		}
		return nil, echo.NewHTTPError(http.StatusBadRequest, "malformed multipart form")
	}
	files := form.File["doc_files"]
	docs := make([]ingest.Document, 0, len(files))
	for _, fh := range files {
		if strings.TrimSpace(fh.Filename) == "" {
			return nil, fmt.Errorf("%w: one of the uploaded files has no name", ingest.ErrValidation)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %q: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read upload %q: %w", fh.Filename, err)
		}
		docs = append(docs, ingest.Document{Name: fh.Filename, Data: data})
	}
	return docs, nil
}

func formInt(c echo.Context, field string) (int, error) {
	raw := strings.TrimSpace(c.FormValue(field))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", ingest.ErrConfiguration, field, raw)
	}
	return n, nil
}
