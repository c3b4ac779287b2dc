package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ragstack/ragserve/config"
	"github.com/ragstack/ragserve/internal/inference"
	"github.com/ragstack/ragserve/internal/ingest"
	"github.com/ragstack/ragserve/internal/scrape"
	"github.com/ragstack/ragserve/internal/session"
	"github.com/ragstack/ragserve/internal/vectorstore"
)

// Server is the thin HTTP surface over the orchestration core. Handlers
// validate and translate; session, pipeline and inference own the logic.
type Server struct {
	Session   *session.Session
	Pipeline  *ingest.Pipeline
	Scraper   *scrape.Scraper
	Inference *inference.Service
	Defaults  config.LLMConfig
	Logger    *log.Logger
}

// Echo assembles the routed echo instance.
func (s *Server) Echo(corsOrigins []string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	if s.Logger == nil {
		s.Logger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}
	e.HTTPErrorHandler = s.errorHandler
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
	}))

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": "Hello, World!"})
	})
	e.HEAD("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.POST("/preprocess", s.handlePreprocess)
	e.POST("/select_vectordb", s.handleSelectVectorDB)
	e.POST("/select_chat_model", s.handleSelectChatModel)
	e.POST("/chat", s.handleChat)
	e.POST("/reset", s.handleReset)
	return e
}

// Run starts serving on addr and blocks.
func (s *Server) Run(addr string, corsOrigins []string) error {
	e := s.Echo(corsOrigins)
	s.Logger.Printf("listening on %s", addr)
	return e.Start(addr)
}

// errorHandler maps the core error taxonomy onto HTTP statuses and emits
// a uniform JSON error body.
func (s *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()

	switch {
	case errors.Is(err, ingest.ErrConfiguration),
		errors.Is(err, ingest.ErrValidation),
		errors.Is(err, vectorstore.ErrUnknownBackend):
		code = http.StatusBadRequest
	case errors.Is(err, session.ErrIngestionInFlight):
		code = http.StatusConflict
	case errors.Is(err, session.ErrNotReady):
		code = http.StatusPreconditionFailed
	case errors.Is(err, session.ErrBackendUnavailable):
		code = http.StatusServiceUnavailable
	case errors.Is(err, ingest.ErrIngestion), errors.Is(err, inference.ErrInference):
		code = http.StatusBadGateway
	default:
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
	}

	req := c.Request()
	s.Logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
	if !c.Response().Committed {
		_ = c.JSON(code, map[string]any{"error": msg})
	}
}
