package main

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/ragstack/ragserve/config"
	"github.com/ragstack/ragserve/internal/inference"
	"github.com/ragstack/ragserve/internal/ingest"
	"github.com/ragstack/ragserve/internal/scrape"
	"github.com/ragstack/ragserve/internal/server"
	"github.com/ragstack/ragserve/internal/session"
	"github.com/ragstack/ragserve/internal/vectorstore"
	"github.com/ragstack/ragserve/internal/vectorstore/chroma"
	"github.com/ragstack/ragserve/internal/vectorstore/memory"
	"github.com/ragstack/ragserve/internal/vectorstore/milvus"
	"github.com/ragstack/ragserve/internal/vectorstore/pinecone"
	"github.com/ragstack/ragserve/internal/vectorstore/qdrant"
	"github.com/ragstack/ragserve/internal/vectorstore/weaviate"
	openai_provider "github.com/ragstack/ragserve/provider/openai"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the RAG chat HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default config.yaml in . or ./config)")
	return cmd
}

func serve(cfg *config.Config) error {
	logger := log.New(log.Writer(), "[ragserve] ", log.LstdFlags)

	llm, err := openai_provider.New(openai_provider.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Timeout: cfg.LLM.Timeout,
	})
	if err != nil {
		return err
	}

	registry := vectorstore.NewRegistry(
		memory.New(),
		pinecone.New(pinecone.Config{
			Host:      cfg.VectorDBs.Pinecone.Host,
			APIKey:    cfg.VectorDBs.Pinecone.APIKey,
			IndexName: cfg.VectorDBs.Pinecone.IndexName,
		}),
		weaviate.New(weaviate.Config{
			URL:    cfg.VectorDBs.Weaviate.URL,
			APIKey: cfg.VectorDBs.Weaviate.APIKey,
			Class:  cfg.VectorDBs.Weaviate.Class,
		}),
		qdrant.New(qdrant.Config{
			URL:        cfg.VectorDBs.Qdrant.URL,
			APIKey:     cfg.VectorDBs.Qdrant.APIKey,
			Collection: cfg.VectorDBs.Qdrant.Collection,
		}),
		milvus.New(milvus.Config{
			URL:        cfg.VectorDBs.Milvus.URL,
			Token:      cfg.VectorDBs.Milvus.Token,
			Collection: cfg.VectorDBs.Milvus.Collection,
		}),
		chroma.New(chroma.Config{
			URL:        cfg.VectorDBs.Chroma.URL,
			Collection: cfg.VectorDBs.Chroma.Collection,
		}),
	)

	sess := session.New(durableStore(cfg), logger)
	if err := sess.Restore(context.Background(), registry); err != nil {
		return err
	}

	scraper := &scrape.Scraper{
		Fetcher: scrape.FallbackFetcher{
			Primary:   scrape.BrowserFetcher{Timeout: cfg.Scrape.Timeout},
			Secondary: scrape.HTTPFetcher{},
		},
		Provider:     llm,
		SummaryModel: cfg.LLM.SummaryModel,
		Cache:        scrape.NewCache(cfg.Scrape.CachePath),
		DumpDir:      cfg.Scrape.DumpDir,
		MaxChars:     cfg.Scrape.MaxChars,
		Logger:       logger,
	}

	srv := &server.Server{
		Session:   sess,
		Pipeline:  &ingest.Pipeline{Provider: llm, Registry: registry, Logger: logger},
		Scraper:   scraper,
		Inference: &inference.Service{Provider: llm, TopK: cfg.Retrieval.TopK},
		Defaults:  cfg.LLM,
		Logger:    logger,
	}
	return srv.Run(cfg.Server.Address, cfg.Server.CORSOrigins)
}

func durableStore(cfg *config.Config) session.DurableStore {
	if cfg.Session.Store == "redis" {
		return session.NewRedisStore(cfg.Session.Redis.Addr, cfg.Session.Redis.Password, cfg.Session.Redis.DB)
	}
	return session.NewFileStore(cfg.Session.Path)
}
