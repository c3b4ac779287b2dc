package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	VectorDBs VectorDBsConfig `mapstructure:"vectordbs"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Session   SessionConfig   `mapstructure:"session"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address     string   `mapstructure:"address"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LLMConfig configures the OpenAI-compatible provider used for chat,
// embeddings and scrape summarization.
type LLMConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	ChatModel      string        `mapstructure:"chat_model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	SummaryModel   string        `mapstructure:"summary_model"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// VectorDBsConfig carries per-backend connection settings. Only the
// backends the operator actually selects need to be filled in.
type VectorDBsConfig struct {
	Pinecone PineconeConfig `mapstructure:"pinecone"`
	Weaviate WeaviateConfig `mapstructure:"weaviate"`
	Qdrant   QdrantConfig   `mapstructure:"qdrant"`
	Milvus   MilvusConfig   `mapstructure:"milvus"`
	Chroma   ChromaConfig   `mapstructure:"chroma"`
}

type PineconeConfig struct {
	Host      string `mapstructure:"host"`
	APIKey    string `mapstructure:"api_key"`
	IndexName string `mapstructure:"index_name"`
}

type WeaviateConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
	Class  string `mapstructure:"class"`
}

type QdrantConfig struct {
	URL        string `mapstructure:"url"`
	APIKey     string `mapstructure:"api_key"`
	Collection string `mapstructure:"collection"`
}

type MilvusConfig struct {
	URL        string `mapstructure:"url"`
	Token      string `mapstructure:"token"`
	Collection string `mapstructure:"collection"`
}

type ChromaConfig struct {
	URL        string `mapstructure:"url"`
	Collection string `mapstructure:"collection"`
}

// ScrapeConfig controls the fetch-and-summarize chain and its cache.
type ScrapeConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxChars  int           `mapstructure:"max_chars"`
	DumpDir   string        `mapstructure:"dump_dir"`
	CachePath string        `mapstructure:"cache_path"`
}

// SessionConfig selects where the durable session projection lives.
type SessionConfig struct {
	Store string             `mapstructure:"store"` // file | redis
	Path  string             `mapstructure:"path"`
	Redis SessionRedisConfig `mapstructure:"redis"`
}

type SessionRedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RetrievalConfig tunes query-time retrieval.
type RetrievalConfig struct {
	TopK int `mapstructure:"top_k"`
}

// Validate checks the settings that have no workable default.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return fmt.Errorf("llm.api_key is required (or set LLM_API_KEY)")
	}
	switch c.Session.Store {
	case "file", "redis":
	default:
		return fmt.Errorf("session.store must be \"file\" or \"redis\", got %q", c.Session.Store)
	}
	if c.Session.Store == "redis" && strings.TrimSpace(c.Session.Redis.Addr) == "" {
		return fmt.Errorf("session.redis.addr is required when session.store is redis")
	}
	return nil
}

// Load reads configuration from the given file, or from config.yaml in
// the usual search paths when path is empty. Environment variables
// override file values (LLM_API_KEY, SERVER_ADDRESS, ...).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.cors_origins", []string{"*"})
	// Registered with empty defaults so AutomaticEnv can override them
	// even when no config file is present.
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.chat_model", "meta-llama/Llama-3.3-70B-Instruct-Turbo")
	v.SetDefault("llm.embedding_model", "text-embedding-3-small")
	v.SetDefault("llm.summary_model", "meta-llama/Llama-3.3-70B-Instruct-Turbo")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("scrape.timeout", 60*time.Second)
	v.SetDefault("scrape.max_chars", 20000)
	v.SetDefault("scrape.dump_dir", "raw_structured_dumps")
	v.SetDefault("scrape.cache_path", "data/scrape_cache.json")
	v.SetDefault("session.store", "file")
	v.SetDefault("session.path", "data/session_state.json")
	v.SetDefault("session.redis.addr", "")
	v.SetDefault("session.redis.db", 0)
	v.SetDefault("retrieval.top_k", 4)

	if path == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults plus env cover it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
