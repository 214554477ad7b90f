package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	LLM       LLMConfig       `toml:"llm"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Database  DatabaseConfig  `toml:"database"`
	Ingest    IngestConfig    `toml:"ingest"`
	Query     QueryConfig     `toml:"query"`
	Observer  ObserverConfig  `toml:"observer"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
	// UploadLimitMB caps the size of a single multipart upload request.
	UploadLimitMB int `toml:"upload_limit_mb"`
	Workers       int `toml:"workers"`
}

type LLMConfig struct {
	Provider    string  `toml:"provider"`
	Model       string  `toml:"model"`
	BaseURL     string  `toml:"base_url"`
	APIKey      string  `toml:"api_key"`
	Temperature float64 `toml:"temperature"`
}

type EmbeddingConfig struct {
	Provider   string `toml:"provider"`
	Model      string `toml:"model"`
	BaseURL    string `toml:"base_url"`
	Dimensions int    `toml:"dimensions"`
	APIKey     string `toml:"api_key"`
}

type DatabaseConfig struct {
	// Driver selects "postgres" or "sqlite".
	Driver      string `toml:"driver"`
	PostgresURL string `toml:"postgres_url"`
	SQLitePath  string `toml:"sqlite_path"`
}

type IngestConfig struct {
	ChildWindow       int `toml:"child_window"`
	ChildOverlap      int `toml:"child_overlap"`
	MinParagraphChars int `toml:"min_paragraph_chars"`
}

type QueryConfig struct {
	TopK             int     `toml:"top_k"`
	RoutingThreshold float64 `toml:"routing_threshold"`
	HistoryWindow    int     `toml:"history_window"`
	HyDE             bool    `toml:"hyde"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Server:    ServerConfig{Addr: ":8000", UploadLimitMB: 64, Workers: 2},
		LLM:       LLMConfig{Provider: "openai", Model: "gpt-4o-mini", BaseURL: "https://api.openai.com/v1", Temperature: 0.2},
		Embedding: EmbeddingConfig{Provider: "openai", Model: "text-embedding-3-small", BaseURL: "https://api.openai.com/v1", Dimensions: 384},
		Database:  DatabaseConfig{Driver: "sqlite", SQLitePath: "papyrus.db"},
		Ingest:    IngestConfig{ChildWindow: 500, ChildOverlap: 100, MinParagraphChars: 50},
		Query:     QueryConfig{TopK: 8, RoutingThreshold: 0.8, HistoryWindow: 20, HyDE: true},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "papyrus.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("PAPYRUS_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PAPYRUS_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("PAPYRUS_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("PAPYRUS_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("PAPYRUS_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("PAPYRUS_POSTGRES_URL"); v != "" {
		cfg.Database.Driver = "postgres"
		cfg.Database.PostgresURL = v
	}
	if v := os.Getenv("PAPYRUS_SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if os.Getenv("PAPYRUS_OBSERVER_ENABLED") == "true" || os.Getenv("PAPYRUS_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	// Fallbacks
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = cfg.LLM.BaseURL
	}

	return cfg
}
