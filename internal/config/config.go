package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultChunkSize      = 1000
	DefaultTopK           = 3
	DefaultHistoryTurns   = 3
	DefaultCollectionName = "study_docs"
	DefaultChatModel      = "llama3.2:3b"
	DefaultEmbedModel     = "nomic-embed-text"
	DefaultOllamaURL      = "http://localhost:11434"
	DefaultListenAddr     = ":7860"
)

type Config struct {
	Server   ServerConfig `yaml:"server" envPrefix:"SERVER_"`
	ChatLLM  LLMConfig    `yaml:"chat_llm" envPrefix:"CHAT_"`
	EmbedLLM LLMConfig    `yaml:"embed_llm" envPrefix:"EMBED_"`
	RAG      RAGConfig    `yaml:"rag" envPrefix:"RAG_"`
	Log      LogConfig    `yaml:"log" envPrefix:"LOG_"`
}

type ServerConfig struct {
	Addr          string `yaml:"addr" env:"ADDR"`
	Mode          string `yaml:"mode" env:"MODE"` // gin mode: debug, release, test
	MaxUploadMB   int64  `yaml:"max_upload_mb" env:"MAX_UPLOAD_MB"`
	SessionCookie string `yaml:"session_cookie" env:"SESSION_COOKIE"`
}

// LLMConfig describes one model endpoint. Provider is "ollama" or "openai".
type LLMConfig struct {
	Provider string `yaml:"provider" env:"PROVIDER"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL"`
	Key      string `yaml:"key" env:"KEY"`
	Model    string `yaml:"model" env:"MODEL"`
	Stream   bool   `yaml:"stream" env:"STREAM"`
}

type RAGConfig struct {
	ChunkSize         int      `yaml:"chunk_size" env:"CHUNK_SIZE"`
	TopK              int      `yaml:"top_k" env:"TOP_K"`
	HistoryTurns      int      `yaml:"history_turns" env:"HISTORY_TURNS"`
	CollectionName    string   `yaml:"collection_name" env:"COLLECTION_NAME"`
	EmbedConcurrency  int      `yaml:"embed_concurrency" env:"EMBED_CONCURRENCY"`
	AllowedExtensions []string `yaml:"allowed_extensions" env:"ALLOWED_EXTENSIONS" envSeparator:","`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
	JSON  bool   `yaml:"json" env:"JSON"`
}

// LoadConfig reads the YAML file at path (a missing file means defaults),
// then applies overrides from .env and the process environment.
func LoadConfig(path string) (*Config, error) {
	cfg := newConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	_ = godotenv.Load()
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := newConfig()
	applyDefaults(&cfg)
	return &cfg
}

// newConfig presets the defaults that a zero value cannot express, so the
// YAML file and then the environment can still override them.
func newConfig() Config {
	return Config{
		ChatLLM: LLMConfig{Stream: true},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultListenAddr
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Server.MaxUploadMB <= 0 {
		cfg.Server.MaxUploadMB = 64
	}
	if cfg.Server.SessionCookie == "" {
		cfg.Server.SessionCookie = "study_session"
	}

	applyLLMDefaults(&cfg.ChatLLM, DefaultChatModel)
	applyLLMDefaults(&cfg.EmbedLLM, DefaultEmbedModel)

	if cfg.RAG.ChunkSize <= 0 {
		cfg.RAG.ChunkSize = DefaultChunkSize
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = DefaultTopK
	}
	if cfg.RAG.HistoryTurns <= 0 {
		cfg.RAG.HistoryTurns = DefaultHistoryTurns
	}
	if cfg.RAG.CollectionName == "" {
		cfg.RAG.CollectionName = DefaultCollectionName
	}
	if cfg.RAG.EmbedConcurrency <= 0 {
		cfg.RAG.EmbedConcurrency = runtime.NumCPU()
	}
	if len(cfg.RAG.AllowedExtensions) == 0 {
		cfg.RAG.AllowedExtensions = []string{".pdf"}
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "debug"
	}
}

func applyLLMDefaults(c *LLMConfig, model string) {
	if c.Provider == "" {
		c.Provider = "ollama"
	}
	if c.BaseURL == "" && c.Provider == "ollama" {
		c.BaseURL = DefaultOllamaURL
	}
	if c.Model == "" {
		c.Model = model
	}
}
