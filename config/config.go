// Package config loads runtime settings from the environment, optionally
// layered over a YAML file named by NIM_MEMORY_CONFIG.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains all runtime settings for the memory service and chat shell.
type Config struct {
	// Memory
	HistoryCap   int           `yaml:"history_cap"`
	TopK         int           `yaml:"top_k"`
	EmbedTimeout time.Duration `yaml:"embed_timeout"`

	// Key-value tier
	KVBackend     string `yaml:"kv_backend"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	DatabaseURL   string `yaml:"database_url"`
	CacheEnabled  bool   `yaml:"cache_enabled"`

	// Semantic tier
	IndexBackend  string `yaml:"index_backend"`
	IndexPath     string `yaml:"index_path"`
	EmbeddingDim  int    `yaml:"embedding_dim"`
	Embedder      string `yaml:"embedder"`
	OllamaURL     string `yaml:"ollama_url"`
	OllamaModel   string `yaml:"ollama_model"`
	ONNXModelPath string `yaml:"onnx_model_path"`
	ONNXTokenizer string `yaml:"onnx_tokenizer_path"`
	ONNXLibrary   string `yaml:"onnx_library_path"`

	// Chat
	AnthropicAPIKey string        `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string        `yaml:"openai_api_key"`
	ChatModel       string        `yaml:"chat_model"`
	ChatMaxTokens   int           `yaml:"chat_max_tokens"`
	ChatTimeout     time.Duration `yaml:"chat_timeout"`

	// Server
	BindAddr         string        `yaml:"bind_addr"`
	MetricsNamespace string        `yaml:"metrics_namespace"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		HistoryCap:       5,
		TopK:             4,
		EmbedTimeout:     10 * time.Second,
		KVBackend:        "redis",
		RedisAddr:        "localhost:6379",
		IndexBackend:     "flat",
		IndexPath:        "faiss.index",
		EmbeddingDim:     4096,
		Embedder:         "ollama",
		OllamaURL:        "http://localhost:11434",
		OllamaModel:      "mistral",
		ChatModel:        "mistral",
		ChatMaxTokens:    1024,
		ChatTimeout:      60 * time.Second,
		BindAddr:         ":8080",
		MetricsNamespace: "nim_memory",
		ShutdownTimeout:  15 * time.Second,
	}
}

// Load reads the YAML file named by NIM_MEMORY_CONFIG (if any), applies
// environment overrides and validates the result.
func Load() (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("NIM_MEMORY_CONFIG")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.KVBackend = envOrDefault("MEMORY_KV_BACKEND", cfg.KVBackend)
	cfg.RedisAddr = envOrDefault("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envOrDefault("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.IndexBackend = envOrDefault("MEMORY_INDEX_BACKEND", cfg.IndexBackend)
	cfg.IndexPath = envOrDefault("MEMORY_INDEX_PATH", cfg.IndexPath)
	cfg.Embedder = envOrDefault("MEMORY_EMBEDDER", cfg.Embedder)
	cfg.OllamaURL = envOrDefault("OLLAMA_URL", cfg.OllamaURL)
	cfg.OllamaModel = envOrDefault("OLLAMA_MODEL", cfg.OllamaModel)
	cfg.ONNXModelPath = envOrDefault("ONNX_MODEL_PATH", cfg.ONNXModelPath)
	cfg.ONNXTokenizer = envOrDefault("ONNX_TOKENIZER_PATH", cfg.ONNXTokenizer)
	cfg.ONNXLibrary = envOrDefault("ONNX_LIBRARY_PATH", cfg.ONNXLibrary)
	cfg.AnthropicAPIKey = envOrDefault("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.OpenAIAPIKey = envOrDefault("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.ChatModel = envOrDefault("CHAT_MODEL", cfg.ChatModel)
	cfg.BindAddr = envOrDefault("APP_BIND_ADDR", cfg.BindAddr)
	cfg.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", cfg.MetricsNamespace)

	var err error
	if cfg.HistoryCap, err = intFromEnv("MEMORY_HISTORY_CAP", cfg.HistoryCap); err != nil {
		return Config{}, err
	}
	if cfg.TopK, err = intFromEnv("MEMORY_TOP_K", cfg.TopK); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = intFromEnv("REDIS_DB", cfg.RedisDB); err != nil {
		return Config{}, err
	}
	if cfg.EmbeddingDim, err = intFromEnv("MEMORY_EMBEDDING_DIM", cfg.EmbeddingDim); err != nil {
		return Config{}, err
	}
	if cfg.ChatMaxTokens, err = intFromEnv("CHAT_MAX_TOKENS", cfg.ChatMaxTokens); err != nil {
		return Config{}, err
	}
	if cfg.EmbedTimeout, err = durationFromEnv("MEMORY_EMBED_TIMEOUT", cfg.EmbedTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ChatTimeout, err = durationFromEnv("CHAT_TIMEOUT", cfg.ChatTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.CacheEnabled, err = boolFromEnv("MEMORY_CACHE_ENABLED", cfg.CacheEnabled); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.HistoryCap <= 0 {
		return fmt.Errorf("MEMORY_HISTORY_CAP must be positive")
	}
	if c.TopK <= 0 {
		return fmt.Errorf("MEMORY_TOP_K must be positive")
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("MEMORY_EMBEDDING_DIM must be positive")
	}
	if c.EmbedTimeout < 0 {
		return fmt.Errorf("MEMORY_EMBED_TIMEOUT must not be negative")
	}
	switch c.KVBackend {
	case "redis", "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown MEMORY_KV_BACKEND %q (want redis, postgres or memory)", c.KVBackend)
	}
	switch c.IndexBackend {
	case "flat", "chromem":
	default:
		return fmt.Errorf("unknown MEMORY_INDEX_BACKEND %q (want flat or chromem)", c.IndexBackend)
	}
	switch c.Embedder {
	case "ollama", "mock":
	case "onnx":
		if c.ONNXModelPath == "" || c.ONNXTokenizer == "" {
			return fmt.Errorf("ONNX_MODEL_PATH and ONNX_TOKENIZER_PATH are required for the onnx embedder")
		}
	default:
		return fmt.Errorf("unknown MEMORY_EMBEDDER %q (want ollama, mock or onnx)", c.Embedder)
	}
	return nil
}

// loadFile overlays the YAML file at path onto cfg.
// Environment variables in the format ${VAR_NAME} are expanded.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
