// Package app wires configuration into a running memory service.
package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/becomeliminal/nim-memory/chat"
	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder/mock"
	"github.com/becomeliminal/nim-memory/memory/embedder/ollama"
	"github.com/becomeliminal/nim-memory/memory/index/chromem"
	"github.com/becomeliminal/nim-memory/memory/index/flat"
	"github.com/becomeliminal/nim-memory/memory/kv/cached"
	"github.com/becomeliminal/nim-memory/memory/kv/inmem"
	"github.com/becomeliminal/nim-memory/memory/kv/postgres"
	"github.com/becomeliminal/nim-memory/memory/kv/redis"
	"github.com/becomeliminal/nim-memory/memory/summarizer"
	"github.com/becomeliminal/nim-memory/observability"
	"github.com/becomeliminal/nim-memory/server"
)

type BuildResult struct {
	Config  config.Config
	Manager *memory.Manager
	Engine  *chat.Engine
	API     *server.Server
	Metrics *observability.Metrics

	// Cleanup should be called on shutdown to release the store and index.
	Cleanup func() error
}

// Option adjusts a build.
type Option func(*buildOptions)

type buildOptions struct {
	metrics *observability.Metrics
}

// WithMetrics uses m instead of registering new instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *buildOptions) { o.metrics = m }
}

func Build(ctx context.Context, cfg config.Config, opts ...Option) (*BuildResult, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	metrics := o.metrics
	if metrics == nil {
		metrics = observability.NewMetrics(cfg.MetricsNamespace)
	}

	kv, err := NewKV(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("kv store init failed: %w", err)
	}

	index, err := NewIndex(cfg)
	if err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("semantic index init failed: %w", err)
	}

	embedder, closeEmbedder, err := NewEmbedder(cfg)
	if err != nil {
		_ = index.Close()
		_ = kv.Close()
		return nil, fmt.Errorf("embedder init failed: %w", err)
	}

	recency := memory.NewRecencyStore(kv, summarizer.New(), cfg.HistoryCap)
	manager := memory.NewManager(recency, index, embedder, &memory.Config{
		TopK:         cfg.TopK,
		EmbedTimeout: cfg.EmbedTimeout,
	}, memory.WithMetrics(metrics))

	router := NewRouter(cfg)
	engine := chat.NewEngine(manager, router, &chat.Config{
		DefaultModel: cfg.ChatModel,
		Timeout:      cfg.ChatTimeout,
		TopK:         cfg.TopK,
	}, chat.WithObserver(metrics))

	api := server.New(manager, engine, metrics)

	log.Printf("[MEMORY] Ready: kv=%s index=%s (%d records) embedder=%s models=%v",
		cfg.KVBackend, cfg.IndexBackend, index.Len(), cfg.Embedder, router.Models())

	cleanup := func() error {
		var errs []string
		if closeEmbedder != nil {
			if err := closeEmbedder(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if err := index.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := kv.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:  cfg,
		Manager: manager,
		Engine:  engine,
		API:     api,
		Metrics: metrics,
		Cleanup: cleanup,
	}, nil
}

// NewKV opens the configured key-value backend, wrapped in a read-through
// cache when enabled.
func NewKV(ctx context.Context, cfg config.Config) (memory.KV, error) {
	var kv memory.KV
	switch cfg.KVBackend {
	case "redis":
		rcfg := redis.DefaultConfig()
		rcfg.Addr = cfg.RedisAddr
		rcfg.Password = cfg.RedisPassword
		rcfg.DB = cfg.RedisDB
		store, err := redis.New(ctx, rcfg)
		if err != nil {
			return nil, err
		}
		kv = store
	case "postgres":
		store, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		kv = store
	case "memory":
		kv = inmem.New()
	default:
		return nil, fmt.Errorf("unknown kv backend %q", cfg.KVBackend)
	}

	if !cfg.CacheEnabled {
		return kv, nil
	}
	store, err := cached.New(kv, cached.Config{})
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	return store, nil
}

// NewIndex opens the configured semantic index.
func NewIndex(cfg config.Config) (memory.SemanticIndex, error) {
	switch cfg.IndexBackend {
	case "flat":
		return flat.New(cfg.EmbeddingDim, cfg.IndexPath)
	case "chromem":
		return chromem.New(cfg.EmbeddingDim, cfg.IndexPath)
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.IndexBackend)
	}
}

// NewEmbedder creates the configured embedder and its release func (may be nil).
func NewEmbedder(cfg config.Config) (memory.Embedder, func() error, error) {
	switch cfg.Embedder {
	case "ollama":
		return ollama.New(ollama.Config{
			BaseURL:    cfg.OllamaURL,
			Model:      cfg.OllamaModel,
			Dimensions: cfg.EmbeddingDim,
		}), nil, nil
	case "mock":
		return mock.New(cfg.EmbeddingDim), nil, nil
	case "onnx":
		return newONNXEmbedder(cfg)
	default:
		return nil, nil, fmt.Errorf("unknown embedder %q", cfg.Embedder)
	}
}

// NewRouter registers a backend for every provider with credentials.
// Ollama needs none and is always available.
func NewRouter(cfg config.Config) *chat.Router {
	opts := []chat.RouterOption{
		chat.WithOllama(chat.NewOllama(cfg.OllamaURL, cfg.OllamaModel, nil)),
	}
	if cfg.OpenAIAPIKey != "" {
		opts = append(opts, chat.WithOpenAI(chat.NewOpenAI(cfg.OpenAIAPIKey, cfg.ChatMaxTokens)))
	}
	if cfg.AnthropicAPIKey != "" {
		opts = append(opts, chat.WithAnthropic(chat.NewAnthropic(cfg.AnthropicAPIKey, cfg.ChatMaxTokens)))
	}
	return chat.NewRouter(opts...)
}
