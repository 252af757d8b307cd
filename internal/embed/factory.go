package embed

import (
	"context"
	"fmt"
	"time"
)

// FactoryConfig selects and configures an embedding provider.
type FactoryConfig struct {
	// Provider is "ollama" or "static".
	Provider string

	// Model, Host and Dimensions configure the ollama provider.
	Model      string
	Host       string
	Dimensions int

	// CacheSize is the embedding LRU size; <= 0 uses the default.
	CacheSize int

	// Timeout for backend requests.
	Timeout time.Duration
}

// New creates the configured embedder, wrapped in the LRU cache.
func New(ctx context.Context, cfg FactoryConfig) (Embedder, error) {
	var inner Embedder
	switch cfg.Provider {
	case "", "ollama":
		e, err := NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.Host,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		inner = e
	case "static":
		inner = NewStaticEmbedder()
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
