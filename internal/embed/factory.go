package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aman-CERP/amankb/internal/config"
)

// ProviderType names an embedding provider.
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings (no network).
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses the Ollama HTTP API.
	ProviderOllama ProviderType = "ollama"

	// ProviderNone disables embeddings; search runs lexical-only.
	ProviderNone ProviderType = "none"
)

// ParseProvider converts a config string to a ProviderType. Unknown values
// are returned as-is so that NewEmbedder can reject them.
func ParseProvider(s string) ProviderType {
	return ProviderType(strings.ToLower(strings.TrimSpace(s)))
}

// ValidProviders returns every accepted provider name.
func ValidProviders() []string {
	return []string{string(ProviderStatic), string(ProviderOllama), string(ProviderNone)}
}

// NewEmbedder builds the configured embedder wrapped in a query cache. It
// returns (nil, nil) for ProviderNone. An unreachable Ollama is an error, not
// a silent fallback: vectors from a different model would not be comparable.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	var inner Embedder
	switch ParseProvider(cfg.Provider) {
	case ProviderNone:
		return nil, nil

	case ProviderStatic, "":
		inner = NewStaticEmbedderWithDims(cfg.Dimensions)

	case ProviderOllama:
		oc := DefaultOllamaConfig()
		if cfg.OllamaHost != "" {
			oc.Host = cfg.OllamaHost
		}
		if cfg.Model != "" {
			oc.Model = cfg.Model
		}
		oc.Dimensions = cfg.Dimensions
		if cfg.BatchSize > 0 {
			oc.BatchSize = cfg.BatchSize
		}
		oc.Timeout = config.Duration(cfg.Timeout, DefaultTimeout)
		oc.RequestsPerSecond = cfg.RequestsPerSecond

		e, err := NewOllamaEmbedder(ctx, oc)
		if err != nil {
			return nil, fmt.Errorf("ollama unavailable: %w\n\nTo fix:\n  1. Start Ollama: ollama serve\n  2. Or set embeddings.provider: static (or none for lexical-only)", err)
		}
		inner = e

	default:
		return nil, fmt.Errorf("unknown embeddings provider %q (valid: %s)",
			cfg.Provider, strings.Join(ValidProviders(), ", "))
	}

	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}

// EmbedderInfo summarizes an embedder for status output.
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
}

// GetInfo describes embedder; a nil embedder reports ProviderNone.
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	if embedder == nil {
		return EmbedderInfo{Provider: ProviderNone}
	}
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
		Provider:   ProviderStatic,
	}

	inner := embedder
	if cached, ok := embedder.(*CachedEmbedder); ok {
		inner = cached.Inner()
	}
	if _, ok := inner.(*OllamaEmbedder); ok {
		info.Provider = ProviderOllama
	}
	return info
}
