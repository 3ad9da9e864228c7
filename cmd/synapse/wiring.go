package main

import (
	"fmt"
	"os"

	"github.com/mbaxter/synapse/internal/config"
	"github.com/mbaxter/synapse/internal/discover"
	"github.com/mbaxter/synapse/internal/orchestrator"
	"github.com/mbaxter/synapse/internal/pipeline"
	"github.com/mbaxter/synapse/internal/reportcache"
	"github.com/mbaxter/synapse/internal/score"
	"github.com/mbaxter/synapse/internal/source"
	"github.com/mbaxter/synapse/internal/synth"
	"github.com/mbaxter/synapse/internal/types"
	"github.com/mbaxter/synapse/internal/vectorize"
)

// buildRegistry turns the configured sources into a populated adapter
// registry.
func buildRegistry(cfg *config.Config) (*source.Registry, error) {
	registry := source.NewRegistry()
	for _, sc := range cfg.Sources {
		criticality := types.CriticalityOptional
		if sc.Critical {
			criticality = types.CriticalityCritical
		}
		timeout, err := sc.ParseTimeout()
		if err != nil {
			return nil, err
		}

		apiKey := ""
		if sc.APIKeyEnv != "" {
			apiKey = os.Getenv(sc.APIKeyEnv)
		}

		adapter, err := source.NewHTTPAdapter(source.HTTPConfig{
			Name:         sc.Name,
			Endpoint:     sc.Endpoint,
			APIKey:       apiKey,
			ContentField: sc.ContentField,
			Criticality:  criticality,
			Timeout:      timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.Name, err)
		}
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// buildEmbedder constructs the embedding service and its cache.
func buildEmbedder(cfg *config.Config) (vectorize.EmbeddingService, vectorize.Cache, error) {
	keyEnv := cfg.Embedding.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "SYNAPSE_EMBED_KEY"
	}
	timeout, err := cfg.Embedding.ParseTimeout()
	if err != nil {
		return nil, nil, err
	}

	svc, err := vectorize.NewOpenAIService(vectorize.OpenAIConfig{
		APIKey:  os.Getenv(keyEnv),
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Embedding.Model,
		Timeout: timeout,
	})
	if err != nil {
		return nil, nil, err
	}

	var cache vectorize.Cache
	if cfg.Embedding.CachePath != "" {
		cache, err = vectorize.NewSQLiteCache(cfg.Embedding.CachePath)
		if err != nil {
			return nil, nil, fmt.Errorf("embedding cache: %w", err)
		}
	} else {
		cache = vectorize.NewMemoryCache()
	}
	return svc, cache, nil
}

// buildPipeline constructs the full pipeline from configuration. The
// returned cleanup closes every resource the pipeline owns.
func buildPipeline(cfg *config.Config, adapters []source.Adapter) (*pipeline.Pipeline, func(), error) {
	orchCfg, err := cfg.Orchestrator.Build()
	if err != nil {
		return nil, nil, err
	}
	orch, err := orchestrator.New(orchCfg)
	if err != nil {
		return nil, nil, err
	}

	embedder, embedCache, err := buildEmbedder(cfg)
	if err != nil {
		return nil, nil, err
	}
	vectorizer, err := vectorize.New(embedder, embedCache, cfg.Vectorizer)
	if err != nil {
		embedder.Close()
		embedCache.Close()
		return nil, nil, err
	}

	engine, err := discover.NewEngine(cfg.Discovery)
	if err != nil {
		embedder.Close()
		embedCache.Close()
		return nil, nil, err
	}

	scorer, err := score.New(cfg.Scoring)
	if err != nil {
		embedder.Close()
		embedCache.Close()
		return nil, nil, err
	}

	generator, err := synth.NewAnthropicGenerator(synth.AnthropicConfig{
		Model:     cfg.Synthesis.Model,
		MaxTokens: cfg.Synthesis.MaxTokens,
	})
	if err != nil {
		embedder.Close()
		embedCache.Close()
		return nil, nil, err
	}
	controller, err := synth.NewController(generator, scorer, cfg.Synthesis.Retry)
	if err != nil {
		embedder.Close()
		embedCache.Close()
		return nil, nil, err
	}

	var reports *reportcache.Cache
	if !cfg.Cache.Disabled {
		cacheCfg, err := cfg.Cache.Build()
		if err != nil {
			embedder.Close()
			embedCache.Close()
			return nil, nil, err
		}
		reports = reportcache.New(cacheCfg)
	}

	p, err := pipeline.New(pipeline.Deps{
		Adapters:      adapters,
		Orchestrator:  orch,
		Vectorizer:    vectorizer,
		Engine:        engine,
		Controller:    controller,
		Reports:       reports,
		MaxConcurrent: cfg.Synthesis.MaxConcurrent,
	})
	if err != nil {
		embedder.Close()
		embedCache.Close()
		return nil, nil, err
	}

	cleanup := func() {
		embedder.Close()
		embedCache.Close()
		if reports != nil {
			reports.Close()
		}
	}
	return p, cleanup, nil
}
