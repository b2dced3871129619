// Package config loads pipeline tuning from an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/sitechat/internal/core/domain"
)

// Load reads pipeline configuration from path. An empty path or a missing
// file yields the defaults. Fields left at their zero value keep the default.
func Load(path string) (domain.PipelineConfig, error) {
	if path == "" {
		return domain.DefaultPipelineConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.DefaultPipelineConfig(), nil
		}
		return domain.PipelineConfig{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, overlays it on the defaults and validates the result.
func Parse(data []byte) (domain.PipelineConfig, error) {
	var cfg domain.PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return domain.PipelineConfig{}, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return domain.PipelineConfig{}, err
	}
	return cfg, nil
}

// Save writes the config to path, creating directories as needed.
func Save(path string, cfg domain.PipelineConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func applyDefaults(cfg *domain.PipelineConfig) {
	d := domain.DefaultPipelineConfig()

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = d.Retry.MaxAttempts
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = d.Retry.BaseDelay
	}

	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = d.Chunking.Size
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = d.Chunking.Overlap
	}

	if cfg.Crawl.MaxDepth == 0 {
		cfg.Crawl.MaxDepth = d.Crawl.MaxDepth
	}
	if cfg.Crawl.MaxConcurrency == 0 {
		cfg.Crawl.MaxConcurrency = d.Crawl.MaxConcurrency
	}
	if cfg.Crawl.MaxPages == 0 {
		cfg.Crawl.MaxPages = d.Crawl.MaxPages
	}
	if cfg.Crawl.DefaultMode == "" {
		cfg.Crawl.DefaultMode = d.Crawl.DefaultMode
	}

	if cfg.Retrieval.Threshold == 0 {
		cfg.Retrieval.Threshold = d.Retrieval.Threshold
	}
	if cfg.Retrieval.Limit == 0 {
		cfg.Retrieval.Limit = d.Retrieval.Limit
	}

	if cfg.Embedding.Concurrency == 0 {
		cfg.Embedding.Concurrency = d.Embedding.Concurrency
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = d.Embedding.Dimensions
	}

	if cfg.Answer.SystemPrompt == "" {
		cfg.Answer.SystemPrompt = d.Answer.SystemPrompt
	}
	if cfg.Answer.ToolSystemPrompt == "" {
		cfg.Answer.ToolSystemPrompt = d.Answer.ToolSystemPrompt
	}
	if cfg.Answer.ContextSeparator == "" {
		cfg.Answer.ContextSeparator = d.Answer.ContextSeparator
	}
	if cfg.Answer.MaxToolRounds == 0 {
		cfg.Answer.MaxToolRounds = d.Answer.MaxToolRounds
	}

	if cfg.Models.Embedding == "" {
		cfg.Models.Embedding = d.Models.Embedding
	}
	if cfg.Models.TextGeneration == "" {
		cfg.Models.TextGeneration = d.Models.TextGeneration
	}
}
