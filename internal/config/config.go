// Package config provides configuration loading and structs for the Dummi server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Recommend RecommendConfig `yaml:"recommend"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database and the persisted vector index.
// WatchArtifacts enables reloading the vector index when its file changes on
// disk (e.g. written by a training run in another process).
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	VectorIndexPath string `yaml:"vector_index_path"`
	WatchArtifacts  bool   `yaml:"watch_artifacts"`
}

// EmbeddingConfig holds settings for the embedding service client.
// APIKey and BaseURL can be overridden from the environment (OPENAI_API_KEY,
// OPENAI_BASE_URL); with no API key the deterministic mock embedder is used.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key" env:"OPENAI_API_KEY"`
	BaseURL    string `yaml:"base_url" env:"OPENAI_BASE_URL"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"`
}

// RecommendConfig holds scoring and training hyperparameters.
type RecommendConfig struct {
	TopK                int     `yaml:"top_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	ColdStartThreshold  int     `yaml:"cold_start_threshold"`
	CFWeight            float64 `yaml:"cf_weight"`
	NFactors            int     `yaml:"n_factors"`
	NEpochs             int     `yaml:"n_epochs"`
	NList               int     `yaml:"n_list"`
	NProbe              int     `yaml:"n_probe"`
}

// Load reads and parses the config file at path, applies defaults, expands
// paths, and applies environment overrides for embedding credentials.
// A .env file in the working directory is honored when present.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	_ = godotenv.Load()
	var overrides EmbeddingConfig
	if err := env.Parse(&overrides); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if overrides.APIKey != "" {
		cfg.Embedding.APIKey = overrides.APIKey
	}
	if overrides.BaseURL != "" {
		cfg.Embedding.BaseURL = overrides.BaseURL
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
