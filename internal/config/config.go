// Package config provides configuration loading and structs for the Shoko server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool              `yaml:"debug"`
	Server      ServerConfig      `yaml:"server"`
	Library     LibraryConfig     `yaml:"library"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	LLM         LLMConfig         `yaml:"llm"`
	Index       IndexConfig       `yaml:"index"`
	Chat        ChatConfig        `yaml:"chat"`
	Books       BooksConfig       `yaml:"books"`
	Watch       WatchConfig       `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LibraryConfig holds the reference-manager library database settings.
// DatabasePath points at the library's SQLite file (opened read-only);
// StorageDir is the directory holding document attachments, organized by
// attachment key.
type LibraryConfig struct {
	DatabasePath string `yaml:"database_path"`
	StorageDir   string `yaml:"storage_dir"`
}

// VectorStoreConfig selects and configures the vector store backend.
// Type is "chroma" (remote HTTP server) or "memory" (in-process, persisted
// to IndexPath on shutdown).
type VectorStoreConfig struct {
	Type       string `yaml:"type"`
	URL        string `yaml:"url"`
	Collection string `yaml:"collection"`
	IndexPath  string `yaml:"index_path"`
}

// EmbeddingConfig holds embedding gateway settings.
type EmbeddingConfig struct {
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	TimeoutSec int    `yaml:"timeout_sec"`
	CacheSize  int    `yaml:"cache_size"`
}

// LLMConfig holds answer generator settings. Provider is "ollama" or
// "anthropic". APIKey may be left empty and supplied via environment.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	TimeoutSec  int     `yaml:"timeout_sec"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// IndexConfig holds chunking settings for the indexing pipeline.
type IndexConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// ChatConfig holds retrieval settings for the chat pipeline.
type ChatConfig struct {
	TopK          int `yaml:"top_k"`
	SnippetLength int `yaml:"snippet_length"`
}

// BooksConfig holds Google Books API settings for review lookups.
type BooksConfig struct {
	APIKey string `yaml:"api_key"`
}

// WatchConfig holds library database watch settings. When enabled, a change
// to the library database triggers a reindex after DebounceMs of quiet.
type WatchConfig struct {
	Enabled    bool `yaml:"enabled"`
	DebounceMs int  `yaml:"debounce_ms"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
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

	configDir := filepath.Dir(path)
	cfg.Library.DatabasePath = expandPath(cfg.Library.DatabasePath, configDir)
	cfg.Library.StorageDir = expandPath(cfg.Library.StorageDir, configDir)
	if cfg.VectorStore.IndexPath != "" {
		cfg.VectorStore.IndexPath = expandPath(cfg.VectorStore.IndexPath, configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
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
