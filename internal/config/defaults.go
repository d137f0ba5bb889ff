package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Library.DatabasePath == "" {
		cfg.Library.DatabasePath = "Zotero/zotero.sqlite"
	}
	if cfg.Library.StorageDir == "" {
		cfg.Library.StorageDir = "Zotero/storage"
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "chroma"
	}
	if cfg.VectorStore.URL == "" {
		cfg.VectorStore.URL = "http://localhost:8000"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "shoko_library"
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:11434"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.Embedding.TimeoutSec == 0 {
		cfg.Embedding.TimeoutSec = 30
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "ollama"
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "http://localhost:11434"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "llama3.2"
	}
	if cfg.LLM.TimeoutSec == 0 {
		cfg.LLM.TimeoutSec = 60
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 256
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.2
	}
	if cfg.Index.ChunkSize == 0 {
		cfg.Index.ChunkSize = 512
	}
	if cfg.Index.ChunkOverlap == 0 {
		cfg.Index.ChunkOverlap = 64
	}
	if cfg.Chat.TopK == 0 {
		cfg.Chat.TopK = 5
	}
	if cfg.Chat.SnippetLength == 0 {
		cfg.Chat.SnippetLength = 500
	}
	if cfg.Watch.DebounceMs == 0 {
		cfg.Watch.DebounceMs = 2000
	}
}
