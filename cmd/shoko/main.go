// Package main is the Shoko CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/shoko/internal/books"
	"github.com/hyperjump/shoko/internal/chat"
	"github.com/hyperjump/shoko/internal/config"
	"github.com/hyperjump/shoko/internal/embedding"
	"github.com/hyperjump/shoko/internal/extract"
	"github.com/hyperjump/shoko/internal/indexer"
	"github.com/hyperjump/shoko/internal/library"
	"github.com/hyperjump/shoko/internal/llm"
	"github.com/hyperjump/shoko/internal/models"
	"github.com/hyperjump/shoko/internal/server"
	"github.com/hyperjump/shoko/internal/vectorstore"
	"github.com/hyperjump/shoko/internal/watcher"
	"github.com/hyperjump/shoko/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/shoko/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "shoko server" from the project dir uses the project's
// config (including debug).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// API keys may live in a .env next to the binary; absence is fine.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "index":
		runIndex()
	case "cancel":
		runCancel()
	case "status":
		runStatus()
	case "chat":
		runChat()
	case "items":
		runItems()
	case "version", "--version", "-v":
		fmt.Printf("shoko version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (library changes, indexing progress, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var watchSvc *watcher.Watcher
	if cfg.Watch.Enabled {
		orch := components.Orchestrator
		watchOpts := []watcher.WatcherOption{
			watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMs) * time.Millisecond),
		}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc = watcher.NewWatcher(cfg.Library.DatabasePath, func() {
			if err := orch.Start(); err != nil {
				logger.Debug("watch reindex not started", zap.Error(err))
			}
		}, watchOpts...)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
	}

	srv := server.NewServer(
		components.Orchestrator,
		components.Chat,
		components.Source,
		components.Books,
		&cfg.Server,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	if cfg.VectorStore.IndexPath != "" {
		if mem, ok := components.Store.(*vectorstore.MemoryStore); ok {
			if err := mem.Save(cfg.VectorStore.IndexPath); err != nil {
				logger.Warn("vector store save failed",
					zap.String("path", cfg.VectorStore.IndexPath), zap.Error(err))
			}
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = run indexing in-process)")
	wait := fs.Bool("wait", false, "block until the run finishes (direct mode always waits)")
	_ = fs.Parse(os.Args[2:])

	if *serverURL != "" {
		var status models.IndexStatus
		if err := postJSON(*serverURL+"/api/v1/index", nil, &status); err != nil {
			fmt.Fprintf(os.Stderr, "Index start failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Indexing: %s (%d/%d)\n", status.Status, status.ProcessedItems, status.TotalItems)
		if *wait {
			waitForIdle(*serverURL)
		}
		return
	}

	components, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	if err := components.Orchestrator.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Index start failed: %v\n", err)
		os.Exit(1)
	}
	components.Orchestrator.Wait()
	status := components.Orchestrator.Status()
	fmt.Printf("Indexing finished: %d/%d items\n", status.ProcessedItems, status.TotalItems)

	if cfg := components.Config; cfg.VectorStore.IndexPath != "" {
		if mem, ok := components.Store.(*vectorstore.MemoryStore); ok {
			if err := mem.Save(cfg.VectorStore.IndexPath); err != nil {
				fmt.Fprintf(os.Stderr, "Vector store save failed: %v\n", err)
			}
		}
	}
}

func runCancel() {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	var status models.IndexStatus
	if err := deleteJSON(*serverURL+"/api/v1/index", &status); err != nil {
		fmt.Fprintf(os.Stderr, "Cancel failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Indexing: %s (%d/%d)\n", status.Status, status.ProcessedItems, status.TotalItems)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status models.IndexStatus
	if err := getJSON(*serverURL+"/api/v1/index/status", &status); err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if *outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(status)
		return
	}
	fmt.Printf("Status: %s\nProcessed: %d/%d\n", status.Status, status.ProcessedItems, status.TotalItems)
}

func runChat() {
	chatArgs := os.Args[2:]
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = answer in-process)")
	items := fs.String("items", "", "comma-separated item IDs to scope retrieval")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(chatArgs)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: shoko chat [flags] <question>")
		os.Exit(1)
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "Usage: shoko chat [flags] <question>")
		os.Exit(1)
	}

	req := models.ChatRequest{Query: query}
	if *items != "" {
		for _, id := range strings.Split(*items, ",") {
			if id = strings.TrimSpace(id); id != "" {
				req.ItemIDs = append(req.ItemIDs, id)
			}
		}
	}

	var resp *models.ChatResponse
	if *serverURL != "" {
		resp = &models.ChatResponse{}
		if err := postJSON(*serverURL+"/api/v1/chat", req, resp); err != nil {
			fmt.Fprintf(os.Stderr, "Chat failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		components, logger := mustInitialize(*configPath)
		defer components.Close()
		defer logger.Sync()
		resp = components.Chat.Chat(context.Background(), req.Query, req.ItemIDs)
	}

	if *outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(resp)
		return
	}
	fmt.Println(resp.Summary)
	if len(resp.Citations) > 0 {
		fmt.Println("\nSources:")
		for _, c := range resp.Citations {
			year := c.Year
			if year == "" {
				year = "n.d."
			}
			fmt.Printf("  [%d] %s (%s)\n", c.ID, c.Title, year)
		}
	}
}

func runItems() {
	fs := flag.NewFlagSet("items", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	authors := fs.String("authors", "", "comma-separated author filters")
	titles := fs.String("titles", "", "comma-separated title filters")
	dates := fs.String("dates", "", "comma-separated date filters")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	params := url.Values{}
	if *authors != "" {
		params.Set("authors", *authors)
	}
	if *titles != "" {
		params.Set("titles", *titles)
	}
	if *dates != "" {
		params.Set("dates", *dates)
	}
	endpoint := *serverURL + "/api/v1/items"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var resp struct {
		Items []models.Item `json:"items"`
	}
	if err := getJSON(endpoint, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Items failed: %v\n", err)
		os.Exit(1)
	}
	if *outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(resp.Items)
		return
	}
	for _, item := range resp.Items {
		fmt.Printf("%s\t%s\t%s\t%s\n", item.ID, item.Title, item.Date, item.Authors)
	}
	fmt.Printf("%d items\n", len(resp.Items))
}

// waitForIdle polls the status endpoint until the run finishes.
func waitForIdle(serverURL string) {
	for {
		time.Sleep(500 * time.Millisecond)
		var status models.IndexStatus
		if err := getJSON(serverURL+"/api/v1/index/status", &status); err != nil {
			fmt.Fprintf(os.Stderr, "Status poll failed: %v\n", err)
			return
		}
		fmt.Printf("\r%s: %d/%d    ", status.Status, status.ProcessedItems, status.TotalItems)
		if status.Status == models.StateIdle {
			fmt.Println()
			return
		}
	}
}

func httpDo(method, endpoint string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil && len(data) > 0 {
		return json.Unmarshal(data, out)
	}
	return nil
}

func getJSON(endpoint string, out interface{}) error {
	return httpDo(http.MethodGet, endpoint, nil, out)
}

func postJSON(endpoint string, body, out interface{}) error {
	return httpDo(http.MethodPost, endpoint, body, out)
}

func deleteJSON(endpoint string, out interface{}) error {
	return httpDo(http.MethodDelete, endpoint, nil, out)
}

// mustInitialize loads config, builds a logger, and initializes components,
// exiting on failure. Used by direct (serverless) CLI modes.
func mustInitialize(configPath string) (*Components, *zap.Logger) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return components, logger
}

// Components holds initialized services.
type Components struct {
	Config       *config.Config
	Source       library.Source
	Embedder     embedding.Embedder
	Store        vectorstore.Store
	Generator    llm.Generator
	Orchestrator *indexer.Orchestrator
	Chat         *chat.Service
	Books        *books.Client
}

func (c *Components) Close() {
	if c.Source != nil {
		_ = c.Source.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Generator != nil {
		_ = c.Generator.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	source, err := library.NewSQLiteLibrary(cfg.Library.DatabasePath, cfg.Library.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open library: %w", err)
	}

	ollamaEmbedder := embedding.NewOllamaEmbedder(
		cfg.Embedding.BaseURL,
		cfg.Embedding.Model,
		cfg.Embedding.Dimensions,
		time.Duration(cfg.Embedding.TimeoutSec)*time.Second,
	)
	embedder := embedding.NewCachedEmbedder(ollamaEmbedder, cfg.Embedding.CacheSize)

	var store vectorstore.Store
	switch cfg.VectorStore.Type {
	case "", "chroma":
		store, err = vectorstore.NewChromaStore(
			cfg.VectorStore.URL,
			cfg.VectorStore.Collection,
			embedder,
			time.Duration(cfg.Embedding.TimeoutSec)*time.Second,
		)
		if err != nil {
			// No Chroma server is a common local setup; fall back to the
			// in-process store so indexing and chat still work.
			logger.Warn("chroma unavailable, falling back to memory store",
				zap.String("url", cfg.VectorStore.URL), zap.Error(err))
			mem := vectorstore.NewMemoryStore(embedder)
			if cfg.VectorStore.IndexPath != "" {
				if loadErr := mem.Load(cfg.VectorStore.IndexPath); loadErr != nil {
					logger.Warn("vector store load skipped",
						zap.String("path", cfg.VectorStore.IndexPath), zap.Error(loadErr))
				}
			}
			store = mem
		}
	case "memory":
		mem := vectorstore.NewMemoryStore(embedder)
		if cfg.VectorStore.IndexPath != "" {
			if loadErr := mem.Load(cfg.VectorStore.IndexPath); loadErr != nil {
				logger.Warn("vector store load skipped",
					zap.String("path", cfg.VectorStore.IndexPath), zap.Error(loadErr))
			}
		}
		store = mem
	default:
		_ = source.Close()
		return nil, fmt.Errorf("unknown vector store type: %q", cfg.VectorStore.Type)
	}

	generator, err := llm.New(&cfg.LLM)
	if err != nil {
		_ = source.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize llm: %w", err)
	}
	logger.Info("llm initialized",
		zap.String("provider", cfg.LLM.Provider),
		zap.String("model", generator.ModelName()))

	orchestrator := indexer.NewOrchestrator(
		source,
		extract.NewExtractor(),
		indexer.NewChunker(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap),
		embedder,
		store,
		logger,
	)
	chatSvc := chat.NewService(store, generator, cfg.Chat.TopK, cfg.Chat.SnippetLength, logger)

	var booksClient *books.Client
	apiKey := cfg.Books.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_BOOKS_API_KEY")
	}
	booksClient = books.NewClient(apiKey, 15*time.Second)

	return &Components{
		Config:       cfg,
		Source:       source,
		Embedder:     embedder,
		Store:        store,
		Generator:    generator,
		Orchestrator: orchestrator,
		Chat:         chatSvc,
		Books:        booksClient,
	}, nil
}

func printUsage() {
	fmt.Println(`shoko - Chat with your personal document library

Usage:
  shoko server [flags]            Start the HTTP server
  shoko index [flags]             Start an indexing run
  shoko cancel [flags]            Cancel the active indexing run
  shoko status [flags]            Show indexing status
  shoko chat [flags] <question>   Ask a question over the indexed library
  shoko items [flags]             Search library items
  shoko version                   Show version
  shoko help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/shoko/config.yaml)
  --debug            Enable debug logging (library changes, indexing progress, etc.)

Index Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") to index in-process.
  --wait             Poll status until the run finishes

Chat Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") to answer in-process.
  --items string     Comma-separated item IDs to scope retrieval
  --output string    Output format: text or json (default: text)

Items Flags:
  --server string    Server URL (default: http://localhost:8080)
  --authors string   Comma-separated author filters
  --titles string    Comma-separated title filters
  --dates string     Comma-separated date filters
  --output string    Output format: text or json (default: text)

Examples:
  shoko server
  shoko index --wait
  shoko status
  shoko chat "what does the attention paper say about positional encoding"
  shoko chat --items 42,57 "compare the two survey papers"
  shoko items --authors Hinton --dates 2016
  shoko cancel`)
}
