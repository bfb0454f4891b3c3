// Package main is the Smriti CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/smriti-ai/smriti/internal/cli"
	"github.com/smriti-ai/smriti/internal/config"
	"github.com/smriti-ai/smriti/internal/data"
	"github.com/smriti-ai/smriti/internal/embedding"
	"github.com/smriti-ai/smriti/internal/index"
	"github.com/smriti-ai/smriti/internal/ingest"
	"github.com/smriti-ai/smriti/internal/models"
	"github.com/smriti-ai/smriti/internal/search"
	"github.com/smriti-ai/smriti/internal/server"
	"github.com/smriti-ai/smriti/internal/storage"
	"github.com/smriti-ai/smriti/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/smriti/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "smriti server" from the project dir uses the project's
// config. Returns the config and the path that was actually loaded.
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
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "stats":
		runStats()
	case "rebuild":
		runRebuild()
	case "export":
		runExport()
	case "import":
		runImport()
	case "clear":
		runClear()
	case "version", "--version", "-v":
		fmt.Printf("smriti version %s\n", version)
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
	debug := fs.Bool("debug", false, "enable debug logging (request details, skipped records, etc.)")
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

	confStore := config.NewStore(cfg)
	components, err := initializeComponents(confStore, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	// Build the index in the background so the server answers immediately;
	// searches use the exact fallback until the index is ready.
	go func() {
		if err := components.Manager.Initialize(context.Background()); err != nil {
			logger.Error("initial index build failed", zap.Error(err))
		}
	}()

	engine := search.NewEngine(
		components.Storage,
		components.Embedder,
		components.Manager,
		confStore,
		search.WithLogger(logger),
		search.WithSettingsPersistence(func(c *config.Config) error {
			return config.Save(resolvedConfigPath, c)
		}),
	)

	srv := server.NewServer(
		engine,
		components.Ingester,
		components.Porter,
		components.Manager,
		components.Embedder,
		confStore,
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
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// buildSearchQuery joins all positional args with spaces so multi-word
// queries work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the
// query to the front of the slice so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument, so "smriti search query -k 3"
// would otherwise leave -k unparsed.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: smriti search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  smriti search rust borrow checker
  smriti search "rust borrow checker"        # same as above
  smriti search -k 10 kubernetes networking
  smriti search -domains "github.com,-reddit.com" go generics
  smriti search -output json your query
`)
}

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage when server is not running)")
	k := fs.Int("k", 0, "number of results (0 = configured default)")
	domains := fs.String("domains", "", `domain filter, e.g. "github.com,-reddit.com"`)
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgs)

	if fs.NArg() < 1 {
		printSearchUsage(fs)
		os.Exit(1)
	}
	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	searchQuery := &models.SearchQuery{
		Query:        queryStr,
		K:            *k,
		DomainFilter: *domains,
	}

	if *serverURL != "" {
		response, err := searchViaHTTP(*serverURL, searchQuery)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Direct storage access (when server is not running).
	engine, components, err := directEngine(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	ctx := context.Background()
	if err := components.Manager.Initialize(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Index build failed: %v\n", err)
		os.Exit(1)
	}
	response, err := engine.Search(ctx, searchQuery)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var stats *models.IndexStats
	if *serverURL != "" {
		res, err := statsViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Stats failed: %v\n", err)
			os.Exit(1)
		}
		stats = res
	} else {
		engine, components, err := directEngine(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		stats = engine.Stats(context.Background())
	}

	if err := cli.WriteStats(os.Stdout, stats, *outputFormat == "json"); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func statsViaHTTP(serverURL string) (*models.IndexStats, error) {
	resp, err := http.Get(serverURL + "/api/v1/index/stats")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out struct {
		Stats *models.IndexStats `json:"stats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Stats, nil
}

func runRebuild() {
	fs := flag.NewFlagSet("rebuild", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage)")
	_ = fs.Parse(os.Args[2:])

	if *serverURL != "" {
		resp, err := http.Post(*serverURL+"/api/v1/index/rebuild", "application/json", nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Rebuild failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Rebuild failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Println("Rebuild started")
		return
	}

	_, components, err := directEngine(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()
	if err := components.Manager.Rebuild(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Rebuild failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Rebuilt index with %d records\n", components.Manager.Size())
}

func runExport() {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	output := fs.String("o", "", "output file (default: stdout)")
	_ = fs.Parse(os.Args[2:])

	_, components, err := directEngine(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	snapshot, err := components.Porter.Export(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Export failed: %v\n", err)
		os.Exit(1)
	}

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create output file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
	if *output != "" {
		fmt.Fprintf(os.Stderr, "Exported %d records to %s\n", len(snapshot.Records), *output)
	}
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: smriti import [flags] <snapshot.json>")
		os.Exit(1)
	}
	raw, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read snapshot: %v\n", err)
		os.Exit(1)
	}
	var snapshot models.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse snapshot: %v\n", err)
		os.Exit(1)
	}

	_, components, err := directEngine(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	result, err := components.Porter.Import(context.Background(), &snapshot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Imported %d records (%d skipped)\n", result.Imported, result.Skipped)
}

func runClear() {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	yes := fs.Bool("yes", false, "skip confirmation prompt")
	_ = fs.Parse(os.Args[2:])

	if !*yes {
		fmt.Print("This deletes every stored page. Continue? [y/N] ")
		var answer string
		_, _ = fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("Aborted")
			return
		}
	}

	_, components, err := directEngine(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	if err := components.Porter.Clear(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Clear failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Corpus cleared")
}

// Components holds initialized services.
type Components struct {
	Storage  storage.Storage
	Embedder embedding.Embedder
	Manager  *index.Manager
	Ingester *ingest.Ingester
	Porter   *data.Porter
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(confStore *config.Store, logger *zap.Logger) (*Components, error) {
	cfg := confStore.Load()
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder := embedding.NewClient(
		cfg.Embedding.ProviderURL,
		cfg.Embedding.Model,
		cfg.Embedding.Dimensions,
		cfg.Embedding.CacheSize,
	)
	manager := index.NewManager(store, confStore, index.WithLogger(logger))
	ingester := ingest.NewIngester(store, embedder, manager, confStore, ingest.WithLogger(logger))
	porter := data.NewPorter(store, manager, confStore, data.WithLogger(logger))

	return &Components{
		Storage:  store,
		Embedder: embedder,
		Manager:  manager,
		Ingester: ingester,
		Porter:   porter,
	}, nil
}

// directEngine builds the full component stack plus a search engine for
// commands that run against the database directly instead of a server.
func directEngine(configPath string) (*search.Engine, *Components, error) {
	cfg, resolvedConfigPath, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	confStore := config.NewStore(cfg)
	components, err := initializeComponents(confStore, logger)
	if err != nil {
		return nil, nil, err
	}
	engine := search.NewEngine(
		components.Storage,
		components.Embedder,
		components.Manager,
		confStore,
		search.WithLogger(logger),
		search.WithSettingsPersistence(func(c *config.Config) error {
			return config.Save(resolvedConfigPath, c)
		}),
	)
	return engine, components, nil
}

func printUsage() {
	fmt.Println(`smriti - Semantic index over your browsing history

Usage:
  smriti server [flags]             Start the HTTP server
  smriti search [flags] <query>     Search visited pages
  smriti stats [flags]              Show index and storage stats
  smriti rebuild [flags]            Rebuild the vector index from storage
  smriti export [flags]             Export the corpus as a JSON snapshot
  smriti import [flags] <file>      Import a JSON snapshot
  smriti clear [flags]              Delete every stored page
  smriti version                    Show version
  smriti help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/smriti/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.
  --k int            Number of results (default: configured result count)
  --domains string   Domain filter, e.g. "github.com,-reddit.com"
  --output string    Output format: text, compact, or json (default: text)

Stats Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.
  --output string    Output format: text or json (default: text)

Examples:
  smriti server
  smriti search rust borrow checker
  smriti search -domains "github.com" -k 10 go generics
  smriti stats --output json
  smriti export -o pages.json
  smriti import pages.json
  smriti clear --yes`)
}
