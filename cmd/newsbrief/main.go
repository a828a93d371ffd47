package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"newsbrief/internal/config"
	"newsbrief/internal/docstore"
	"newsbrief/internal/feed"
	importfeeds "newsbrief/internal/import"
	"newsbrief/internal/ingest"
	"newsbrief/internal/oracle"
	"newsbrief/internal/scheduler"
	"newsbrief/internal/server"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

func main() {
	cfg := config.DefaultConfig()

	serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
	serveCmd.StringVar(&cfg.DBPath, "db", config.GetEnvString("NEWSBRIEF_DB_PATH", config.DefaultDBPath),
		"Path to the SQLite database file (env: NEWSBRIEF_DB_PATH)")
	serveCmd.StringVar(&cfg.StoreBackend, "store", config.GetEnvString("NEWSBRIEF_STORE", config.DefaultStoreBackend),
		"Document store backend: sqlite or github (env: NEWSBRIEF_STORE)")
	serveCmd.StringVar(&cfg.ServerHost, "host", config.GetEnvString("NEWSBRIEF_HOST", config.DefaultServerHost),
		"Host to bind the server to (env: NEWSBRIEF_HOST)")
	serveCmd.IntVar(&cfg.ServerPort, "port", config.GetEnvInt("NEWSBRIEF_PORT", config.DefaultServerPort),
		"Port to listen on (env: NEWSBRIEF_PORT)")
	serveCmd.DurationVar(&cfg.PollInterval, "poll", config.GetEnvDuration("NEWSBRIEF_POLL_INTERVAL", cfg.PollInterval),
		"Interval between scheduler checks (env: NEWSBRIEF_POLL_INTERVAL)")
	serveCmd.BoolVar(&cfg.Scheduler, "scheduler", config.GetEnvBool("NEWSBRIEF_SCHEDULER", true),
		"Run the automatic collection scheduler (env: NEWSBRIEF_SCHEDULER)")
	serveCmd.DurationVar(&cfg.FeedTimeout, "timeout", config.GetEnvDuration("NEWSBRIEF_FEED_TIMEOUT", cfg.FeedTimeout),
		"HTTP timeout per feed request (env: NEWSBRIEF_FEED_TIMEOUT)")

	var serveLogLevelStr string
	serveCmd.StringVar(&serveLogLevelStr, "log-level", config.GetEnvString("NEWSBRIEF_LOG_LEVEL", config.DefaultLogLevel),
		"Log level: debug, info, warn, error (env: NEWSBRIEF_LOG_LEVEL)")

	refreshCmd := flag.NewFlagSet("refresh", flag.ExitOnError)
	refreshCmd.StringVar(&cfg.DBPath, "db", config.GetEnvString("NEWSBRIEF_DB_PATH", config.DefaultDBPath),
		"Path to the SQLite database file (env: NEWSBRIEF_DB_PATH)")
	refreshCmd.StringVar(&cfg.StoreBackend, "store", config.GetEnvString("NEWSBRIEF_STORE", config.DefaultStoreBackend),
		"Document store backend: sqlite or github (env: NEWSBRIEF_STORE)")
	refreshCmd.DurationVar(&cfg.FeedTimeout, "timeout", config.GetEnvDuration("NEWSBRIEF_FEED_TIMEOUT", cfg.FeedTimeout),
		"HTTP timeout per feed request (env: NEWSBRIEF_FEED_TIMEOUT)")

	var refreshLogLevelStr string
	refreshCmd.StringVar(&refreshLogLevelStr, "log-level", config.GetEnvString("NEWSBRIEF_LOG_LEVEL", config.DefaultLogLevel),
		"Log level: debug, info, warn, error (env: NEWSBRIEF_LOG_LEVEL)")

	feedsCmd := flag.NewFlagSet("feeds", flag.ExitOnError)
	feedsCmd.StringVar(&cfg.DBPath, "db", config.GetEnvString("NEWSBRIEF_DB_PATH", config.DefaultDBPath),
		"Path to the SQLite database file (env: NEWSBRIEF_DB_PATH)")
	feedsCmd.StringVar(&cfg.StoreBackend, "store", config.GetEnvString("NEWSBRIEF_STORE", config.DefaultStoreBackend),
		"Document store backend: sqlite or github (env: NEWSBRIEF_STORE)")

	var opts feedsOptions
	feedsCmd.BoolVar(&opts.list, "list", false, "List the configured feed URLs")
	feedsCmd.StringVar(&opts.add, "add", "", "Add a feed URL to the settings")
	feedsCmd.StringVar(&opts.remove, "remove", "", "Remove a feed URL from the settings")
	feedsCmd.StringVar(&opts.csv, "csv", "", "Import feed URLs from a CSV file")

	var feedsLogLevelStr string
	feedsCmd.StringVar(&feedsLogLevelStr, "log-level", config.GetEnvString("NEWSBRIEF_LOG_LEVEL", config.DefaultLogLevel),
		"Log level: debug, info, warn, error (env: NEWSBRIEF_LOG_LEVEL)")

	if len(os.Args) < 2 {
		fmt.Println("Usage: newsbrief [command] [options]")
		fmt.Println("Commands: serve, refresh, feeds")
		fmt.Println("\nFor command-specific options, use: newsbrief [command] -h")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		serveCmd.Parse(os.Args[2:])

		// Handle log level parsing separately since it needs conversion
		if level, err := zerolog.ParseLevel(serveLogLevelStr); err == nil {
			cfg.LogLevel = level
		}

		zerolog.SetGlobalLevel(cfg.LogLevel)

		err := runServe(cfg)
		if err != nil {
			log.Error().Err(err).Msg("Server failed")
			os.Exit(1)
		}

	case "refresh":
		refreshCmd.Parse(os.Args[2:])

		// Handle log level parsing separately
		if level, err := zerolog.ParseLevel(refreshLogLevelStr); err == nil {
			cfg.LogLevel = level
		}

		zerolog.SetGlobalLevel(cfg.LogLevel)

		err := runRefresh(cfg)
		if err != nil {
			log.Error().Err(err).Msg("Refresh failed")
			os.Exit(1)
		}

	case "feeds":
		feedsCmd.Parse(os.Args[2:])

		// Handle log level parsing separately
		if level, err := zerolog.ParseLevel(feedsLogLevelStr); err == nil {
			cfg.LogLevel = level
		}

		zerolog.SetGlobalLevel(cfg.LogLevel)

		err := runFeeds(cfg, opts)
		if err != nil {
			log.Error().Err(err).Msg("Feed administration failed")
			os.Exit(1)
		}

	case "-h", "--help", "help":
		fmt.Println("Usage: newsbrief [command] [options]")
		fmt.Println("Commands: serve, refresh, feeds")
		fmt.Println("\nFor command-specific options, use: newsbrief [command] -h")
		os.Exit(0)

	default:
		log.Error().Str("command", os.Args[1]).Msg("Unknown command")
		fmt.Println("Available commands: serve, refresh, feeds")
		fmt.Println("\nFor command-specific options, use: newsbrief [command] -h")
		os.Exit(1)
	}
}

// openStore builds the configured document store backend.
func openStore(cfg *config.Config) (server.Store, error) {
	switch cfg.StoreBackend {
	case "sqlite":
		return docstore.OpenSQLite(docstore.NewSQLiteConfig(cfg.DBPath))
	case "github":
		return docstore.NewGitHubStore(&docstore.GitHubConfig{
			Repo:   cfg.GitHubRepo,
			Branch: cfg.GitHubBranch,
			Token:  cfg.GitHubToken,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q (want sqlite or github)", cfg.StoreBackend)
	}
}

func closeStore(store server.Store) {
	if closer, ok := store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close document store")
		}
	}
}

func newRunner(cfg *config.Config, store docstore.Store) *ingest.Runner {
	fetcher := feed.NewFetcher(cfg.FeedTimeout)
	pipeline := ingest.NewPipeline(fetcher, oracle.NewClient(cfg.OpenAIKey))
	return ingest.NewRunner(store, pipeline)
}

// runServe starts the HTTP API and, unless disabled, the automatic
// collection scheduler alongside it.
func runServe(cfg *config.Config) error {
	store, err := openStore(cfg)
	if err != nil {
		log.Error().Err(err).Str("backend", cfg.StoreBackend).Msg("Failed to open document store")
		return fmt.Errorf("failed to open document store: %w", err)
	}
	defer closeStore(store)

	runner := newRunner(cfg, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Scheduler {
		sched := scheduler.New(store, runner, cfg.PollInterval)
		go func() {
			if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Scheduler stopped unexpectedly")
			}
		}()
	} else {
		log.Info().Msg("Scheduler disabled")
	}

	return server.RunServer(store, runner, cfg.ListenAddr(), log.Logger, cfg.APIKey)
}

// runRefresh executes a single collection run, printing the status
// lines to the console.
func runRefresh(cfg *config.Config) error {
	store, err := openStore(cfg)
	if err != nil {
		log.Error().Err(err).Str("backend", cfg.StoreBackend).Msg("Failed to open document store")
		return fmt.Errorf("failed to open document store: %w", err)
	}
	defer closeStore(store)

	runner := newRunner(cfg, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-shutdown
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	res, err := runner.Run(ctx, "Update News Data via Admin", ingest.Hooks{
		Status: func(msg string) { fmt.Println(msg) },
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info().Msg("Refresh canceled by shutdown signal")
			return nil
		}
		return err
	}

	log.Info().Int("new", res.New).Int("updated", res.Updated).Msg("Refresh completed")
	return nil
}

type feedsOptions struct {
	list   bool
	add    string
	remove string
	csv    string
}

// runFeeds dispatches one feed administration action against the
// settings document.
func runFeeds(cfg *config.Config, opts feedsOptions) error {
	actions := 0
	if opts.list {
		actions++
	}
	if opts.add != "" {
		actions++
	}
	if opts.remove != "" {
		actions++
	}
	if opts.csv != "" {
		actions++
	}
	if actions != 1 {
		return fmt.Errorf("exactly one of -list, -add, -remove or -csv is required")
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Error().Err(err).Str("backend", cfg.StoreBackend).Msg("Failed to open document store")
		return fmt.Errorf("failed to open document store: %w", err)
	}
	defer closeStore(store)

	importer := importfeeds.NewImporter(store)
	ctx := context.Background()

	switch {
	case opts.list:
		return importer.List(ctx)
	case opts.add != "":
		return importer.Add(ctx, opts.add)
	case opts.remove != "":
		return importer.Remove(ctx, opts.remove)
	default:
		return importer.ImportCSV(ctx, opts.csv)
	}
}
