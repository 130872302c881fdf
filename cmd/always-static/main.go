package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	alwaysstatic "github.com/always-cache/always-static"
	"github.com/always-cache/always-static/cache"
	diskpool "github.com/always-cache/always-static/pkg/disk-pool"
	"github.com/always-cache/always-static/pkg/precompress"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	configFilenameFlag string
	rootFlag           string
	portFlag           int
	providerFlag       string
	dbFilenameFlag     string
	preconditionsFlag  bool
	precompressFlag    bool
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	// .env is optional
	_ = godotenv.Load()

	flag.StringVar(&configFilenameFlag, "config", getenvDefault("ALWAYS_STATIC_CONFIG", ""), "Path to config file")
	flag.StringVar(&rootFlag, "root", "", "Directory to serve (overrides config)")
	flag.IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	flag.StringVar(&providerFlag, "provider", "", "ETag store to use: sqlite, leveldb, memory or none (overrides config)")
	flag.StringVar(&dbFilenameFlag, "db", "", "ETag store location (use 'memory' for in-memory db)")
	flag.BoolVar(&preconditionsFlag, "preconditions", false, "Evaluate conditional request headers")
	flag.BoolVar(&precompressFlag, "precompress", false, "Write .br, .zst and .gz variants before serving")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	config, err := getConfig(configFilenameFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load config")
	}
	applyFlags(&config)
	if err := config.validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if config.Precompress {
		stats, err := precompress.Run(ctx, precompress.Config{
			Root:    config.Root,
			Workers: config.Workers,
			Logger:  &log.Logger,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Could not precompress files")
		}
		log.Info().Int64("written", stats.Written).Int64("fresh", stats.Fresh).Int64("useless", stats.Useless).Msg("Precompressed files")
	}

	etags, closeStore, err := openStore(config)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not open etag store")
	}
	defer closeStore()

	server := alwaysstatic.New(alwaysstatic.Config{
		Root:          config.Root,
		IndexFile:     config.IndexFile,
		Logger:        &log.Logger,
		Pool:          diskpool.New(config.Workers),
		ETags:         etags,
		Preconditions: config.Preconditions,
		Rules:         config.Rules,
	})

	r := chi.NewRouter()
	r.Use(alwaysstatic.RequestLogger(log.Logger))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/*", server)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Msgf("Serving %s on port %d", config.Root, config.Port)
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server error")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Could not shut down cleanly")
	}
}

// applyFlags overrides config values with the flags given on the command line.
func applyFlags(config *Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "root":
			config.Root = rootFlag
		case "port":
			config.Port = portFlag
		case "provider":
			config.Provider = providerFlag
		case "db":
			config.DB = dbFilenameFlag
		case "preconditions":
			config.Preconditions = preconditionsFlag
		case "precompress":
			config.Precompress = precompressFlag
		}
	})
}

// openStore opens the configured etag store.
// The returned close function is never nil.
func openStore(config Config) (cache.ETagProvider, func(), error) {
	switch config.Provider {
	case "sqlite":
		store := cache.NewSQLiteCache(config.dbFilename())
		return store, func() { store.Close() }, nil
	case "leveldb":
		store, err := cache.NewLevelDBCache(config.dbFilename())
		if err != nil {
			return nil, func() {}, err
		}
		return store, func() { store.Close() }, nil
	case "memory":
		return cache.NewMemCache(), func() {}, nil
	}
	return nil, func() {}, nil
}

func getenvDefault(name, def string) string {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	return v
}
