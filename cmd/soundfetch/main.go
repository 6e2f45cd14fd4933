// Package main provides the soundfetch service entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"soundfetch/internal/acquire"
	"soundfetch/internal/core"
	httpserver "soundfetch/internal/http"
	"soundfetch/internal/resolver"
	"soundfetch/internal/search"
	"soundfetch/internal/spotify"
	"soundfetch/internal/store"
)

const defaultServerHost = "0.0.0.0"

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "soundfetch",
	Short: "soundfetch - Spotify metadata resolver and audio fetcher",
	Long: `soundfetch resolves Spotify track, album and playlist URLs into metadata
and streams matching audio found on YouTube, transcoded to mp3 on the fly.`,
	RunE: runSoundfetch,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("spotify-client-id", "", "Spotify client ID")
	rootCmd.PersistentFlags().String("spotify-client-secret", "", "Spotify client secret")
	rootCmd.PersistentFlags().String("server-host", defaultServerHost, "HTTP server host")
	rootCmd.PersistentFlags().Int("server-port", 5000, "HTTP server port")
	rootCmd.PersistentFlags().String("store-path", "./soundfetch.db", "Metadata store database path")
	rootCmd.PersistentFlags().Int("store-cache-size", 4096, "In-memory record cache capacity")
	rootCmd.PersistentFlags().Int("cache-ttl-secs", 3600, "Metadata cache TTL in seconds")
	rootCmd.PersistentFlags().String("ytdlp-path", "yt-dlp", "Path to the yt-dlp binary")
	rootCmd.PersistentFlags().String("download-dir", "./downloads", "Directory for file-mode downloads")
	rootCmd.PersistentFlags().Int("search-timeout-secs", 30, "Candidate search timeout in seconds")
	rootCmd.PersistentFlags().Int("acquire-timeout-secs", 600, "Audio acquisition timeout in seconds")
	rootCmd.PersistentFlags().Int("flood-requests-per-minute", 100, "Maximum API requests per client per minute")
	rootCmd.PersistentFlags().Int("flood-track-requests-per-minute", 5, "Maximum metadata requests per track per minute")
	rootCmd.PersistentFlags().Int("flood-downloads-per-hour", 10, "Maximum downloads per client per hour")
	rootCmd.PersistentFlags().Bool("generate-env-example", false, "Generate .env.example file from current configuration and exit")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	// Load .env file explicitly using gotenv
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		// Don't exit if .env file doesn't exist, just warn
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix("SOUNDFETCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(config.Log.Level)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	configureSpotify(cfg)
	configureServer(cfg)
	configureStore(cfg)
	configurePipelines(cfg)
	configureFlood(cfg)

	return cfg
}

func configureSpotify(cfg *core.Config) {
	cfg.Spotify.ClientID = viper.GetString("spotify-client-id")
	cfg.Spotify.ClientSecret = viper.GetString("spotify-client-secret")
}

func configureServer(cfg *core.Config) {
	cfg.Server.Host = viper.GetString("server-host")
	if cfg.Server.Host == "" {
		cfg.Server.Host = defaultServerHost
	}
	cfg.Server.Port = viper.GetInt("server-port")
	cfg.Log.Level = viper.GetString("log-level")
}

func configureStore(cfg *core.Config) {
	cfg.Store.Path = viper.GetString("store-path")
	if size := viper.GetInt("store-cache-size"); size > 0 {
		cfg.Store.CacheSize = size
	}
	if ttl := viper.GetInt("cache-ttl-secs"); ttl > 0 {
		cfg.Resolver.CacheTTL = time.Duration(ttl) * time.Second
	}
}

func configurePipelines(cfg *core.Config) {
	if path := viper.GetString("ytdlp-path"); path != "" {
		cfg.Search.BackendPath = path
		cfg.Acquire.BackendPath = path
	}
	if dir := viper.GetString("download-dir"); dir != "" {
		cfg.Acquire.DownloadDir = dir
	}
	if secs := viper.GetInt("search-timeout-secs"); secs > 0 {
		cfg.Search.Timeout = time.Duration(secs) * time.Second
	}
	if secs := viper.GetInt("acquire-timeout-secs"); secs > 0 {
		cfg.Acquire.Timeout = time.Duration(secs) * time.Second
	}
}

func configureFlood(cfg *core.Config) {
	if n := viper.GetInt("flood-requests-per-minute"); n > 0 {
		cfg.Flood.RequestsPerMinute = n
	}
	if n := viper.GetInt("flood-track-requests-per-minute"); n > 0 {
		cfg.Flood.TrackRequestsPerMinute = n
	}
	if n := viper.GetInt("flood-downloads-per-hour"); n > 0 {
		cfg.Flood.DownloadsPerHour = n
	}
}

func buildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func runSoundfetch(cmd *cobra.Command, _ []string) error {
	if viper.GetBool("generate-env-example") {
		return generateEnvExample(cmd)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting soundfetch",
		zap.String("version", "1.0.0"),
		zap.String("store_path", config.Store.Path),
		zap.String("download_dir", config.Acquire.DownloadDir))

	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	services, err := initializeServices(ctx)
	if err != nil {
		return err
	}
	defer services.Close()

	return runServices(ctx, services)
}

type services struct {
	repository store.Repository
	httpServer *httpserver.Server
}

func (s *services) Close() {
	if err := s.repository.Close(); err != nil {
		logger.Warn("Failed to close metadata store", zap.Error(err))
	}
}

func initializeServices(ctx context.Context) (*services, error) {
	sqliteRepo, err := store.NewSQLiteRepository(config.Store.Path, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}

	cachedRepo, err := store.NewCachedRepository(sqliteRepo, config.Store.CacheSize, config.Store.BloomFalsePositiveRate)
	if err != nil {
		return nil, fmt.Errorf("failed to build record cache: %w", err)
	}
	if err := cachedRepo.Warm(ctx); err != nil {
		return nil, fmt.Errorf("failed to warm record cache: %w", err)
	}

	broker := spotify.NewBroker(&config.Spotify, logger.Named("broker"))
	catalog := spotify.NewClient(&config.Spotify, broker, logger.Named("spotify"))

	metadataResolver := resolver.New(catalog, cachedRepo, &config.Resolver, logger.Named("resolver"))

	searchEngine := search.NewEngine(
		search.NewYTDLPBackend(&config.Search, logger.Named("ytdlp-search")),
		&config.Search,
		logger.Named("search"))

	pipeline := acquire.NewPipeline(
		acquire.NewYTDLPBackend(&config.Acquire, logger.Named("ytdlp-acquire")),
		&config.Acquire,
		logger.Named("acquire"))

	httpServer := httpserver.NewServer(
		&config.Server,
		&config.Flood,
		metadataResolver,
		searchEngine,
		pipeline,
		httpserver.NewMetrics(prometheus.DefaultRegisterer),
		logger.Named("http"))

	return &services{
		repository: cachedRepo,
		httpServer: httpServer,
	}, nil
}

func runServices(ctx context.Context, svcs *services) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svcs.httpServer.Start(gCtx)
	})

	logger.Info("soundfetch started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("soundfetch stopped with error", zap.Error(err))
		return err
	}

	logger.Info("soundfetch stopped gracefully")
	return nil
}

func validateConfig() error {
	if config.Spotify.ClientID == "" {
		return fmt.Errorf("spotify client ID is required (--spotify-client-id or SOUNDFETCH_SPOTIFY_CLIENT_ID)")
	}
	if config.Spotify.ClientSecret == "" {
		return fmt.Errorf("spotify client secret is required (--spotify-client-secret or SOUNDFETCH_SPOTIFY_CLIENT_SECRET)")
	}
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	return nil
}

func generateEnvExample(cmd *cobra.Command) error {
	fmt.Println("Generating .env.example file from current configuration...")

	content := generateEnvExampleContent(cmd)

	if err := os.WriteFile(".env.example", []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write .env.example: %w", err)
	}

	fmt.Println("✅ Successfully generated .env.example file")
	return nil
}

func generateEnvExampleContent(cmd *cobra.Command) string {
	var content strings.Builder

	content.WriteString("# =============================================================================\n")
	content.WriteString("# soundfetch Configuration\n")
	content.WriteString("# =============================================================================\n")
	content.WriteString("#\n")
	content.WriteString("# Copy this file to .env and update with your values\n")
	content.WriteString("# All environment variables have CLI flag equivalents (use --help to see them)\n")
	content.WriteString("#\n")
	content.WriteString("# Format: SOUNDFETCH_<SECTION>_<SETTING>=value\n")
	content.WriteString("# CLI equivalent: --<section>-<setting>\n")
	content.WriteString("#\n\n")

	sections := []struct {
		title string
		flags []string
	}{
		{"SPOTIFY (required)", []string{"spotify-client-id", "spotify-client-secret"}},
		{"SERVER", []string{"server-host", "server-port"}},
		{"STORE", []string{"store-path", "store-cache-size", "cache-ttl-secs"}},
		{"PIPELINES", []string{"ytdlp-path", "download-dir", "search-timeout-secs", "acquire-timeout-secs"}},
		{"RATE LIMITS", []string{"flood-requests-per-minute", "flood-track-requests-per-minute", "flood-downloads-per-hour"}},
		{"LOGGING", []string{"log-level"}},
	}

	for _, section := range sections {
		content.WriteString("# " + section.title + "\n")
		for _, flag := range section.flags {
			content.WriteString(fmt.Sprintf("%s=%s\n", flagToEnvVar(flag), getDefaultValueString(cmd, flag)))
		}
		content.WriteString("\n")
	}

	return content.String()
}

func flagToEnvVar(flagName string) string {
	return "SOUNDFETCH_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func getDefaultValueString(cmd *cobra.Command, flagName string) string {
	if f := cmd.PersistentFlags().Lookup(flagName); f != nil {
		return f.DefValue
	}
	return ""
}
