// Package main provides the cloudamp player daemon entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"cloudamp/internal/altsource"
	"cloudamp/internal/audio"
	"cloudamp/internal/core"
	httpserver "cloudamp/internal/http"
	"cloudamp/internal/i18n"
	"cloudamp/internal/netease"
	"cloudamp/internal/storage"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cloudamp",
	Short: "cloudamp - cloud music playback daemon",
	Long: `cloudamp is a headless music player daemon. It resolves playlists and
stream URLs from a cloud music gateway, falls back to an alternate source for
restricted tracks, plays audio locally and pushes playback state to connected
UI clients over a websocket.`,
	RunE: runCloudamp,
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
	rootCmd.PersistentFlags().String("api-base-url", "http://localhost:3000", "cloud music gateway base URL")
	rootCmd.PersistentFlags().Int("api-timeout-secs", 15, "gateway request timeout in seconds")
	rootCmd.PersistentFlags().Int("api-max-retries", 3, "transient transport retry limit")
	rootCmd.PersistentFlags().String("altsource-client-id", "", "alternate source client ID")
	rootCmd.PersistentFlags().String("altsource-client-secret", "", "alternate source client secret")
	rootCmd.PersistentFlags().Int("altsource-lookup-ttl-mins", 60, "alternate source lookup cache TTL in minutes")
	rootCmd.PersistentFlags().Float64("altsource-min-score", 0.6, "alternate source match confidence floor")
	rootCmd.PersistentFlags().String("server-host", "127.0.0.1", "HTTP server host")
	rootCmd.PersistentFlags().Int("server-port", 7478, "HTTP server port")
	rootCmd.PersistentFlags().String("storage-path", "./cloudamp.db", "session store path")
	rootCmd.PersistentFlags().Int("playlist-cache-capacity", 64, "resolved playlist details kept in memory")
	rootCmd.PersistentFlags().Float64("volume", 1.0, "initial volume (0..1), overridden by a saved session")
	rootCmd.PersistentFlags().Int("audio-state-per-second", 4, "audioState pushes per second toward the UI")
	supportedLangs := strings.Join(i18n.GetSupportedLanguages(), ", ")
	rootCmd.PersistentFlags().String("language", i18n.DefaultLanguage, fmt.Sprintf("UI language (%s)", supportedLangs))

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix("CLOUDAMP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(config.Log.Level)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	cfg.API.BaseURL = viper.GetString("api-base-url")
	cfg.API.Timeout = time.Duration(viper.GetInt("api-timeout-secs")) * time.Second
	cfg.API.MaxTransportRetries = viper.GetInt("api-max-retries")

	cfg.AltSource.ClientID = viper.GetString("altsource-client-id")
	cfg.AltSource.ClientSecret = viper.GetString("altsource-client-secret")
	cfg.AltSource.LookupTTL = time.Duration(viper.GetInt("altsource-lookup-ttl-mins")) * time.Minute
	cfg.AltSource.MinScore = viper.GetFloat64("altsource-min-score")

	cfg.Server.Host = viper.GetString("server-host")
	cfg.Server.Port = viper.GetInt("server-port")
	cfg.Log.Level = viper.GetString("log-level")

	cfg.Storage.Path = viper.GetString("storage-path")
	cfg.Cache.PlaylistCapacity = viper.GetInt("playlist-cache-capacity")

	cfg.Player.Volume = viper.GetFloat64("volume")
	cfg.Player.AudioStatePerSecond = viper.GetInt("audio-state-per-second")
	if cfg.Player.AudioStatePerSecond <= 0 {
		cfg.Player.AudioStatePerSecond = core.DefaultConfig().Player.AudioStatePerSecond
	}

	cfg.Language = viper.GetString("language")
	supported := i18n.GetSupportedLanguages()
	if !contains(supported, cfg.Language) {
		fmt.Fprintf(os.Stderr, "Warning: Unsupported language '%s', falling back to '%s'. Supported languages: %s\n",
			cfg.Language, i18n.DefaultLanguage, strings.Join(supported, ", "))
		cfg.Language = i18n.DefaultLanguage
	}

	return cfg
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
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

func runCloudamp(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting cloudamp",
		zap.String("gateway", config.API.BaseURL),
		zap.String("language", config.Language),
		zap.Bool("altsource_enabled", config.AltSource.ClientID != ""))

	client, err := netease.New(config.API, logger.Named("netease"))
	if err != nil {
		return fmt.Errorf("failed to create gateway client: %w", err)
	}

	var alt core.AlternateSource
	if config.AltSource.ClientID != "" {
		alt, err = altsource.New(ctx, config.AltSource, logger.Named("altsource"))
		if err != nil {
			// The player still works without the fallback source.
			logger.Warn("alternate source unavailable", zap.Error(err))
			alt = nil
		}
	}

	store, err := storage.NewSQLiteStore(config.Storage.Path, logger.Named("storage"))
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer store.Close()

	device, err := audio.NewBeepDevice(logger.Named("audio"))
	if err != nil {
		return fmt.Errorf("failed to initialize audio device: %w", err)
	}
	defer device.Close()

	server := httpserver.NewServer(&config.Server, logger.Named("http"))
	localizer := i18n.NewLocalizer(config.Language)

	orchestrator := core.NewOrchestrator(
		config,
		client,
		alt,
		store,
		server.Hub(),
		device,
		localizer,
		server.Metrics(),
		logger.Named("orchestrator"),
	)

	if err := orchestrator.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start(gCtx)
	})

	g.Go(func() error {
		return orchestrator.Run(gCtx)
	})

	logger.Info("cloudamp started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("cloudamp stopped with error", zap.Error(err))
		return err
	}

	logger.Info("cloudamp stopped")
	return nil
}
