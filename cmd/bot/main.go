package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/xaenox/relay-bot/internal/bot"
	"github.com/xaenox/relay-bot/internal/relay"
	"github.com/xaenox/relay-bot/internal/storage"
	"github.com/xaenox/relay-bot/internal/telegram"
	"github.com/xaenox/relay-bot/pkg/config"
	"go.uber.org/zap"
)

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zcfg.Level = level
	return zcfg.Build()
}

func main() {
	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Fatal("Failed to load config", zap.Error(err), zap.String("path", configPath))
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		logger, _ = zap.NewProduction()
		logger.Warn("Invalid log level, using info", zap.String("level", cfg.Log.Level), zap.Error(err))
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	logger.Info("Opening storage", zap.String("driver", cfg.Storage.Driver))
	store, err := storage.Open(cfg.StorageOptions(), logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	// Bot API clients: one for regular calls, one for long polling whose
	// HTTP timeout has to outlast the poll window.
	apiCfg := telegram.APIConfig{Token: cfg.Telegram.Token, Debug: cfg.Telegram.Debug}
	api, err := telegram.NewBotAPI(apiCfg, cfg.Telegram.RequestTimeout)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}
	logger.Info("Authorized", zap.String("username", api.Self.UserName))

	r, err := relay.New(relay.Options{
		ContainerID:     cfg.Telegram.ForumChatID,
		Platform:        telegram.NewClient(api, logger),
		Store:           store,
		Logger:          logger,
		StaffIDs:        cfg.Relay.StaffIDs,
		EagerThreads:    cfg.Relay.EagerThreads,
		AnnounceThreads: cfg.Relay.AnnounceNewThreads,
		CallTimeout:     cfg.Telegram.RequestTimeout,
	})
	if err != nil {
		logger.Fatal("Failed to create relay", zap.Error(err))
	}
	r.Restore(ctx, store)

	classifier := telegram.Classifier{
		ContainerID: cfg.Telegram.ForumChatID,
		BotUsername: api.Self.UserName,
	}

	var source bot.Source
	if cfg.Telegram.UseWebhook() {
		if !cfg.Log.Development {
			gin.SetMode(gin.ReleaseMode)
		}
		source, err = telegram.NewWebhook(api, classifier, telegram.WebhookOptions{
			PublicURL:  cfg.Telegram.WebhookURL,
			Secret:     cfg.Telegram.WebhookSecret,
			ListenAddr: cfg.Telegram.ListenAddr,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create webhook", zap.Error(err))
		}
	} else {
		pollAPI, err := telegram.NewBotAPI(apiCfg, cfg.Telegram.PollTimeout+cfg.Telegram.RequestTimeout)
		if err != nil {
			logger.Fatal("Failed to create polling client", zap.Error(err))
		}
		source = telegram.NewPoller(pollAPI, classifier, cfg.Telegram.PollTimeout, logger)
	}

	opts := bot.Options{
		Handler: r,
		Source:  source,
		Logger:  logger,
	}
	if cfg.Reaper.Enabled {
		opts.ReapSchedule = cfg.Reaper.Schedule
		opts.InactiveAfter = cfg.Reaper.InactiveAfter
	}

	// Initialize bot
	b, err := bot.New(opts)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	// Start the bot
	if err := b.Start(ctx); err != nil {
		logger.Fatal("Bot error", zap.Error(err))
	}
	logger.Info("Bot stopped")
}
