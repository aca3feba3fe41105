package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"palmreader/internal/ratelimit"
	"palmreader/internal/util"
	"palmreader/pkg/ai"
	"palmreader/pkg/events"
	"palmreader/pkg/sanitize"
	"palmreader/pkg/storage"
	"palmreader/pkg/store"
	"palmreader/services/bot/internal/app"
	"palmreader/services/bot/internal/config"
	"palmreader/services/bot/internal/telegram"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, cleanup := util.InitLogger(cfg.LogLevel, "bot", cfg.LogsDir)
	if cleanup != nil {
		defer cleanup()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		util.Fatal("failed to open ledger", "err", err)
	}
	defer ledger.Close()
	schemaCtx, cancel := context.WithTimeout(ctx, time.Minute)
	err = ledger.EnsureSchema(schemaCtx)
	cancel()
	if err != nil {
		util.Fatal("failed to migrate ledger", "err", err)
	}

	generator, err := ai.NewVisionGenerator(ctx, ai.ProviderConfig{
		Provider: cfg.GenerationProvider,
		BaseURL:  cfg.GenerationBaseURL,
		APIKey:   cfg.GeneratorAPIKey(),
		Model:    cfg.GenerationModel,
		Params:   cfg.Generation,
	})
	if err != nil {
		util.Fatal("failed to init generator", "err", err)
	}

	table, err := sanitize.LoadTable(cfg.PhraseTablePath)
	if err != nil {
		util.Fatal("failed to load phrase table", "err", err)
	}
	sanitizer, err := sanitize.New(table)
	if err != nil {
		util.Fatal("failed to init sanitizer", "err", err)
	}

	bot, err := telegram.NewClient(telegram.ClientConfig{
		Token:    cfg.BotToken,
		ProxyURL: cfg.TelegramProxyURL,
		Timeout:  cfg.PollTimeout() + 30*time.Second,
		Logger:   logger,
	})
	if err != nil {
		util.Fatal("failed to init telegram client", "err", err)
	}

	appCfg := app.Config{
		Messenger:       bot,
		Generator:       generator,
		Ledger:          ledger,
		Sanitizer:       sanitizer,
		Logger:          logger,
		Generation:      cfg.Generation,
		AdminChatID:     cfg.AdminChatID,
		Prompt:          cfg.Prompt,
		AckDelay:        cfg.AckDelay(),
		ChunkDelay:      cfg.ChunkDelay(),
		CallTimeout:     cfg.CallTimeout(),
		PipelineTimeout: cfg.PipelineTimeout(),
	}
	if cfg.AdminChatID == 0 {
		logger.Warn("ADMIN_CHAT_ID not set, admin relay disabled")
	}

	if cfg.PhotoQuotaPerHour > 0 {
		limiter, err := ratelimit.NewFixedWindowLimiter(ratelimit.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Limit:    cfg.PhotoQuotaPerHour,
			Window:   time.Hour,
			FailOpen: true,
		})
		if err != nil {
			util.Fatal("failed to init photo quota", "err", err)
		}
		defer limiter.Close()
		appCfg.Limiter = limiter
	}

	if cfg.MinioEndpoint != "" {
		archive, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			util.Fatal("failed to init image archive", "err", err)
		}
		appCfg.Archive = archive
	}

	if cfg.AMQPURL != "" {
		publisher, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			util.Fatal("failed to init event publisher", "err", err)
		}
		defer publisher.Close()
		appCfg.Publisher = publisher
	}

	appCore, err := app.New(appCfg)
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	poller := telegram.NewPoller(bot, appCore, telegram.PollerConfig{
		Timeout: cfg.PollTimeout(),
		Workers: cfg.Workers,
	}, logger)

	slog.Info("bot polling", "username", bot.Username(), "model", generator.Model(), "workers", cfg.Workers)
	if err := poller.Run(ctx); err != nil {
		logger.Error("poller error", "err", err)
	}
	slog.Info("bot stopped")
}
