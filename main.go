package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"songlead/config"
	"songlead/middleware"
	"songlead/routes"
	"songlead/utils"
	"songlead/worker"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger := log.WithField("app", "songlead")

	if err := config.LoadConfig(); err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.WithError(err).Fatal("Failed to initialize Sentry")
		}
		defer sentry.Flush(2 * time.Second)
	}

	if err := config.ConnectDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	cfg := config.AppConfig

	// Shared collaborators
	catalog := utils.NewSequenceCatalog(config.DB)
	gateway := utils.NewWhatsAppGateway(cfg.GatewayBaseURL, cfg.GatewayToken, logger)
	openai := utils.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	suno := utils.NewSunoClient(cfg.SunoBaseURL, cfg.SunoAPIKey, cfg.SunoCallbackURL)
	ffmpeg := utils.NewFFmpeg("")

	storage, err := utils.NewMediaStorage(context.Background(),
		cfg.Storage.Bucket, cfg.Storage.Region, cfg.Storage.Endpoint, cfg.Storage.PublicBaseURL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize media storage")
	}

	var alerts *utils.AlertMailer
	if cfg.SMTP.Host != "" && cfg.SMTP.AlertTo != "" {
		alerts = utils.NewAlertMailer(cfg.SMTP.Host, cfg.SMTP.Port,
			cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From, cfg.SMTP.AlertTo)
	}

	// Background workers share one cancellation context.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.NewDripWorker(config.DB, gateway, catalog, logger).Start(ctx)
	go worker.NewSongWorker(config.DB, openai, suno, alerts, logger).Start(ctx)
	go worker.NewClipWorker(config.DB, ffmpeg, storage, alerts, cfg.WatermarkURL, logger).Start(ctx)
	go worker.NewDeliveryWorker(config.DB, gateway, catalog,
		time.Duration(cfg.DeliveryCooldownMin)*time.Minute, cfg.DeliveredTrigger, logger).Start(ctx)
	go worker.NewReclaimWorker(config.DB,
		time.Duration(cfg.ReclaimThresholdMin)*time.Minute, logger).Start(ctx)
	go worker.NewScriptWorker(config.DB, openai, gateway, catalog,
		cfg.VoiceNoteURL, cfg.ScriptSentTrigger,
		time.Duration(cfg.DeliveryCooldownMin)*time.Minute, logger).Start(ctx)

	app := fiber.New(fiber.Config{
		BodyLimit: 20 << 20,
	})
	app.Use(middleware.CORS())

	routes.SetupRoutes(app, routes.Deps{
		DB:      config.DB,
		Catalog: catalog,
		Gateway: gateway,
		Media:   storage,
		FFmpeg:  ffmpeg,
		Logger:  logger,
	})

	// Stop workers on SIGINT/SIGTERM so in-flight passes finish cleanly.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("Shutdown signal received")
		cancel()
		_ = app.Shutdown()
	}()

	logger.Infof("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logger.WithError(err).Fatal("Failed to start server")
	}
}
