package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kanbot-project/kanbot-sync-api/internal/config"
	"github.com/kanbot-project/kanbot-sync-api/internal/database"
	"github.com/kanbot-project/kanbot-sync-api/internal/handler"
	"github.com/kanbot-project/kanbot-sync-api/internal/middleware"
	"github.com/kanbot-project/kanbot-sync-api/internal/models"
	"github.com/kanbot-project/kanbot-sync-api/internal/repository"
	"github.com/kanbot-project/kanbot-sync-api/internal/router"
	"github.com/kanbot-project/kanbot-sync-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{}, &models.APIKey{},
		&models.Space{}, &models.SpaceMember{}, &models.Board{}, &models.Column{},
		&models.Card{}, &models.CardTask{}, &models.Tag{}, &models.CardTag{}, &models.CardAssignee{},
		&models.CardHistory{}, &models.Notification{},
		&models.Webhook{}, &models.WebhookLog{}, &models.ScheduledCard{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// Both relays are optional: without them events stay process-local.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	userRepo := repository.NewUserRepository(db)
	spaceRepo := repository.NewSpaceRepository(db)
	cardRepo := repository.NewCardRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	webhookRepo := repository.NewWebhookRepository(db)
	scheduledCardRepo := repository.NewScheduledCardRepository(db)

	realtimeService := service.NewRealtimeService(redisClient, cfg.RelayChannel, natsConn, logger)
	auditService := service.NewAuditService(auditRepo, spaceRepo, validate, logger)
	webhookService := service.NewWebhookService(webhookRepo, spaceRepo, nil, validate, logger)
	notificationService := service.NewNotificationService(notificationRepo, spaceRepo, cardRepo, realtimeService, validate, logger)
	schedulerService := service.NewSchedulerService(scheduledCardRepo, cardRepo, spaceRepo, realtimeService, notificationService, webhookService, validate, logger)
	backoffTracker := service.NewBackoffTracker(cfg.BackoffMaxWait, cfg.BackoffMaxKeys, logger)

	realtimeHandler := handler.NewRealtimeHandler(realtimeService, spaceRepo, userRepo, cfg.JWTSecret, logger)
	agentHandler := handler.NewAgentHandler(auditService, notificationService, logger)
	notificationHandler := handler.NewNotificationHandler(notificationService, logger)
	webhookHandler := handler.NewWebhookHandler(webhookService, logger)
	scheduledCardHandler := handler.NewScheduledCardHandler(schedulerService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	runCtx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()
	realtimeService.Start(runCtx)

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		RealtimeHandler:      realtimeHandler,
		AgentHandler:         agentHandler,
		NotificationHandler:  notificationHandler,
		WebhookHandler:       webhookHandler,
		ScheduledCardHandler: scheduledCardHandler,
		ActorMiddleware:      middleware.Actor(cfg.JWTSecret, userRepo, logger),
		BackoffMiddleware:    middleware.AuthBackoff(backoffTracker),
		RateLimitMiddleware:  middleware.RateLimit("api", cfg.RateLimitMax, cfg.RateLimitWindow),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
