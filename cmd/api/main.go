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
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-writing-api/internal/config"
	"github.com/noah-isme/gema-writing-api/internal/database"
	"github.com/noah-isme/gema-writing-api/internal/handler"
	"github.com/noah-isme/gema-writing-api/internal/middleware"
	"github.com/noah-isme/gema-writing-api/internal/prompt"
	"github.com/noah-isme/gema-writing-api/internal/repository"
	"github.com/noah-isme/gema-writing-api/internal/router"
	"github.com/noah-isme/gema-writing-api/internal/rubric"
	"github.com/noah-isme/gema-writing-api/internal/service"
	"github.com/noah-isme/gema-writing-api/pkg/ai"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, result cache disabled")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	rubrics, err := rubric.NewDefaultProvider(cfg.RubricDir, validate)
	if err != nil {
		log.Fatalf("failed to load rubrics: %v", err)
	}

	prompts, err := prompt.NewBuilder()
	if err != nil {
		log.Fatalf("failed to parse prompt template: %v", err)
	}

	generator, err := newGenerator(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create generator: %v", err)
	}

	markingService := service.NewMarkingService(
		repository.NewSubmissionRepository(db),
		repository.NewProjectRepository(db),
		repository.NewAssessmentResultRepository(db),
		rubrics,
		prompts,
		generator,
		redisClient,
		service.MarkingConfig{CacheTTL: cfg.ResultCacheTTL},
		logger,
	)
	markingHandler := handler.NewMarkingHandler(markingService, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSOrigins})
	router.Register(app, cfg, router.Dependencies{
		MarkingHandler: markingHandler,
		Generator:      generator,
		JWTMiddleware:  middleware.JWTProtected(cfg.JWTSecret),
	})

	logger.Info().
		Str("provider", generator.Provider()).
		Str("model", generator.Model()).
		Str("addr", cfg.HTTPAddress()).
		Msg("marking api starting")

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func newGenerator(cfg config.Config, logger zerolog.Logger) (ai.Generator, error) {
	if cfg.AIProvider == ai.ProviderOpenAI {
		generator, err := ai.NewOpenAIGenerator(ai.OpenAIConfig{
			APIKey:        cfg.OpenAIAPIKey,
			BaseURL:       cfg.OpenAIBaseURL,
			Model:         cfg.OpenAIModel,
			Timeout:       cfg.GenerationTimeout,
			HealthTimeout: cfg.HealthTimeout,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return generator, nil
	}

	return ai.NewOllamaGenerator(ai.OllamaConfig{
		BaseURL:       cfg.OllamaBaseURL,
		Model:         cfg.OllamaModel,
		Timeout:       cfg.GenerationTimeout,
		HealthTimeout: cfg.HealthTimeout,
		Logger:        logger,
	}), nil
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
