package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"talentscout/internal/app"
	"talentscout/internal/config"
	"talentscout/internal/logging"
	"talentscout/internal/middleware"
	"talentscout/internal/preflight"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	logging.Init(cfg.Environment, cfg.LogLevel)

	log.Println("🚀 Starting TalentScout Server...")

	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ %v", err)
	}
	log.Printf("📋 Configuration loaded (Port: %s, Store: %s, Environment: %s)", cfg.Port, cfg.StoreDriver, cfg.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Key resolution failure is fatal: a fresh key would make stored records unreadable
	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to start: %v", err)
	}

	checker := preflight.NewChecker(cfg, application.Records, application.Bank, application.Keys.Source())
	if preflight.HasFailures(checker.RunAll(ctx)) {
		application.Close(context.Background())
		log.Fatal("❌ Pre-flight checks failed, refusing to start")
	}

	// Hot-reload the question bank when a file override is configured
	go application.Bank.Watch(ctx)

	server := fiber.New(fiber.Config{
		AppName:      "TalentScout v1.0",
		ReadTimeout:  2 * time.Minute, // question generation can take a while
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  5 * time.Minute,
		BodyLimit:    1 * 1024 * 1024,
	})

	// Middleware
	server.Use(recover.New())
	server.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("talentscout")
	prometheus.RegisterAt(server, "/metrics")
	server.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	server.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: cfg.AllowedOrigins != "*",
		ExposeHeaders:    "Content-Disposition",
	}))
	log.Printf("🔒 [SECURITY] CORS allowed origins: %s", cfg.AllowedOrigins)

	rateLimitConfig := middleware.LoadRateLimitConfig(cfg.Environment)
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, Start=%d/min, Submit=%d/min, Data=%d/min, WS=%d/min",
		rateLimitConfig.GlobalAPIMax,
		rateLimitConfig.SessionStartMax,
		rateLimitConfig.SubmitMax,
		rateLimitConfig.DataAccessMax,
		rateLimitConfig.WebSocketMax,
	)

	application.RegisterRoutes(server, rateLimitConfig)

	application.Scheduler.Start()
	log.Printf("🕐 Background jobs: retention purge (%s)", cfg.PurgeSchedule)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("🛑 Shutting down server...")
		cancel()

		if err := server.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Printf("⚠️  Error shutting down server: %v", err)
		}
	}()

	if err := server.Listen(":" + cfg.Port); err != nil {
		log.Printf("❌ Failed to start server: %v", err)
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer closeCancel()
	application.Close(closeCtx)
	log.Println("👋 Server stopped")
}
