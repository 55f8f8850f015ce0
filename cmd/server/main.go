package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/completion"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/config"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/database"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/metrics"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/profilesync"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/repository"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/retryhttp"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/routes"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/services"
	syncws "github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/websocket"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/workspace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapConfig := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	appLogger, err := zapConfig.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = appLogger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Database
	if cfg.DBUrl == "" {
		appLogger.Fatal("DB_URL is required")
	}
	if err := database.ConnectDB(ctx, cfg.DBUrl, appLogger); err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.CloseDB()

	// 3. Wire services
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	if !cfg.CompletionConfigured() {
		appLogger.Warn("COMPLETION_API_KEY is not set; plan and chat requests will fail")
	}
	requester := retryhttp.New(
		retryhttp.WithHTTPClient(&http.Client{Timeout: cfg.CompletionTimeout}),
		retryhttp.WithLogger(appLogger),
		retryhttp.WithMetrics(m),
	)
	completer := completion.NewClient(requester, completion.Config{
		BaseURL:     cfg.CompletionBaseURL,
		APIKey:      cfg.CompletionAPIKey,
		Model:       cfg.CompletionModel,
		MaxAttempts: cfg.CompletionMaxAttempts,
	}, appLogger)
	planService := services.NewPlanService(completer, appLogger, m)
	chatService := services.NewChatService(completer, appLogger, m)

	profileRepo := repository.NewProfileRepository(database.DB)
	listener := repository.NewProfileListener(database.DB, appLogger)
	hub := syncws.NewHub(appLogger)

	workspaces := workspace.NewRegistry(ctx, cfg.JWTSecret, func() *profilesync.Controller {
		return profilesync.NewController(profileRepo, listener, planService,
			profilesync.WithLogger(appLogger),
			profilesync.WithMetrics(m),
		)
	}, hub.Publish, appLogger)
	defer workspaces.Close()

	// 4. Setup Fiber
	app := fiber.New(fiber.Config{DisableStartupMessage: !cfg.IsDevelopment()})

	// Middleware
	app.Use(cors.New())
	app.Use(logger.New())
	app.Use(recover.New())

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	routes.RegisterRoutes(app, cfg, routes.Dependencies{
		Workspaces: workspaces,
		Chat:       chatService,
		Hub:        hub,
		Gatherer:   registry,
	})

	// 5. Start Server
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listener.Run(gctx)
	})
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		appLogger.Info("Server starting", zap.String("port", cfg.Port), zap.String("env", cfg.AppEnv))
		return app.Listen(":" + cfg.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Server stopped with error", zap.Error(err))
		os.Exit(1)
	}
}
