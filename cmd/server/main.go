package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/automation"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/client"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/config"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/handler"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/metrics"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/middleware"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/planner"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/service"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/store"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/video"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/worker"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/pkg/response"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := newLogger(cfg.Server)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis backs the job store, the task queue and the rate limiter
	var redisClient *redis.Client
	if cfg.Store.Driver == "redis" || cfg.Queue.Driver == "asynq" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("redis not available", "addr", cfg.Redis.Addr, "error", err)
		}
	}

	jobStore, err := newJobStore(cfg.Store, redisClient)
	if err != nil {
		return err
	}
	defer jobStore.Close()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// External clients
	groqClient := client.NewGroqClient(&cfg.Groq)
	if !groqClient.IsConfigured() {
		log.Warn("GROQ_API_KEY not set, using the offline planner")
	}

	storage, r2Enabled, err := newStorage(cfg, log)
	if err != nil {
		return err
	}

	// Recording pipeline
	encoder := newEncoder(cfg.Video, log)
	recorder := video.NewRecorder(encoder, storage, cfg.Video.TempDir, cfg.Video.FPS, log)
	engine := newEngine(cfg.Automation, log)
	executor := automation.NewExecutor(engine, log,
		automation.WithRetries(cfg.Automation.StepRetries),
		automation.WithStepTimeout(time.Duration(cfg.Automation.StepTimeout)*time.Second),
	)

	// Services and workers
	jobService := service.NewJobService(jobStore, nil, recorder, m, log)
	mux := worker.NewServeMux(
		worker.NewPlanWorker(jobService, planner.NewGroqPlanner(groqClient, log), m, log),
		worker.NewExecuteWorker(jobService, executor, recorder, m, log),
	)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	var inline *service.InlineDispatcher
	switch cfg.Queue.Driver {
	case "asynq":
		asynqClient := asynq.NewClient(redisOpt)
		defer asynqClient.Close()
		jobService.SetDispatcher(service.NewAsynqDispatcher(asynqClient))
	case "inline":
		inline = service.NewInlineDispatcher(mux, log)
		jobService.SetDispatcher(inline)
	default:
		return fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}

	// Initialize validator
	validate := validator.New()

	// Initialize handlers
	jobHandler := handler.NewJobHandler(jobService, validate)
	videoHandler := handler.NewVideoHandler(storage, log)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.Enabled)
	rateLimiter := middleware.NewRateLimiter(redisClient, log)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		Immutable:             true,
		ErrorHandler:          customErrorHandler,
		BodyLimit:             4 * 1024 * 1024,
		DisableStartupMessage: cfg.Server.Env == "production",
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,Authorization,If-Match",
		ExposeHeaders: "ETag",
	}))
	app.Use(m.Middleware())

	// Health check and metrics
	app.Get("/health", handler.Health(handler.HealthInfo{
		Groq:    groqClient.IsConfigured(),
		R2:      r2Enabled,
		Auth:    cfg.Auth.Enabled,
		Store:   cfg.Store.Driver,
		Queue:   cfg.Queue.Driver,
		Engine:  engine.Name(),
		Encoder: encoder.Format().Ext,
	}))
	app.Get("/metrics", m.Handler())

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	api.Post("/generate-plan", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), jobHandler.GeneratePlan)
	api.Get("/status/:jobId", jobHandler.Status)
	api.Get("/jobs", jobHandler.ListJobs)

	plans := api.Group("/task-plan")
	plans.Get("/:jobId", jobHandler.GetPlan)
	plans.Put("/:jobId", jobHandler.UpdatePlan)

	executeLimit := rateLimiter.ExecuteLimit(cfg.RateLimit.ExecutePerHour)
	api.Post("/execute/:jobId", executeLimit, jobHandler.Execute)
	api.Post("/regenerate/:jobId", executeLimit, jobHandler.Regenerate)

	api.Get("/videos/:filename", videoHandler.Stream)
	api.Get("/download/:filename", videoHandler.Download)

	g, gctx := errgroup.WithContext(ctx)

	// Start Asynq worker server
	if cfg.Queue.Driver == "asynq" {
		srv := newWorkerServer(cfg, redisOpt, log)
		g.Go(func() error {
			if err := srv.Start(mux); err != nil {
				return fmt.Errorf("asynq worker: %w", err)
			}
			<-gctx.Done()
			srv.Shutdown()
			return nil
		})
	}

	g.Go(func() error {
		addr := ":" + cfg.Server.Port
		log.Info("server starting", "addr", addr, "store", cfg.Store.Driver, "queue", cfg.Queue.Driver, "engine", engine.Name())
		return app.Listen(addr)
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("server shutdown error", "error", err)
		}
		if inline != nil {
			inline.Shutdown()
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newJobStore(cfg config.StoreConfig, redisClient *redis.Client) (store.JobStore, error) {
	switch cfg.Driver {
	case "redis":
		return store.NewRedisStore(redisClient), nil
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, nil
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// newStorage uses R2 when it is configured and the local video directory otherwise
func newStorage(cfg *config.Config, log *slog.Logger) (client.StorageClient, bool, error) {
	if cfg.R2.AccessKeyID != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Warn("R2 client not available, storing videos locally", "error", err)
		} else {
			return r2Client, true, nil
		}
	}

	local, err := client.NewLocalStorage(cfg.Video.Dir, "/api/videos")
	if err != nil {
		return nil, false, err
	}
	return local, false, nil
}

func newEncoder(cfg config.VideoConfig, log *slog.Logger) video.Encoder {
	ffmpeg := video.NewFFmpegEncoder(cfg.FFmpegPath)
	if ffmpeg.Available() {
		return ffmpeg
	}
	log.Warn("ffmpeg not found, videos will be encoded as GIF", "path", cfg.FFmpegPath)
	return video.NewGIFEncoder()
}

func newEngine(cfg config.AutomationConfig, log *slog.Logger) automation.Engine {
	switch cfg.Engine {
	case "chromedp":
		return automation.NewChromeEngine(cfg.Headless, cfg.StartURL, log)
	case "offline":
		return automation.NewOfflineEngine()
	default:
		log.Warn("unknown automation engine, using offline", "engine", cfg.Engine)
		return automation.NewOfflineEngine()
	}
}

func newWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt, log *slog.Logger) *asynq.Server {
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Queue.Concurrency,
		Queues: map[string]int{
			service.QueueAutomation: 1,
		},
		Logger:   &asynqLogger{log: log.With("component", "asynq")},
		LogLevel: asynqLogLevel(cfg.Server.LogLevel),
	})
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	errCode := response.CodeServiceError
	switch code {
	case fiber.StatusNotFound:
		errCode = response.CodeNotFound
	case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge, fiber.StatusMethodNotAllowed:
		errCode = response.CodeValidationError
	case fiber.StatusTooManyRequests:
		errCode = response.CodeRateLimited
	}

	return response.Error(c, code, errCode, message, nil)
}
