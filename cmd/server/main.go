package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	config "github.com/snapflow/snapflow/configs"
	"github.com/snapflow/snapflow/internal/api/handlers"
	"github.com/snapflow/snapflow/internal/api/middleware"
	"github.com/snapflow/snapflow/internal/metrics"
	"github.com/snapflow/snapflow/internal/publisher"
	"github.com/snapflow/snapflow/internal/queue"
	"github.com/snapflow/snapflow/internal/repository"
	"github.com/snapflow/snapflow/internal/scheduler"
	"github.com/snapflow/snapflow/internal/service"
	"github.com/snapflow/snapflow/internal/snapchat"
	"github.com/snapflow/snapflow/pkg/logging"
)

const schedulerLockKey = "snapflow:scheduler:lock"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	logging.Setup(slog.LevelInfo)
	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURI})
	defer redisClient.Close()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	metricsSrv := metrics.Serve(cfg.MetricsAddr, reg)

	postRepo := repository.NewPostRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	mediaAssetRepo := repository.NewMediaAssetRepository(db)
	publishLogRepo := repository.NewPublishLogRepository(db)

	snapClient := snapchat.NewClient(*cfg, cfg.Scheduler.PublishTimeout)
	pub := publisher.New(
		postRepo,
		socialAccountRepo,
		publishLogRepo,
		snapClient,
		publisher.DefaultPolicy(),
		cfg.Scheduler.PublishTimeout,
		collector,
	)

	pq := queue.NewPublishQueue(cfg.Scheduler.MaxConcurrent, cfg.Scheduler.RateLimit)

	// The job queue dispatches back into the scheduler, which does not
	// exist yet; the indirection breaks the cycle.
	var sched *scheduler.Scheduler
	handleJob := func(ctx context.Context, j queue.Job) error {
		return sched.HandleJob(ctx, j)
	}

	var jobs queue.JobQueue
	var worker *queue.Worker
	switch cfg.Scheduler.QueueBackend {
	case "asynq":
		redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
		jobs = queue.NewBrokerJobQueue(asynq.NewClient(redisConn))
		worker = queue.NewWorker(redisConn, cfg.Scheduler.MaxConcurrent, handleJob)
		go func() {
			if err := worker.Start(); err != nil {
				log.Fatalf("Could not start job worker: %v", err)
			}
		}()
	default:
		jobs = queue.NewMemoryJobQueue(handleJob)
	}
	defer jobs.Close()

	lock := scheduler.NewLock(redisClient, schedulerLockKey, 2*cfg.Scheduler.ScanInterval)
	sched = scheduler.New(cfg.Scheduler, postRepo, pq, jobs, pub, lock, collector)
	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	r2Service := service.NewR2Service(*cfg)
	postService := service.NewPostService(db, postRepo, socialAccountRepo, publishLogRepo, sched)
	mediaService := service.NewMediaService(mediaAssetRepo, r2Service)

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("unhandled request error", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	post := handlers.NewPostHandler(postService)
	api.Post("/posts", post.SchedulePost)
	api.Get("/posts", post.ListPosts)
	api.Get("/posts/:id", post.PostInfo)
	api.Patch("/posts/:id", post.UpdatePost)
	api.Delete("/posts/:id", post.RemovePost)
	api.Post("/posts/:id/cancel", post.CancelPost)
	api.Post("/posts/:id/retry", post.RetryPost)
	api.Get("/posts/:id/history", post.PublishHistory)

	qstats := handlers.NewQueueHandler(pq.GetStats)
	api.Get("/queue/stats", qstats.Stats)

	media := handlers.NewMediaHandler(mediaService)
	api.Post("/media", media.Upload)
	api.Get("/media/:id", media.AssetInfo)
	api.Delete("/media/:id", media.Remove)

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	slog.Info("server is running", "addr", ":3000")

	gracefulShutdown(app, sched, worker, metricsSrv)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, sched *scheduler.Scheduler, worker *queue.Worker, metricsSrv *http.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	slog.Info("shutting down server")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	sched.Stop()
	if worker != nil {
		worker.Shutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(ctx); err != nil {
		slog.Warn("metrics server shutdown failed", "error", err)
	}

	slog.Info("server shutdown complete")
}
