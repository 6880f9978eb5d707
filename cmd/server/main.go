package main

import (
	"context"
	"log"
	"net/http"
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
	"github.com/prometheus/client_golang/prometheus"

	"nodelink/internal/catalog"
	"nodelink/internal/config"
	"nodelink/internal/database"
	"nodelink/internal/execution"
	"nodelink/internal/handlers"
	"nodelink/internal/logging"
	"nodelink/internal/middleware"
	"nodelink/internal/services"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting NodeLink Server...")

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Environment: %s)", cfg.Port, cfg.Environment)

	store, closeStore := openStore(cfg)
	defer closeStore()

	// Redis is optional: without it runs are locked per process only
	var redisService *services.RedisService
	if cfg.RedisURL != "" {
		var err error
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Failed to connect to Redis: %v (distributed run lock disabled)", err)
		} else {
			defer redisService.Close()
		}
	} else {
		log.Println("⚠️ REDIS_URL not set - distributed run lock disabled")
	}

	// Schema catalog: embedded, optionally overridden by a hot-reloaded file
	schemaCatalog, err := catalog.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load schema catalog: %v", err)
	}
	schemaCatalog.RateLimits().SetEnabled(cfg.RespectSchemaRateLimits)
	var catalogWatcher *catalog.Watcher
	if cfg.SchemaCatalogPath != "" {
		catalogWatcher, err = catalog.Watch(schemaCatalog, cfg.SchemaCatalogPath, func(err error) {
			if err != nil {
				log.Printf("⚠️ [CATALOG] Reload failed, keeping previous schemas: %v", err)
			}
		})
		if err != nil {
			log.Printf("⚠️ Failed to load schema catalog override: %v (using embedded schemas)", err)
		}
	}
	log.Printf("📚 Schema catalog ready (%d schemas)", len(schemaCatalog.Keys()))

	metrics := services.NewMetrics(prometheus.DefaultRegisterer)
	dialogueHub := execution.NewDialogueHub(cfg.DialogueTimeout, metrics)
	registry := execution.NewVariantRegistry(execution.Deps{
		Catalog:  schemaCatalog,
		Client:   &http.Client{},
		Dialogue: dialogueHub,
		Recorder: metrics,
		Options: execution.Options{
			APITimeout:    cfg.APITimeout,
			APIMaxRetries: cfg.APIMaxRetries,
			RetryBackoff:  cfg.RetryBackoff,
			MaxWaitDelay:  cfg.MaxWaitDelay,
			APIKeyPrefix:  cfg.APIKeyEnvPrefix,
		},
	})
	executionTracker := execution.NewExecutionTracker()

	projectService := services.NewProjectService(services.ProjectServiceConfig{
		Store:      store,
		Registry:   registry,
		Engine:     execution.NewEngine(metrics),
		Tracker:    executionTracker,
		Dialogue:   dialogueHub,
		Redis:      redisService,
		Metrics:    metrics,
		SessionTTL: cfg.SessionTTL,
		RunLockTTL: cfg.RunLockTTL,
	})

	autosave, err := services.NewAutosaveScheduler(projectService, cfg.AutosaveInterval)
	if err != nil {
		log.Fatalf("❌ Failed to create autosave scheduler: %v", err)
	}
	if err := autosave.Start(); err != nil {
		log.Fatalf("❌ Failed to start autosave scheduler: %v", err)
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "NodeLink v1.0",
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 15 * time.Minute, // run streams stay open while Dialogue blocks wait
		IdleTimeout:  2 * time.Minute,
		BodyLimit:    10 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prom := fiberprometheus.New("nodelink")
	prom.RegisterAt(app, "/metrics")
	app.Use(prom.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept",
		AllowCredentials: cfg.AllowedOrigins != "*",
	}))
	log.Printf("🔒 [SECURITY] CORS allowed origins: %v", cfg.Origins())

	rateLimits := middleware.NewRateLimitConfig(cfg)
	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimits))
	log.Printf("🛡️  [RATE-LIMIT] Global=%d/min, Execute=%d/min, WS=%d/min",
		rateLimits.GlobalMax, rateLimits.ExecuteMax, rateLimits.WebSocketMax)

	handlers.RegisterRoutes(app, handlers.RouteDeps{
		Projects:         projectService,
		Catalog:          schemaCatalog,
		Tracker:          executionTracker,
		ExecuteLimiter:   middleware.ExecuteRateLimiter(rateLimits),
		WebSocketLimiter: middleware.WebSocketRateLimiter(rateLimits),
	})

	log.Printf("⚡ Project endpoint: ws://localhost:%s/ws/projects/:id", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		// Stop accepting new runs and wait for active ones to finish (30s max)
		if !executionTracker.Drain(30 * time.Second) {
			n := projectService.CancelAll()
			log.Printf("⏹️ Cancelled %d runs still active after drain timeout", n)
			executionTracker.Drain(5 * time.Second)
		}

		// Stop flushes dirty sessions one last time
		if err := autosave.Stop(); err != nil {
			log.Printf("⚠️ Error stopping autosave scheduler: %v", err)
		}

		if catalogWatcher != nil {
			if err := catalogWatcher.Close(); err != nil {
				log.Printf("⚠️ Error closing catalog watcher: %v", err)
			}
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// openStore picks the project store: MongoDB, then SQL, then memory
func openStore(cfg *config.Config) (services.ProjectStore, func()) {
	if cfg.MongoDBURI != "" {
		log.Println("🔗 Connecting to MongoDB...")
		mongoDB, err := database.NewMongoDB(cfg.MongoDBURI)
		if err != nil {
			log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := mongoDB.Initialize(ctx); err != nil {
			log.Fatalf("❌ Failed to initialize MongoDB: %v", err)
		}
		log.Println("✅ MongoDB connected successfully")
		return services.NewMongoProjectStore(mongoDB), func() { mongoDB.Close(context.Background()) }
	}

	if cfg.DatabaseURL != "" {
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("❌ Failed to connect to database: %v", err)
		}
		if err := db.Initialize(); err != nil {
			log.Fatalf("❌ Failed to initialize database: %v", err)
		}
		return services.NewSQLProjectStore(db), func() { db.Close() }
	}

	log.Println("⚠️ Neither MONGODB_URI nor DATABASE_URL is set - projects are kept in memory only")
	return services.NewMemoryProjectStore(), func() {}
}
