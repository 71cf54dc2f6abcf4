package main

// @title           Applicant Sync API
// @version         1.0
// @description     Synchronizes job applications from external recruiting platforms.

// @contact.name   Custodia Labs
// @contact.url    https://github.com/custodia-labs/applicant-sync/issues

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /
// @schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Operator JWT with the sync:trigger scope. Format: "Bearer {token}"

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/applicant-sync/internal/adapters/driven/auth"
	"github.com/custodia-labs/applicant-sync/internal/adapters/driven/connectors"
	"github.com/custodia-labs/applicant-sync/internal/adapters/driven/connectors/apiclient"
	"github.com/custodia-labs/applicant-sync/internal/adapters/driven/connectors/smartrecruiters"
	"github.com/custodia-labs/applicant-sync/internal/adapters/driven/connectors/talentsoft"
	"github.com/custodia-labs/applicant-sync/internal/adapters/driven/postgres"
	redisqueue "github.com/custodia-labs/applicant-sync/internal/adapters/driven/queue/redis"
	redisadapter "github.com/custodia-labs/applicant-sync/internal/adapters/driven/redis"
	"github.com/custodia-labs/applicant-sync/internal/adapters/driven/secrets"
	"github.com/custodia-labs/applicant-sync/internal/adapters/driving/http"
	"github.com/custodia-labs/applicant-sync/internal/core/ports/driven"
	"github.com/custodia-labs/applicant-sync/internal/core/services"
	"github.com/custodia-labs/applicant-sync/internal/worker"
)

var version = "dev"

func main() {
	// Get run mode from environment (RUN_MODE) or command line arg
	mode := getEnv("RUN_MODE", "all")
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}
	if mode != "api" && mode != "worker" && mode != "all" {
		log.Fatalf("Unknown mode: %s (use: api, worker, or all)", mode)
	}

	log.Printf("applicant-sync %s starting in %s mode", version, mode)

	// Configuration from environment
	port := getEnvInt("PORT", 8080)
	redisURL := getEnv("REDIS_URL", "redis://localhost:6379/0")
	databaseURL := getEnv("DATABASE_URL", "")
	apiJWTSecret := getEnv("API_JWT_SECRET", "")
	credentialsKey := getEnv("CREDENTIALS_KEY", "")

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(getEnv("LOG_LEVEL", "info"))}))
	slog.SetDefault(logger)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutdown signal received, stopping...")
		cancel()
	}()

	// ===== Initialize Redis =====
	log.Println("Connecting to Redis...")
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}
	redisClient := redis.NewClient(opts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	hostname, _ := os.Hostname()
	transport, err := redisqueue.NewTransport(ctx, redisqueue.TransportConfig{
		Client:       redisClient,
		ConsumerName: fmt.Sprintf("worker-%s-%d", hostname, os.Getpid()),
		ClaimTimeout: getEnvDuration("TRIGGER_CLAIM_TIMEOUT", 5*time.Minute),
		MaxLen:       int64(getEnvInt("STREAM_MAX_LEN", 100000)),
		Logger:       logger,
	})
	if err != nil {
		log.Fatalf("Failed to create Redis transport: %v", err)
	}
	defer transport.Close()

	// ===== Initialize PostgreSQL (optional, stores CVs) =====
	var blobs driven.BlobStore
	var db *postgres.DB
	if databaseURL != "" {
		log.Println("Connecting to PostgreSQL...")
		db, err = postgres.Connect(ctx, postgres.Config{
			URL:             databaseURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 15),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE", time.Minute),
		})
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		// Initialize schema (idempotent)
		if err := db.InitSchema(ctx); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
		blobs = postgres.NewBlobStore(db, getEnv("CV_LOCATION_PREFIX", ""))
		log.Println("PostgreSQL connected and schema initialized")
	} else {
		log.Println("Warning: DATABASE_URL not set, applications will be emitted without CVs")
	}

	// ===== Credentials =====
	sealer, err := secrets.NewSealerFromBase64(credentialsKey)
	if err != nil {
		log.Fatalf("Invalid CREDENTIALS_KEY: %v", err)
	}
	if credentialsKey == "" {
		log.Println("Warning: CREDENTIALS_KEY not set, only plain client secrets are accepted")
	}

	// ===== Providers =====
	guard := apiclient.NewGuard(apiclient.GuardConfig{
		AllowHTTP:    getEnvBool("URL_GUARD_ALLOW_HTTP", false),
		AllowPrivate: getEnvBool("URL_GUARD_ALLOW_PRIVATE", false),
	})
	client := apiclient.New(apiclient.Config{
		Guard:      guard,
		Backoff:    getEnvDuration("PROVIDER_RETRY_BACKOFF", time.Second),
		MaxCVBytes: int64(getEnvInt("CV_MAX_BYTES", 10<<20)),
		Logger:     logger,
	})
	registry := connectors.NewRegistry(
		talentsoft.NewConnector(client),
		smartrecruiters.NewConnector(client),
	)
	log.Printf("Providers registered: %v", registry.SupportedTypes())

	// ===== Core services =====
	tokens := services.NewTokenCache(services.TokenCacheConfig{
		Opener:      sealer,
		Logger:      logger,
		MaxEntries:  getEnvInt("TOKEN_CACHE_SIZE", 1000),
		LockTimeout: getEnvDuration("TOKEN_LOCK_TIMEOUT", 60*time.Second),
	})

	orchestrator := services.NewSyncOrchestrator(services.SyncOrchestratorConfig{
		Registry:                 registry,
		Tokens:                   tokens,
		Blobs:                    blobs,
		Publisher:                transport,
		Reporter:                 transport,
		Leases:                   redisadapter.NewLeases(redisClient),
		LeaseTTL:                 getEnvDuration("SYNC_LEASE_TTL", 10*time.Minute),
		Logger:                   logger,
		MaxConcurrentConfigs:     getEnvInt("SYNC_MAX_CONCURRENT_CONFIGS", 5),
		MaxConcurrentCVDownloads: getEnvInt("SYNC_MAX_CONCURRENT_CV_DOWNLOADS", 3),
		JobPageSize:              getEnvInt("SYNC_JOB_PAGE_SIZE", 100),
		ApplicationPageSize:      getEnvInt("SYNC_APPLICATION_PAGE_SIZE", 50),
		StaleDays:                getEnvInt("SYNC_STALE_DAYS", 90),
		MaxTrackedJobs:           getEnvInt("SYNC_MAX_TRACKED_JOBS", 5000),
	})

	var authAdapter driven.AuthAdapter
	if apiJWTSecret != "" {
		authAdapter = auth.NewAdapter(apiJWTSecret)
	} else if mode != "worker" {
		log.Println("Warning: API_JWT_SECRET not set, POST /api/v1/sync will reject every request")
	}

	checks := map[string]http.Pinger{"redis": transport}
	if db != nil {
		checks["postgres"] = db
	}

	var wg sync.WaitGroup
	if mode == "worker" || mode == "all" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runWorkerMode(ctx, transport, orchestrator, logger)
		}()
	}
	if mode == "api" || mode == "all" {
		runAPI(ctx, port, orchestrator, authAdapter, checks, logger)
		// The API only returns on shutdown or failure.
		cancel()
	}
	wg.Wait()
	log.Println("applicant-sync stopped")
}

func runAPI(
	ctx context.Context,
	port int,
	orchestrator *services.SyncOrchestrator,
	authAdapter driven.AuthAdapter,
	checks map[string]http.Pinger,
	logger *slog.Logger,
) {
	cfg := http.DefaultConfig()
	cfg.Port = port
	cfg.Version = version
	cfg.Logger = logger

	server := http.NewServer(cfg, orchestrator, authAdapter, checks)

	log.Printf("API server starting on :%d", port)
	if err := server.Start(ctx); err != nil {
		log.Printf("Server error: %v", err)
	}
}

// runWorkerMode consumes triggers until ctx is cancelled.
func runWorkerMode(
	ctx context.Context,
	triggers driven.TriggerQueue,
	orchestrator *services.SyncOrchestrator,
	logger *slog.Logger,
) {
	log.Println("Starting worker mode...")

	w := worker.NewWorker(worker.WorkerConfig{
		Triggers:       triggers,
		Orchestrator:   orchestrator,
		Logger:         logger,
		Concurrency:    getEnvInt("WORKER_CONCURRENCY", 2),
		DequeueTimeout: getEnvDuration("WORKER_DEQUEUE_TIMEOUT", 5*time.Second),
	})

	if err := w.Start(ctx); err != nil {
		log.Fatalf("Failed to start worker: %v", err)
	}
	log.Println("Worker started, consuming triggers...")

	<-ctx.Done()

	log.Println("Stopping worker...")
	w.Stop()
	log.Println("Worker stopped")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
