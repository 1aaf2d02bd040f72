// Package config wires the resilient data layer and its admin server.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Egham-7/support-resilience/internal/api"
	"github.com/Egham-7/support-resilience/internal/config"
	"github.com/Egham-7/support-resilience/internal/models"
	"github.com/Egham-7/support-resilience/internal/services/cache"
	"github.com/Egham-7/support-resilience/internal/services/circuitbreaker"
	"github.com/Egham-7/support-resilience/internal/services/conversation"
	"github.com/Egham-7/support-resilience/internal/services/customers"
	"github.com/Egham-7/support-resilience/internal/services/database"
	"github.com/Egham-7/support-resilience/internal/services/fallback"
	"github.com/Egham-7/support-resilience/internal/services/response_cache"
	"github.com/Egham-7/support-resilience/internal/services/scheduler"
	"github.com/Egham-7/support-resilience/pkg/builder"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ExecutorName names the executor and breaker guarding the system of record
const ExecutorName = "database"

// Runtime owns every store of the data layer and the admin server.
type Runtime struct {
	config  *config.Config
	builder *builder.Builder

	mu          sync.Mutex
	initialized bool

	app       *fiber.App
	redis     *redis.Client
	db        *database.DB
	durableDB *database.DB

	tiered        *cache.TieredCache
	breaker       *circuitbreaker.CircuitBreaker
	executor      *fallback.Executor
	responses     *response_cache.ResponseCache
	conversations *conversation.MemoryStore
	customers     *customers.Service

	scheduler     *scheduler.CleanupScheduler
	schedulerDone chan struct{}
}

// NewRuntime creates a Runtime with the given configuration.
// The cfg parameter is required and must not be nil.
func NewRuntime(cfg *config.Config) *Runtime {
	if cfg == nil {
		panic("config cannot be nil - use config.LoadFromFile() or the config builder to create config")
	}
	return &Runtime{config: cfg}
}

// NewRuntimeWithBuilder creates a Runtime whose admin server also carries
// the builder's middlewares, rate limit and timeout.
func NewRuntimeWithBuilder(b *builder.Builder) *Runtime {
	return &Runtime{
		config:  b.Build(),
		builder: b,
	}
}

func (r *Runtime) App() *fiber.App { return r.app }
func (r *Runtime) TieredCache() *cache.TieredCache { return r.tiered }
func (r *Runtime) Executor() *fallback.Executor { return r.executor }
func (r *Runtime) ResponseCache() *response_cache.ResponseCache { return r.responses }
func (r *Runtime) Conversations() *conversation.MemoryStore { return r.conversations }
func (r *Runtime) Customers() *customers.Service { return r.customers }

// Init builds every dependency and store, registers the admin routes and
// starts the cleanup scheduler. The scheduler runs until ctx is done or
// Shutdown is called. Calling Init twice is a no-op.
func (r *Runtime) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return nil
	}

	if err := r.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	setupLogLevel(r.config)

	// === Infrastructure Setup ===
	if err := r.initializeInfrastructure(); err != nil {
		r.closeResources()
		return err
	}

	// === Stores ===
	if err := r.initializeStores(); err != nil {
		r.closeResources()
		return err
	}

	// === Admin server ===
	r.app = createFiberApp(r.config)
	r.setupMiddleware()
	r.setupRoutes()

	// === Schedulers ===
	r.scheduler = scheduler.NewCleanupScheduler()
	r.scheduler.Register("tiered_cache", r.tiered, r.config.Cache.CleanupInterval())
	r.scheduler.Register("response_cache", r.responses, r.config.ResponseCache.CleanupInterval())
	r.scheduler.Register("conversations", r.conversations, r.config.Conversation.CleanupInterval())

	r.schedulerDone = make(chan struct{})
	go func() {
		defer close(r.schedulerDone)
		r.scheduler.Start(ctx)
	}()

	r.initialized = true
	fiberlog.Info("Runtime: initialized")
	return nil
}

// Shutdown stops the scheduler and the admin server, waits for background
// work and closes every client. It returns all close errors joined.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return nil
	}
	r.initialized = false

	var errs []error

	r.scheduler.Stop()
	select {
	case <-r.schedulerDone:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("cleanup scheduler did not stop: %w", ctx.Err()))
	}

	if err := r.app.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("admin server shutdown: %w", err))
	}

	errs = append(errs, r.closeResources()...)
	if len(errs) == 0 {
		fiberlog.Info("Runtime: shutdown completed successfully")
	}
	return errors.Join(errs...)
}

// Run initializes the runtime, serves the admin API and blocks until an
// interrupt, then shuts down gracefully.
func (r *Runtime) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Init(ctx); err != nil {
		return err
	}

	listenAddr := ":" + r.config.Server.Port

	fmt.Printf("Support resilience layer starting on %s\n", listenAddr)
	fmt.Printf("   Environment: %s\n", r.config.Server.Environment)
	fmt.Printf("   Remote cache: %t, Durable cache: %s, Database: %t\n",
		r.redis != nil, r.config.Cache.Durable.Backend, r.db != nil)
	fmt.Printf("   Go version: %s\n", runtime.Version())
	fmt.Printf("   GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := r.app.Listen(listenAddr); err != nil {
			serverErrChan <- err
		}
	}()

	var serveErr error
	select {
	case sig := <-sigChan:
		fiberlog.Infof("Received signal: %v. Starting graceful shutdown...", sig)
	case err := <-serverErrChan:
		serveErr = fmt.Errorf("server error: %w", err)
	}

	fiberlog.Info("Server shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), r.config.Server.ShutdownTimeout())
	defer shutdownCancel()

	return errors.Join(serveErr, r.Shutdown(shutdownCtx))
}

func (r *Runtime) initializeInfrastructure() error {
	redisClient, err := cache.NewRedisClient(r.config.Cache.Remote)
	if err != nil {
		return fmt.Errorf("failed to create Redis client: %w", err)
	}
	if redisClient != nil {
		if err := testRedisConnectionWithRetry(redisClient); err != nil {
			// The client stays; the tiered cache treats remote errors as misses
			// and health reports the layer unhealthy until it answers.
			fiberlog.Warnf("Runtime: %v - continuing with remote layer degraded", err)
		}
		r.redis = redisClient
	}

	if r.config.Database != nil {
		db, err := database.New(*r.config.Database)
		if err != nil {
			return fmt.Errorf("failed to create database connection: %w", err)
		}
		r.db = db
		fiberlog.Infof("Database (%s) initialized successfully", db.DriverName())

		if err := db.Migrate(); err != nil {
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
		fiberlog.Info("Database migrations completed successfully")
	} else {
		fiberlog.Info("Database not configured - customer lookups will serve cached or default data")
	}
	return nil
}

// createDurableStore returns a nil Store when the durable tier is off.
func (r *Runtime) createDurableStore() (cache.Store, error) {
	durable := r.config.Cache.Durable
	switch durable.Backend {
	case models.DurableBackendNone:
		fiberlog.Info("Runtime: durable cache disabled")
		return nil, nil
	case models.DurableBackendDatabase:
		handle := r.db
		if durable.Database != nil {
			db, err := database.New(*durable.Database)
			if err != nil {
				return nil, fmt.Errorf("failed to open durable cache database: %w", err)
			}
			r.durableDB = db
			handle = db
		}
		if handle == nil {
			return nil, fmt.Errorf("durable cache backend %q requires a database", durable.Backend)
		}
		store, err := cache.NewGormStore(handle.DB)
		if err != nil {
			return nil, err
		}
		fiberlog.Infof("Runtime: durable cache on %s table", handle.DriverName())
		return store, nil
	default:
		store, err := cache.NewFileStore(durable.Directory)
		if err != nil {
			return nil, err
		}
		fiberlog.Infof("Runtime: durable cache in %s", store.Dir())
		return store, nil
	}
}

func (r *Runtime) initializeStores() error {
	var remote cache.Store
	if r.redis != nil {
		remote = cache.NewRedisStore(r.redis, r.config.Cache.Remote.KeyPrefix)
	}
	durable, err := r.createDurableStore()
	if err != nil {
		return fmt.Errorf("failed to create durable cache: %w", err)
	}
	r.tiered = cache.NewTieredCache(r.config.Cache, remote, durable)

	r.breaker = circuitbreaker.NewWithConfig(ExecutorName, circuitbreaker.ConfigFrom(r.config.Fallback.CircuitBreaker), nil)
	r.executor = fallback.NewExecutor(ExecutorName, r.breaker, r.tiered, r.config.Fallback)

	var rcOpts []response_cache.Option
	index, err := response_cache.NewSemanticEmbeddingIndex(r.config.ResponseCache.Embedding)
	if err != nil {
		return fmt.Errorf("failed to create embedding index: %w", err)
	}
	if index != nil {
		rcOpts = append(rcOpts, response_cache.WithEmbeddingIndex(index))
	}
	r.responses, err = response_cache.New(r.config.ResponseCache, rcOpts...)
	if err != nil {
		if index != nil {
			_ = index.Close()
		}
		return fmt.Errorf("failed to create response cache: %w", err)
	}

	r.conversations = conversation.NewMemoryStore(r.config.Conversation)

	var gdb *gorm.DB
	if r.db != nil {
		gdb = r.db.DB
	}
	r.customers = customers.NewService(gdb, r.executor, r.tiered)
	return nil
}

// closeResources releases stores before the clients they depend on.
func (r *Runtime) closeResources() []error {
	var errs []error
	if r.tiered != nil {
		if err := r.tiered.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tiered cache: %w", err))
		}
	}
	if r.responses != nil {
		if err := r.responses.Close(); err != nil {
			errs = append(errs, fmt.Errorf("response cache: %w", err))
		}
	}
	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			fiberlog.Errorf("Failed to close Redis client: %v", err)
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
		r.redis = nil
	}
	if r.durableDB != nil {
		if err := r.durableDB.Close(); err != nil {
			fiberlog.Errorf("Failed to close durable cache database: %v", err)
			errs = append(errs, fmt.Errorf("durable cache database: %w", err))
		}
		r.durableDB = nil
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			fiberlog.Errorf("Failed to close database connection: %v", err)
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
		r.db = nil
	}
	return errs
}

func createFiberApp(cfg *config.Config) *fiber.App {
	isProd := cfg.IsProduction()

	return fiber.New(fiber.Config{
		AppName:           "SupportResilience v1.0",
		EnablePrintRoutes: !isProd,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		CaseSensitive:     true,
		StrictRouting:     false,
		Network:           "tcp",
		ServerHeader:      "SupportResilience",
	})
}

func (r *Runtime) setupMiddleware() {
	app := r.app
	isProd := r.config.IsProduction()

	// Recover middleware (must be first)
	app.Use(recover.New(recover.Config{
		EnableStackTrace: !isProd,
	}))

	rateMax, rateWindow := 600, 1*time.Minute
	keyFunc := func(c *fiber.Ctx) string { return c.IP() }
	if r.builder != nil && r.builder.GetRateLimitConfig() != nil {
		rlCfg := r.builder.GetRateLimitConfig()
		rateMax, rateWindow = rlCfg.Max, rlCfg.Expiration
		if rlCfg.KeyFunc != nil {
			keyFunc = rlCfg.KeyFunc
		}
	}
	app.Use(limiter.New(limiter.Config{
		Max:               rateMax,
		Expiration:        rateWindow,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      keyFunc,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": fmt.Sprintf("%d requests per %v", rateMax, rateWindow),
			})
		},
	}))

	if r.builder != nil && r.builder.GetTimeoutConfig() != nil {
		timeoutDuration := r.builder.GetTimeoutConfig().Timeout
		app.Use(func(c *fiber.Ctx) error {
			handler := func(c *fiber.Ctx) error {
				return c.Next()
			}
			return timeout.NewWithContext(handler, timeoutDuration)(c)
		})
	} else {
		app.Use(func(c *fiber.Ctx) error {
			ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
			defer cancel()
			c.SetUserContext(ctx)
			return c.Next()
		})
	}

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	if isProd {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency} ${bytesSent}b\n",
			Output: os.Stdout,
		}))
	} else {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${error}\n",
			Output: os.Stdout,
		}))
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins: r.config.Server.AllowedOrigins,
		AllowHeaders: strings.Join([]string{"Origin", "Content-Type", "Accept", "Authorization"}, ", "),
		AllowMethods: "GET, POST, DELETE, OPTIONS",
		MaxAge:       86400,
	}))

	if r.builder != nil {
		for _, middleware := range r.builder.GetMiddlewares() {
			app.Use(middleware)
		}
	}

	// Profiler (dev only)
	if !isProd {
		app.Use(pprof.New())
	}
}

func (r *Runtime) setupRoutes() {
	app := r.app

	healthHandler := api.NewHealthHandler(r.redis, r.db, r.breaker)
	app.Get("/health", healthHandler.HealthCheck)

	statsHandler := api.NewStatsHandler(r.tiered, r.responses, r.conversations, r.breaker)
	app.Get("/v1/stats", statsHandler.GetStats)

	api.NewCacheHandler(r.tiered, r.responses).RegisterRoutes(app, "/v1/cache")
	api.NewCustomerHandler(r.customers).RegisterRoutes(app, "/v1/customers")
	api.NewConversationHandler(r.conversations).RegisterRoutes(app, "/v1/conversations")

	app.Get("/", welcomeHandler())
}

func welcomeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message":    "Support resilience layer",
			"version":    "1.0.0",
			"go_version": runtime.Version(),
			"status":     "running",
			"endpoints": fiber.Map{
				"health":        "/health",
				"stats":         "/v1/stats",
				"cache":         "/v1/cache",
				"customers":     "/v1/customers",
				"conversations": "/v1/conversations",
			},
		})
	}
}

func setupLogLevel(cfg *config.Config) {
	logLevel := cfg.GetNormalizedLogLevel()

	switch logLevel {
	case "trace":
		fiberlog.SetLevel(fiberlog.LevelTrace)
	case "debug":
		fiberlog.SetLevel(fiberlog.LevelDebug)
	case "info":
		fiberlog.SetLevel(fiberlog.LevelInfo)
	case "warn", "warning":
		fiberlog.SetLevel(fiberlog.LevelWarn)
	case "error":
		fiberlog.SetLevel(fiberlog.LevelError)
	case "fatal":
		fiberlog.SetLevel(fiberlog.LevelFatal)
	case "panic":
		fiberlog.SetLevel(fiberlog.LevelPanic)
	default:
		fiberlog.SetLevel(fiberlog.LevelInfo)
		fiberlog.Warnf("Unknown log level '%s', defaulting to 'info'", logLevel)
	}

	fiberlog.Infof("Log level set to: %s", logLevel)
}

func testRedisConnectionWithRetry(client *redis.Client) error {
	const maxAttempts = 3
	const baseDelay = 500 * time.Millisecond

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := cache.PingRedis(client)
		if err == nil {
			fiberlog.Infof("Redis connection established successfully (attempt %d/%d)", attempt, maxAttempts)
			return nil
		}

		fiberlog.Warnf("Redis connection failed (attempt %d/%d): %v", attempt, maxAttempts, err)
		if attempt < maxAttempts {
			time.Sleep(time.Duration(attempt) * baseDelay)
		}
	}
	return fmt.Errorf("failed to connect to Redis after %d attempts", maxAttempts)
}
