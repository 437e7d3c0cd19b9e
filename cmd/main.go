package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vidforge/vidforge/internal/api/v1/handlers"
	"github.com/vidforge/vidforge/internal/app"
	"github.com/vidforge/vidforge/internal/cache"
	"github.com/vidforge/vidforge/internal/config"
	"github.com/vidforge/vidforge/internal/db"
	"github.com/vidforge/vidforge/internal/db/repos"
	"github.com/vidforge/vidforge/internal/hub"
	"github.com/vidforge/vidforge/internal/logger"
	"github.com/vidforge/vidforge/internal/services"
	"github.com/vidforge/vidforge/internal/store"
	"github.com/vidforge/vidforge/internal/types"
	"github.com/vidforge/vidforge/internal/worker"
)

func main() {
	config.Load()
	logger.InitializeAndConfigure()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.New(ctx, store.Options{
		Addr:     config.GetEnv("REDIS_ADDR", store.DefaultAddr),
		Password: config.GetEnv("REDIS_PASSWORD", ""),
		DB:       config.GetEnvInt("REDIS_DB", store.DefaultDB),
		PoolSize: config.GetEnvInt("REDIS_POOL_SIZE", store.DefaultPoolSize),
	})
	if err != nil {
		logger.Fatalf("Failed to connect to job store: %v", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Errorf("Failed to close job store: %v", err)
		}
	}()

	// The audit database is optional; the queue runs without it.
	var events *repos.EventRepository
	if config.GetEnvBool("AUDIT_DB_ENABLED", true) {
		gdb, err := db.New(db.Options{
			Host:     config.GetEnv("DB_HOST", "localhost"),
			User:     config.GetEnv("DB_USER", "postgres"),
			Password: config.GetEnv("DB_PASSWORD", ""),
			DBName:   config.GetEnv("DB_NAME", db.DefaultDBName),
			Port:     config.GetEnvInt("DB_PORT", 5432),
		})
		if err != nil {
			logger.Fatalf("Failed to connect to audit database: %v", err)
		}
		if err := db.Migrate(gdb); err != nil {
			logger.Fatalf("Failed to migrate audit database: %v", err)
		}
		events = repos.NewEventRepository(gdb)
	} else {
		logger.Warn("Audit database disabled, job event history will not be recorded")
	}

	listenAddr := config.GetEnv("LISTEN_ADDR", ":8080")
	callbackURL := config.GetEnv("WEBHOOK_CALLBACK_URL", "http://localhost"+listenAddr+"/api/v1/webhooks/steps")

	c := cache.New()
	h := hub.New()
	runner := worker.NewExecRunner(config.GetEnv("GENERATOR_BIN", "vidforge-generate"), callbackURL)

	queue := services.NewQueue(st, c, events, h, runner, services.QueueOptions{
		ReadTimeout: config.GetEnvDuration("STORE_READ_TIMEOUT", services.DefaultReadTimeout),
	})
	render := services.NewRender(st, services.RenderOptions{
		BaseURL: config.GetEnv("RENDER_API_URL", "http://localhost:3123"),
		APIKey:  config.GetEnv("RENDER_API_KEY", ""),
		Timeout: config.GetEnvDuration("RENDER_POLL_TIMEOUT", services.DefaultRenderPollTimeout),
	})
	ingest := services.NewIngest(queue, render)

	var wg sync.WaitGroup
	concurrency := config.GetEnvInt("DISPATCH_CONCURRENCY", services.DefaultDispatchConcurrency)
	wg.Add(1)
	go services.LaunchDispatcher(ctx, &wg, queue, concurrency)

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.RunHeartbeat(ctx, config.GetEnvDuration("STREAM_HEARTBEAT_INTERVAL", 30*time.Second), func() (types.QueueStats, error) {
			return queue.Stats(ctx)
		})
	}()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every 1m", func() {
		n, err := queue.CleanupStuck(ctx, config.GetEnvDuration("STUCK_THRESHOLD", services.DefaultStuckThreshold))
		if err != nil {
			logger.Errorf("Stuck job sweep failed: %v", err)
			return
		}
		if n > 0 {
			logger.Warnf("Stuck job sweep failed %d jobs", n)
		}
	}); err != nil {
		logger.Fatalf("Failed to schedule stuck job sweep: %v", err)
	}
	if _, err := scheduler.AddFunc("@every 5m", func() {
		if n := c.Evict(); n > 0 {
			logger.Debugf("Cache eviction removed %d entries", n)
		}
	}); err != nil {
		logger.Fatalf("Failed to schedule cache eviction: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := app.NewApp(
		handlers.NewJobHandler(queue, render),
		handlers.NewWebhookHandler(ingest),
		handlers.NewStreamHandler(h, queue),
	)

	go func() {
		if err := srv.Listen(listenAddr); err != nil {
			logger.Fatalf("Server stopped: %v", err)
		}
	}()
	logger.Infof("vidforge listening on %s", listenAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	cancel()
	if err := srv.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Errorf("Server shutdown: %v", err)
	}
	wg.Wait()
}
