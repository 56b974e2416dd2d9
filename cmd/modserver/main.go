package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/echoreel/moderation/internal/bulkaction"
	"github.com/echoreel/moderation/internal/config"
	"github.com/echoreel/moderation/internal/httpapi"
	"github.com/echoreel/moderation/internal/messaging"
	"github.com/echoreel/moderation/internal/profileban"
	"github.com/echoreel/moderation/internal/ratelimit"
	"github.com/echoreel/moderation/internal/scan"
	"github.com/echoreel/moderation/internal/session"
	"github.com/echoreel/moderation/internal/stats"
	"github.com/echoreel/moderation/internal/store"
	"github.com/echoreel/moderation/internal/workflow"
)

func main() {
	log.Println("Starting moderation server...")

	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// --- Postgres ---
	st, err := store.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	if err := st.Migrate(); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "moderation-server"
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Engine components ---
	bans := profileban.NewStore(rdb)
	machine := workflow.NewMachine(st, natsClient)
	coordinator := bulkaction.NewCoordinator(st, bans, natsClient)

	scanConfig := scan.DefaultConfig()
	scanConfig.BatchSize = cfg.ScanBatchSize
	scanConfig.Pause = cfg.ScanPause
	scanConfig.RunTimeout = cfg.ScanRunTimeout
	runner := scan.NewRunner(st, scan.NewAnalyzer(), scanConfig)

	api := httpapi.NewServer(httpapi.Deps{
		Sessions: session.NewStore(rdb),
		Items:    st,
		Workflow: machine,
		Bulk:     coordinator,
		Scanner:  runner,
		Abuse:    bans,
		Limiter:  ratelimit.NewLimiter(rdb),
		Stats: stats.Config{
			Window:   cfg.StatsWindow,
			StaleAge: cfg.StaleAge,
		},
		Timeout: cfg.OpTimeout,
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	log.Printf("Moderation server running")
	log.Printf("  listen_addr:  %s", cfg.ListenAddr)
	log.Printf("  redis_addr:   %s", cfg.RedisAddr)
	log.Printf("  nats_url:     %s", cfg.NATSURL)
	log.Printf("  op_timeout:   %s", cfg.OpTimeout)
	log.Printf("  scan_batch:   %d", cfg.ScanBatchSize)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown error: %v", err)
		}
		natsClient.Close()
		if err := rdb.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
		if err := st.Close(); err != nil {
			log.Printf("store close error: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
	log.Println("moderation server stopped")
}
