package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/pairbot/chat-engine/internal/engine"
	"github.com/pairbot/chat-engine/internal/messaging"
	"github.com/pairbot/chat-engine/internal/metrics"
	"github.com/pairbot/chat-engine/internal/ratelimit"
	"github.com/pairbot/chat-engine/internal/store"
	"github.com/pairbot/chat-engine/internal/telegram"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err == nil {
		log.Printf("[main] loaded configuration from .env")
	}

	token := os.Getenv("BOT_TOKEN")
	if token == "" {
		log.Fatalf("BOT_TOKEN is required")
	}

	cfg := engine.DefaultConfig()
	if v := os.Getenv("SEARCH_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.PollInterval = d
		}
	}
	if v := os.Getenv("SEARCH_MAX_POLLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxPolls = n
		}
	}
	if v := os.Getenv("AUTO_BAN_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AutoBanThreshold = n
		}
	}
	var modID int64
	if v := os.Getenv("MODERATOR_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			modID = n
		}
	}
	cfg.ModeratorID = modID
	cfg.ModeratorExempt = os.Getenv("MODERATOR_EXEMPT") == "true"

	// --- Store: PostgreSQL when configured, in-memory otherwise. A
	// reachable-then-lost database degrades to memory at runtime.
	var st store.Store
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		pg, err := store.Open(dsn)
		if err != nil {
			log.Printf("[main] postgres unavailable (%v), using in-memory store", err)
			st = store.NewMemory()
		} else {
			st = store.NewFailover(pg, store.NewMemory())
		}
	} else {
		log.Printf("[main] DATABASE_URL not set, using in-memory store (state is lost on restart)")
		st = store.NewMemory()
	}

	// --- Bus: NATS when configured, in-process otherwise.
	var bus messaging.Bus
	if url := os.Getenv("NATS_URL"); url != "" {
		natsCfg := messaging.DefaultNATSConfig()
		natsCfg.URL = url
		nb, err := messaging.NewNATSBus(natsCfg)
		if err != nil {
			log.Printf("[main] nats unavailable (%v), using in-process bus", err)
			bus = messaging.NewLocalBus()
		} else {
			bus = nb
		}
	} else {
		bus = messaging.NewLocalBus()
	}

	// --- Rate limiting: optional, Redis-backed.
	var limiter *ratelimit.Limiter
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		limiter = ratelimit.NewLimiter(client)
	}

	metricsAddr := os.Getenv("METRICS_ADDR")
	if metricsAddr == "" {
		metricsAddr = ":9091"
	}

	log.Printf("pairbot starting")
	log.Printf("  poll_interval:     %s", cfg.PollInterval)
	log.Printf("  max_polls:         %d", cfg.MaxPolls)
	log.Printf("  auto_ban_threshold: %d", cfg.AutoBanThreshold)
	log.Printf("  moderator_id:      %d", cfg.ModeratorID)
	log.Printf("  metrics_addr:      %s", metricsAddr)

	svc := engine.New(cfg, st, bus)

	bot, err := telegram.New(token, svc, limiter, modID)
	if err != nil {
		log.Fatalf("telegram authorization failed: %v", err)
	}
	if err := bot.SubscribeEvents(bus); err != nil {
		log.Fatalf("event subscription failed: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[main] metrics server: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	bot.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] metrics shutdown: %v", err)
	}
	bus.Close()
	if err := st.Close(); err != nil {
		log.Printf("[main] store close: %v", err)
	}
	log.Printf("pairbot stopped")
}
