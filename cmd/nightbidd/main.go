// nightbidd serves the competitive-bidding engine for contested
// split-lease nights: HTTP for bid submission, websockets for realtime
// updates, PostgreSQL for session state, Redis and NATS for event fan-out.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/splitlease/nightbid/api"
	"github.com/splitlease/nightbid/config"
	"github.com/splitlease/nightbid/engine"
	"github.com/splitlease/nightbid/events"
	"github.com/splitlease/nightbid/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("ERROR: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	relay, err := events.NewRelay(ctx, events.RelayConfig{
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		NATSURL:       cfg.NATS.URL,
	})
	if err != nil {
		return fmt.Errorf("failed to start event relay: %w", err)
	}
	defer relay.Close()
	log.Printf("INFO: Event relay connected (redis=%s, nats=%s)", cfg.Redis.Addr, cfg.NATS.URL)

	biddingEngine := engine.New(sessions, relay)

	hubRedis := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer hubRedis.Close()

	hub := api.NewHub(hubRedis)
	go hub.Run(ctx)
	go func() {
		if err := hub.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("ERROR: Websocket relay stopped: %v", err)
		}
	}()

	go sweepLoop(ctx, biddingEngine, time.Duration(cfg.Bidding.SweepIntervalSeconds)*time.Second)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(biddingEngine, api.NewAuthenticator(cfg.Auth.JWTSecret), hub).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("ERROR: Server shutdown failed: %v", err)
		}
	}()

	log.Printf("INFO: nightbid listening on :%d", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.SessionStore, func(), error) {
	if cfg.Database.Driver == "memory" {
		log.Printf("WARNING: Using in-memory session store; state is lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	}

	pg, err := store.NewPostgresStore(cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session store: %w", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	log.Printf("INFO: Session store connected (postgres %s:%d/%s)",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)

	return pg, func() {
		if err := pg.Close(); err != nil {
			log.Printf("ERROR: Failed to close session store: %v", err)
		}
	}, nil
}

// sweepLoop periodically finalizes sessions that expired without a closing
// bid. The validator also rejects late bids by wall clock, so a delayed
// sweep never admits a stale bid.
func sweepLoop(ctx context.Context, e *engine.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := e.SweepExpired(ctx)
			if err != nil {
				log.Printf("ERROR: Expiry sweep failed: %v", err)
				continue
			}
			if swept > 0 {
				log.Printf("INFO: Expiry sweep finalized %d session(s)", swept)
			}
		}
	}
}
