package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"toolgate.org/internal/auth"
	"toolgate.org/internal/config"
	"toolgate.org/internal/events"
	"toolgate.org/internal/httpapi"
	"toolgate.org/internal/obs"
	"toolgate.org/internal/policy"
	"toolgate.org/internal/proxy"
	"toolgate.org/internal/ratelimit"
	"toolgate.org/internal/relay"
	"toolgate.org/internal/sessions"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("TOOLGATE_COMMIT"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Identity store: postgres when a DSN is set, in-memory otherwise.
	var (
		db    *sql.DB
		store auth.Store
	)
	if cfg.PGDSN != "" {
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		store = auth.NewPGStore(db)
	} else {
		store = auth.NewMemoryStore()
	}

	tokens, err := auth.NewService(store, cfg.AuthSecret,
		auth.WithIssuer(cfg.Issuer),
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	// Sessions and rate limiting share the redis backend when one is
	// configured so that multiple gateway replicas agree.
	var (
		registry sessions.Registry
		limiter  ratelimit.Limiter
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		registry = sessions.NewRedis(rdb, cfg.SessionTTL)
		limiter = ratelimit.NewRedis(rdb, cfg.RateLimit, cfg.RateWindow)
	} else {
		registry = sessions.NewMemory(cfg.SessionTTL)
		limiter = ratelimit.NewMemory(cfg.RateLimit, cfg.RateWindow)
	}

	upstream := relay.New(cfg.Upstream.String(),
		relay.WithTimeout(cfg.UpstreamTimeout),
		relay.WithSessionHeader(cfg.UpstreamSessionHeader),
	)

	bus := events.NewBus()
	gateway := proxy.NewService(upstream, policy.NewEngine(policy.Builtin()), limiter, registry, bus)

	api := httpapi.New(httpapi.Config{
		Tokens:       tokens,
		Proxy:        gateway,
		Registry:     registry,
		Bus:          bus,
		Ready:        httpapi.ReadyProbe{DB: db},
		Version:      version,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting toolgate %s on %s (upstream %s)", version, srv.Addr, cfg.Upstream)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
