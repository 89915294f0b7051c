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

	"tokengate.org/internal/config"
	"tokengate.org/internal/gate"
	"tokengate.org/internal/httpapi"
	"tokengate.org/internal/obs"
	"tokengate.org/internal/principal"
	"tokengate.org/internal/revocation"
	"tokengate.org/internal/roles"
	"tokengate.org/internal/token"
)

var version = "0.3.0"

func main() {
	obs.Init()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.AuthSecret == "" {
		log.Fatal("TOKENGATE_AUTH_SECRET is required (generate one with cmd/secretgen)")
	}

	var db *sql.DB
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	var (
		roleStore      roles.Store
		principalStore principal.Store
	)
	if db != nil {
		roleStore = roles.NewPGStore(db)
		principalStore = principal.NewPGStore(db)
	} else {
		log.Print("no TOKENGATE_PG_DSN set, using in-memory stores")
		roleStore = roles.NewMemoryStore()
		principalStore = principal.NewMemoryStore()
	}

	var revoked revocation.Store
	switch {
	case cfg.RedisAddr != "":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		revoked = revocation.NewRedisStore(client)
	case db != nil:
		revoked = revocation.NewPGStore(db)
	default:
		revoked = revocation.NewMemoryStore()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry, err := roles.NewRegistry(roleStore)
	if err != nil {
		log.Fatalf("role registry: %v", err)
	}
	if err := registry.EnsureDefaults(ctx); err != nil {
		log.Fatalf("ensure default roles: %v", err)
	}

	tokens, err := token.NewService([]byte(cfg.AuthSecret), registry, revoked,
		token.WithIssuer(cfg.Issuer),
		token.WithAccessTTL(cfg.AccessTTL),
		token.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	api := httpapi.New(tokens, gate.New(tokens), registry, principalStore, revoked,
		httpapi.ReadyProbe{DB: db}, version)

	var handler http.Handler = api.Handler()
	handler = httpapi.RateLimit(handler, cfg.RateLimitBurst, cfg.RateLimitPerSecond)
	handler = httpapi.MaxBodyBytes(handler, 1<<20)
	handler = httpapi.CORS(handler)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.LoggingJSON(handler)
	handler = httpapi.RequestID(handler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// expired deny-list records are swept in-process as well; cmd/janitor
	// exists for deployments that want the sweep isolated
	go revocation.NewJanitor(revoked, cfg.JanitorInterval).Run(ctx)

	log.Printf("Starting tokengate-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
