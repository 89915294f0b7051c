// Command janitor runs the revocation cleanup loop as a standalone process,
// for deployments that keep the API pods free of background work.
package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"tokengate.org/internal/config"
	"tokengate.org/internal/revocation"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var store revocation.Store
	switch {
	case cfg.RedisAddr != "":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store = revocation.NewRedisStore(client)
	case cfg.PostgresDSN != "":
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer db.Close()
		store = revocation.NewPGStore(db)
	default:
		log.Fatal("janitor needs TOKENGATE_REDIS_ADDR or TOKENGATE_PG_DSN")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		cancel()
	}()

	log.Printf("janitor sweeping every %s", cfg.JanitorInterval)
	revocation.NewJanitor(store, cfg.JanitorInterval).Run(ctx)
}
