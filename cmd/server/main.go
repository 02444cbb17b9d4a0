package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/luminlabs/pulse/internal/api"
	"github.com/luminlabs/pulse/internal/config"
	"github.com/luminlabs/pulse/internal/pkg/logger"
	"github.com/luminlabs/pulse/internal/queue"
	"github.com/luminlabs/pulse/internal/repository/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	log.Println("Starting Pulse API server...")

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Redis unavailable, continuing without it: %v", err)
		} else {
			log.Println("Connected to Redis")
		}
	}

	q := queue.New(db)
	handlers := api.NewHandlers(
		postgres.NewSignalRepo(db),
		postgres.NewScoreRepo(db),
		postgres.NewNotificationRepo(db),
		postgres.NewSubscriptionRepo(db),
		postgres.NewAlertRuleRepo(db),
		q,
	)
	health := api.NewHealthChecker(db, redisClient, q)
	server := api.NewServer(cfg.Server, handlers, health)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("API server listening on %s", cfg.Server.Addr)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("Server error: %v", err)
	case sig := <-sigCh:
		log.Printf("Received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
