package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/lmendes/licitahub/internal/ai"
	"github.com/lmendes/licitahub/internal/api"
	"github.com/lmendes/licitahub/internal/config"
	"github.com/lmendes/licitahub/internal/db"
	"github.com/lmendes/licitahub/internal/storage"
	"github.com/lmendes/licitahub/pkg/logger"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	zlog := logger.New(cfg.Env)

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, zlog); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	ttl, err := time.ParseDuration(cfg.SignedURLTTL)
	if err != nil {
		log.Fatalf("Invalid SIGNED_URL_TTL %q: %v", cfg.SignedURLTTL, err)
	}
	files, err := storage.NewClient(cfg.S3Region, cfg.S3Bucket, ttl)
	if err != nil {
		log.Fatalf("Failed to set up file storage: %v", err)
	}

	embedder := ai.NewOllamaClient(cfg.OllamaHost, "")

	srv := api.NewServer(cfg, pool, files, embedder, zlog)
	zlog.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
	if err := srv.Start(cfg.Port); err != nil {
		log.Fatal(err)
	}
}
