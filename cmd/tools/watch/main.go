package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/lmendes/licitahub/internal/config"
	"github.com/lmendes/licitahub/internal/db"
	"github.com/lmendes/licitahub/internal/ingest"
	"github.com/lmendes/licitahub/internal/notify"
	"github.com/lmendes/licitahub/pkg/logger"
)

// watch sweeps the configured procurement portals once and files new notices
// as unpublished drafts. Meant to run from cron; the API server stays out of
// the scraping business.
func main() {
	sourcesPath := flag.String("sources", "", "Override path to sources.yaml (default: embedded registry)")
	orgFlag := flag.String("org", "", "Holding organization ID for untriaged drafts (or HOLDING_ORG_ID env)")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	zlog := logger.New(cfg.Env)

	orgRaw := *orgFlag
	if orgRaw == "" {
		orgRaw = os.Getenv("HOLDING_ORG_ID")
	}
	orgID, err := uuid.Parse(orgRaw)
	if err != nil {
		log.Fatalf("Invalid holding organization ID %q: %v", orgRaw, err)
	}

	registry, err := ingest.LoadRegistry(*sourcesPath)
	if err != nil {
		log.Fatalf("Failed to load portal registry: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	store := db.NewStore(pool)
	notifier := notify.NewDispatcher(store, zlog)

	w := ingest.NewWatcher(registry, store, notifier, orgID, zlog)
	w.Run(ctx)
}
