package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"

	"github.com/lmendes/licitahub/internal/config"
	"github.com/lmendes/licitahub/internal/db"
	"github.com/lmendes/licitahub/internal/models"
)

// report prints a terminal snapshot of the pipeline: how many opportunities
// sit in each status, and how many tickets are open per status with the age
// of the oldest one.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	store := db.NewStore(pool)

	counts, err := store.CountOpportunitiesByStatus(ctx)
	if err != nil {
		log.Fatal(err)
	}

	opps := table.NewWriter()
	opps.SetOutputMirror(os.Stdout)
	opps.SetTitle("Oportunidades")
	opps.AppendHeader(table.Row{"Status", "Badge", "Count"})
	for _, status := range models.AllOpportunityStatuses {
		badge, err := status.Badge()
		if err != nil {
			continue
		}
		opps.AppendRow(table.Row{string(status), badge.Label, counts[status]})
	}
	opps.Render()

	rows, err := pool.Query(ctx, `
		SELECT status, COUNT(*), MIN(created_at)
		FROM tickets
		WHERE is_archived = false
		GROUP BY status
		ORDER BY status
	`)
	if err != nil {
		log.Fatal(err)
	}
	defer rows.Close()

	tickets := table.NewWriter()
	tickets.SetOutputMirror(os.Stdout)
	tickets.SetTitle("Tickets ativos")
	tickets.AppendHeader(table.Row{"Status", "Count", "Oldest"})

	now := time.Now()
	for rows.Next() {
		var status string
		var n int
		var oldest *time.Time

		if err := rows.Scan(&status, &n, &oldest); err != nil {
			log.Printf("Scan error: %v", err)
			continue
		}

		age := "-"
		if oldest != nil {
			age = now.Sub(*oldest).Round(time.Hour).String()
		}
		tickets.AppendRow(table.Row{status, n, age})
	}
	tickets.Render()
}
