package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/technosupport/ts-occupancy/internal/analytics"
	"github.com/technosupport/ts-occupancy/internal/config"
	"github.com/technosupport/ts-occupancy/internal/data"
)

// Run from cron or a systemd timer; deletes in batches so it never takes
// long locks against live ingestion.
func main() {
	configPath := flag.String("config", "config/default.yaml", "Path to config file")
	days := flag.Int("days", 0, "Days of events to keep (default from config)")
	batch := flag.Int("batch", 0, "Delete batch size (default from config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config load error: %v", err)
	}
	if *days == 0 {
		*days = cfg.Retention.Days
	}
	if *batch == 0 {
		*batch = cfg.Retention.BatchSize
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Invalid timezone %q: %v", cfg.Analytics.Timezone, err)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("DB ping error: %v", err)
	}

	svc := analytics.NewService(
		data.RegionModel{DB: db},
		data.CameraModel{DB: db},
		data.EventModel{DB: db},
		loc,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	start := time.Now()
	deleted, err := svc.RetentionCleanup(ctx, *days, *batch)
	if err != nil {
		log.Fatalf("Retention cleanup failed (deleted %d rows): %v", deleted, err)
	}
	log.Printf("Retention cleanup done: deleted %d rows older than %d days in %v", deleted, *days, time.Since(start))
}
