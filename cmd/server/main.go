package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/technosupport/ts-occupancy/internal/analytics"
	"github.com/technosupport/ts-occupancy/internal/api"
	"github.com/technosupport/ts-occupancy/internal/cache"
	"github.com/technosupport/ts-occupancy/internal/config"
	"github.com/technosupport/ts-occupancy/internal/data"
)

type dbPinger struct{ db *sql.DB }

func (p dbPinger) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.client.Ping(ctx).Err() }

func main() {
	configPath := flag.String("config", "config/default.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config load error: %v", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Invalid timezone %q: %v", cfg.Analytics.Timezone, err)
	}

	// DB Init
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("DB ping error: %v", err)
	}

	regions := data.RegionModel{DB: db}
	cameras := data.CameraModel{DB: db}
	events := data.EventModel{DB: db}

	svc := analytics.NewService(regions, cameras, events, loc)

	// Occupancy reads go through redis when enabled; compute-only otherwise.
	var occ api.OccupancyProvider = svc
	var rdsPing api.Pinger
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		occ = cache.NewOccupancyCache(rdb, svc, cfg.Analytics.OccupancyCacheTTL)
		rdsPing = redisPinger{client: rdb}
	}

	// Hot reload covers the runtime tunables: retention defaults for the
	// admin endpoint and the live feed cadence for new connections.
	// Connection settings still need a restart.
	var liveCfg atomic.Pointer[config.Config]
	liveCfg.Store(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	config.NewWatcher(*configPath, func(c *config.Config) {
		liveCfg.Store(c)
	}).Start(ctx)

	analyticsHandler := api.NewAnalyticsHandler(occ, svc, regions, loc)
	analyticsHandler.Tunables = func() api.Tunables {
		c := liveCfg.Load()
		return api.Tunables{
			RetentionDays:  c.Retention.Days,
			RetentionBatch: c.Retention.BatchSize,
			LiveInterval:   c.Analytics.LiveInterval,
		}
	}
	liveHandler := api.NewLiveOccupancyHandler(occ, cfg.Analytics.LiveInterval)
	liveHandler.IntervalFn = func() time.Duration {
		return liveCfg.Load().Analytics.LiveInterval
	}

	handler := api.Router(
		analyticsHandler,
		liveHandler,
		api.NewHealthHandler(dbPinger{db: db}, rdsPing, events),
	)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket feed holds connections open
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("API server listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped gracefully")
}
