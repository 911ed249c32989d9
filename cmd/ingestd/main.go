package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/technosupport/ts-occupancy/internal/config"
	"github.com/technosupport/ts-occupancy/internal/data"
	"github.com/technosupport/ts-occupancy/internal/ingest"
)

func main() {
	configPath := flag.String("config", "config/default.yaml", "Path to config file")
	healthAddr := flag.String("health-addr", ":9090", "Health/metrics listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config load error: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("DB ping error: %v", err)
	}

	cameras := data.CameraModel{DB: db}
	events := data.EventModel{DB: db}

	// Optional downstream fan-out.
	var fanout ingest.Publisher
	if cfg.NATS.Enabled {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			log.Fatalf("NATS connect error: %v", err)
		}
		defer nc.Close()
		fanout = ingest.NewNATSPublisher(nc, cfg.NATS.Subject, 2)
	}

	resolver := ingest.NewCameraResolver(cameras, cfg.Ingest.ResolverSize, cfg.Ingest.ResolverTTL)
	worker := ingest.NewWorker(ingest.WorkerConfig{
		QueueSize:    cfg.Ingest.QueueSize,
		Writers:      cfg.Ingest.Writers,
		WriteRetries: cfg.Ingest.WriteRetries,
		RetryBackoff: cfg.Ingest.RetryBackoff,
		WriteTimeout: cfg.Ingest.WriteTimeout,
	}, resolver, cameras, events, fanout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	client := worker.BuildBusClient(ingest.BusConfig{
		BrokerURL: cfg.MQTT.BrokerURL,
		ClientID:  cfg.MQTT.ClientID,
		Topic:     cfg.MQTT.Topic,
		QoS:       1,
		Username:  cfg.MQTT.Username,
		Password:  cfg.MQTT.Password,
	})
	if err := ingest.ConnectWithBackoff(ctx, client, time.Second, 30*time.Second); err != nil {
		log.Fatalf("Bus connect error: %v", err)
	}

	// Health/metrics sidecar.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := worker.Status()
		w.Header().Set("Content-Type", "application/json")
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(status)
	})
	healthSrv := &http.Server{Addr: *healthAddr, Handler: mux}
	go func() {
		log.Printf("Ingest health listening on %s", *healthAddr)
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Health server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	// Stop intake first so in-flight messages drain before the process
	// exits; unacked messages redeliver on the next start.
	client.Disconnect(250)
	worker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	healthSrv.Shutdown(shutdownCtx)
	log.Println("Ingest stopped gracefully")
}
