// Command worker drains the DETECTIONS stream without serving HTTP. It
// shares the durable consumer with the API replicas, so any mix of them can
// run.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facelog/internal/config"
	"github.com/your-org/facelog/internal/observability"
	"github.com/your-org/facelog/internal/pipeline"
	"github.com/your-org/facelog/internal/queue"
	"github.com/your-org/facelog/internal/registry"
	"github.com/your-org/facelog/internal/storage"
	"github.com/your-org/facelog/internal/vector"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	workers := flag.Int("workers", runtime.NumCPU(), "concurrent batch handlers")
	metricsAddr := flag.String("metrics-addr", ":8082", "listen address of /metrics and /healthz")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	if cfg.NATS.URL == "" {
		slog.Error("nats url is required for the ingest worker")
		os.Exit(1)
	}

	slog.Info("starting facelog ingest worker",
		"workers", *workers,
		"cpu_cores", runtime.NumCPU(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}

	reg := registry.New(db, minioStore)
	if err := reg.Load(ctx); err != nil {
		slog.Error("load identity registry", "error", err)
		os.Exit(1)
	}
	slog.Info("identity registry loaded", "identities", reg.Len())

	// Connect to NATS
	nc, err := queue.Connect(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer nc.Drain()

	producer, err := queue.NewProducer(nc)
	if err != nil {
		slog.Error("create producer", "error", err)
		os.Exit(1)
	}
	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// Live payloads go out over the relay; the API replicas fan them out.
	relay := queue.NewRelay(nc, nil)
	pipe := pipeline.New(reg, db, relay, vector.TextCodec{}, cfg.Matching.Threshold)

	consumer, err := queue.NewConsumer(nc)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	if err := consumer.ConsumeBatches(ctx, queue.IngestConsumerName, queue.IngestHandler(pipe), *workers); err != nil {
		slog.Error("start batch consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("worker metrics listening", "addr", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.QueuedBatches.Set(float64(depth))
				}
			}
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("worker stopped")
}
