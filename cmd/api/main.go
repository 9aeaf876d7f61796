package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/your-org/facelog/internal/api"
	"github.com/your-org/facelog/internal/api/ws"
	"github.com/your-org/facelog/internal/config"
	"github.com/your-org/facelog/internal/observability"
	"github.com/your-org/facelog/internal/pipeline"
	"github.com/your-org/facelog/internal/query"
	"github.com/your-org/facelog/internal/queue"
	"github.com/your-org/facelog/internal/registry"
	"github.com/your-org/facelog/internal/storage"
	"github.com/your-org/facelog/internal/vector"
)

const queueWorkers = 4

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facelog API service", "port", cfg.Server.Port, "threshold", cfg.Matching.Threshold)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		slog.Error("migrate database", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Identity registry
	reg := registry.New(db, minioStore)
	if err := reg.Load(ctx); err != nil {
		slog.Error("load identity registry", "error", err)
		os.Exit(1)
	}
	slog.Info("identity registry loaded", "identities", reg.Len())

	// WebSocket hub
	hub := ws.NewHub(cfg.Live.ClientBuffer)
	defer hub.Close()

	routerCfg := api.RouterConfig{
		APIKey: cfg.Server.APIKey,
		Store:  db,
		Images: minioStore,
		Hub:    hub,
	}

	var publisher pipeline.Publisher = hub
	var nc *nats.Conn
	var relay *queue.Relay
	var producer *queue.Producer

	if cfg.NATS.URL != "" {
		nc, err = queue.Connect(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer nc.Drain()

		producer, err = queue.NewProducer(nc)
		if err != nil {
			slog.Error("create producer", "error", err)
			os.Exit(1)
		}
		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}

		relay = queue.NewRelay(nc, hub)
		if err := relay.Start(); err != nil {
			slog.Error("start live relay", "error", err)
			os.Exit(1)
		}
		defer relay.Close()
		publisher = relay

		routerCfg.Queue = producer
		routerCfg.NATS = producer
	} else {
		slog.Info("nats not configured, queued ingestion and live relay disabled")
	}

	pipe := pipeline.New(reg, db, publisher, vector.TextCodec{}, cfg.Matching.Threshold)
	routerCfg.Pipeline = pipe
	routerCfg.Search = query.New(db, cfg.Query.TimelineTTL)

	if producer != nil {
		consumer, err := queue.NewConsumer(nc)
		if err != nil {
			slog.Error("create consumer", "error", err)
			os.Exit(1)
		}
		if err := consumer.ConsumeBatches(ctx, queue.IngestConsumerName, queue.IngestHandler(pipe), queueWorkers); err != nil {
			slog.Warn("start batch consumer", "error", err)
		}
		go reportQueueDepth(ctx, producer)
	}

	// Setup router
	router := api.NewRouter(routerCfg)

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

// reportQueueDepth keeps the queued batches gauge current.
func reportQueueDepth(ctx context.Context, p *queue.Producer) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth, err := p.QueueDepth(ctx)
			if err != nil {
				slog.Debug("read queue depth", "error", err)
				continue
			}
			observability.QueuedBatches.Set(float64(depth))
		}
	}
}
