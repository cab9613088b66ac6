package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/punchclock/internal/config"
	"github.com/your-org/punchclock/internal/models"
	"github.com/your-org/punchclock/internal/observability"
	"github.com/your-org/punchclock/internal/queue"
	"github.com/your-org/punchclock/internal/report"
	"github.com/your-org/punchclock/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	if cfg.NATS.URL == "" || cfg.MinIO.Endpoint == "" {
		slog.Error("report worker needs both nats.url and minio.endpoint")
		os.Exit(1)
	}

	slog.Info("starting punchclock report worker", "backend", cfg.Storage.Backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loc, err := cfg.Attendance.Location()
	if err != nil {
		slog.Error("resolve timezone", "error", err)
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

	projector := report.NewProjector(minioStore, loc)

	// Seed from the ledger so reports include events from before this run.
	store, closeStore, err := storage.Open(ctx, cfg)
	if err != nil {
		slog.Error("open storage", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	history, err := store.LoadEvents(ctx)
	closeStore()
	if err != nil {
		slog.Error("load attendance history", "error", err)
		os.Exit(1)
	}
	projector.Seed(history)
	slog.Info("report history loaded", "events", len(history))

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeEvents(ctx, "report-workers", func(ctx context.Context, msg jetstream.Msg) error {
		var ev models.AttendanceEvent
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			slog.Error("unmarshal attendance event", "error", err)
			return nil // Don't retry on unmarshal errors
		}
		return projector.Apply(ctx, ev)
	})
	if err != nil {
		slog.Error("start attendance consumer", "error", err)
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
		slog.Info("worker metrics listening", "addr", ":8082")
		if err := http.ListenAndServe(":8082", mux); err != nil {
			slog.Error("metrics server error", "error", err)
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
