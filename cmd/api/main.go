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
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/punchclock/internal/api"
	"github.com/your-org/punchclock/internal/api/handlers"
	"github.com/your-org/punchclock/internal/api/ws"
	"github.com/your-org/punchclock/internal/attendance"
	"github.com/your-org/punchclock/internal/config"
	"github.com/your-org/punchclock/internal/kiosk"
	"github.com/your-org/punchclock/internal/liveness"
	"github.com/your-org/punchclock/internal/matcher"
	"github.com/your-org/punchclock/internal/models"
	"github.com/your-org/punchclock/internal/observability"
	"github.com/your-org/punchclock/internal/queue"
	"github.com/your-org/punchclock/internal/registry"
	"github.com/your-org/punchclock/internal/storage"
	"github.com/your-org/punchclock/internal/vision"
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

	slog.Info("starting punchclock API service",
		"port", cfg.Server.Port, "backend", cfg.Storage.Backend, "extractor", cfg.Vision.Extractor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := map[string]handlers.Check{}

	// Storage
	store, closeStore, err := storage.Open(ctx, cfg)
	if err != nil {
		slog.Error("open storage", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	defer closeStore()
	checks[cfg.Storage.Backend] = store.Ping

	loc, err := cfg.Attendance.Location()
	if err != nil {
		slog.Error("resolve timezone", "error", err)
		os.Exit(1)
	}

	reg, err := registry.New(ctx, store)
	if err != nil {
		slog.Error("load registry", "error", err)
		os.Exit(1)
	}
	ledger, err := attendance.NewLedger(ctx, store, attendance.Options{
		DuplicateWindow: cfg.Attendance.DuplicateWindow,
		Location:        loc,
	})
	if err != nil {
		slog.Error("load ledger", "error", err)
		os.Exit(1)
	}

	// Image archive and stored reports (optional)
	var (
		archive handlers.Archiver
		reports handlers.ReportStore
	)
	if cfg.MinIO.Endpoint != "" {
		minioStore, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		archive = minioStore
		reports = minioStore
		checks["minio"] = minioStore.Ping
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	// Events go through NATS when configured, straight to the hub otherwise.
	var publisher kiosk.Publisher = hub
	if cfg.NATS.URL != "" {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}
		publisher = producer
		checks["nats"] = func(context.Context) error { return producer.Ping() }

		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create attendance consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		if err := consumer.ConsumeAttendance(ctx, "api-ws", broadcastTo(hub)); err != nil {
			slog.Warn("start attendance consumer", "error", err)
		}
	}

	// Feature extractor for image uploads
	var extractor vision.Extractor
	ex, closeExtractor, err := vision.Open(cfg.Vision)
	if err != nil {
		slog.Warn("feature extractor unavailable, only vector requests will be served", "error", err)
	} else {
		extractor = ex
		defer closeExtractor()
		slog.Info("feature extractor ready", "name", ex.Name(), "dim", ex.Dim())
	}

	station := kiosk.New(kiosk.Deps{
		Registry: reg,
		Matcher:  matcher.New(cfg.Matching.Threshold),
		Liveness: liveness.Config{
			Timeout:   cfg.Liveness.Timeout,
			MinClosed: cfg.Liveness.MinClosed,
		},
		Ledger:    ledger,
		Publisher: publisher,
	})

	limiter := api.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	go limiter.Run(ctx)

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey:    cfg.Server.APIKey,
		Station:   station,
		Hub:       hub,
		Extractor: extractor,
		Archive:   archive,
		Reports:   reports,
		Limiter:   limiter,
		Checks:    checks,
	})

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

// broadcastTo relays attendance and registration messages to WebSocket clients.
func broadcastTo(hub *ws.Hub) queue.MessageHandler {
	return func(ctx context.Context, msg jetstream.Msg) error {
		switch {
		case strings.HasPrefix(msg.Subject(), queue.AttendanceSubjectBase+"."):
			var ev models.AttendanceEvent
			if err := json.Unmarshal(msg.Data(), &ev); err != nil {
				return fmt.Errorf("decode attendance event: %w", err)
			}
			return hub.PublishAttendance(ctx, ev)
		case strings.HasPrefix(msg.Subject(), queue.IdentitiesSubjectBase+"."):
			var id models.Identity
			if err := json.Unmarshal(msg.Data(), &id); err != nil {
				return fmt.Errorf("decode identity: %w", err)
			}
			return hub.PublishRegistration(ctx, id)
		default:
			slog.Debug("ignoring message", "subject", msg.Subject())
			return nil
		}
	}
}
