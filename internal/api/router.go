package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/punchclock/internal/api/handlers"
	"github.com/your-org/punchclock/internal/api/ws"
	"github.com/your-org/punchclock/internal/auth"
	"github.com/your-org/punchclock/internal/kiosk"
	"github.com/your-org/punchclock/internal/vision"
)

type RouterConfig struct {
	APIKey  string
	Station *kiosk.Station
	Hub     *ws.Hub
	// Extractor turns uploaded images into vectors. Nil means only JSON
	// vectors are accepted.
	Extractor vision.Extractor
	// Archive keeps uploaded images. Optional.
	Archive handlers.Archiver
	// Reports serves the worker's daily reports. Optional.
	Reports handlers.ReportStore
	// Limiter throttles the punch endpoints. Optional.
	Limiter *RateLimiter
	Checks  map[string]handlers.Check
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	// Identities
	idH := handlers.NewIdentityHandler(cfg.Station, cfg.Extractor, cfg.Archive)
	v1.POST("/identities", idH.Register)
	v1.GET("/identities", idH.List)

	// Punches
	attH := handlers.NewAttendanceHandler(cfg.Station, cfg.Extractor, cfg.Archive)
	punches := v1.Group("")
	if cfg.Limiter != nil {
		punches.Use(cfg.Limiter.Middleware())
	}
	punches.POST("/entries", attH.Entry)
	punches.POST("/entries/liveness", attH.Liveness)
	punches.POST("/exits", attH.Exit)
	v1.GET("/entries", attH.Pending)
	v1.DELETE("/entries", attH.Cancel)

	// Views
	v1.GET("/status/:name", attH.Status)
	v1.GET("/summary", attH.Summary)
	v1.GET("/events", attH.Events)

	if cfg.Reports != nil {
		repH := handlers.NewReportHandler(cfg.Reports)
		v1.GET("/reports", repH.List)
		v1.GET("/reports/:date", repH.Get)
	}

	return r
}
