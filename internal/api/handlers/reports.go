package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/punchclock/internal/attendance"
	"github.com/your-org/punchclock/internal/report"
	"github.com/your-org/punchclock/internal/storage"
	"github.com/your-org/punchclock/pkg/dto"
)

// ReportStore reads the daily reports kept by the report worker.
type ReportStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

type ReportHandler struct {
	store ReportStore
}

func NewReportHandler(store ReportStore) *ReportHandler {
	return &ReportHandler{store: store}
}

// List returns the dates that have a stored report.
func (h *ReportHandler) List(c *gin.Context) {
	keys, err := h.store.ListObjects(c.Request.Context(), report.Prefix)
	if err != nil {
		slog.Error("list reports", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reports"})
		return
	}
	dates := report.Dates(keys)
	c.JSON(http.StatusOK, dto.ReportListResponse{Dates: dates, Total: len(dates)})
}

// Get serves the stored report for :date as written by the worker.
func (h *ReportHandler) Get(c *gin.Context) {
	date := c.Param("date")
	if _, err := time.Parse(attendance.DateLayout, date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	data, err := h.store.GetObject(c.Request.Context(), report.Key(date))
	if errors.Is(err, storage.ErrObjectNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no report for " + date})
		return
	}
	if err != nil {
		slog.Error("get report", "date", date, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read report"})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}
