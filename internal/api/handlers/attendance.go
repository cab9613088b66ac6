package handlers

import (
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/punchclock/internal/attendance"
	"github.com/your-org/punchclock/internal/kiosk"
	"github.com/your-org/punchclock/internal/models"
	"github.com/your-org/punchclock/internal/vision"
	"github.com/your-org/punchclock/pkg/dto"
)

type AttendanceHandler struct {
	station   *kiosk.Station
	extractor vision.Extractor
	archive   Archiver
}

// NewAttendanceHandler wires the punch endpoints. extractor and archive may be nil.
func NewAttendanceHandler(station *kiosk.Station, extractor vision.Extractor, archive Archiver) *AttendanceHandler {
	return &AttendanceHandler{station: station, extractor: extractor, archive: archive}
}

// Entry starts an entry attempt. A recognized face answers pending until
// the blink check finishes through Liveness.
func (h *AttendanceHandler) Entry(c *gin.Context) {
	h.punch(c, models.EventEntry)
}

// Exit punches out immediately on a match.
func (h *AttendanceHandler) Exit(c *gin.Context) {
	h.punch(c, models.EventExit)
}

func (h *AttendanceHandler) punch(c *gin.Context, kind models.EventKind) {
	vec, img, err := h.vectorFromRequest(c)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	var out kiosk.Outcome
	if kind == models.EventEntry {
		out, err = h.station.RequestEntry(c.Request.Context(), vec)
	} else {
		out, err = h.station.RequestExit(c.Request.Context(), vec)
	}
	if err != nil {
		slog.Error("punch failed", "kind", kind, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := punchResponse(out)
	if img != nil && h.archive != nil && (out.Accepted || out.Pending) {
		key, err := h.archive.ArchiveCapture(c.Request.Context(), string(kind), time.Now(), img.data, img.contentType)
		if err != nil {
			slog.Warn("archive capture failed", "kind", kind, "error", err)
		} else {
			resp.CaptureKey = key
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AttendanceHandler) vectorFromRequest(c *gin.Context) ([]float32, *upload, error) {
	if !isMultipart(c.Request) {
		var req dto.PunchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, nil, badRequest("%v", err)
		}
		return req.Vector, nil, nil
	}

	fh, err := c.FormFile("image")
	if err != nil {
		return nil, nil, badRequest("image file required")
	}
	region, err := parseRegion(c.PostForm("region"))
	if err != nil {
		return nil, nil, err
	}
	u, err := readUpload(fh)
	if err != nil {
		return nil, nil, err
	}
	vec, err := extractVector(h.extractor, u, region)
	if err != nil {
		return nil, nil, err
	}
	return vec, &u, nil
}

// Liveness feeds one eye-visibility observation to the pending entry.
func (h *AttendanceHandler) Liveness(c *gin.Context) {
	var req dto.LivenessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := h.station.ObserveEyes(c.Request.Context(), *req.EyesVisible)
	if err != nil {
		slog.Error("liveness step failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, punchResponse(out))
}

func (h *AttendanceHandler) Pending(c *gin.Context) {
	p, ok := h.station.Pending()
	if !ok {
		c.JSON(http.StatusOK, dto.PendingResponse{})
		return
	}
	id := p.IdentityID
	c.JSON(http.StatusOK, dto.PendingResponse{
		Pending:    true,
		Name:       p.Name,
		IdentityID: &id,
		Confidence: p.Confidence,
		Since:      p.Since.Format(time.RFC3339),
		State:      p.State.String(),
	})
}

func (h *AttendanceHandler) Cancel(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cancelled": h.station.CancelEntry()})
}

func (h *AttendanceHandler) Status(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name required"})
		return
	}
	st := h.station.Status(name)
	c.JSON(http.StatusOK, dto.StatusResponse{Name: name, Status: string(st), Label: st.Label()})
}

func (h *AttendanceHandler) Summary(c *gin.Context) {
	c.JSON(http.StatusOK, dto.FromSummary(h.station.Today(), h.station.Summary(), h.station.Location()))
}

// Events lists raw ledger events for ?date=YYYY-MM-DD, today by default.
func (h *AttendanceHandler) Events(c *gin.Context) {
	date := c.Query("date")
	if date != "" {
		if _, err := time.Parse(attendance.DateLayout, date); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
	} else {
		date = h.station.Today()
	}

	events := h.station.Events(date)
	resp := dto.EventListResponse{Date: date, Events: make([]dto.EventResponse, 0, len(events))}
	for _, ev := range events {
		resp.Events = append(resp.Events, dto.FromEvent(ev))
	}
	resp.Total = len(resp.Events)
	c.JSON(http.StatusOK, resp)
}

func punchResponse(out kiosk.Outcome) dto.PunchResponse {
	resp := dto.PunchResponse{
		Accepted:   out.Accepted,
		Pending:    out.Pending,
		Reason:     string(out.Reason),
		Message:    out.Message,
		Name:       out.Name,
		Confidence: out.Confidence,
		NoMatch:    string(out.NoMatch),
	}
	if out.Name != "" {
		id := out.IdentityID
		resp.IdentityID = &id
	}
	if out.Liveness == nil && (out.Name != "" || out.NoMatch != "") && !math.IsInf(out.Distance, 0) {
		d := out.Distance
		resp.Distance = &d
	}
	if out.Liveness != nil {
		resp.Liveness = &dto.LivenessResponse{
			Status:    string(out.Liveness.Status),
			ElapsedMS: out.Liveness.Elapsed.Milliseconds(),
			Message:   out.Liveness.Message,
		}
	}
	if out.Event != nil {
		ev := dto.FromEvent(*out.Event)
		resp.Event = &ev
	}
	return resp
}
