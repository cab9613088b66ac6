package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/punchclock/internal/kiosk"
	"github.com/your-org/punchclock/internal/registry"
	"github.com/your-org/punchclock/internal/vision"
	"github.com/your-org/punchclock/pkg/dto"
)

type IdentityHandler struct {
	station   *kiosk.Station
	extractor vision.Extractor
	archive   Archiver
}

// NewIdentityHandler wires registration. extractor and archive may be nil.
func NewIdentityHandler(station *kiosk.Station, extractor vision.Extractor, archive Archiver) *IdentityHandler {
	return &IdentityHandler{station: station, extractor: extractor, archive: archive}
}

// Register enrolls a person from JSON vectors or from one or more uploaded
// images (multipart fields "name", "image" and optional "region").
func (h *IdentityHandler) Register(c *gin.Context) {
	var (
		name    string
		vectors [][]float32
		uploads []upload
	)

	if isMultipart(c.Request) {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
			return
		}
		name = c.PostForm("name")
		files := form.File["image"]
		if len(files) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
			return
		}
		region, err := parseRegion(c.PostForm("region"))
		if err != nil {
			c.JSON(statusOf(err), gin.H{"error": err.Error()})
			return
		}
		for _, fh := range files {
			u, err := readUpload(fh)
			if err != nil {
				c.JSON(statusOf(err), gin.H{"error": err.Error()})
				return
			}
			vec, err := extractVector(h.extractor, u, region)
			if err != nil {
				c.JSON(statusOf(err), gin.H{"error": err.Error()})
				return
			}
			vectors = append(vectors, vec)
			uploads = append(uploads, u)
		}
	} else {
		var req dto.RegisterIdentityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		name, vectors = req.Name, req.Vectors
	}

	id, err := h.station.Register(c.Request.Context(), name, vectors)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, registry.ErrEmptyName),
			errors.Is(err, registry.ErrNoVectors),
			errors.Is(err, registry.ErrRaggedVectors),
			errors.Is(err, registry.ErrDimension):
			status = http.StatusBadRequest
		case errors.Is(err, registry.ErrDamaged):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	resp := dto.FromIdentity(id)
	resp.Samples = len(vectors)
	if h.archive != nil {
		for _, u := range uploads {
			key, err := h.archive.ArchiveFace(c.Request.Context(), id.Name, u.data, u.contentType)
			if err != nil {
				slog.Warn("archive registration image failed", "name", id.Name, "error", err)
				continue
			}
			resp.ImageKeys = append(resp.ImageKeys, key)
		}
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *IdentityHandler) List(c *gin.Context) {
	ids := h.station.Identities()
	resp := make([]dto.IdentityResponse, 0, len(ids))
	for _, id := range ids {
		resp = append(resp, dto.FromIdentity(id))
	}
	c.JSON(http.StatusOK, dto.IdentityListResponse{Identities: resp, Total: len(resp)})
}
