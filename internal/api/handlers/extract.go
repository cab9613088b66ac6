package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/your-org/punchclock/internal/observability"
	"github.com/your-org/punchclock/internal/vision"
)

const maxImageBytes = 10 << 20

// Archiver keeps uploaded images. It is optional.
type Archiver interface {
	ArchiveFace(ctx context.Context, identity string, data []byte, contentType string) (string, error)
	ArchiveCapture(ctx context.Context, kind string, at time.Time, data []byte, contentType string) (string, error)
}

var errNoExtractor = errors.New("no feature extractor configured")

// requestError carries the HTTP status a handler should answer with.
type requestError struct {
	status int
	err    error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, err: fmt.Errorf(format, args...)}
}

// statusOf maps an error to an HTTP status, defaulting to 500.
func statusOf(err error) int {
	var re *requestError
	if errors.As(err, &re) {
		return re.status
	}
	return http.StatusInternalServerError
}

type upload struct {
	data        []byte
	contentType string
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

func readUpload(fh *multipart.FileHeader) (upload, error) {
	if fh.Size > maxImageBytes {
		return upload{}, badRequest("image %s is larger than %d bytes", fh.Filename, maxImageBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return upload{}, badRequest("open image %s: %v", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxImageBytes+1))
	if err != nil {
		return upload{}, fmt.Errorf("read image %s: %w", fh.Filename, err)
	}
	ct := fh.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return upload{data: data, contentType: ct}, nil
}

// parseRegion accepts an empty string or a JSON box {"x":..,"y":..,"w":..,"h":..}.
func parseRegion(s string) (*vision.Box, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var box vision.Box
	if err := json.Unmarshal([]byte(s), &box); err != nil {
		return nil, badRequest("invalid region: %v", err)
	}
	if box.W <= 0 || box.H <= 0 {
		return nil, badRequest("region must have a positive size")
	}
	return &box, nil
}

// extractVector decodes an uploaded image, crops it to region and runs the
// extractor over the result.
func extractVector(ex vision.Extractor, u upload, region *vision.Box) ([]float32, error) {
	if ex == nil {
		return nil, &requestError{status: http.StatusServiceUnavailable, err: errNoExtractor}
	}

	img, err := vision.Decode(u.data)
	if err != nil {
		return nil, &requestError{status: http.StatusUnprocessableEntity, err: err}
	}
	if region != nil {
		if img, err = vision.Crop(img, *region); err != nil {
			return nil, &requestError{status: http.StatusUnprocessableEntity, err: err}
		}
	}

	start := time.Now()
	vec, err := ex.Extract(img)
	observability.ExtractDuration.WithLabelValues(ex.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &requestError{status: http.StatusUnprocessableEntity, err: fmt.Errorf("extract features: %w", err)}
	}
	return vec, nil
}
