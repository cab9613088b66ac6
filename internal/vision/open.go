package vision

import (
	"fmt"

	"github.com/your-org/punchclock/internal/config"
)

// Open builds the configured extractor. The returned func releases any
// native resources.
func Open(cfg config.VisionConfig) (Extractor, func(), error) {
	switch cfg.Extractor {
	case config.ExtractorHistogram:
		return NewHistogramExtractor(), func() {}, nil
	case config.ExtractorArcFace:
		release, err := InitRuntime()
		if err != nil {
			return nil, nil, err
		}
		ex, err := NewArcFaceExtractor(cfg.ModelsDir)
		if err != nil {
			release()
			return nil, nil, err
		}
		return ex, func() {
			ex.Close()
			release()
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown extractor %q", cfg.Extractor)
	}
}
