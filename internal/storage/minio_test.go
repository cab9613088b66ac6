package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"
)

func TestObjectKeys(t *testing.T) {
	id := uuid.MustParse("6f1c1c9e-3f5e-4a53-9d0c-0f7f6f4d3b21")
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	gt.Equal(t, FaceKey("Alice Smith", id, "image/jpeg"),
		"faces/Alice_Smith/6f1c1c9e-3f5e-4a53-9d0c-0f7f6f4d3b21.jpg")
	gt.Equal(t, FaceKey("../etc", id, "image/png"),
		"faces/etc/6f1c1c9e-3f5e-4a53-9d0c-0f7f6f4d3b21.png")
	gt.Equal(t, FaceKey("", id, "application/octet-stream"),
		"faces/unknown/6f1c1c9e-3f5e-4a53-9d0c-0f7f6f4d3b21.bin")
	gt.Equal(t, CaptureKey("exit", at, id, "image/jpeg"),
		"captures/2024-03-01/exit/6f1c1c9e-3f5e-4a53-9d0c-0f7f6f4d3b21.jpg")
}
