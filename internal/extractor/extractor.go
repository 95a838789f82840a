// Package extractor turns raw image bytes into face detections with
// embeddings. Detection runs on an external model server; this package only
// speaks its wire protocol.
package extractor

import (
	"context"

	"github.com/mzurita/fototeca/internal/store"
)

// Extractor detects faces in an image and returns one embedding per face.
type Extractor interface {
	Detect(ctx context.Context, imageData []byte) ([]store.FaceDetection, error)
}
