// Package vision extracts per-frame signals: perceptual hash, on-screen text,
// faces and motion.
package vision

import (
	"context"
	"image"

	"github.com/creatorhub/copyscan/internal/models"
)

// Hasher computes a perceptual hash of a frame.
type Hasher interface {
	Hash(img image.Image) (string, error)
}

// TextRecognizer returns the normalized tokens visible in a frame.
type TextRecognizer interface {
	Recognize(ctx context.Context, img image.Image) ([]string, error)
}

// FaceDetector returns the faces in a frame. Embeddings are optional per face.
type FaceDetector interface {
	DetectFaces(ctx context.Context, img image.Image) ([]models.FaceDetection, error)
}

// MotionEstimator estimates movement between two consecutive sampled frames.
type MotionEstimator interface {
	Estimate(prev, cur image.Image) (models.MotionVector, error)
}
