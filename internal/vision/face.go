package vision

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/creatorhub/copyscan/internal/models"
	"github.com/creatorhub/copyscan/internal/observability"
)

// Model file names expected under the models directory.
const (
	DetectorModel = "det_10g.onnx"
	EmbedderModel = "w600k_r50.onnx"
)

// ONNXFaceDetector detects faces with RetinaFace and embeds the confident ones
// with ArcFace. Calls are serialized since the sessions share tensors.
type ONNXFaceDetector struct {
	mu       sync.Mutex
	detector *retinaFace
	embedder *arcFace
	floor    float32
}

// NewONNXFaceDetector loads both models from modelsDir. Faces scoring below
// embeddingFloor are reported without an embedding.
func NewONNXFaceDetector(modelsDir string, threshold, embeddingFloor float64) (*ONNXFaceDetector, error) {
	detPath := filepath.Join(modelsDir, DetectorModel)
	slog.Info("loading detection model", "path", detPath)
	det, err := newRetinaFace(detPath, float32(threshold), nil)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	embPath := filepath.Join(modelsDir, EmbedderModel)
	slog.Info("loading embedding model", "path", embPath)
	emb, err := newArcFace(embPath, nil)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &ONNXFaceDetector{detector: det, embedder: emb, floor: float32(embeddingFloor)}, nil
}

func (f *ONNXFaceDetector) DetectFaces(ctx context.Context, img image.Image) ([]models.FaceDetection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b := img.Bounds()
	start := time.Now()
	boxes, err := f.detector.detect(toCHW(img, retinaInputSize, retinaInputSize, 127.5, 128), b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	faces := make([]models.FaceDetection, 0, len(boxes))
	for _, bx := range boxes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		face := models.FaceDetection{Confidence: bx.score, BBox: bx.bbox}
		if bx.score >= f.floor {
			if crop := cropPadded(img, bx.bbox); crop != nil {
				start = time.Now()
				emb, err := f.embedder.embed(toCHW(crop, arcFaceInputSize, arcFaceInputSize, 127.5, 127.5))
				if err != nil {
					slog.Warn("embed face", "error", err)
				} else {
					face.Embedding = emb
				}
				observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
			}
		}
		faces = append(faces, face)
	}
	return faces, nil
}

func (f *ONNXFaceDetector) Close() {
	f.detector.Close()
	f.embedder.Close()
}

// NoopFaceDetector reports no faces. Used when the ONNX models are absent.
type NoopFaceDetector struct{}

func (NoopFaceDetector) DetectFaces(context.Context, image.Image) ([]models.FaceDetection, error) {
	return nil, nil
}

// InitRuntime points onnxruntime at libPath and initializes its environment.
// The returned func tears the environment down.
func InitRuntime(libPath string) (func(), error) {
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("init onnx runtime: %w", err)
	}
	return func() { _ = ort.DestroyEnvironment() }, nil
}
