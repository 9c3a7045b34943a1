// Package app wires configuration into the stores, extractors and engines
// shared by the copyscan binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/creatorhub/copyscan/internal/config"
	"github.com/creatorhub/copyscan/internal/enforcement"
	"github.com/creatorhub/copyscan/internal/ingest"
	"github.com/creatorhub/copyscan/internal/queue"
	"github.com/creatorhub/copyscan/internal/scan"
	"github.com/creatorhub/copyscan/internal/scheduler"
	"github.com/creatorhub/copyscan/internal/storage"
	"github.com/creatorhub/copyscan/internal/vision"
)

// Services holds the connections to external collaborators.
type Services struct {
	Config   *config.Config
	DB       *storage.PostgresStore
	Objects  *storage.MinIOStore
	Producer *queue.Producer
}

// Connect opens Postgres (applying migrations), MinIO and NATS.
func Connect(ctx context.Context, cfg *config.Config) (*Services, error) {
	db, err := storage.NewPostgresStore(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	objects, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to minio: %w", err)
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	return &Services{Config: cfg, DB: db, Objects: objects, Producer: producer}, nil
}

func (s *Services) Close() {
	s.Producer.Close()
	s.DB.Close()
}

// Backoff is the scheduler retry policy from config.
func (s *Services) Backoff() scheduler.Backoff {
	sc := s.Config.Scheduler
	return scheduler.Backoff{Base: sc.BaseBackoff, Max: sc.MaxBackoff, MaxAttempts: sc.MaxAttempts}
}

// NewWorkflow builds the enforcement workflow over the shared stores.
func (s *Services) NewWorkflow() *enforcement.Workflow {
	return enforcement.NewWorkflow(s.DB, s.Objects, s.Producer, s.Producer, enforcement.Sender{
		Owner:   s.Config.Notices.Owner,
		Contact: s.Config.Notices.Contact,
	})
}

// NewEngine builds the scan engine. Face detection is disabled when the
// models or the ONNX runtime are missing; OCR is disabled without an
// endpoint. The returned func releases model sessions.
func (s *Services) NewEngine() (*scan.Engine, func(), error) {
	cfg := s.Config
	hasher := vision.DifferenceHasher{}

	var text vision.TextRecognizer = vision.NoopTextRecognizer{}
	if cfg.Vision.OCREndpoint != "" {
		text = vision.NewHTTPTextRecognizer(cfg.Vision.OCREndpoint, cfg.Vision.OCRAPIKey, cfg.Vision.SignalTimeout)
	} else {
		slog.Warn("ocr endpoint not configured, text signal disabled")
	}

	faces, release := loadFaceDetector(cfg.Vision)

	extractor := vision.NewExtractor(hasher, text, faces,
		vision.NewBlockMotionEstimator(cfg.Vision.MotionGrid, cfg.Vision.MotionSearch),
		vision.ExtractorConfig{Workers: cfg.Matching.WorkerCount, SignalTimeout: cfg.Vision.SignalTimeout},
	)

	var resolver ingest.Resolver
	if cfg.Fetch.UseYTDLP {
		resolver = ingest.YTDLPResolver{}
	}
	fetcher := ingest.Router{
		Objects: ingest.ObjectFetcher{Store: s.Objects},
		Remote:  ingest.NewHTTPFetcher(cfg.Fetch.Timeout, cfg.Fetch.MaxBytes, cfg.Fetch.UserAgent, resolver),
	}

	deps := scan.Deps{
		Fetcher:   fetcher,
		Sampler:   ingest.NewSampler(ingest.FFmpegDecoder{Width: cfg.Matching.FrameWidth}, hasher, cfg.Matching.HorizonSeconds),
		Extractor: extractor,
		Matches:   s.DB,
		Events:    s.Producer,
	}
	if cfg.Matching.CacheOriginals {
		deps.Cache = s.DB
		deps.CacheProfile = signalProfile(cfg, text, faces)
	}
	if cfg.Matching.PersistThumbnails {
		deps.Thumbnails = s.Objects
	}

	engine, err := scan.NewEngine(deps, cfg.Matching.Policy(), cfg.Matching.Intervals)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("build scan engine: %w", err)
	}
	return engine, release, nil
}

// signalProfile names the settings that shape extracted signals. Cached
// originals produced under a different profile are not reused.
func signalProfile(cfg *config.Config, text vision.TextRecognizer, faces vision.FaceDetector) string {
	_, noText := text.(vision.NoopTextRecognizer)
	_, noFaces := faces.(vision.NoopFaceDetector)
	return fmt.Sprintf("w%d h%g grid%d search%d det%g floor%g ocr=%t faces=%t",
		cfg.Matching.FrameWidth, cfg.Matching.HorizonSeconds,
		cfg.Vision.MotionGrid, cfg.Vision.MotionSearch,
		cfg.Vision.DetectionThreshold, cfg.Vision.EmbeddingFloor,
		!noText, !noFaces)
}

func loadFaceDetector(cfg config.VisionConfig) (vision.FaceDetector, func()) {
	noop := func() {}
	if cfg.ModelsDir == "" {
		slog.Warn("models dir not configured, face signal disabled")
		return vision.NoopFaceDetector{}, noop
	}
	if _, err := os.Stat(filepath.Join(cfg.ModelsDir, vision.DetectorModel)); errors.Is(err, os.ErrNotExist) {
		slog.Warn("face models missing, face signal disabled", "dir", cfg.ModelsDir)
		return vision.NoopFaceDetector{}, noop
	}

	destroy, err := vision.InitRuntime(cfg.RuntimeLib)
	if err != nil {
		slog.Warn("onnx runtime unavailable, face signal disabled", "lib", cfg.RuntimeLib, "error", err)
		return vision.NoopFaceDetector{}, noop
	}
	det, err := vision.NewONNXFaceDetector(cfg.ModelsDir, cfg.DetectionThreshold, cfg.EmbeddingFloor)
	if err != nil {
		destroy()
		slog.Warn("load face models, face signal disabled", "error", err)
		return vision.NoopFaceDetector{}, noop
	}
	return det, func() {
		det.Close()
		destroy()
	}
}
