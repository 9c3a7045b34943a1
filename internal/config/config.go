package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/creatorhub/copyscan/internal/matching"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	NATS      NATSConfig      `yaml:"nats"`
	MinIO     MinIOConfig     `yaml:"minio"`
	Matching  MatchingConfig  `yaml:"matching"`
	Vision    VisionConfig    `yaml:"vision"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Notices   NoticeConfig    `yaml:"notices"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
	APIKey      string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string        `yaml:"endpoint"`
	AccessKey string        `yaml:"access_key"`
	SecretKey string        `yaml:"secret_key"`
	Bucket    string        `yaml:"bucket"`
	UseSSL    bool          `yaml:"use_ssl"`
	URLExpiry time.Duration `yaml:"url_expiry"` // lifetime of presigned document URLs
}

// MatchingConfig is the tunable matching policy plus sampling parameters.
type MatchingConfig struct {
	Weights           matching.Weights `yaml:"weights"`
	ToleranceSeconds  float64          `yaml:"tolerance_seconds"`
	MinAlignedPairs   int              `yaml:"min_aligned_pairs"`
	Intervals         []float64        `yaml:"intervals"`
	HorizonSeconds    float64          `yaml:"horizon_seconds"`
	FrameWidth        int              `yaml:"frame_width"`
	WorkerCount       int              `yaml:"worker_count"`
	PersistThumbnails bool             `yaml:"persist_thumbnails"`
	CacheOriginals    bool             `yaml:"cache_originals"`
}

// Policy returns the matching policy described by this section.
func (m MatchingConfig) Policy() matching.Policy {
	return matching.Policy{
		Weights:         m.Weights,
		Tolerance:       m.ToleranceSeconds,
		MinAlignedPairs: m.MinAlignedPairs,
	}
}

type VisionConfig struct {
	ModelsDir          string        `yaml:"models_dir"`
	RuntimeLib         string        `yaml:"runtime_lib"` // onnxruntime shared library
	DetectionThreshold float64       `yaml:"detection_threshold"`
	EmbeddingFloor     float64       `yaml:"embedding_floor"`
	OCREndpoint        string        `yaml:"ocr_endpoint"`
	OCRAPIKey          string        `yaml:"ocr_api_key"`
	SignalTimeout      time.Duration `yaml:"signal_timeout"`
	MotionGrid         int           `yaml:"motion_grid"`
	MotionSearch       int           `yaml:"motion_search"`
}

type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	MaxBytes  int64         `yaml:"max_bytes"`
	UseYTDLP  bool          `yaml:"use_ytdlp"`
	UserAgent string        `yaml:"user_agent"`
}

type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxAttempts  int           `yaml:"max_attempts"`
	BaseBackoff  time.Duration `yaml:"base_backoff"`
	MaxBackoff   time.Duration `yaml:"max_backoff"`
	// StuckAfter is how long a job may stay processing before a starting
	// worker treats it as abandoned.
	StuckAfter   time.Duration `yaml:"stuck_after"`
	LockFile     string        `yaml:"lock_file"`
}

// NoticeConfig names the rights holder on takedown notices and emails.
type NoticeConfig struct {
	Owner   string `yaml:"owner"`
	Contact string `yaml:"contact"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
// An empty path skips the file and uses environment and defaults only.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Matching.Policy().Validate(); err != nil {
		return nil, fmt.Errorf("matching policy: %w", err)
	}
	for _, iv := range cfg.Matching.Intervals {
		if iv <= 0 {
			return nil, fmt.Errorf("matching intervals: %v is not positive", iv)
		}
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 8082
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "copyscan"
	}
	if cfg.MinIO.URLExpiry == 0 {
		cfg.MinIO.URLExpiry = 7 * 24 * time.Hour
	}
	if cfg.Matching.Weights == (matching.Weights{}) {
		cfg.Matching.Weights = matching.DefaultWeights()
	}
	if cfg.Matching.ToleranceSeconds == 0 {
		cfg.Matching.ToleranceSeconds = 2
	}
	if cfg.Matching.MinAlignedPairs == 0 {
		cfg.Matching.MinAlignedPairs = 3
	}
	if len(cfg.Matching.Intervals) == 0 {
		cfg.Matching.Intervals = []float64{1, 2, 5}
	}
	if cfg.Matching.HorizonSeconds == 0 {
		cfg.Matching.HorizonSeconds = 60
	}
	if cfg.Matching.FrameWidth == 0 {
		cfg.Matching.FrameWidth = 320
	}
	if cfg.Matching.WorkerCount == 0 {
		cfg.Matching.WorkerCount = 6
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.EmbeddingFloor == 0 {
		cfg.Vision.EmbeddingFloor = 0.6
	}
	if cfg.Vision.RuntimeLib == "" {
		cfg.Vision.RuntimeLib = defaultRuntimeLib()
	}
	if cfg.Vision.SignalTimeout == 0 {
		cfg.Vision.SignalTimeout = 10 * time.Second
	}
	if cfg.Vision.MotionGrid == 0 {
		cfg.Vision.MotionGrid = 64
	}
	if cfg.Vision.MotionSearch == 0 {
		cfg.Vision.MotionSearch = 8
	}
	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = 60 * time.Second
	}
	if cfg.Fetch.MaxBytes == 0 {
		cfg.Fetch.MaxBytes = 512 << 20
	}
	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = "copyscan/1.0"
	}
	if cfg.Scheduler.PollInterval == 0 {
		cfg.Scheduler.PollInterval = 2 * time.Second
	}
	if cfg.Scheduler.MaxAttempts == 0 {
		cfg.Scheduler.MaxAttempts = 5
	}
	if cfg.Scheduler.BaseBackoff == 0 {
		cfg.Scheduler.BaseBackoff = 30 * time.Second
	}
	if cfg.Scheduler.MaxBackoff == 0 {
		cfg.Scheduler.MaxBackoff = 30 * time.Minute
	}
	if cfg.Scheduler.StuckAfter == 0 {
		cfg.Scheduler.StuckAfter = 30 * time.Minute
	}
	if cfg.Scheduler.LockFile == "" {
		cfg.Scheduler.LockFile = "/tmp/copyscan-worker.lock"
	}
	if cfg.Notices.Owner == "" {
		cfg.Notices.Owner = "the copyright owner"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// defaultRuntimeLib returns the ONNX Runtime shared library name for this OS.
func defaultRuntimeLib() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COPYSCAN_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("COPYSCAN_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("COPYSCAN_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("COPYSCAN_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("COPYSCAN_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("COPYSCAN_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("COPYSCAN_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("COPYSCAN_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("COPYSCAN_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("COPYSCAN_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("COPYSCAN_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("COPYSCAN_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("COPYSCAN_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("COPYSCAN_ONNX_LIB"); v != "" {
		cfg.Vision.RuntimeLib = v
	}
	if v := os.Getenv("COPYSCAN_NOTICE_OWNER"); v != "" {
		cfg.Notices.Owner = v
	}
	if v := os.Getenv("COPYSCAN_NOTICE_CONTACT"); v != "" {
		cfg.Notices.Contact = v
	}
	if v := os.Getenv("COPYSCAN_OCR_ENDPOINT"); v != "" {
		cfg.Vision.OCREndpoint = v
	}
	if v := os.Getenv("COPYSCAN_OCR_API_KEY"); v != "" {
		cfg.Vision.OCRAPIKey = v
	}
	if v := os.Getenv("COPYSCAN_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Matching.WorkerCount = n
		}
	}
	if v := os.Getenv("COPYSCAN_INTERVALS"); v != "" {
		if intervals, err := parseIntervals(v); err == nil {
			cfg.Matching.Intervals = intervals
		}
	}
	if v := os.Getenv("COPYSCAN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// parseIntervals parses a comma separated list of seconds, e.g. "1,2,5".
func parseIntervals(v string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("parse interval %q: %w", part, err)
		}
		out = append(out, f)
	}
	return out, nil
}
