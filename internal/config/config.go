package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Storage backends.
const (
	StoreSQLite    = "sqlite"
	StorePathstore = "pathstore"
)

type Config struct {
	Port string

	// Auth
	ProtosegAPIKey string

	// Segmentation
	TemplatePath string // empty selects the embedded default template
	BoundaryRule string // "name" or "strict"

	// Persistence
	StoreBackend    string
	SQLitePath      string
	PathstoreURL    string
	PathstoreAPIKey string

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL time.Duration

	// PDF
	PDFFallbackPdftotext bool
	CacheDir             string // parsed page JSON, {base}_output.json

	// Registry downloads
	DownloadRate float64 // requests per second, 0 = unlimited
	DownloadDir  string
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		ProtosegAPIKey: os.Getenv("PROTOSEG_API_KEY"),

		TemplatePath: os.Getenv("TEMPLATE_PATH"),
		BoundaryRule: envOr("BOUNDARY_RULE", "name"),

		StoreBackend:    envOr("STORE_BACKEND", StoreSQLite),
		SQLitePath:      envOr("SQLITE_PATH", "protoseg.db"),
		PathstoreURL:    envOr("PATHSTORE_URL", "http://localhost:8080"),
		PathstoreAPIKey: os.Getenv("PATHSTORE_API_KEY"),

		WorkerCount:  envInt("WORKER_COUNT", 4),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
		CacheDir:             os.Getenv("CACHE_DIR"),

		DownloadRate: envFloat("DOWNLOAD_RATE", 1),
		DownloadDir:  envOr("DOWNLOAD_DIR", os.TempDir()),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.DownloadRate < 0 {
		cfg.DownloadRate = 0
	}

	return cfg
}

// Validate checks the settings the HTTP server needs.
func (c Config) Validate() error {
	if c.ProtosegAPIKey == "" {
		return fmt.Errorf("PROTOSEG_API_KEY is required")
	}
	return c.ValidateEngine()
}

// ValidateEngine checks the settings shared by the server and the batch CLI.
func (c Config) ValidateEngine() error {
	switch c.BoundaryRule {
	case "name", "strict":
	default:
		return fmt.Errorf("BOUNDARY_RULE must be name or strict, got %q", c.BoundaryRule)
	}
	switch c.StoreBackend {
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
		}
	case StorePathstore:
		if c.PathstoreAPIKey == "" {
			return fmt.Errorf("PATHSTORE_API_KEY is required for the pathstore backend")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %s or %s, got %q", StoreSQLite, StorePathstore, c.StoreBackend)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
