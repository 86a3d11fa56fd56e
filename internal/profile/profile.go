package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Driver names accepted by --driver.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Profile is configuration to start the memory engine.
type Profile struct {
	Mode     string
	Addr     string
	Port     int
	Data     string
	Driver   string
	DSN      string
	Version  string
	LogLevel string

	// Embedding provider configuration (OpenAI-compatible protocol)
	EmbeddingProvider          string
	EmbeddingModel             string
	EmbeddingAPIKey            string
	EmbeddingBaseURL           string
	EmbeddingDimensions        int
	EmbeddingRequestsPerSecond float64

	// Auto-ingest of conversation turns
	AutoIngest      bool
	IngestQueueSize int

	// Embedding worker
	WorkerPollInterval time.Duration
	WorkerBatchSize    int
	WorkerConcurrency  int
	WorkerMaxAttempts  int
	WorkerLeaseTimeout time.Duration
	WorkerEmbedTimeout time.Duration
	WorkerBackoffBase  time.Duration
	WorkerBackoffMax   time.Duration
	WorkerDisabled     bool

	// Semantic search
	SearchTimeout       time.Duration
	SearchLimit         int
	SimilarityThreshold float64
}

// Provider default configurations for embeddings.
// Used when MNEMO_EMBEDDING_BASE_URL is not explicitly set.
var embeddingProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openrouter": {
		BaseURL: "https://openrouter.ai/api/v1",
		Model:   "openai/text-embedding-3-small",
	},
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "text-embedding-3-small",
	},
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "BAAI/bge-m3",
	},
	"ollama": {
		BaseURL: "http://localhost:11434/v1",
		Model:   "nomic-embed-text",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsEmbeddingEnabled returns true if an embedding provider is usable.
func (p *Profile) IsEmbeddingEnabled() bool {
	return p.EmbeddingAPIKey != "" || p.EmbeddingProvider == "ollama"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvOrDefaultBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvOrDefaultDuration accepts Go durations ("2s") or plain seconds ("2").
func getEnvOrDefaultDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	slog.Warn("Invalid duration, using default", "key", key, "value", value, "default", defaultValue)
	return defaultValue
}

// FromEnv loads configuration from environment variables.
// Fields already set (e.g. from flags) are kept for the ambient settings.
func (p *Profile) FromEnv() {
	if p.LogLevel == "" {
		p.LogLevel = getEnvOrDefault("MNEMO_LOG_LEVEL", "info")
	}

	// Embedding configuration
	p.EmbeddingProvider = getEnvOrDefault("MNEMO_EMBEDDING_PROVIDER", "openrouter")
	p.EmbeddingAPIKey = getEnvOrDefault("MNEMO_EMBEDDING_API_KEY", "")
	p.EmbeddingBaseURL = getEnvOrDefault("MNEMO_EMBEDDING_BASE_URL", "")
	p.EmbeddingModel = getEnvOrDefault("MNEMO_EMBEDDING_MODEL", "")
	p.EmbeddingDimensions = getEnvOrDefaultInt("MNEMO_EMBEDDING_DIMENSIONS", 1536)
	p.EmbeddingRequestsPerSecond = getEnvOrDefaultFloat("MNEMO_EMBEDDING_RPS", 5)

	if _, ok := embeddingProviderDefaults[p.EmbeddingProvider]; !ok {
		slog.Warn("Unknown embedding provider, using default: openrouter", "provider", p.EmbeddingProvider)
		p.EmbeddingProvider = "openrouter"
	}
	if defaults, ok := embeddingProviderDefaults[p.EmbeddingProvider]; ok {
		if p.EmbeddingBaseURL == "" {
			p.EmbeddingBaseURL = defaults.BaseURL
		}
		if p.EmbeddingModel == "" {
			p.EmbeddingModel = defaults.Model
		}
	}

	// Auto-ingest
	p.AutoIngest = getEnvOrDefaultBool("MNEMO_AUTO_INGEST", true)
	p.IngestQueueSize = getEnvOrDefaultInt("MNEMO_INGEST_QUEUE_SIZE", 256)

	// Worker
	p.WorkerPollInterval = getEnvOrDefaultDuration("MNEMO_WORKER_POLL_INTERVAL", 2*time.Second)
	p.WorkerBatchSize = getEnvOrDefaultInt("MNEMO_WORKER_BATCH_SIZE", 10)
	p.WorkerConcurrency = getEnvOrDefaultInt("MNEMO_WORKER_CONCURRENCY", 4)
	p.WorkerMaxAttempts = getEnvOrDefaultInt("MNEMO_WORKER_MAX_ATTEMPTS", 5)
	p.WorkerLeaseTimeout = getEnvOrDefaultDuration("MNEMO_WORKER_LEASE_TIMEOUT", 30*time.Second)
	p.WorkerEmbedTimeout = getEnvOrDefaultDuration("MNEMO_WORKER_EMBED_TIMEOUT", 20*time.Second)
	p.WorkerBackoffBase = getEnvOrDefaultDuration("MNEMO_WORKER_BACKOFF_BASE", 2*time.Second)
	p.WorkerBackoffMax = getEnvOrDefaultDuration("MNEMO_WORKER_BACKOFF_MAX", 5*time.Minute)
	p.WorkerDisabled = getEnvOrDefaultBool("MNEMO_WORKER_DISABLED", false)

	// Semantic search
	p.SearchTimeout = getEnvOrDefaultDuration("MNEMO_SEARCH_TIMEOUT", 5*time.Second)
	p.SearchLimit = getEnvOrDefaultInt("MNEMO_SEARCH_LIMIT", 10)
	p.SimilarityThreshold = getEnvOrDefaultFloat("MNEMO_SIMILARITY_THRESHOLD", 0.3)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}

	if p.Data == "" {
		switch {
		case p.Mode != "prod":
			p.Data = "."
		case runtime.GOOS == "windows":
			p.Data = filepath.Join(os.Getenv("ProgramData"), "mnemo")
		default:
			p.Data = "/var/opt/mnemo"
		}
	}
	if p.Mode == "prod" {
		if err := os.MkdirAll(p.Data, 0770); err != nil {
			slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
			return err
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	switch p.Driver {
	case DriverPostgres:
		if p.DSN == "" {
			slog.Warn("postgres driver selected but no DSN configured, falling back to file driver")
			p.Driver = DriverFile
		}
	case DriverSQLite:
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("mnemo_%s.db", p.Mode))
		}
	case DriverFile:
	case "":
		p.Driver = DriverFile
	default:
		return errors.Errorf("unsupported driver %q (want file, sqlite or postgres)", p.Driver)
	}

	if p.WorkerMaxAttempts <= 0 {
		return errors.Errorf("worker max attempts must be positive: %d", p.WorkerMaxAttempts)
	}
	if p.SimilarityThreshold < -1 || p.SimilarityThreshold > 1 {
		return errors.Errorf("similarity threshold must be within [-1, 1]: %v", p.SimilarityThreshold)
	}

	return nil
}
