package profile

import (
	"path/filepath"
	"testing"
	"time"
)

var envKeys = []string{
	"MNEMO_LOG_LEVEL",
	"MNEMO_EMBEDDING_PROVIDER",
	"MNEMO_EMBEDDING_API_KEY",
	"MNEMO_EMBEDDING_BASE_URL",
	"MNEMO_EMBEDDING_MODEL",
	"MNEMO_EMBEDDING_DIMENSIONS",
	"MNEMO_EMBEDDING_RPS",
	"MNEMO_AUTO_INGEST",
	"MNEMO_INGEST_QUEUE_SIZE",
	"MNEMO_WORKER_POLL_INTERVAL",
	"MNEMO_WORKER_MAX_ATTEMPTS",
	"MNEMO_WORKER_LEASE_TIMEOUT",
	"MNEMO_SEARCH_TIMEOUT",
	"MNEMO_SIMILARITY_THRESHOLD",
}

// clearEnv blanks every variable FromEnv reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestProfileDefaults(t *testing.T) {
	clearEnv(t)

	profile := &Profile{}
	profile.FromEnv()

	tests := []struct {
		name     string
		expected any
		actual   any
	}{
		{"EmbeddingProvider default", "openrouter", profile.EmbeddingProvider},
		{"EmbeddingModel default", "openai/text-embedding-3-small", profile.EmbeddingModel},
		{"EmbeddingBaseURL default", "https://openrouter.ai/api/v1", profile.EmbeddingBaseURL},
		{"EmbeddingDimensions default", 1536, profile.EmbeddingDimensions},
		{"AutoIngest default", true, profile.AutoIngest},
		{"WorkerPollInterval default", 2 * time.Second, profile.WorkerPollInterval},
		{"WorkerMaxAttempts default", 5, profile.WorkerMaxAttempts},
		{"WorkerLeaseTimeout default", 30 * time.Second, profile.WorkerLeaseTimeout},
		{"SearchLimit default", 10, profile.SearchLimit},
		{"SimilarityThreshold default", 0.3, profile.SimilarityThreshold},
		{"embedding disabled without key", false, profile.IsEmbeddingEnabled()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.actual != tt.expected {
				t.Errorf("%s: expected %v, got %v", tt.name, tt.expected, tt.actual)
			}
		})
	}
}

func TestProfileFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVar   string
		envValue string
		field    func(*Profile) any
		expected any
	}{
		{
			name:     "provider switches model default",
			envVar:   "MNEMO_EMBEDDING_PROVIDER",
			envValue: "siliconflow",
			field:    func(p *Profile) any { return p.EmbeddingModel },
			expected: "BAAI/bge-m3",
		},
		{
			name:     "unknown provider falls back",
			envVar:   "MNEMO_EMBEDDING_PROVIDER",
			envValue: "acme",
			field:    func(p *Profile) any { return p.EmbeddingProvider },
			expected: "openrouter",
		},
		{
			name:     "auto ingest can be disabled",
			envVar:   "MNEMO_AUTO_INGEST",
			envValue: "false",
			field:    func(p *Profile) any { return p.AutoIngest },
			expected: false,
		},
		{
			name:     "poll interval as duration",
			envVar:   "MNEMO_WORKER_POLL_INTERVAL",
			envValue: "500ms",
			field:    func(p *Profile) any { return p.WorkerPollInterval },
			expected: 500 * time.Millisecond,
		},
		{
			name:     "lease timeout as seconds",
			envVar:   "MNEMO_WORKER_LEASE_TIMEOUT",
			envValue: "45",
			field:    func(p *Profile) any { return p.WorkerLeaseTimeout },
			expected: 45 * time.Second,
		},
		{
			name:     "api key enables embedding",
			envVar:   "MNEMO_EMBEDDING_API_KEY",
			envValue: "sk-test",
			field:    func(p *Profile) any { return p.IsEmbeddingEnabled() },
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.envVar, tt.envValue)

			profile := &Profile{}
			profile.FromEnv()

			if actual := tt.field(profile); actual != tt.expected {
				t.Errorf("%s: expected %v, got %v", tt.name, tt.expected, actual)
			}
		})
	}
}

func TestValidate_PostgresWithoutDSNFallsBackToFile(t *testing.T) {
	clearEnv(t)
	profile := &Profile{Mode: "dev", Data: t.TempDir(), Driver: DriverPostgres}
	profile.FromEnv()

	if err := profile.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if profile.Driver != DriverFile {
		t.Errorf("expected driver %q, got %q", DriverFile, profile.Driver)
	}
}

func TestValidate_SQLiteDefaultDSN(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	profile := &Profile{Mode: "dev", Data: dir, Driver: DriverSQLite}
	profile.FromEnv()

	if err := profile.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if want := filepath.Join(profile.Data, "mnemo_dev.db"); profile.DSN != want {
		t.Errorf("expected DSN %q, got %q", want, profile.DSN)
	}
}

func TestValidate_Errors(t *testing.T) {
	clearEnv(t)

	unknown := &Profile{Mode: "dev", Data: t.TempDir(), Driver: "mysql"}
	unknown.FromEnv()
	if err := unknown.Validate(); err == nil {
		t.Error("expected error for unsupported driver")
	}

	missing := &Profile{Mode: "dev", Data: filepath.Join(t.TempDir(), "missing"), Driver: DriverFile}
	missing.FromEnv()
	if err := missing.Validate(); err == nil {
		t.Error("expected error for missing data dir")
	}

	bad := &Profile{Mode: "dev", Data: t.TempDir(), Driver: DriverFile}
	bad.FromEnv()
	bad.SimilarityThreshold = 2
	if err := bad.Validate(); err == nil {
		t.Error("expected error for similarity threshold out of range")
	}
}
