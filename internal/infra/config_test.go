package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "")
	t.Setenv("WORKER_COUNT", "")
	t.Setenv("JOB_TIMEOUT", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port mismatch: got %q want %q", cfg.Port, "8080")
	}
	if cfg.WorkerCount != 4 {
		t.Fatalf("WorkerCount mismatch: got %d want 4", cfg.WorkerCount)
	}
	if cfg.JobTimeout != 3*time.Minute {
		t.Fatalf("JobTimeout mismatch: got %v want 3m", cfg.JobTimeout)
	}
	if cfg.ArtifactTTL != 72*time.Hour {
		t.Fatalf("ArtifactTTL mismatch: got %v want 72h", cfg.ArtifactTTL)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL should default to empty, got %q", cfg.DatabaseURL)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("PORT", "1919")
	t.Setenv("WORKER_COUNT", "12")
	t.Setenv("JOB_TIMEOUT", "90s")
	t.Setenv("BACKOFF_BASE", "500ms")
	t.Setenv("HTTP_READ_TIMEOUT_SECONDS", "5")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "1919" {
		t.Fatalf("Port mismatch: got %q want %q", cfg.Port, "1919")
	}
	if cfg.WorkerCount != 12 {
		t.Fatalf("WorkerCount mismatch: got %d want 12", cfg.WorkerCount)
	}
	if cfg.JobTimeout != 90*time.Second {
		t.Fatalf("JobTimeout mismatch: got %v want 90s", cfg.JobTimeout)
	}
	if cfg.BackoffBase != 500*time.Millisecond {
		t.Fatalf("BackoffBase mismatch: got %v want 500ms", cfg.BackoffBase)
	}
	if cfg.HTTPReadTimeout != 5*time.Second {
		t.Fatalf("HTTPReadTimeout mismatch: got %v want 5s", cfg.HTTPReadTimeout)
	}
}

func TestLoadConfigProviderCosts(t *testing.T) {
	t.Setenv("OPENAI_COST_PER_CALL", "")
	t.Setenv("ANTHROPIC_COST_PER_CALL", "0.75")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.OpenAICost != 0.25 {
		t.Fatalf("OpenAICost mismatch: got %v want default 0.25", cfg.OpenAICost)
	}
	if cfg.AnthropicCost != 0.75 {
		t.Fatalf("AnthropicCost mismatch: got %v want 0.75", cfg.AnthropicCost)
	}
}

func TestLoadConfigIgnoresMalformedValues(t *testing.T) {
	t.Setenv("WORKER_COUNT", "many")
	t.Setenv("JOB_TIMEOUT", "soon")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.WorkerCount != 4 {
		t.Fatalf("WorkerCount mismatch: got %d want fallback 4", cfg.WorkerCount)
	}
	if cfg.JobTimeout != 3*time.Minute {
		t.Fatalf("JobTimeout mismatch: got %v want fallback 3m", cfg.JobTimeout)
	}
}
