package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "issue-sync.yaml")
	overlay := []byte(`
poller:
  intervalSeconds: 30
  flagClearMillis: 500
enrichment:
  poolSize: 4
map:
  minLat: 1
  maxLat: 2
  minLng: 3
  maxLng: 4
`)
	if err := os.WriteFile(path, overlay, 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv(configPathEnv, path)
	t.Setenv("POLL_INTERVAL_SECONDS", "20")
	t.Setenv("STORE_MAX_MISSED_CYCLES", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Poller.Interval() != 20*time.Second {
		t.Fatalf("env must win over yaml, got %s", cfg.Poller.Interval())
	}
	if cfg.Poller.FlagClearDelay() != 500*time.Millisecond {
		t.Fatalf("yaml must win over defaults, got %s", cfg.Poller.FlagClearDelay())
	}
	if cfg.Enrichment.PoolSize != 4 || cfg.Store.MaxMissedCycles != 3 {
		t.Fatalf("unexpected config %+v %+v", cfg.Enrichment, cfg.Store)
	}
	if cfg.Map.MaxLng != 4 {
		t.Fatalf("expected map bounds from yaml, got %+v", cfg.Map)
	}
	if cfg.Enrichment.CallTimeout() != 5*time.Second {
		t.Fatalf("expected default call timeout, got %s", cfg.Enrichment.CallTimeout())
	}
}

func TestLoadRejectsBadRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "primary")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for non-numeric REDIS_DB")
	}
}

func TestMediaEnabledNeedsBucketAndKeys(t *testing.T) {
	t.Parallel()
	m := MediaConfig{Bucket: "complaints", AccessKey: "a"}
	if m.Enabled() {
		t.Fatalf("missing secret must disable media")
	}
	m.SecretKey = "s"
	if !m.Enabled() || m.Expiry() != time.Hour {
		t.Fatalf("unexpected media config %+v", m)
	}
}
