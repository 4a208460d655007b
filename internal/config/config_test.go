package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaultsAndResolvesRatios(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
indexer:
  name: demo
  db_path: /tmp/demo
  enable: true
  processing_parallelism: mild
  db_cache_size_gb: off
http:
  enable: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ResolvedSyncIntervalS() != 10 {
		t.Fatalf("expected default sync interval 10, got %d", cfg.ResolvedSyncIntervalS())
	}
	if cfg.ResolvedDbCacheSizeGB() != 0 {
		t.Fatalf("expected off ratio to resolve to 0, got %d", cfg.ResolvedDbCacheSizeGB())
	}
	processing, _ := cfg.ResolvedParallelism()
	if processing < 1 {
		t.Fatalf("expected mild ratio to resolve to at least 1, got %d", processing)
	}
}

func TestExplicitZeroSyncIntervalDisablesScheduling(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
indexer:
  name: demo
  db_path: /tmp/demo
  enable: true
  sync_interval_s: 0
http:
  enable: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.ResolvedSyncIntervalS(); got != 0 {
		t.Fatalf("expected explicit 0 to disable periodic sync, got %d", got)
	}
}

func TestRatioParallelismFloors(t *testing.T) {
	if got := RatioLow.Parallelism(2); got != 1 {
		t.Fatalf("low ratio on 2 cpus: got %d, want 1", got)
	}
	if got := RatioOff.Parallelism(16); got != 0 {
		t.Fatalf("off ratio: got %d, want 0", got)
	}
}
