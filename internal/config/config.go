// Package config loads indexer settings from YAML into typed structs,
// resolving Ratio-valued knobs against the host's CPU count and total
// memory so one config file ports across differently sized hosts
// (pkg/log, gopkg.in/yaml.v3, spf13/cobra supply the logging, parsing and
// CLI flag overrides around it).
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Ratio expresses a parallelism or cache-size knob as a fraction of a
// host resource rather than an absolute number, so the same config file
// behaves sensibly across machines of different sizes.
type Ratio string

const (
	RatioOff   Ratio = "off"
	RatioTiny  Ratio = "tiny"
	RatioLow   Ratio = "low"
	RatioMild  Ratio = "mild"
	RatioHigh  Ratio = "high"
	RatioUltra Ratio = "ultra"
)

// Parallelism resolves a Ratio against the number of CPUs.
func (r Ratio) Parallelism(numCPU int) int {
	switch r {
	case RatioOff:
		return 0
	case RatioTiny:
		return 1
	case RatioLow:
		return maxInt(1, numCPU/4)
	case RatioMild:
		return maxInt(1, numCPU/2)
	case RatioHigh:
		return maxInt(1, numCPU-1)
	case RatioUltra:
		return maxInt(1, numCPU*2)
	default:
		return maxInt(1, numCPU/2)
	}
}

// DbCacheSizeGB resolves a Ratio against the host's total memory in GB.
func (r Ratio) DbCacheSizeGB(totalMemGB uint64) uint64 {
	switch r {
	case RatioOff:
		return 0
	case RatioTiny:
		return 1
	case RatioLow:
		return maxUint64(1, totalMemGB/8)
	case RatioMild:
		return maxUint64(1, totalMemGB/4)
	case RatioHigh:
		return maxUint64(1, totalMemGB/2)
	case RatioUltra:
		return maxUint64(1, totalMemGB*3/4)
	default:
		return maxUint64(1, totalMemGB/8)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func maxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// IndexerSettings is the `indexer.*` section of the config file.
type IndexerSettings struct {
	Name                   string `yaml:"name"`
	DbPath                 string `yaml:"db_path"`
	Enable                 bool   `yaml:"enable"`
	// SyncIntervalS is a pointer so an explicit `sync_interval_s: 0` (which
	// disables periodic scheduling) can be told apart from an omitted key
	// (which falls back to the default below).
	SyncIntervalS          *int   `yaml:"sync_interval_s"`
	DbCacheSizeGB          Ratio  `yaml:"db_cache_size_gb"`
	ProcessingParallelism  Ratio  `yaml:"processing_parallelism"`
	FetchingParallelism    Ratio  `yaml:"fetching_parallelism"`
	MinEntityBatchSize     uint64 `yaml:"min_entity_batch_size"`
	NonDurableBatches      int    `yaml:"non_durable_batches"`
	MaxEntityBufferKBSize  int    `yaml:"max_entity_buffer_kb_size"`
	ForkDetectionHeights   int    `yaml:"fork_detection_heights"`
	ValidationFromHeight   uint64 `yaml:"validation_from_height"`
	BatchingModeLagBlocks  uint64 `yaml:"batching_mode_lag_blocks"`
}

// HTTPSettings is the `http.*` section of the config file.
type HTTPSettings struct {
	Enable      bool   `yaml:"enable"`
	BindAddress string `yaml:"bind_address"`
}

// LogSettings controls the global zerolog logger (pkg/log.Config).
type LogSettings struct {
	Level      string `yaml:"level"`
	JSONOutput bool   `yaml:"json_output"`
}

// AppConfig is the root configuration document.
type AppConfig struct {
	Indexer IndexerSettings `yaml:"indexer"`
	HTTP    HTTPSettings    `yaml:"http"`
	Log     LogSettings     `yaml:"log"`
}

// Load reads and parses a YAML config file from path.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Indexer.SyncIntervalS == nil {
		def := 10
		cfg.Indexer.SyncIntervalS = &def
	}
	if cfg.Indexer.MinEntityBatchSize == 0 {
		cfg.Indexer.MinEntityBatchSize = 4096
	}
	if cfg.Indexer.NonDurableBatches == 0 {
		cfg.Indexer.NonDurableBatches = 10
	}
	if cfg.Indexer.MaxEntityBufferKBSize == 0 {
		cfg.Indexer.MaxEntityBufferKBSize = 256
	}
	if cfg.Indexer.ForkDetectionHeights == 0 {
		cfg.Indexer.ForkDetectionHeights = 100
	}
	if cfg.Indexer.BatchingModeLagBlocks == 0 {
		cfg.Indexer.BatchingModeLagBlocks = 1000
	}
	if cfg.HTTP.BindAddress == "" {
		cfg.HTTP.BindAddress = "127.0.0.1:8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// ResolvedParallelism resolves ProcessingParallelism/FetchingParallelism
// against the host's CPU count.
func (c *AppConfig) ResolvedParallelism() (processing, fetching int) {
	n := runtime.NumCPU()
	return c.Indexer.ProcessingParallelism.Parallelism(n), c.Indexer.FetchingParallelism.Parallelism(n)
}

// ResolvedDbCacheSizeGB resolves DbCacheSizeGB against total host memory.
func (c *AppConfig) ResolvedDbCacheSizeGB() uint64 {
	return c.Indexer.DbCacheSizeGB.DbCacheSizeGB(totalMemGB())
}

// ResolvedSyncIntervalS returns the configured sync interval in seconds,
// where 0 means periodic scheduling is disabled.
func (c *AppConfig) ResolvedSyncIntervalS() int {
	if c.Indexer.SyncIntervalS == nil {
		return 10
	}
	return *c.Indexer.SyncIntervalS
}
