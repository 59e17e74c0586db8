package dblwr

import (
	"fmt"

	flushmanager "github.com/sushant-115/gojodb/core/write_engine/flush_manager"
)

// Config holds the subsystem's runtime options, parsed the way
// cmd/gojodb_server/main.go declares its flag.* variables — one struct
// field per named option, validated once at startup.
type Config struct {
	// Enabled disables staging entirely when false: flushes become direct
	// writes with a final fsync.
	Enabled bool `yaml:"doublewrite_enabled"`

	// BlockSize is B, the number of pages per staging block. A compile-time
	// constant in the source; kept configurable here since nothing about
	// the algorithm depends on a fixed value, only on 0 < K < 2B.
	BlockSize int `yaml:"doublewrite_block_size"`

	// BatchSize is K, the number of slots reserved for batch posting.
	// Must satisfy 0 < K < 2*BlockSize.
	BatchSize int `yaml:"doublewrite_batch_size"`

	// PageSize is the tablespace page size in bytes.
	PageSize int `yaml:"page_size"`

	SSDCacheEnabled bool   `yaml:"ssd_cache_enabled"`
	SSDCacheSize    int    `yaml:"ssd_cache_size"`
	SSDCachePath    string `yaml:"ssd_cache_path"`
}

// DefaultConfig mirrors InnoDB's compiled-in defaults: a 64-page block and
// a batch region of 120 slots, well under 2*64=128.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		BlockSize: 64,
		BatchSize: 120,
		PageSize:  16 * 1024,
	}
}

// Validate enforces the staging area's structural precondition, 0 < K <
// 2B, and, if the SSD backend is selected, a usable cache size and path.
func (c Config) Validate() error {
	if c.BlockSize <= 0 {
		return fmt.Errorf("doublewrite_block_size must be positive, got %d", c.BlockSize)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	}
	if c.BatchSize <= 0 || c.BatchSize >= 2*c.BlockSize {
		return fmt.Errorf("doublewrite_batch_size (%d) must satisfy 0 < K < 2B (2B=%d): %w",
			c.BatchSize, 2*c.BlockSize, flushmanager.ErrInvalidBatchSize)
	}
	if c.SSDCacheEnabled {
		if c.SSDCacheSize <= 0 {
			return fmt.Errorf("ssd_cache_size must be positive when ssd_cache_enabled")
		}
		if c.SSDCachePath == "" {
			return fmt.Errorf("ssd_cache_path must be set when ssd_cache_enabled")
		}
	}
	return nil
}
