// Package config loads optional TOML defaults for the cbufbench harness.
// CLI flags always take precedence over values loaded here; this file
// only supplies what a flag wasn't explicitly given.
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config is the [bench] block of an optional defaults file.
type Config struct {
	Bench BenchConfig `toml:"bench"`
}

// BenchConfig mirrors the cbufbench CLI flags, letting a site pin its own
// defaults (block size, thread counts, ...) without editing a shell
// script every time.
type BenchConfig struct {
	NumIter     int    `toml:"numiter"`
	BlockSize   uint32 `toml:"block_size"`
	BlockCount  uint32 `toml:"block_count"`
	Reservation uint32 `toml:"reservation"`
	TxThreads   int    `toml:"tx_threads"`
	RxThreads   int    `toml:"rx_threads"`
	BackingDir  string `toml:"backing_dir"`
}

// Load reads and parses a TOML defaults file. A missing file is not an
// error at this layer: cmd/cbufbench treats ErrNotExist as "no defaults
// file, use built-in defaults".
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var c Config
	if err := toml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	return &c, nil
}
