// Package config holds recall configuration: defaults, YAML file loading
// with environment overrides, and validation of consolidation thresholds.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfiguration wraps every threshold validation failure so
// callers can reject a run before any mutation occurs.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Config holds all recall configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Consolidation ConsolidationConfig `yaml:"consolidation"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ConsolidationConfig carries the tunable thresholds of the consolidation
// engine. Defaults match the documented scale the scores were tuned on.
type ConsolidationConfig struct {
	// RetentionThreshold: conversations below this retention score become
	// archival candidates. Aggressive mode drops it to 0.2.
	RetentionThreshold float64 `yaml:"retention_threshold"`

	// ArchivalAgeFloorDays: conversations younger than this are never
	// archived regardless of score.
	ArchivalAgeFloorDays int `yaml:"archival_age_floor_days"`

	// ClusterGapDays: gap that splits temporal clusters.
	ClusterGapDays int `yaml:"cluster_gap_days"`

	// DedupSimilarityThreshold: minimum composite similarity for merging.
	DedupSimilarityThreshold float64 `yaml:"dedup_similarity_threshold"`

	// StrengthenAccessThreshold: items accessed more than this many times
	// get reinforced each pass.
	StrengthenAccessThreshold int `yaml:"strengthen_access_threshold"`

	// MergeStrategy: keep_highest_confidence, keep_newest, combine_values.
	MergeStrategy string `yaml:"merge_strategy"`

	// Interval between scheduled consolidation runs, in hours. Zero
	// disables the timer.
	IntervalHours int `yaml:"interval_hours"`
}

type LoggingConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

// AggressiveRetentionThreshold is the archival threshold used by
// aggressive mode.
const AggressiveRetentionThreshold = 0.2

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37800,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Consolidation: ConsolidationConfig{
			RetentionThreshold:        0.3,
			ArchivalAgeFloorDays:      90,
			ClusterGapDays:            7,
			DedupSimilarityThreshold:  0.85,
			StrengthenAccessThreshold: 10,
			MergeStrategy:             "keep_highest_confidence",
			IntervalHours:             24,
		},
		Logging: LoggingConfig{
			File:  "", // resolved to ~/.recall/recall.log when empty
			Level: "info",
		},
	}
}

// DefaultConfigPath returns ~/.recall/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".recall", "config.yaml"), nil
}

// Load reads a YAML config file over the defaults, then applies
// environment overrides. A missing file is not an error — defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("RECALL_DB"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("RECALL_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
	if v := os.Getenv("RECALL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate rejects out-of-range thresholds before any mutation occurs.
func (c *Config) Validate() error {
	cc := c.Consolidation
	if cc.RetentionThreshold < 0 || cc.RetentionThreshold > 1 {
		return fmt.Errorf("%w: retention_threshold %v outside [0,1]", ErrInvalidConfiguration, cc.RetentionThreshold)
	}
	if cc.ArchivalAgeFloorDays < 0 {
		return fmt.Errorf("%w: archival_age_floor_days %d is negative", ErrInvalidConfiguration, cc.ArchivalAgeFloorDays)
	}
	if cc.ClusterGapDays <= 0 {
		return fmt.Errorf("%w: cluster_gap_days %d must be positive", ErrInvalidConfiguration, cc.ClusterGapDays)
	}
	if cc.DedupSimilarityThreshold < 0 || cc.DedupSimilarityThreshold > 1 {
		return fmt.Errorf("%w: dedup_similarity_threshold %v outside [0,1]", ErrInvalidConfiguration, cc.DedupSimilarityThreshold)
	}
	if cc.StrengthenAccessThreshold < 0 {
		return fmt.Errorf("%w: strengthen_access_threshold %d is negative", ErrInvalidConfiguration, cc.StrengthenAccessThreshold)
	}
	switch cc.MergeStrategy {
	case "keep_highest_confidence", "keep_newest", "combine_values":
	default:
		return fmt.Errorf("%w: unknown merge_strategy %q", ErrInvalidConfiguration, cc.MergeStrategy)
	}
	if cc.IntervalHours < 0 {
		return fmt.Errorf("%w: interval_hours %d is negative", ErrInvalidConfiguration, cc.IntervalHours)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", ErrInvalidConfiguration, c.Server.Port)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
