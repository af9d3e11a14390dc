// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/bulkscan/lib/imagehash"
	"github.com/bureau-foundation/bulkscan/lib/report"
	"github.com/bureau-foundation/bulkscan/lib/sampling"
)

// DefaultSamplingSeed seeds the sampling generator when the
// configuration does not. Runs with the same seed sample the same
// blocks.
const DefaultSamplingSeed = 5489

// Config is the configuration for one scan run. It is not modified once
// the run starts.
type Config struct {
	// Workers is the number of worker goroutines.
	// Default: number of CPUs.
	Workers int `yaml:"workers"`

	// QueueDepth bounds the work units waiting for a worker. Zero means
	// twice the worker count.
	QueueDepth int `yaml:"queue_depth"`

	// Image configures how the image is paged.
	Image ImageConfig `yaml:"image"`

	// Allocation configures page buffer acquisition.
	Allocation AllocationConfig `yaml:"allocation"`

	// Drain configures the wait for workers after the last block.
	Drain DrainConfig `yaml:"drain"`

	// Progress configures progress output.
	Progress ProgressConfig `yaml:"progress"`

	// Sampling, when non-empty, scans a random fraction of the image
	// instead of all of it. Format: "fraction[:passes]", e.g. "0.01:2".
	Sampling string `yaml:"sampling"`

	// SamplingSeed seeds the block sampler.
	SamplingSeed uint64 `yaml:"sampling_seed"`

	// Range restricts the scan to part of the image.
	Range RangeConfig `yaml:"range"`

	// Hash names the image digest algorithm, or "none".
	// Default: sha1
	Hash string `yaml:"hash"`

	// ReportReadErrors prints per-block read failures to stderr as
	// well as recording them in the report.
	ReportReadErrors bool `yaml:"report_read_errors"`

	// Scanners selects and tunes scanners.
	Scanners ScannersConfig `yaml:"scanners"`

	// Output configures where results are written.
	Output OutputConfig `yaml:"output"`
}

// ImageConfig configures image paging.
type ImageConfig struct {
	// PageSize is the logical page length in bytes.
	// Default: 16 MiB
	PageSize int `yaml:"page_size"`

	// MarginSize is the lookahead read past each page. Zero disables
	// the margin.
	// Default: 4 MiB
	MarginSize int `yaml:"margin_size"`
}

// AllocationConfig configures the page allocation retry loop.
type AllocationConfig struct {
	// MaxAttempts is the number of consecutive refused allocations
	// before the run aborts.
	// Default: 64
	MaxAttempts int `yaml:"max_attempts"`

	// RetryDelay is the pause between attempts.
	// Default: 60s
	RetryDelay time.Duration `yaml:"retry_delay"`

	// MinFreeMemory is the available system memory, in bytes, that
	// must remain after a page buffer is allocated. Zero disables the
	// check.
	// Default: 64 MiB
	MinFreeMemory uint64 `yaml:"min_free_memory"`
}

// DrainConfig configures the wait for workers.
type DrainConfig struct {
	// MaxWait bounds the wait. Zero or negative waits forever.
	// Default: 1h
	MaxWait time.Duration `yaml:"max_wait"`

	// StatusInterval is how often a status line is printed while
	// waiting.
	// Default: 6s
	StatusInterval time.Duration `yaml:"status_interval"`
}

// ProgressConfig configures progress output.
type ProgressConfig struct {
	// NotifyRate prints a progress line every NotifyRate blocks.
	// Default: 1
	NotifyRate int `yaml:"notify_rate"`

	// Quiet suppresses progress and completion messages.
	Quiet bool `yaml:"quiet"`
}

// RangeConfig restricts the scanned part of the image.
type RangeConfig struct {
	// OffsetStart is the first image offset scanned.
	OffsetStart uint64 `yaml:"offset_start"`

	// OffsetEnd stops the scan before this offset. Zero means the end
	// of the image.
	OffsetEnd uint64 `yaml:"offset_end"`

	// PageStart skips pages numbered below it.
	PageStart uint64 `yaml:"page_start"`
}

// ScannersConfig selects and tunes scanners.
type ScannersConfig struct {
	// Enable and Disable are applied in that order; "all" names every
	// scanner.
	Enable  []string `yaml:"enable"`
	Disable []string `yaml:"disable"`

	// Settings holds scanner tuning values by knob name, for example
	// gzip_max_uncompr_size.
	Settings map[string]string `yaml:"settings"`
}

// OutputConfig configures result locations.
type OutputConfig struct {
	// Report is the report file path. Empty disables the report file.
	Report string `yaml:"report"`

	// ReportFormat is "xml" or "cbor". Empty picks by the report file
	// extension.
	ReportFormat string `yaml:"report_format"`

	// FeatureDir receives one feature file per recorder. Empty
	// discards features.
	FeatureDir string `yaml:"feature_dir"`

	// MetricsFile receives Prometheus text-format metrics at the end
	// of the run. Empty disables metrics export.
	MetricsFile string `yaml:"metrics_file"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Workers: runtime.NumCPU(),
		Image: ImageConfig{
			PageSize:   16 << 20,
			MarginSize: 4 << 20,
		},
		Allocation: AllocationConfig{
			MaxAttempts:   64,
			RetryDelay:    60 * time.Second,
			MinFreeMemory: 64 << 20,
		},
		Drain: DrainConfig{
			MaxWait:        time.Hour,
			StatusInterval: 6 * time.Second,
		},
		Progress: ProgressConfig{
			NotifyRate: 1,
		},
		SamplingSeed: DefaultSamplingSeed,
		Hash:         string(imagehash.SHA1),
	}
}

// Load loads configuration from the BULKSCAN_CONFIG environment
// variable. It fails if the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv("BULKSCAN_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("BULKSCAN_CONFIG environment variable not set; " +
			"set it to the path of your bulkscan.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path on top of
// [Default].
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.expandVariables()

	return cfg, nil
}

// loadFile merges one configuration file into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	// JSON is a subset of YAML once comments and trailing commas are
	// stripped.
	extension := strings.ToLower(filepath.Ext(path))
	if extension == ".json" || extension == ".jsonc" {
		data = jsonc.ToJSON(data)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// output paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Output.Report = expandVars(c.Output.Report, vars)
	c.Output.FeatureDir = expandVars(c.Output.FeatureDir, vars)
	c.Output.MetricsFile = expandVars(c.Output.MetricsFile, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// EffectiveQueueDepth returns QueueDepth, or twice the worker count
// when QueueDepth is zero.
func (c *Config) EffectiveQueueDepth() int {
	if c.QueueDepth > 0 {
		return c.QueueDepth
	}
	return 2 * c.Workers
}

// SamplingParameters parses Sampling. The boolean is false when the
// run is sequential.
func (c *Config) SamplingParameters() (sampling.Parameters, bool, error) {
	if c.Sampling == "" {
		return sampling.Parameters{}, false, nil
	}
	parameters, err := sampling.ParseParameters(c.Sampling)
	if err != nil {
		return sampling.Parameters{}, false, err
	}
	return parameters, true, nil
}

// HashAlgorithm parses Hash. The boolean is false when hashing is
// disabled.
func (c *Config) HashAlgorithm() (imagehash.Algorithm, bool, error) {
	if c.Hash == "" || c.Hash == "none" {
		return "", false, nil
	}
	algorithm, err := imagehash.ParseAlgorithm(c.Hash)
	if err != nil {
		return "", false, err
	}
	return algorithm, true, nil
}

// ReportFormat returns the configured report encoding.
func (c *Config) ReportFormat() (report.Format, error) {
	if c.Output.ReportFormat == "" {
		return report.FormatForPath(c.Output.Report), nil
	}
	return report.ParseFormat(c.Output.ReportFormat)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.QueueDepth < 0 {
		errs = append(errs, fmt.Errorf("queue_depth must not be negative, got %d", c.QueueDepth))
	}

	if c.Image.PageSize < 1 {
		errs = append(errs, fmt.Errorf("image.page_size must be positive, got %d", c.Image.PageSize))
	}
	if c.Image.MarginSize < 0 {
		errs = append(errs, fmt.Errorf("image.margin_size must not be negative, got %d", c.Image.MarginSize))
	}

	if c.Allocation.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("allocation.max_attempts must be at least 1, got %d", c.Allocation.MaxAttempts))
	}
	if c.Allocation.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("allocation.retry_delay must not be negative, got %s", c.Allocation.RetryDelay))
	}

	if c.Drain.StatusInterval <= 0 {
		errs = append(errs, fmt.Errorf("drain.status_interval must be positive, got %s", c.Drain.StatusInterval))
	}

	if c.Progress.NotifyRate < 0 {
		errs = append(errs, fmt.Errorf("progress.notify_rate must not be negative, got %d", c.Progress.NotifyRate))
	}

	if parameters, sampled, err := c.SamplingParameters(); err != nil {
		errs = append(errs, fmt.Errorf("sampling: %w", err))
	} else if sampled && parameters.Fraction >= sampling.MaxFraction {
		errs = append(errs, fmt.Errorf("sampling: %w: got %g", sampling.ErrFractionTooLarge, parameters.Fraction))
	}

	if c.Range.OffsetEnd != 0 && c.Range.OffsetEnd <= c.Range.OffsetStart {
		errs = append(errs, fmt.Errorf("range.offset_end (%d) must be past range.offset_start (%d)",
			c.Range.OffsetEnd, c.Range.OffsetStart))
	}

	if _, _, err := c.HashAlgorithm(); err != nil {
		errs = append(errs, fmt.Errorf("hash: %w", err))
	}

	if _, err := c.ReportFormat(); err != nil {
		errs = append(errs, fmt.Errorf("output.report_format: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
