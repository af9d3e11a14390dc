// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/bulkscan/lib/clock"
	"github.com/bureau-foundation/bulkscan/lib/config"
	"github.com/bureau-foundation/bulkscan/lib/dispatch"
	"github.com/bureau-foundation/bulkscan/lib/feature"
	"github.com/bureau-foundation/bulkscan/lib/hwinfo"
	"github.com/bureau-foundation/bulkscan/lib/imagesource"
	"github.com/bureau-foundation/bulkscan/lib/memguard"
	"github.com/bureau-foundation/bulkscan/lib/metrics"
	"github.com/bureau-foundation/bulkscan/lib/process"
	"github.com/bureau-foundation/bulkscan/lib/report"
	"github.com/bureau-foundation/bulkscan/lib/scanner"
	"github.com/bureau-foundation/bulkscan/lib/scanner/decompress"
	"github.com/bureau-foundation/bulkscan/lib/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		process.Fatal(err)
	}
}

// flags holds command-line values. Only flags the user set override
// the configuration file.
type flags struct {
	configPath   string
	logFormat    string
	logLevel     string
	listScanners bool
	showVersion  bool

	workers          int
	queueDepth       int
	pageSize         int
	marginSize       int
	maxAttempts      int
	minFreeMemory    uint64
	notifyRate       int
	quiet            bool
	sampling         string
	samplingSeed     uint64
	offsetStart      uint64
	offsetEnd        uint64
	pageStart        uint64
	hash             string
	reportReadErrors bool
	enable           []string
	disable          []string
	settings         map[string]string
	reportPath       string
	reportFormat     string
	featureDir       string
	metricsFile      string
}

func newFlagSet(values *flags) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("bulkscan", pflag.ContinueOnError)
	flagSet.StringVar(&values.configPath, "config", "", "configuration file (YAML, or JSON with comments for .json/.jsonc)")
	flagSet.StringVar(&values.logFormat, "log-format", "text", "log record format: text or json")
	flagSet.StringVar(&values.logLevel, "log-level", "info", "minimum log level: debug, info, warn, error")
	flagSet.BoolVar(&values.listScanners, "list-scanners", false, "print the enabled scanners and their settings, then exit")
	flagSet.BoolVar(&values.showVersion, "version", false, "print version information and exit")

	flagSet.IntVarP(&values.workers, "workers", "j", 0, "number of worker goroutines")
	flagSet.IntVar(&values.queueDepth, "queue-depth", 0, "work units allowed to wait for a worker (0: twice the workers)")
	flagSet.IntVar(&values.pageSize, "page-size", 0, "page size in bytes")
	flagSet.IntVar(&values.marginSize, "margin-size", 0, "lookahead margin in bytes read past each page")
	flagSet.IntVar(&values.maxAttempts, "max-alloc-attempts", 0, "consecutive refused page allocations before giving up")
	flagSet.Uint64Var(&values.minFreeMemory, "min-free-memory", 0, "bytes of system memory to keep available (0 disables the check)")
	flagSet.IntVar(&values.notifyRate, "notify-rate", 0, "print a progress line every N pages")
	flagSet.BoolVarP(&values.quiet, "quiet", "q", false, "suppress progress and status output")
	flagSet.StringVarP(&values.sampling, "sampling", "Y", "", "scan a random fraction of pages: fraction[:passes]")
	flagSet.Uint64Var(&values.samplingSeed, "sampling-seed", 0, "seed for page sampling")
	flagSet.Uint64Var(&values.offsetStart, "offset-start", 0, "first image offset to scan")
	flagSet.Uint64Var(&values.offsetEnd, "offset-end", 0, "stop before this image offset")
	flagSet.Uint64Var(&values.pageStart, "page-start", 0, "first page number to scan")
	flagSet.StringVar(&values.hash, "hash", "", "image digest algorithm, or none")
	flagSet.BoolVar(&values.reportReadErrors, "report-read-errors", false, "print unreadable pages to stderr")
	flagSet.StringSliceVarP(&values.enable, "enable", "e", nil, "enable scanner (repeatable; all for every scanner)")
	flagSet.StringSliceVarP(&values.disable, "disable", "x", nil, "disable scanner (repeatable; all for every scanner)")
	flagSet.StringToStringVarP(&values.settings, "set", "S", nil, "scanner setting name=value (repeatable)")
	flagSet.StringVar(&values.reportPath, "report", "", "report file (.cbor for CBOR)")
	flagSet.StringVar(&values.reportFormat, "report-format", "", "report format: xml or cbor")
	flagSet.StringVarP(&values.featureDir, "feature-dir", "o", "", "directory for feature files")
	flagSet.StringVar(&values.metricsFile, "metrics-file", "", "write Prometheus text-format metrics here at the end of the run")
	flagSet.BoolP("help", "h", false, "show help")
	return flagSet
}

func run(args []string, stdout, stderr io.Writer) error {
	var values flags
	flagSet := newFlagSet(&values)
	flagSet.SetOutput(stderr)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stderr, flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(stderr, flagSet)
		return nil
	}
	if values.showVersion {
		fmt.Fprintf(stdout, "bulkscan %s\n", version.Full())
		return nil
	}

	cfg, err := loadConfig(values.configPath)
	if err != nil {
		return err
	}
	applyFlags(flagSet, &values, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(stderr, values.logFormat, values.logLevel)
	if err != nil {
		return err
	}

	scanners, knobs, err := setupScanners(cfg, logger)
	if err != nil {
		return err
	}
	if values.listScanners {
		printScanners(stdout, scanners, knobs)
		return nil
	}
	for _, key := range knobs.Unused() {
		logger.Warn("scanner setting not used by any enabled scanner", "key", key)
	}

	if flagSet.NArg() != 1 {
		printHelp(stderr, flagSet)
		return fmt.Errorf("expected exactly one image path, got %d arguments", flagSet.NArg())
	}
	return scan(flagSet.Arg(0), cfg, scanners, logger, stdout, stderr)
}

func loadConfig(path string) (*config.Config, error) {
	switch {
	case path != "":
		return config.LoadFile(path)
	case os.Getenv("BULKSCAN_CONFIG") != "":
		return config.Load()
	default:
		return config.Default(), nil
	}
}

func applyFlags(flagSet *pflag.FlagSet, values *flags, cfg *config.Config) {
	changed := flagSet.Changed
	if changed("workers") {
		cfg.Workers = values.workers
	}
	if changed("queue-depth") {
		cfg.QueueDepth = values.queueDepth
	}
	if changed("page-size") {
		cfg.Image.PageSize = values.pageSize
	}
	if changed("margin-size") {
		cfg.Image.MarginSize = values.marginSize
	}
	if changed("max-alloc-attempts") {
		cfg.Allocation.MaxAttempts = values.maxAttempts
	}
	if changed("min-free-memory") {
		cfg.Allocation.MinFreeMemory = values.minFreeMemory
	}
	if changed("notify-rate") {
		cfg.Progress.NotifyRate = values.notifyRate
	}
	if changed("quiet") {
		cfg.Progress.Quiet = values.quiet
	}
	if changed("sampling") {
		cfg.Sampling = values.sampling
	}
	if changed("sampling-seed") {
		cfg.SamplingSeed = values.samplingSeed
	}
	if changed("offset-start") {
		cfg.Range.OffsetStart = values.offsetStart
	}
	if changed("offset-end") {
		cfg.Range.OffsetEnd = values.offsetEnd
	}
	if changed("page-start") {
		cfg.Range.PageStart = values.pageStart
	}
	if changed("hash") {
		cfg.Hash = values.hash
	}
	if changed("report-read-errors") {
		cfg.ReportReadErrors = values.reportReadErrors
	}
	cfg.Scanners.Enable = append(cfg.Scanners.Enable, values.enable...)
	cfg.Scanners.Disable = append(cfg.Scanners.Disable, values.disable...)
	if len(values.settings) > 0 && cfg.Scanners.Settings == nil {
		cfg.Scanners.Settings = make(map[string]string, len(values.settings))
	}
	for key, value := range values.settings {
		cfg.Scanners.Settings[key] = value
	}
	if changed("report") {
		cfg.Output.Report = values.reportPath
	}
	if changed("report-format") {
		cfg.Output.ReportFormat = values.reportFormat
	}
	if changed("feature-dir") {
		cfg.Output.FeatureDir = values.featureDir
	}
	if changed("metrics-file") {
		cfg.Output.MetricsFile = values.metricsFile
	}
}

func newLogger(stderr io.Writer, format, levelName string) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	options := &slog.HandlerOptions{Level: level}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(stderr, options)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(stderr, options)), nil
	default:
		return nil, fmt.Errorf("--log-format must be text or json, got %q", format)
	}
}

func setupScanners(cfg *config.Config, logger *slog.Logger) (*scanner.Set, *scanner.Config, error) {
	scanners := scanner.NewSet(logger)
	decompress.Register(scanners)
	for _, name := range cfg.Scanners.Enable {
		if err := scanners.Enable(name); err != nil {
			return nil, nil, err
		}
	}
	for _, name := range cfg.Scanners.Disable {
		if err := scanners.Disable(name); err != nil {
			return nil, nil, err
		}
	}
	knobs := scanner.NewConfig(cfg.Scanners.Settings)
	if err := scanners.Init(knobs); err != nil {
		return nil, nil, err
	}
	return scanners, knobs, nil
}

func scan(imagePath string, cfg *config.Config, scanners *scanner.Set, logger *slog.Logger, stdout, stderr io.Writer) (err error) {
	// A configured margin of zero means none; the image source reads
	// zero as "default".
	marginSize := cfg.Image.MarginSize
	if marginSize == 0 {
		marginSize = -1
	}
	guard := memguard.New(cfg.Allocation.MinFreeMemory)
	logger.Debug("page allocation guard", "min_free_memory", guard.Floor())
	source, err := imagesource.Open(imagePath, imagesource.Options{
		PageSize:   cfg.Image.PageSize,
		MarginSize: marginSize,
		Allocator:  guard,
	})
	if err != nil {
		return err
	}
	defer source.Close()

	features := feature.NewSet()
	if cfg.Output.FeatureDir != "" {
		features, err = feature.OpenDir(cfg.Output.FeatureDir, scanners.FeatureNames())
		if err != nil {
			return err
		}
	}
	defer func() {
		if closeErr := features.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("closing feature files: %w", closeErr))
		}
	}()
	scanners.SetFeatures(features)

	format, err := cfg.ReportFormat()
	if err != nil {
		return err
	}
	writer := report.New("dfxml", cfg.Output.Report, format, report.A("version", "1.0"))
	writeCreator(writer, scanners, logger)

	options, err := dispatch.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	runMetrics := metrics.New()
	dispatcher, err := dispatch.New(dispatch.Params{
		Source:   source,
		Scanners: scanners,
		Report:   writer,
		Metrics:  runMetrics,
		Clock:    clock.Real(),
		Logger:   logger,
		Stdout:   stdout,
		Stderr:   stderr,
	}, options)
	if err != nil {
		return err
	}

	result, runErr := dispatcher.Run()
	if metricsErr := runMetrics.WriteTextfile(cfg.Output.MetricsFile); metricsErr != nil {
		runErr = errors.Join(runErr, metricsErr)
	}
	if !cfg.Progress.Quiet {
		fmt.Fprintln(stdout, renderSummary(source.Path(), source.Size(), result, scanners.Stats()))
	}
	return runErr
}

// writeCreator records which program produced the report.
func writeCreator(writer *report.Writer, scanners *scanner.Set, logger *slog.Logger) {
	writer.Push("creator")
	writer.Emit("program", "bulkscan", true)
	writer.Emit("version", version.Info(), true)
	if digest, path, err := version.SelfDigest(); err != nil {
		logger.Warn("cannot hash running executable", "error", err)
	} else {
		writer.Emit("executable", path, true, report.A("sha256", digest))
	}
	writer.Emit("command_line", strings.Join(os.Args, " "), true)
	for _, info := range scanners.Infos() {
		writer.Emit("scanner", info.Description, true,
			report.A("name", info.Name),
			report.A("version", info.Version),
		)
	}
	writer.Push("execution_environment")
	for _, field := range hwinfo.Probe().Fields() {
		writer.Emit(field[0], field[1], true)
	}
	writer.Pop()
	writer.Pop()
}

func printScanners(out io.Writer, scanners *scanner.Set, knobs *scanner.Config) {
	for _, info := range scanners.Infos() {
		fmt.Fprintf(out, "%s %s: %s\n", info.Name, info.Version, info.Description)
		for _, knob := range knobs.Knobs() {
			if knob.Scanner != info.Name {
				continue
			}
			fmt.Fprintf(out, "  -S %s=%s\t%s\n", knob.Key, knob.Default, knob.Description)
		}
	}
}

func printHelp(out io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(out, `bulkscan scans a disk image page by page with pluggable content scanners.

Usage:
  bulkscan [flags] IMAGE

Examples:
  # Scan a whole image, writing features and an XML report
  bulkscan -o out/ --report out/report.xml disk.img

  # Sample 1%% of the pages in two passes
  bulkscan -Y 0.01:2 -o out/ disk.img

  # Only look for gzip streams, capped at 16 MiB each
  bulkscan -x all -e gzip -S gzip_max_uncompr_size=16777216 disk.img

Flags:
`)
	flagSet.SetOutput(out)
	flagSet.PrintDefaults()
}
