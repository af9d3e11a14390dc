// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/bulkscan/lib/acquire"
	"github.com/bureau-foundation/bulkscan/lib/clock"
	"github.com/bureau-foundation/bulkscan/lib/config"
	"github.com/bureau-foundation/bulkscan/lib/forensic"
	"github.com/bureau-foundation/bulkscan/lib/imagehash"
	"github.com/bureau-foundation/bulkscan/lib/imagesource"
	"github.com/bureau-foundation/bulkscan/lib/metrics"
	"github.com/bureau-foundation/bulkscan/lib/report"
	"github.com/bureau-foundation/bulkscan/lib/sampling"
	"github.com/bureau-foundation/bulkscan/lib/scanner"
	"github.com/bureau-foundation/bulkscan/lib/testutil"
)

const testPageSize = 64

// recordingScanner records the address of every view it scans.
type recordingScanner struct {
	mu        sync.Mutex
	addresses []string
}

func (r *recordingScanner) Init(*scanner.InitParams) (scanner.Info, error) {
	return scanner.Info{Name: "recording"}, nil
}

func (r *recordingScanner) Scan(params *scanner.ScanParams) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addresses = append(r.addresses, params.View.Address.String())
}

func (r *recordingScanner) scanned() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.addresses)
}

type harness struct {
	image     []byte
	source    imagesource.Source
	scanners  *scanner.Set
	recording *recordingScanner
	report    *report.Writer
	metrics   *metrics.Run
	clock     *clock.FakeClock
	stdout    *bytes.Buffer
	stderr    *bytes.Buffer
	submitted []forensic.Address
}

func testImage(pages int) []byte {
	image := make([]byte, pages*testPageSize)
	for i := range image {
		image[i] = byte(i * 7)
	}
	return image
}

func newHarness(t *testing.T, pages int, allocator imagesource.Allocator) *harness {
	t.Helper()
	image := testImage(pages)
	recording := &recordingScanner{}
	scanners := scanner.NewSet(slog.New(slog.NewTextHandler(io.Discard, nil)))
	scanners.Register("recording", recording)
	if err := scanners.Init(nil); err != nil {
		t.Fatal(err)
	}
	return &harness{
		image: image,
		source: imagesource.FromBytes("disk.img", image, imagesource.Options{
			PageSize:   testPageSize,
			MarginSize: 16,
			Allocator:  allocator,
		}),
		scanners:  scanners,
		recording: recording,
		report:    report.New("dfxml", "", report.XML),
		metrics:   metrics.New(),
		clock:     clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		stdout:    &bytes.Buffer{},
		stderr:    &bytes.Buffer{},
	}
}

func defaultOptions() Options {
	return Options{
		Workers:        2,
		QueueDepth:     4,
		Acquire:        acquire.Config{MaxAttempts: 5},
		MaxWait:        0,
		StatusInterval: time.Minute,
		NotifyRate:     1,
		SamplingSeed:   1,
		Hash:           imagehash.SHA1,
	}
}

func (h *harness) dispatcher(t *testing.T, options Options) *Dispatcher {
	t.Helper()
	dispatcher, err := New(Params{
		Source:   h.source,
		Scanners: h.scanners,
		Report:   h.report,
		Metrics:  h.metrics,
		Clock:    h.clock,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Stdout:   h.stdout,
		Stderr:   h.stderr,
	}, options)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	dispatcher.OnSubmit(func(address forensic.Address) {
		h.submitted = append(h.submitted, address)
	})
	return dispatcher
}

func (h *harness) run(t *testing.T, options Options) (Result, error) {
	t.Helper()
	return h.dispatcher(t, options).Run()
}

func (h *harness) submittedStrings() []string {
	var addresses []string
	for _, address := range h.submitted {
		addresses = append(addresses, address.String())
	}
	return addresses
}

func (h *harness) section(t *testing.T, name string) *report.Node {
	t.Helper()
	node := h.report.Document().Child(name)
	if node == nil {
		t.Fatalf("report has no %s section", name)
	}
	return node
}

func TestSequentialRun(t *testing.T) {
	h := newHarness(t, 10, nil)
	result, err := h.run(t, defaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"0", "64", "128", "192", "256", "320", "384", "448", "512", "576"}
	if got := h.submittedStrings(); !slices.Equal(got, want) {
		t.Errorf("submitted = %v, want %v", got, want)
	}
	if result.Submitted != 10 || result.TotalBytes != 640 {
		t.Errorf("result = %+v", result)
	}

	scanned := h.recording.scanned()
	slices.Sort(scanned)
	sortedWant := slices.Clone(want)
	slices.Sort(sortedWant)
	if !slices.Equal(scanned, sortedWant) {
		t.Errorf("scanned = %v, want every submitted page once", scanned)
	}

	sum := sha1.Sum(h.image)
	if !result.HasDigest || result.Digest.Hex() != hex.EncodeToString(sum[:]) {
		t.Errorf("digest = %v (present %v), want %x", result.Digest.Hex(), result.HasDigest, sum)
	}
	digest := h.section(t, "source").Child("hashdigest")
	if digest == nil || digest.Value != hex.EncodeToString(sum[:]) {
		t.Fatalf("report hashdigest = %+v", digest)
	}
	if kind, _ := digest.Attribute("type"); kind != "SHA1" {
		t.Errorf("hashdigest type = %q, want SHA1", kind)
	}
	if name := h.section(t, "source").Child("image_filename"); name == nil || name.Value != "disk.img" {
		t.Errorf("image_filename = %+v", name)
	}

	if !strings.Contains(h.stdout.String(), "All data are read; waiting for workers to finish...") {
		t.Errorf("stdout missing drain message:\n%s", h.stdout.String())
	}
	if !strings.Contains(h.stdout.String(), "All workers finished!") {
		t.Errorf("stdout missing completion message:\n%s", h.stdout.String())
	}
	if got := h.metrics.LabeledValue("bulkscan_blocks_total", "outcome", "dispatched"); got != 10 {
		t.Errorf("dispatched metric = %v, want 10", got)
	}
}

func TestProgressClockStartsAtRun(t *testing.T) {
	h := newHarness(t, 10, nil)
	dispatcher := h.dispatcher(t, defaultOptions())
	// Setup time before Run must not count toward the ETA.
	h.clock.Advance(time.Hour)
	if _, err := dispatcher.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var estimates int
	for _, line := range strings.Split(h.stdout.String(), "\n") {
		if !strings.Contains(line, "Done in") {
			continue
		}
		estimates++
		if !strings.Contains(line, "Done in 0 sec") {
			t.Errorf("progress line %q extrapolates from time before Run", line)
		}
	}
	if estimates == 0 {
		t.Errorf("no progress estimates in output:\n%s", h.stdout.String())
	}
}

func TestQuietRunPrintsNothing(t *testing.T) {
	h := newHarness(t, 3, nil)
	options := defaultOptions()
	options.Quiet = true
	if _, err := h.run(t, options); err != nil {
		t.Fatal(err)
	}
	if h.stdout.Len() != 0 {
		t.Errorf("quiet run wrote to stdout:\n%s", h.stdout.String())
	}
}

func TestHashDisabled(t *testing.T) {
	h := newHarness(t, 3, nil)
	options := defaultOptions()
	options.Hash = ""
	result, err := h.run(t, options)
	if err != nil {
		t.Fatal(err)
	}
	if result.HasDigest || h.section(t, "source").Child("hashdigest") != nil {
		t.Error("digest reported with hashing disabled")
	}
}

func TestSampledRun(t *testing.T) {
	h := newHarness(t, 100, nil)
	options := defaultOptions()
	options.Sampled = true
	options.Sampling = sampling.Parameters{Fraction: 0.1, Passes: 1}

	result, err := h.run(t, options)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(h.submitted) != 10 || result.Submitted != 10 {
		t.Fatalf("submitted %d units, want 10", len(h.submitted))
	}
	for i, address := range h.submitted {
		if address.Base()%testPageSize != 0 || address.Base() >= 100*testPageSize {
			t.Errorf("address %s is not a page in the image", address)
		}
		if i > 0 && forensic.Compare(h.submitted[i-1], address) >= 0 {
			t.Errorf("addresses not strictly ascending: %s then %s", h.submitted[i-1], address)
		}
	}
	if result.HasDigest || h.section(t, "source").Child("hashdigest") != nil {
		t.Error("sampled run must not report a digest")
	}
}

func TestSamplingPassesNeverRepeatPages(t *testing.T) {
	h := newHarness(t, 100, nil)
	options := defaultOptions()
	options.Sampled = true
	options.Sampling = sampling.Parameters{Fraction: 0.1, Passes: 3}

	result, err := h.run(t, options)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	unique := make(map[string]bool)
	for _, address := range h.submittedStrings() {
		if unique[address] {
			t.Errorf("page %s submitted twice", address)
		}
		unique[address] = true
	}
	if total := result.Submitted + result.Skipped[skipSeen]; total != 30 {
		t.Errorf("submitted %d + seen %d = %d, want 30 planned pages",
			result.Submitted, result.Skipped[skipSeen], total)
	}
}

func TestSamplingFractionTooLarge(t *testing.T) {
	h := newHarness(t, 10, nil)
	options := defaultOptions()
	options.Sampled = true
	options.Sampling = sampling.Parameters{Fraction: 0.5, Passes: 1}

	_, err := h.run(t, options)
	if !errors.Is(err, sampling.ErrFractionTooLarge) {
		t.Fatalf("Run = %v, want ErrFractionTooLarge", err)
	}
	if len(h.submitted) != 0 {
		t.Errorf("submitted %d units despite invalid plan", len(h.submitted))
	}
	// The report is still finalized.
	h.section(t, "source")
}

func TestRangeRestriction(t *testing.T) {
	h := newHarness(t, 10, nil)
	options := defaultOptions()
	options.OffsetStart = 128
	options.OffsetEnd = 384

	result, err := h.run(t, options)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"128", "192", "256", "320"}
	if got := h.submittedStrings(); !slices.Equal(got, want) {
		t.Errorf("submitted = %v, want %v", got, want)
	}
	if result.HasDigest {
		t.Error("partial range must not report a digest")
	}
}

func TestPageStart(t *testing.T) {
	h := newHarness(t, 10, nil)
	options := defaultOptions()
	options.PageStart = 3

	result, err := h.run(t, options)
	if err != nil {
		t.Fatal(err)
	}
	if result.Submitted != 7 || result.Skipped[skipOutOfRange] != 3 {
		t.Errorf("submitted %d, skipped %v; want 7 submitted, 3 out of range", result.Submitted, result.Skipped)
	}
	if h.submitted[0].String() != "192" {
		t.Errorf("first page = %s, want 192", h.submitted[0])
	}
}

// countingAllocator refuses the calls for which refuse returns true.
type countingAllocator struct {
	mu     sync.Mutex
	calls  int
	refuse func(call int) bool
}

func (c *countingAllocator) Reserve(int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.refuse(c.calls) {
		return errors.New("available memory below floor")
	}
	return nil
}

func TestAllocationRetries(t *testing.T) {
	allocator := &countingAllocator{refuse: func(call int) bool { return call <= 3 }}
	h := newHarness(t, 10, allocator)

	result, err := h.run(t, defaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Submitted != 10 {
		t.Errorf("submitted %d, want all 10 pages after transient refusals", result.Submitted)
	}

	exceptions := h.section(t, "runtime").ChildrenNamed("debug:exception")
	if len(exceptions) != 3 {
		t.Fatalf("got %d debug:exception entries, want 3", len(exceptions))
	}
	for i, exception := range exceptions {
		if pos, _ := exception.Attribute("pos0"); pos != "0" {
			t.Errorf("exception %d at %s, want 0", i, pos)
		}
		if attempt, _ := exception.Attribute("attempt"); attempt != strconv.Itoa(i+1) {
			t.Errorf("exception %d attempt = %s", i, attempt)
		}
	}
	if got, _ := h.metrics.Value("bulkscan_allocation_refusals_total"); got != 3 {
		t.Errorf("refusal metric = %v, want 3", got)
	}
	if !result.HasDigest {
		t.Error("retried pages are still contiguous; digest expected")
	}
}

func TestAllocationExhaustion(t *testing.T) {
	allocator := &countingAllocator{refuse: func(call int) bool { return call > 3 }}
	h := newHarness(t, 10, allocator)
	options := defaultOptions()
	options.Acquire.MaxAttempts = 2

	result, err := h.run(t, options)
	if !errors.Is(err, acquire.ErrExhausted) {
		t.Fatalf("Run = %v, want ErrExhausted", err)
	}
	want := []string{"0", "64", "128"}
	if got := h.submittedStrings(); !slices.Equal(got, want) {
		t.Errorf("submitted = %v, want %v and nothing after exhaustion", got, want)
	}
	if allocator.calls != 5 {
		t.Errorf("allocator called %d times, want 3 successes + 2 refusals", allocator.calls)
	}
	if result.HasDigest {
		t.Error("aborted run must not report a digest")
	}
	if len(h.section(t, "runtime").ChildrenNamed("debug:exception")) != 2 {
		t.Error("expected one debug:exception per refused attempt")
	}
	if strings.Contains(h.stdout.String(), "All data are read") {
		t.Error("aborted run must not announce that all data were read")
	}
}

// failingSource fails reads of the page at failAt with a non-allocation
// error.
type failingSource struct {
	imagesource.Source
	failAt uint64
}

func (s failingSource) Begin() imagesource.Iterator {
	return failingIterator{Iterator: s.Source.Begin(), failAt: s.failAt}
}

type failingIterator struct {
	imagesource.Iterator
	failAt uint64
}

func (it failingIterator) Alloc() (*forensic.View, error) {
	if it.RawOffset() == it.failAt {
		return nil, errors.New("bad sector")
	}
	return it.Iterator.Alloc()
}

func TestReadErrorSkipsOnePage(t *testing.T) {
	h := newHarness(t, 10, nil)
	h.source = failingSource{Source: h.source, failAt: 192}
	options := defaultOptions()
	options.ReportReadErrors = true

	result, err := h.run(t, options)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Submitted != 9 || result.Skipped[skipReadError] != 1 {
		t.Errorf("submitted %d, skipped %v", result.Submitted, result.Skipped)
	}
	exceptions := h.section(t, "runtime").ChildrenNamed("debug:exception")
	if len(exceptions) != 1 {
		t.Fatalf("got %d debug:exception entries, want 1", len(exceptions))
	}
	if pos, _ := exceptions[0].Attribute("pos0"); pos != "192" {
		t.Errorf("exception at %s, want 192", pos)
	}
	if !strings.Contains(h.stderr.String(), "bad sector") {
		t.Errorf("stderr = %q, want read error notice", h.stderr.String())
	}
	if result.HasDigest {
		t.Error("a gap in the hashed pages must drop the digest")
	}
}

func TestReadErrorReportIsNamespaceWellFormed(t *testing.T) {
	h := newHarness(t, 4, nil)
	h.source = failingSource{Source: h.source, failAt: 192}
	if _, err := h.run(t, defaultOptions()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var encoded bytes.Buffer
	if err := h.report.Encode(&encoded, report.XML); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoder := xml.NewDecoder(&encoded)
	var exceptions int
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("decoding report: %v\n%s", err, encoded.String())
		}
		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != "exception" {
			continue
		}
		exceptions++
		if start.Name.Space != DebugNamespace {
			t.Errorf("exception element in namespace %q, want %q", start.Name.Space, DebugNamespace)
		}
	}
	if exceptions != 1 {
		t.Errorf("decoded %d exception elements, want 1", exceptions)
	}
}

// blockingScanner parks every scan until release is closed.
type blockingScanner struct {
	release chan struct{}
}

func (b *blockingScanner) Init(*scanner.InitParams) (scanner.Info, error) {
	return scanner.Info{Name: "blocking"}, nil
}

func (b *blockingScanner) Scan(*scanner.ScanParams) { <-b.release }

func newBlockingHarness(t *testing.T) (*harness, chan struct{}) {
	t.Helper()
	h := newHarness(t, 2, nil)
	release := make(chan struct{})
	h.scanners = scanner.NewSet(slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.scanners.Register("blocking", &blockingScanner{release: release})
	if err := h.scanners.Init(nil); err != nil {
		t.Fatal(err)
	}
	return h, release
}

func TestDrainTimeout(t *testing.T) {
	h, release := newBlockingHarness(t)
	t.Cleanup(func() { close(release) })

	options := defaultOptions()
	options.Workers = 1
	options.MaxWait = 30 * time.Second
	options.StatusInterval = 10 * time.Second

	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome, 1)
	dispatcher := h.dispatcher(t, options)
	go func() {
		result, err := dispatcher.Run()
		done <- outcome{result, err}
	}()

	// The status ticker and the max-wait timer.
	h.clock.WaitForTimers(2)
	h.clock.Advance(30 * time.Second)

	finished := testutil.RequireReceive(t, done, 5*time.Second, "dispatcher run after drain timeout")
	if !errors.Is(finished.err, ErrDrainTimeout) {
		t.Fatalf("Run = %v, want ErrDrainTimeout", finished.err)
	}
	if !strings.Contains(h.stderr.String(), "Workers are still busy") {
		t.Errorf("stderr missing operator guidance:\n%s", h.stderr.String())
	}
	var timedOut bool
	for _, child := range h.section(t, "runtime").Children {
		if child.Comment && strings.Contains(child.Value, "drain timed out") {
			timedOut = true
		}
	}
	if !timedOut {
		t.Error("report missing drain timeout comment")
	}
	// The report is finalized even after a timeout.
	h.section(t, "source")
}

// signalWriter closes matched the first time a write contains pattern.
type signalWriter struct {
	mu      sync.Mutex
	buffer  bytes.Buffer
	pattern string
	matched chan struct{}
	once    sync.Once
}

func (w *signalWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if bytes.Contains(p, []byte(w.pattern)) {
		w.once.Do(func() { close(w.matched) })
	}
	return w.buffer.Write(p)
}

func TestDrainStatusLines(t *testing.T) {
	h, release := newBlockingHarness(t)

	options := defaultOptions()
	options.Workers = 1
	options.MaxWait = 0
	options.StatusInterval = 10 * time.Second

	stdout := &signalWriter{pattern: "Time elapsed waiting for workers to finish", matched: make(chan struct{})}
	dispatcher, err := New(Params{
		Source:   h.source,
		Scanners: h.scanners,
		Report:   h.report,
		Clock:    h.clock,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Stdout:   stdout,
	}, options)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := dispatcher.Run()
		done <- err
	}()

	// Only the status ticker: no max wait.
	h.clock.WaitForTimers(1)
	h.clock.Advance(10 * time.Second)
	testutil.RequireClosed(t, stdout.matched, 5*time.Second, "drain status line")
	close(release)

	if err := testutil.RequireReceive(t, done, 5*time.Second, "dispatcher run"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	output := stdout.buffer.String()
	if !strings.Contains(output, "Time elapsed waiting for workers to finish: 10 sec") {
		t.Errorf("status line missing:\n%s", output)
	}
	if strings.Contains(output, "timeout in") {
		t.Errorf("status line mentions a timeout with no max wait:\n%s", output)
	}
	if !strings.Contains(output, "All workers finished!") {
		t.Errorf("completion message missing:\n%s", output)
	}
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	h := newHarness(t, 1, nil)
	options := defaultOptions()
	options.Workers = 0
	if _, err := New(Params{Source: h.source, Scanners: h.scanners, Report: h.report, Clock: h.clock}, options); err == nil {
		t.Error("New accepted zero workers")
	}
	options = defaultOptions()
	options.Sampled = true
	options.Sampling = sampling.Parameters{Fraction: 0.1, Passes: 0}
	if _, err := New(Params{Source: h.source, Scanners: h.scanners, Report: h.report, Clock: h.clock}, options); !errors.Is(err, sampling.ErrInvalidPasses) {
		t.Errorf("New = %v, want ErrInvalidPasses", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Workers = 3
	cfg.Sampling = "0.05:2"
	cfg.Hash = "none"
	cfg.Range.OffsetEnd = 4096

	options, err := OptionsFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !options.Sampled || options.Sampling.Fraction != 0.05 || options.Sampling.Passes != 2 {
		t.Errorf("sampling options = %+v", options.Sampling)
	}
	if options.Hash != "" {
		t.Errorf("hash = %q, want disabled", options.Hash)
	}
	if options.QueueDepth != 6 || options.OffsetEnd != 4096 {
		t.Errorf("options = %+v", options)
	}
	if options.Acquire.MaxAttempts != 64 || options.Acquire.Delay != time.Minute {
		t.Errorf("acquire = %+v", options.Acquire)
	}
}
