// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/bureau-foundation/bulkscan/lib/codec"
	"github.com/bureau-foundation/bulkscan/lib/dispatch"
	"github.com/bureau-foundation/bulkscan/lib/report"
	"github.com/bureau-foundation/bulkscan/lib/scanner"
	"github.com/bureau-foundation/bulkscan/lib/testutil"
)

// writeImage writes a 16 KiB image with a gzip member at offset 5000
// and returns its path and contents.
func writeImage(t *testing.T) (string, []byte) {
	t.Helper()
	var compressed bytes.Buffer
	writer := gzip.NewWriter(&compressed)
	writer.Write([]byte(strings.Repeat("evidence ", 100)))
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	image := testutil.Image(16<<10, testutil.Payload{Offset: 5000, Data: compressed.Bytes()})
	return testutil.WriteImage(t, "disk.img", image), image
}

func TestScanWritesReportAndFeatures(t *testing.T) {
	imagePath, image := writeImage(t)
	outputDir := t.TempDir()
	reportPath := filepath.Join(outputDir, "report.xml")
	metricsPath := filepath.Join(outputDir, "bulkscan.prom")

	var stdout, stderr bytes.Buffer
	err := run([]string{
		"--page-size", "4096",
		"--margin-size", "1024",
		"--min-free-memory", "0",
		"--workers", "2",
		"--quiet",
		"--feature-dir", filepath.Join(outputDir, "features"),
		"--report", reportPath,
		"--metrics-file", metricsPath,
		imagePath,
	}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run: %v\nstderr:\n%s", err, stderr.String())
	}

	reportData, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatal(err)
	}
	sum := sha1.Sum(image)
	for _, want := range []string{
		"<creator>",
		"<program>bulkscan</program>",
		"<execution_environment>",
		"<runtime ",
		"<hashdigest type='SHA1'>" + hex.EncodeToString(sum[:]) + "</hashdigest>",
		"<image_size>16384</image_size>",
	} {
		if !strings.Contains(string(reportData), want) {
			t.Errorf("report missing %q:\n%s", want, reportData)
		}
	}

	features, err := os.ReadFile(filepath.Join(outputDir, "features", "compressed.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(features), "5000\tGZIP\tdecoded=900") {
		t.Errorf("compressed.txt = %q, want the gzip member at image offset 5000", features)
	}

	metricsData, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(metricsData), `bulkscan_blocks_total{outcome="dispatched"} 4`) {
		t.Errorf("metrics = %s", metricsData)
	}
	if stdout.Len() != 0 {
		t.Errorf("quiet run wrote to stdout:\n%s", stdout.String())
	}
}

func TestScanCBORReport(t *testing.T) {
	imagePath, _ := writeImage(t)
	reportPath := filepath.Join(t.TempDir(), "report.cbor")

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--page-size", "4096", "--min-free-memory", "0", "--hash", "blake3",
		"--report", reportPath, imagePath}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatal(err)
	}
	var document report.Node
	if err := codec.Unmarshal(data, &document); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	digest := document.Child("source").Child("hashdigest")
	if digest == nil {
		t.Fatal("CBOR report has no digest")
	}
	if kind, _ := digest.Attribute("type"); kind != "BLAKE3" {
		t.Errorf("digest type = %q", kind)
	}
	if !strings.Contains(stdout.String(), "All workers finished!") {
		t.Errorf("stdout missing completion line:\n%s", stdout.String())
	}
	if !strings.Contains(stdout.String(), "pages scanned") {
		t.Errorf("stdout missing summary panel:\n%s", stdout.String())
	}
}

func TestListScanners(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run([]string{"--list-scanners", "-x", "lz4"}, &stdout, &stderr); err != nil {
		t.Fatal(err)
	}
	output := stdout.String()
	if !strings.Contains(output, "gzip_max_uncompr_size=268435456") {
		t.Errorf("missing gzip knob:\n%s", output)
	}
	if strings.Contains(output, "lz4_max_uncompr_size") {
		t.Errorf("disabled scanner listed:\n%s", output)
	}
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"fraction too large", []string{"--sampling", "0.5", "image"}, "fraction"},
		{"unknown scanner", []string{"-e", "rar", "image"}, "unknown scanner"},
		{"bad setting", []string{"-S", "gzip_max_uncompr_size=big", "image"}, "gzip_max_uncompr_size"},
		{"no image", []string{"--min-free-memory", "0"}, "image path"},
		{"missing image", []string{filepath.Join(os.TempDir(), "bulkscan-absent.img")}, "opening image"},
		{"bad log format", []string{"--log-format", "xml", "image"}, "--log-format"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(test.args, &stdout, &stderr)
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("run(%v) = %v, want error mentioning %q", test.args, err, test.want)
			}
		})
	}
}

func TestVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run([]string{"--version"}, &stdout, &stderr); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(stdout.String(), "bulkscan ") {
		t.Errorf("--version printed %q", stdout.String())
	}
}

func TestRenderSummary(t *testing.T) {
	summary := renderSummary("disk.img", 4096, dispatch.Result{
		Submitted:  1,
		TotalBytes: 4096,
		Skipped:    map[string]uint64{"seen": 2},
	}, scanner.Stats{Views: 3, MaxDepth: 2})
	for _, want := range []string{"disk.img (4096 bytes)", "seen=2", "3 (max depth 2)"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}
