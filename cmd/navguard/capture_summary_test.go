package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"navguard/internal/mip"
	"navguard/internal/replay"
)

func mustEncode(t *testing.T, set mip.DescriptorSet, fields ...mip.Field) []byte {
	t.Helper()
	b, err := mip.Encode(set, fields...)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return b
}

func TestSummarizeCapture(t *testing.T) {
	imu := mustEncode(t, mip.IMUData, mip.Field{Descriptor: 0x04, Data: make([]byte, 12)})
	filter := mustEncode(t, mip.FilterData, mip.Field{Descriptor: 0x10, Data: make([]byte, 6)})
	bad := append([]byte(nil), imu...)
	bad[6] ^= 0xFF

	recs := []replay.Record{
		{At: 0, Chunk: nil},
		{At: 0, Chunk: imu[:5]},
		{At: 10 * time.Millisecond, Chunk: imu[5:]},
		{At: 20 * time.Millisecond, Chunk: bad},
		{At: 0, Chunk: nil},
		{At: 1 * time.Second, Chunk: append([]byte{0x00, 0x01}, filter...)},
	}

	s := summarizeCapture(recs)
	if s.Segments != 2 {
		t.Fatalf("segments=%d want 2", s.Segments)
	}
	if s.Chunks != 4 {
		t.Fatalf("chunks=%d want 4", s.Chunks)
	}
	if s.Decoder.Frames != 2 {
		t.Fatalf("frames=%d want 2", s.Decoder.Frames)
	}
	if s.Decoder.ChecksumErrors != 1 {
		t.Fatalf("checksum_errors=%d want 1", s.Decoder.ChecksumErrors)
	}
	if s.SetCounts[mip.IMUData] != 1 || s.SetCounts[mip.FilterData] != 1 {
		t.Fatalf("set counts=%v", s.SetCounts)
	}
	if s.MaxDuration != time.Second {
		t.Fatalf("max_duration=%s want 1s", s.MaxDuration)
	}
}

func TestSummarizeCapture_Empty(t *testing.T) {
	s := summarizeCapture(nil)
	if s.Segments != 0 || s.Chunks != 0 || len(s.SetCounts) != 0 {
		t.Fatalf("summary=%+v", s)
	}
}

func TestPrintCaptureSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.log")
	w, err := replay.OpenWriter(path)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	imu := mustEncode(t, mip.IMUData, mip.Field{Descriptor: 0x05, Data: make([]byte, 12)})
	if err := w.WriteChunk(time.Now(), imu); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var out bytes.Buffer
	if err := printCaptureSummary(&out, path); err != nil {
		t.Fatalf("printCaptureSummary: %v", err)
	}
	for _, want := range []string{"segments: 1\n", "frames: 1\n", "  imu: 1\n"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("missing %q in:\n%s", want, out.String())
		}
	}

	if err := printCaptureSummary(&out, "  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if err := printCaptureSummary(&out, filepath.Join(t.TempDir(), "missing.log")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	_ = os.Remove(path)
}
