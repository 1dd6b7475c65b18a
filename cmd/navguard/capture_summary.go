package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"navguard/internal/mip"
	"navguard/internal/replay"
)

type captureSummary struct {
	Segments    int
	Chunks      int
	Bytes       int
	MaxDuration time.Duration
	Decoder     mip.Stats
	ParseErrors int
	SetCounts   map[mip.DescriptorSet]int
}

// summarizeCapture decodes every chunk of a capture, replaying the read
// boundaries of the live link. Each segment gets a fresh decoder since the
// link was reopened.
func summarizeCapture(records []replay.Record) captureSummary {
	s := captureSummary{SetCounts: map[mip.DescriptorSet]int{}}
	segs := replay.Split(records)
	s.Segments = len(segs)
	for _, seg := range segs {
		dec := mip.NewDecoder()
		for _, c := range seg.Chunks {
			s.Chunks++
			for _, f := range dec.Write(c.Chunk) {
				if _, err := mip.Parse(f); err != nil {
					s.ParseErrors++
					continue
				}
				s.SetCounts[f.Descriptor]++
			}
		}
		s.Bytes += seg.Bytes()
		s.MaxDuration = max(s.MaxDuration, seg.Duration())
		s.Decoder = addStats(s.Decoder, dec.Stats())
	}
	return s
}

func addStats(a, b mip.Stats) mip.Stats {
	return mip.Stats{
		Frames:         a.Frames + b.Frames,
		ChecksumErrors: a.ChecksumErrors + b.ChecksumErrors,
		SkippedBytes:   a.SkippedBytes + b.SkippedBytes,
	}
}

func printCaptureSummary(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	recs, err := replay.Load(path)
	if err != nil {
		return err
	}
	s := summarizeCapture(recs)

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "chunks: %d\n", s.Chunks)
	fmt.Fprintf(w, "bytes: %d\n", s.Bytes)
	fmt.Fprintf(w, "frames: %d\n", s.Decoder.Frames)
	fmt.Fprintf(w, "checksum_errors: %d\n", s.Decoder.ChecksumErrors)
	fmt.Fprintf(w, "skipped_bytes: %d\n", s.Decoder.SkippedBytes)
	fmt.Fprintf(w, "parse_errors: %d\n", s.ParseErrors)
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)

	sets := make([]int, 0, len(s.SetCounts))
	for k := range s.SetCounts {
		sets = append(sets, int(k))
	}
	sort.Ints(sets)
	fmt.Fprintf(w, "descriptor_counts:\n")
	for _, k := range sets {
		d := mip.DescriptorSet(k)
		fmt.Fprintf(w, "  %s: %d\n", d, s.SetCounts[d])
	}
	return nil
}
