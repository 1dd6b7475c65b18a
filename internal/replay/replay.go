// Package replay records raw serial reads from the sensor link and plays
// them back as a serial.Port.
//
// A capture is line-oriented text. Every time the link is opened the writer
// starts a segment with a "START" line; each read that returned data becomes
// "<t_ns>,<hex>" with t_ns measured from that START. Chunk boundaries are the
// read boundaries seen by the decoder, so a replay splits frames exactly
// where the live link did. Blank lines and lines starting with '#' are
// ignored.
package replay

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const startMarker = "START"

// Record is one line of a capture. A nil Chunk is a START marker.
type Record struct {
	At    time.Duration
	Chunk []byte
}

// LineError reports a malformed capture line.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string { return fmt.Sprintf("capture line %d: %v", e.Line, e.Err) }
func (e *LineError) Unwrap() error { return e.Err }

// Reader decodes a capture one record at a time.
type Reader struct {
	s    *bufio.Scanner
	line int
}

func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	// A chunk is at most one drain of the link; hex doubles it.
	s.Buffer(make([]byte, 0, 16*1024), 1<<20)
	return &Reader{s: s}
}

// Next returns the next record, or io.EOF at the end of the capture.
func (rr *Reader) Next() (Record, error) {
	for rr.s.Scan() {
		rr.line++
		line := strings.TrimSpace(rr.s.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		if line == startMarker {
			return Record{}, nil
		}
		rec, err := parseChunk(line)
		if err != nil {
			return Record{}, &LineError{Line: rr.line, Err: err}
		}
		return rec, nil
	}
	if err := rr.s.Err(); err != nil {
		return Record{}, err
	}
	return Record{}, io.EOF
}

// ReadAll returns every remaining record.
func (rr *Reader) ReadAll() ([]Record, error) {
	var recs []Record
	for {
		rec, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
}

func parseChunk(line string) (Record, error) {
	ts, payload, ok := strings.Cut(line, ",")
	if !ok {
		return Record{}, errors.New("missing comma")
	}
	ns, err := strconv.ParseInt(strings.TrimSpace(ts), 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("timestamp: %w", err)
	}
	if ns < 0 {
		return Record{}, fmt.Errorf("negative timestamp %d", ns)
	}
	chunk, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(payload), " ", ""))
	if err != nil {
		return Record{}, fmt.Errorf("chunk: %w", err)
	}
	if len(chunk) == 0 {
		return Record{}, errors.New("empty chunk")
	}
	return Record{At: time.Duration(ns), Chunk: chunk}, nil
}

// Load reads a capture file.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewReader(f).ReadAll()
}

// Segment is one opening of the link. Chunk offsets are relative to its START
// and never decrease.
type Segment struct {
	Chunks []Record
}

// Duration is the offset of the last chunk.
func (s Segment) Duration() time.Duration {
	if len(s.Chunks) == 0 {
		return 0
	}
	return s.Chunks[len(s.Chunks)-1].At
}

func (s Segment) Bytes() int {
	n := 0
	for _, c := range s.Chunks {
		n += len(c.Chunk)
	}
	return n
}

// Split groups records by START marker. Chunks before the first marker form
// an implicit segment; empty segments are kept so segment counts match the
// number of link openings. Out-of-order offsets are clamped forward.
func Split(records []Record) []Segment {
	var segs []Segment
	for _, r := range records {
		if r.Chunk == nil {
			segs = append(segs, Segment{})
			continue
		}
		if len(segs) == 0 {
			segs = append(segs, Segment{})
		}
		seg := &segs[len(segs)-1]
		if at := seg.Duration(); r.At < at {
			r.At = at
		}
		seg.Chunks = append(seg.Chunks, r)
	}
	return segs
}

// Writer appends segments to a capture file. It implements serial.Recorder.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	start  time.Time
	closed bool
}

// OpenWriter opens path for appending and starts a new segment. An existing
// capture keeps its earlier segments.
func OpenWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	ww := &Writer{f: f, w: bufio.NewWriterSize(f, 64*1024)}
	if fi, err := f.Stat(); err == nil && fi.Size() == 0 {
		_, _ = ww.w.WriteString("# navguard mip capture: <t_ns>,<hex> per link read\n")
	}
	if err := ww.startSegment(time.Now()); err != nil {
		_ = f.Close()
		return nil, err
	}
	return ww, nil
}

func (ww *Writer) startSegment(now time.Time) error {
	ww.start = now
	_, err := ww.w.WriteString(startMarker + "\n")
	return err
}

// WriteChunk appends one read. Empty reads are not recorded.
func (ww *Writer) WriteChunk(now time.Time, chunk []byte) error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return errors.New("capture writer is closed")
	}
	if len(chunk) == 0 {
		return nil
	}
	d := max(now.Sub(ww.start), 0)
	_, err := fmt.Fprintf(ww.w, "%d,%x\n", d.Nanoseconds(), chunk)
	return err
}

func (ww *Writer) Flush() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

// Close flushes and closes the file. Further writes fail.
func (ww *Writer) Close() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	ww.closed = true
	ferr := ww.w.Flush()
	cerr := ww.f.Close()
	return errors.Join(ferr, cerr)
}
