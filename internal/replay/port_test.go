package replay

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func readAll(t *testing.T, p *Port) []byte {
	t.Helper()
	n, err := p.Buffered()
	if err != nil {
		t.Fatalf("Buffered() error: %v", err)
	}
	b := make([]byte, n)
	got, err := p.Read(b)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	return b[:got]
}

func TestPort_ReleasesBytesAsTimePasses(t *testing.T) {
	clk := &fakeClock{t: time.Unix(100, 0)}
	recs := []Record{
		{At: 0, Chunk: nil},
		{At: 10 * time.Millisecond, Chunk: []byte{0xAA}},
		{At: 20 * time.Millisecond, Chunk: []byte{0xBB}},
		{At: 0, Chunk: nil},
		{At: 5 * time.Millisecond, Chunk: []byte{0xCC}},
	}
	p, err := NewPort(recs, 1.0, false, clk.Now)
	if err != nil {
		t.Fatalf("NewPort() error: %v", err)
	}

	if got := readAll(t, p); len(got) != 0 {
		t.Fatalf("got=%x want empty", got)
	}
	clk.Advance(10 * time.Millisecond)
	if got := readAll(t, p); string(got) != "\xAA" {
		t.Fatalf("got=%x want=aa", got)
	}
	clk.Advance(15 * time.Millisecond)
	// Second START continues from the previous record's offset.
	if got := readAll(t, p); string(got) != "\xBB\xCC" {
		t.Fatalf("got=%x want=bbcc", got)
	}
	clk.Advance(time.Second)
	if got := readAll(t, p); len(got) != 0 {
		t.Fatalf("got=%x want empty after end", got)
	}
}

func TestPort_SpeedMultiplier(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	recs := []Record{{At: 100 * time.Millisecond, Chunk: []byte{0x01}}}
	p, err := NewPort(recs, 2.0, false, clk.Now)
	if err != nil {
		t.Fatalf("NewPort() error: %v", err)
	}
	clk.Advance(50 * time.Millisecond)
	if got := readAll(t, p); string(got) != "\x01" {
		t.Fatalf("got=%x want=01", got)
	}
}

func TestPort_Loops(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	recs := []Record{
		{At: 0, Chunk: []byte{0x01}},
		{At: 10 * time.Millisecond, Chunk: []byte{0x02}},
	}
	p, err := NewPort(recs, 1.0, true, clk.Now)
	if err != nil {
		t.Fatalf("NewPort() error: %v", err)
	}
	clk.Advance(10 * time.Millisecond)
	if got := readAll(t, p); string(got) != "\x01\x02" {
		t.Fatalf("got=%x want=0102", got)
	}
	clk.Advance(5 * time.Millisecond)
	if got := readAll(t, p); string(got) != "\x01" {
		t.Fatalf("got=%x want=01 after wrap", got)
	}
}

func TestPort_InvalidInput(t *testing.T) {
	if _, err := NewPort([]Record{{At: 0, Chunk: []byte{1}}}, 0, false, nil); err == nil {
		t.Fatalf("expected error for zero speed")
	}
	if _, err := NewPort([]Record{{At: 0, Chunk: nil}}, 1, false, nil); err == nil {
		t.Fatalf("expected error for empty capture")
	}
}

func TestPort_Closed(t *testing.T) {
	p, err := NewPort([]Record{{At: 0, Chunk: []byte{1}}}, 1, false, nil)
	if err != nil {
		t.Fatalf("NewPort() error: %v", err)
	}
	_ = p.Close()
	if _, err := p.Buffered(); err == nil {
		t.Fatalf("expected error after Close")
	}
	if _, err := p.Read(make([]byte, 1)); err == nil {
		t.Fatalf("expected error after Close")
	}
}
