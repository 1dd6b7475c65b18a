package eventlog

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	time_ns   INTEGER NOT NULL,
	session   TEXT    NOT NULL,
	subsystem INTEGER NOT NULL,
	code      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_time ON events(time_ns);
`

// SQLite persists events from a background goroutine. Write only enqueues;
// when the queue is full the event is dropped and counted.
type SQLite struct {
	db      *sql.DB
	queue   chan Event
	done    chan struct{}
	dropped atomic.Uint64
	failed  atomic.Uint64

	closeOnce sync.Once
}

func OpenSQLite(path string, queueSize int) (*SQLite, error) {
	if queueSize <= 0 {
		queueSize = 64
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open event log %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("event log %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("event log schema: %w", err)
	}

	s := &SQLite{db: db, queue: make(chan Event, queueSize), done: make(chan struct{})}
	go s.run()
	return s, nil
}

func (s *SQLite) Write(e Event) {
	select {
	case s.queue <- e:
	default:
		s.dropped.Add(1)
	}
}

func (s *SQLite) run() {
	defer close(s.done)
	for e := range s.queue {
		_, err := s.db.Exec(`INSERT INTO events (time_ns, session, subsystem, code) VALUES (?, ?, ?, ?)`,
			e.Time.UnixNano(), e.Session, int(e.Subsystem), int(e.Code))
		if err != nil {
			if s.failed.Add(1) == 1 {
				log.Printf("event log insert failed: %v", err)
			}
		}
	}
}

// Dropped counts events discarded because the queue was full.
func (s *SQLite) Dropped() uint64 { return s.dropped.Load() }

// Recent returns up to limit events, newest first.
func (s *SQLite) Recent(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT time_ns, session, subsystem, code FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ns int64
		var e Event
		var sub, code int
		if err := rows.Scan(&ns, &e.Session, &sub, &code); err != nil {
			return nil, err
		}
		e.Time = time.Unix(0, ns).UTC()
		e.Subsystem = Subsystem(sub)
		e.Code = Code(code)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close flushes queued events and closes the database.
func (s *SQLite) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.queue)
		<-s.done
		err = s.db.Close()
	})
	return err
}
