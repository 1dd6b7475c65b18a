package eventlog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func ev(sec int64, s Subsystem, c Code) Event {
	return Event{Time: time.Unix(sec, 0).UTC(), Session: "s1", Subsystem: s, Code: c}
}

func TestMemory_RingKeepsNewest(t *testing.T) {
	m := NewMemory(3)
	for i := int64(1); i <= 5; i++ {
		m.Write(ev(i, EKFCheck, BadVariance))
	}
	got := m.Events()
	require.Len(t, got, 3)
	require.Equal(t, time.Unix(3, 0).UTC(), got[0].Time)
	require.Equal(t, time.Unix(5, 0).UTC(), got[2].Time)
}

func TestMemory_PartiallyFilled(t *testing.T) {
	m := NewMemory(4)
	m.Write(ev(1, EKFCheck, BadVariance))
	if diff := cmp.Diff([]Event{ev(1, EKFCheck, BadVariance)}, m.Events()); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestRecorder_StampsSession(t *testing.T) {
	m := NewMemory(4)
	r := NewRecorder(Multi{m, nil}, "abc")
	r.now = func() time.Time { return time.Unix(7, 0) }
	r.Log(FailsafeEKFInav, FailsafeOccurred)

	want := []Event{{Time: time.Unix(7, 0).UTC(), Session: "abc", Subsystem: FailsafeEKFInav, Code: FailsafeOccurred}}
	if diff := cmp.Diff(want, m.Events()); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}

	var nilRec *Recorder
	nilRec.Log(EKFCheck, BadVariance)
}

func TestEvent_Describe(t *testing.T) {
	require.Equal(t, "EKF variance bad", ev(0, EKFCheck, BadVariance).Describe())
	require.Equal(t, "EKF variance cleared", ev(0, EKFCheck, VarianceCleared).Describe())
	require.Equal(t, "EKF failsafe occurred", ev(0, FailsafeEKFInav, FailsafeOccurred).Describe())
	require.Equal(t, "EKF failsafe resolved", ev(0, FailsafeEKFInav, FailsafeResolved).Describe())
	require.Equal(t, "subsystem(3) code=9", ev(0, 3, 9).Describe())
}

func TestSQLite_PersistsAndReadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	s, err := OpenSQLite(path, 8)
	require.NoError(t, err)

	s.Write(ev(1, EKFCheck, BadVariance))
	s.Write(ev(2, FailsafeEKFInav, FailsafeOccurred))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path, 8)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Recent(10)
	require.NoError(t, err)
	want := []Event{ev(2, FailsafeEKFInav, FailsafeOccurred), ev(1, EKFCheck, BadVariance)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLite_FullQueueDrops(t *testing.T) {
	s := &SQLite{queue: make(chan Event, 1)}
	s.Write(ev(1, EKFCheck, BadVariance))
	s.Write(ev(2, EKFCheck, BadVariance))
	require.Equal(t, uint64(1), s.Dropped())
}
