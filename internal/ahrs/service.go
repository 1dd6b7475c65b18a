// Package ahrs runs the external AHRS ingestion task and answers health and
// status queries about it.
package ahrs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"navguard/internal/health"
	"navguard/internal/navstate"
)

var logf = log.Printf

// ErrSpawn means the ingestion task could not be started. Callers must treat
// it as fatal.
var ErrSpawn = errors.New("ahrs: failed to start ingestion task")

// DefaultPollInterval is the park between drains.
const DefaultPollInterval = 100 * time.Microsecond

// Spawner starts a named long-lived task.
type Spawner interface {
	Go(name string, fn func()) error
}

// GoSpawner runs tasks as goroutines.
type GoSpawner struct{}

func (GoSpawner) Go(_ string, fn func()) error {
	go fn()
	return nil
}

type Config struct {
	Enable       bool
	PollInterval time.Duration
}

type Snapshot struct {
	Backend     string              `json:"backend"`
	Available   bool                `json:"available"`
	Healthy     bool                `json:"healthy"`
	Initialized bool                `json:"initialized"`
	PreArmOK    bool                `json:"pre_arm_ok"`
	PreArm      string              `json:"pre_arm,omitempty"`
	Maturity    string              `json:"maturity"`
	Filter      health.FilterStatus `json:"filter"`
	Report      health.StatusReport `json:"report"`
	GNSS        []navstate.GNSS     `json:"gnss"`
	Origin      *navstate.Location  `json:"origin,omitempty"`
	Location    *navstate.Location  `json:"location,omitempty"`
	Stats       Stats               `json:"stats"`
	LastError   string              `json:"last_error,omitempty"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Service owns the ingestion task for one backend.
type Service struct {
	cfg     Config
	backend Backend
	spawner Spawner
	now     func() time.Time

	startOnce sync.Once
	startErr  error

	mu        sync.RWMutex
	available bool
	lastErr   string
}

func New(cfg Config, backend Backend, spawner Spawner) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if spawner == nil {
		spawner = GoSpawner{}
	}
	return &Service{cfg: cfg, backend: backend, spawner: spawner, now: time.Now}
}

// Start opens the link and launches the ingestion task. It is idempotent.
//
// A link that cannot be opened leaves the service permanently unavailable and
// is not an error. Failure to launch the task returns ErrSpawn.
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.backend == nil {
		return fmt.Errorf("ahrs: service is nil")
	}
	s.startOnce.Do(func() {
		s.startErr = s.start(ctx)
	})
	return s.startErr
}

func (s *Service) start(ctx context.Context) error {
	if !s.cfg.Enable {
		return nil
	}
	if err := s.backend.Open(); err != nil {
		s.mu.Lock()
		s.lastErr = fmt.Sprintf("open: %v", err)
		s.mu.Unlock()
		logf("ahrs unavailable backend=%s err=%v", s.backend.Name(), err)
		return nil
	}
	s.mu.Lock()
	s.available = true
	s.mu.Unlock()

	if err := s.spawner.Go("ahrs-"+s.backend.Name(), func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	logf("ahrs started backend=%s poll=%s", s.backend.Name(), s.cfg.PollInterval)
	return nil
}

// run drains the link until ctx is cancelled at process shutdown, then
// closes it.
func (s *Service) run(ctx context.Context) {
	t := time.NewTicker(s.cfg.PollInterval)
	defer t.Stop()
	defer s.closeLink()
	for {
		s.backend.Poll(s.now())
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (s *Service) closeLink() {
	s.mu.Lock()
	s.available = false
	s.mu.Unlock()
	if err := s.backend.Close(); err != nil {
		logf("ahrs close backend=%s err=%v", s.backend.Name(), err)
		return
	}
	logf("ahrs stopped backend=%s", s.backend.Name())
}

func (s *Service) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.available
}

func (s *Service) Healthy() bool {
	return s.Available() && s.backend.Healthy(s.now())
}

func (s *Service) Initialized() bool {
	return s.Available() && s.backend.Initialized()
}

func (s *Service) PreArmCheck() (bool, string) {
	if !s.Available() {
		return false, "AHRS unavailable"
	}
	return s.backend.PreArmCheck(s.now())
}

func (s *Service) StatusReport() health.StatusReport {
	return s.backend.StatusReport(s.now())
}

func (s *Service) Origin() (navstate.Location, bool) {
	return s.backend.Origin()
}

// Variances is the failsafe variance source.
func (s *Service) Variances() health.VarianceSample {
	return health.Variances(s.backend.State())
}

// PositionOK is the failsafe position-quality check.
func (s *Service) PositionOK(armed bool) bool {
	return health.PositionOK(s.backend.FilterStatus(s.now()), armed)
}

func (s *Service) Snapshot() Snapshot {
	now := s.now()
	st := s.backend.State()
	ok, reason := s.PreArmCheck()

	s.mu.RLock()
	snap := Snapshot{
		Backend:   s.backend.Name(),
		Available: s.available,
		LastError: s.lastErr,
	}
	s.mu.RUnlock()

	snap.Healthy = snap.Available && health.Healthy(st, now)
	snap.Initialized = snap.Available && health.Initialized(st)
	snap.PreArmOK, snap.PreArm = ok, reason
	snap.Maturity = st.Filter.Maturity.String()
	snap.Filter = health.Filter(st, now)
	snap.Report = health.Report(st, now)
	snap.GNSS = append([]navstate.GNSS(nil), st.GNSS[:]...)
	if st.HaveOrigin {
		o := st.Origin
		snap.Origin = &o
	}
	if st.HaveLocation {
		l := st.Location
		snap.Location = &l
	}
	snap.Stats = s.backend.Stats()
	snap.UpdatedAt = now
	return snap
}
