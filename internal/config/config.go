package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"navguard/internal/serial"
	"navguard/internal/vehicle"
)

// Link sources for the AHRS.
const (
	SourceSerial = "serial"
	SourceSim    = "sim"
	SourceReplay = "replay"
)

type Config struct {
	AHRS     AHRSConfig     `yaml:"ahrs"`
	Failsafe FailsafeConfig `yaml:"failsafe"`
	Vehicle  VehicleConfig  `yaml:"vehicle"`
	EventLog EventLogConfig `yaml:"eventlog"`
	Notify   NotifyConfig   `yaml:"notify"`
	Web      WebConfig      `yaml:"web"`
}

type AHRSConfig struct {
	Enable       bool           `yaml:"enable"`
	Backend      string         `yaml:"backend"`
	Source       string         `yaml:"source"`
	Serial       serial.Options `yaml:"serial"`
	MaxReadBytes int            `yaml:"max_read_bytes"`
	PollInterval time.Duration  `yaml:"poll_interval"`
	Capture      CaptureConfig  `yaml:"capture"`
	Sim          SimConfig      `yaml:"sim"`
	Replay       ReplayConfig   `yaml:"replay"`
}

type CaptureConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type ReplayConfig struct {
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"`
	Loop  bool    `yaml:"loop"`
}

type SimConfig struct {
	CenterLatDeg float64       `yaml:"center_lat_deg"`
	CenterLonDeg float64       `yaml:"center_lon_deg"`
	AltM         float64       `yaml:"alt_m"`
	RadiusM      float64       `yaml:"radius_m"`
	Period       time.Duration `yaml:"period"`
	DualAntenna  bool          `yaml:"dual_antenna"`
	FaultsPath   string        `yaml:"faults_path"`
	Loop         bool          `yaml:"loop"`
}

type FailsafeConfig struct {
	// Threshold <= 0 disables the variance check.
	Threshold    float64       `yaml:"threshold"`
	Iterations   int           `yaml:"iterations"`
	WarnInterval time.Duration `yaml:"warn_interval"`
	Tick         time.Duration `yaml:"tick"`
	FallbackMode vehicle.Mode  `yaml:"fallback_mode"`
}

type VehicleConfig struct {
	InitialMode vehicle.Mode `yaml:"initial_mode"`
}

type EventLogConfig struct {
	Path       string `yaml:"path"`
	QueueSize  int    `yaml:"queue_size"`
	MemorySize int    `yaml:"memory_size"`
}

type NotifyConfig struct {
	UDPDest string `yaml:"udp_dest"`
	LEDGPIO int    `yaml:"led_gpio"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes YAML, applies defaults and validates. Unknown fields are rejected.
func Parse(b []byte) (Config, error) {
	var cfg Config
	// Fields whose zero value is meaningful start at their default.
	cfg.Failsafe.Threshold = 0.8
	cfg.Failsafe.FallbackMode = vehicle.ModeHold
	cfg.Vehicle.InitialMode = vehicle.ModeManual
	cfg.Web.Enable = true

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}

	if err := cfg.AHRS.normalize(); err != nil {
		return Config{}, err
	}

	if cfg.Failsafe.Iterations < 0 {
		return Config{}, fmt.Errorf("failsafe.iterations must be >= 0")
	}
	if cfg.Failsafe.Iterations == 0 {
		cfg.Failsafe.Iterations = 10
	}
	if cfg.Failsafe.WarnInterval <= 0 {
		cfg.Failsafe.WarnInterval = 30 * time.Second
	}
	if cfg.Failsafe.Tick <= 0 {
		cfg.Failsafe.Tick = 100 * time.Millisecond
	}
	if cfg.Failsafe.FallbackMode.RequiresPosition() || cfg.Failsafe.FallbackMode.RequiresVelocity() {
		return Config{}, fmt.Errorf("failsafe.fallback_mode %s needs a position estimate", cfg.Failsafe.FallbackMode)
	}

	if cfg.EventLog.QueueSize <= 0 {
		cfg.EventLog.QueueSize = 64
	}
	if cfg.EventLog.MemorySize <= 0 {
		cfg.EventLog.MemorySize = 256
	}

	if cfg.Notify.LEDGPIO < 0 {
		return Config{}, fmt.Errorf("notify.led_gpio must be >= 0")
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}
	return cfg, nil
}

func (a *AHRSConfig) normalize() error {
	a.Backend = strings.ToLower(strings.TrimSpace(a.Backend))
	if a.Backend == "" {
		a.Backend = "microstrain7"
	}
	if a.Backend != "microstrain7" {
		return fmt.Errorf("ahrs.backend %q is not supported", a.Backend)
	}
	if a.MaxReadBytes <= 0 {
		a.MaxReadBytes = 2048
	}
	if a.PollInterval <= 0 {
		a.PollInterval = 100 * time.Microsecond
	}
	if !a.Enable {
		return nil
	}

	a.Source = strings.ToLower(strings.TrimSpace(a.Source))
	if a.Source == "" {
		a.Source = SourceSerial
	}
	switch a.Source {
	case SourceSerial:
		opts, err := a.Serial.Normalize()
		if err != nil {
			return fmt.Errorf("ahrs.serial: %w", err)
		}
		a.Serial = opts
	case SourceSim:
		if a.Sim.Period <= 0 {
			a.Sim.Period = 120 * time.Second
		}
		if a.Sim.RadiusM <= 0 {
			a.Sim.RadiusM = 100
		}
	case SourceReplay:
		if a.Replay.Path == "" {
			return fmt.Errorf("ahrs.replay.path is required when ahrs.source is replay")
		}
		if a.Replay.Speed == 0 {
			a.Replay.Speed = 1
		}
		if a.Replay.Speed < 0 {
			return fmt.Errorf("ahrs.replay.speed must be > 0")
		}
	default:
		return fmt.Errorf("ahrs.source %q is not one of serial, sim, replay", a.Source)
	}

	if a.Capture.Enable {
		if a.Capture.Path == "" {
			return fmt.Errorf("ahrs.capture.path is required when ahrs.capture.enable is true")
		}
		if a.Source == SourceReplay {
			return fmt.Errorf("ahrs.capture cannot be used with ahrs.source=replay")
		}
	}
	return nil
}
