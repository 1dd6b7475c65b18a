package sim

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"navguard/internal/mip"
)

// FaultScript is a deterministic sequence of sensor conditions.
//
// Keyframes are steps, not interpolated: the latest keyframe whose t is at or
// before the elapsed time applies. Zero values fall back to a healthy default.
//
// YAML schema (v1):
//
//	version: 1
//	duration: 60s
//	keyframes:
//	  - t: 0s
//	  - t: 20s
//	    fix: none
//	    satellites: 3
//	    horiz_acc_m: 40
//	  - t: 40s
//	    filter: ahrs
//	    gnss_out: true
type FaultScript struct {
	Version   int             `yaml:"version"`
	Duration  time.Duration   `yaml:"duration"`
	Keyframes []FaultKeyframe `yaml:"keyframes"`
}

type FaultKeyframe struct {
	T          time.Duration `yaml:"t"`
	Fix        string        `yaml:"fix"`
	Satellites uint8         `yaml:"satellites"`
	HorizAccM  float64       `yaml:"horiz_acc_m"`
	VertAccM   float64       `yaml:"vert_acc_m"`
	SpeedAccMS float64       `yaml:"speed_acc_ms"`
	Filter     string        `yaml:"filter"`
	IMUOut     bool          `yaml:"imu_out"`
	GNSSOut    bool          `yaml:"gnss_out"`
	FilterOut  bool          `yaml:"filter_out"`
}

// Conditions is what the simulated sensor reports at one instant.
type Conditions struct {
	FixType     mip.FixType
	Satellites  uint8
	HorizAccM   float64
	VertAccM    float64
	SpeedAccMS  float64
	FilterState mip.FilterState
	IMUOut      bool
	GNSSOut     bool
	FilterOut   bool
}

// Nominal is a healthy full-navigation solution with a 3D fix.
func Nominal() Conditions {
	return Conditions{
		FixType:     mip.Fix3D,
		Satellites:  14,
		HorizAccM:   1.5,
		VertAccM:    2.5,
		SpeedAccMS:  0.2,
		FilterState: mip.FilterFullNav,
	}
}

// Faults is the validated runtime form of a FaultScript.
type Faults struct {
	keyframes []Conditions
	times     []time.Duration
	duration  time.Duration
}

func LoadFaultScript(path string) (FaultScript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return FaultScript{}, err
	}
	return ParseFaultScriptYAML(b)
}

func ParseFaultScriptYAML(b []byte) (FaultScript, error) {
	var s FaultScript
	if err := yaml.Unmarshal(b, &s); err != nil {
		return FaultScript{}, err
	}
	return s, nil
}

// NewFaults validates script.
func NewFaults(script FaultScript) (*Faults, error) {
	if script.Version == 0 {
		script.Version = 1
	}
	if script.Version != 1 {
		return nil, fmt.Errorf("unsupported fault script version %d", script.Version)
	}
	if len(script.Keyframes) == 0 {
		return nil, fmt.Errorf("keyframes is required")
	}

	f := &Faults{}
	for i, kf := range script.Keyframes {
		if kf.T < 0 {
			return nil, fmt.Errorf("keyframes[%d].t must be >= 0", i)
		}
		if i > 0 && kf.T < script.Keyframes[i-1].T {
			return nil, fmt.Errorf("keyframes must be sorted by t (index %d)", i)
		}
		c, err := kf.conditions()
		if err != nil {
			return nil, fmt.Errorf("keyframes[%d]: %w", i, err)
		}
		f.keyframes = append(f.keyframes, c)
		f.times = append(f.times, kf.T)
	}

	f.duration = script.Duration
	if f.duration <= 0 {
		f.duration = f.times[len(f.times)-1]
	}
	return f, nil
}

func (f *Faults) Duration() time.Duration {
	if f == nil {
		return 0
	}
	return f.duration
}

// At returns the conditions in force at elapsed. If loop is true, elapsed
// wraps around Duration().
func (f *Faults) At(elapsed time.Duration, loop bool) Conditions {
	if f == nil {
		return Nominal()
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if loop && f.duration > 0 {
		elapsed %= f.duration
	}
	idx := sort.Search(len(f.times), func(i int) bool { return f.times[i] > elapsed })
	if idx == 0 {
		return Nominal()
	}
	return f.keyframes[idx-1]
}

func (kf FaultKeyframe) conditions() (Conditions, error) {
	c := Nominal()
	if kf.Fix != "" {
		ft, err := parseFix(kf.Fix)
		if err != nil {
			return Conditions{}, err
		}
		c.FixType = ft
	}
	if kf.Filter != "" {
		fs, err := parseFilterState(kf.Filter)
		if err != nil {
			return Conditions{}, err
		}
		c.FilterState = fs
	}
	if kf.Satellites > 0 {
		c.Satellites = kf.Satellites
	}
	if kf.HorizAccM > 0 {
		c.HorizAccM = kf.HorizAccM
	}
	if kf.VertAccM > 0 {
		c.VertAccM = kf.VertAccM
	}
	if kf.SpeedAccMS > 0 {
		c.SpeedAccMS = kf.SpeedAccMS
	}
	c.IMUOut = kf.IMUOut
	c.GNSSOut = kf.GNSSOut
	c.FilterOut = kf.FilterOut
	return c, nil
}

func parseFix(s string) (mip.FixType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return mip.FixNone, nil
	case "2d":
		return mip.Fix2D, nil
	case "3d":
		return mip.Fix3D, nil
	case "rtk_float":
		return mip.FixRTKFloat, nil
	case "rtk_fixed":
		return mip.FixRTKFixed, nil
	}
	return 0, fmt.Errorf("unknown fix %q", s)
}

func parseFilterState(s string) (mip.FilterState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "init":
		return mip.FilterInit, nil
	case "vert_gyro":
		return mip.FilterVertGyro, nil
	case "ahrs":
		return mip.FilterAHRS, nil
	case "full_nav":
		return mip.FilterFullNav, nil
	}
	return 0, fmt.Errorf("unknown filter state %q", s)
}
