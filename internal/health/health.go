// Package health derives readiness, filter status and error figures from a
// navigation state snapshot. Everything here is a pure function of its inputs.
package health

import (
	"time"

	"navguard/internal/navstate"
)

// Freshness limits per channel.
const (
	MaxINSAge    = 40 * time.Millisecond
	MaxGPSAge    = 500 * time.Millisecond
	MaxFilterAge = 500 * time.Millisecond
)

const fix3D = 3

// Healthy reports whether every channel is fresh and the estimator is producing
// attitude or a full navigation solution.
func Healthy(st navstate.State, now time.Time) bool {
	fresh := fresh(st.LastINS, now, MaxINSAge) &&
		fresh(st.LastGPS, now, MaxGPSAge) &&
		fresh(st.LastFilter, now, MaxFilterAge)
	return fresh && st.Filter.Maturity.Navigating()
}

// Initialized reports whether every channel has been seen at least once and the
// estimator is producing attitude or better.
func Initialized(st navstate.State) bool {
	seen := !st.LastINS.IsZero() && !st.LastGPS.IsZero() && !st.LastFilter.IsZero()
	return seen && st.Filter.Maturity.Navigating()
}

// PreArmCheck returns "" when ready to arm, otherwise the first failing reason
// prefixed with name.
func PreArmCheck(name string, st navstate.State, now time.Time) (bool, string) {
	if !Healthy(st, now) {
		return false, name + " unhealthy"
	}
	if st.GNSS[0].FixType < fix3D {
		return false, name + " no GNSS lock"
	}
	if st.Filter.Maturity < navstate.MaturityCoarse {
		return false, name + " filter not running"
	}
	return true, ""
}

func fresh(last, now time.Time, limit time.Duration) bool {
	if last.IsZero() {
		return false
	}
	return now.Sub(last) < limit
}
