package notify

import "sync/atomic"

// Indicator shows whether the navigation failsafe is active. SetFailsafe is
// called on every control tick and must be cheap.
type Indicator interface {
	SetFailsafe(on bool)
}

// IndicatorFunc adapts a function to Indicator.
type IndicatorFunc func(on bool)

func (f IndicatorFunc) SetFailsafe(on bool) { f(on) }

// Flag is an Indicator that just remembers the level.
type Flag struct {
	on atomic.Bool
}

func (f *Flag) SetFailsafe(on bool) { f.on.Store(on) }

func (f *Flag) On() bool { return f.on.Load() }

// Indicators fans the level out to several indicators.
type Indicators []Indicator

func (is Indicators) SetFailsafe(on bool) {
	for _, i := range is {
		if i != nil {
			i.SetFailsafe(on)
		}
	}
}
