package powermeter

import (
	"math"

	"github.com/dustin/go-humanize"
)

// Meter integrates power over time. Each sample is weighted by the time since
// the previous sample, so callers must add samples in increasing timestamp
// order.
type Meter struct {
	sum  float64
	last float64
}

// New returns a meter seeded with a zero sample at start. Seeding one slot
// before the first real sample gives that sample a full slot of weight.
func New(start float64) *Meter {
	return &Meter{last: start}
}

// AddValue records power (watts) as held from the previous timestamp until
// timestamp (seconds).
func (m *Meter) AddValue(power, timestamp float64) {
	m.sum += power * (timestamp - m.last)
	m.last = timestamp
}

// Total returns the accumulated energy in watt-seconds.
func (m *Meter) Total() float64 {
	return m.sum
}

// WattHours returns the accumulated energy in watt-hours.
func (m *Meter) WattHours() float64 {
	return m.sum / 3600
}

// String renders the energy rounded to two decimals, in Wh below 1 kWh and in
// kWh from there on, e.g. "555.56 Wh" or "1,234.5 kWh".
func (m *Meter) String() string {
	wh := round2(m.WattHours())
	if wh == 0 {
		return "0 Wh"
	}
	if math.Abs(wh) < 1000 {
		return humanize.CommafWithDigits(wh, 2) + " Wh"
	}
	return humanize.CommafWithDigits(round2(wh/1000), 2) + " kWh"
}

// round2 rounds half away from zero; humanize truncates extra digits.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
