package monitoring

import (
	"fmt"
	"sync/atomic"
)

// MetricRange is the closed [Min, Max] interval a metric type is
// expected to stay within.
type MetricRange struct {
	Min float64
	Max float64
}

// Span returns the width of the range.
func (r MetricRange) Span() float64 {
	return r.Max - r.Min
}

var defaultRanges = map[MetricType]MetricRange{
	MetricVoltage:     {Min: 0, Max: 1000},
	MetricCurrent:     {Min: 0, Max: 500},
	MetricTemperature: {Min: -50, Max: 150},
	MetricPressure:    {Min: 0, Max: 10000},
	MetricHumidity:    {Min: 0, Max: 100},
	MetricVibration:   {Min: 0, Max: 100},
	MetricSpeed:       {Min: 0, Max: 10000},
	MetricPower:       {Min: 0, Max: 100000},
	MetricFrequency:   {Min: 0, Max: 400},
	MetricLevel:       {Min: 0, Max: 100},
	MetricResistance:  {Min: 0, Max: 1000000},
	MetricSwitch:      {Min: 0, Max: 1},
}

var canonicalUnits = map[MetricType]string{
	MetricVoltage:     "V",
	MetricCurrent:     "A",
	MetricTemperature: "°C",
	MetricPressure:    "kPa",
	MetricHumidity:    "%",
	MetricVibration:   "mm/s",
	MetricSpeed:       "rpm",
	MetricPower:       "kW",
	MetricFrequency:   "Hz",
	MetricLevel:       "%",
	MetricResistance:  "Ω",
	MetricSwitch:      "",
}

// CanonicalUnit returns the default unit for a metric type. The empty
// string means the type is unitless.
func CanonicalUnit(metric MetricType) string {
	return canonicalUnits[metric]
}

// RangeTable holds the per-metric-type ranges used by the quality
// classifier. Operators may retune ranges at runtime; readers always
// observe a complete table, never a half-updated one, because updates
// swap an immutable snapshot.
type RangeTable struct {
	snapshot atomic.Value // map[MetricType]MetricRange
}

// NewRangeTable builds a table seeded with the built-in defaults.
func NewRangeTable() *RangeTable {
	table := &RangeTable{}
	table.snapshot.Store(copyRanges(defaultRanges))
	return table
}

// Lookup returns the range for a metric type.
func (t *RangeTable) Lookup(metric MetricType) (MetricRange, bool) {
	ranges := t.snapshot.Load().(map[MetricType]MetricRange)
	r, ok := ranges[metric]
	return r, ok
}

// Replace installs new bounds for the given metric types. Types absent
// from overrides keep their current bounds. The swap is atomic with
// respect to concurrent Lookup calls.
func (t *RangeTable) Replace(overrides map[MetricType]MetricRange) error {
	for metric, r := range overrides {
		if !metric.Valid() {
			return fmt.Errorf("range table: unknown metric type %q", metric)
		}
		if r.Min >= r.Max {
			return fmt.Errorf("range table: %s min %v must be below max %v", metric, r.Min, r.Max)
		}
	}
	current := t.snapshot.Load().(map[MetricType]MetricRange)
	next := copyRanges(current)
	for metric, r := range overrides {
		next[metric] = r
	}
	t.snapshot.Store(next)
	return nil
}

// Snapshot returns a copy of the current table.
func (t *RangeTable) Snapshot() map[MetricType]MetricRange {
	return copyRanges(t.snapshot.Load().(map[MetricType]MetricRange))
}

func copyRanges(src map[MetricType]MetricRange) map[MetricType]MetricRange {
	dst := make(map[MetricType]MetricRange, len(src))
	for metric, r := range src {
		dst[metric] = r
	}
	return dst
}
