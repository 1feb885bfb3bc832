package monitoring

import (
	"fmt"
	"math"
	"time"
)

// Classification thresholds.
const (
	// boundaryBandFraction is the innermost share of the range near
	// either boundary that downgrades a valid value to suspicious.
	boundaryBandFraction = 0.05

	maxFutureSkew  = 5 * time.Minute
	maxReadingAge  = 365 * 24 * time.Hour
	backfillWindow = time.Hour
)

// Verdict is the outcome of classifying one reading.
type Verdict struct {
	Valid    bool
	Quality  Quality
	Warnings []string
	Errors   []string
}

// Classify runs the quality checks for a candidate reading and returns
// the accumulated verdict. All checks run and accumulate; the only
// short-circuit is a non-finite value. The reference time for the
// timestamp checks is now, i.e. ingestion time.
func Classify(ranges *RangeTable, metric MetricType, value float64, timestamp time.Time, unit string, now time.Time) Verdict {
	verdict := Verdict{Valid: true, Quality: QualityNormal}

	if math.IsNaN(value) || math.IsInf(value, 0) {
		verdict.Valid = false
		verdict.Quality = QualityAbnormal
		verdict.Errors = append(verdict.Errors, "value is not a finite number")
		return verdict
	}

	if r, ok := ranges.Lookup(metric); ok {
		switch {
		case value < r.Min || value > r.Max:
			verdict.Errors = append(verdict.Errors,
				fmt.Sprintf("value out of range: %v outside [%v, %v]", value, r.Min, r.Max))
		case value < r.Min+r.Span()*boundaryBandFraction || value > r.Max-r.Span()*boundaryBandFraction:
			verdict.Warnings = append(verdict.Warnings,
				fmt.Sprintf("value near boundary: %v close to [%v, %v] edge", value, r.Min, r.Max))
		}
	}

	age := now.Sub(timestamp)
	switch {
	case age < -maxFutureSkew:
		verdict.Errors = append(verdict.Errors, "timestamp in future")
	case age > maxReadingAge:
		verdict.Errors = append(verdict.Errors, "timestamp too old")
	case age > backfillWindow:
		// Historical and imported data arrives late on purpose.
		verdict.Warnings = append(verdict.Warnings, "possible backfill")
	}

	if unit != "" {
		if canonical := CanonicalUnit(metric); canonical != "" && unit != canonical {
			verdict.Warnings = append(verdict.Warnings,
				fmt.Sprintf("unit mismatch: got %q, expected %q", unit, canonical))
		}
	}

	switch {
	case len(verdict.Errors) > 0:
		verdict.Valid = false
		verdict.Quality = QualityAbnormal
	case len(verdict.Warnings) > 0:
		verdict.Quality = QualitySuspicious
	}
	return verdict
}
