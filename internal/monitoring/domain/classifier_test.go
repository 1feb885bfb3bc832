package monitoring

import (
	"math"
	"strings"
	"testing"
	"time"
)

var classifyNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func classifyAt(t *testing.T, metric MetricType, value float64, timestamp time.Time, unit string) Verdict {
	t.Helper()
	return Classify(NewRangeTable(), metric, value, timestamp, unit, classifyNow)
}

func TestClassifyNonFiniteShortCircuits(t *testing.T) {
	for _, value := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		// Even a timestamp far in the future must not add a second error.
		verdict := classifyAt(t, MetricTemperature, value, classifyNow.Add(48*time.Hour), "")
		if verdict.Valid {
			t.Fatalf("value %v: expected invalid", value)
		}
		if verdict.Quality != QualityAbnormal {
			t.Fatalf("value %v: expected abnormal, got %s", value, verdict.Quality)
		}
		if len(verdict.Errors) != 1 {
			t.Fatalf("value %v: expected single error, got %v", value, verdict.Errors)
		}
		if len(verdict.Warnings) != 0 {
			t.Fatalf("value %v: expected no warnings, got %v", value, verdict.Warnings)
		}
	}
}

func TestClassifyOutOfRange(t *testing.T) {
	verdict := classifyAt(t, MetricTemperature, 200, classifyNow, "")
	if verdict.Valid {
		t.Fatal("expected invalid")
	}
	if verdict.Quality != QualityAbnormal {
		t.Fatalf("expected abnormal, got %s", verdict.Quality)
	}
	if !containsPrefix(verdict.Errors, "value out of range") {
		t.Fatalf("expected out-of-range error, got %v", verdict.Errors)
	}
}

func TestClassifyBoundaryBandIsSuspiciousButValid(t *testing.T) {
	// Temperature range is [-50, 150], so the band is 10 wide.
	cases := []float64{-49, -41, 141, 149}
	for _, value := range cases {
		verdict := classifyAt(t, MetricTemperature, value, classifyNow, "")
		if !verdict.Valid {
			t.Fatalf("value %v: expected valid, errors %v", value, verdict.Errors)
		}
		if verdict.Quality != QualitySuspicious {
			t.Fatalf("value %v: expected suspicious, got %s", value, verdict.Quality)
		}
		if !containsPrefix(verdict.Warnings, "value near boundary") {
			t.Fatalf("value %v: expected boundary warning, got %v", value, verdict.Warnings)
		}
	}
}

func TestClassifyMidRangeNormal(t *testing.T) {
	verdict := classifyAt(t, MetricTemperature, 75.5, classifyNow, "°C")
	if !verdict.Valid || verdict.Quality != QualityNormal {
		t.Fatalf("expected valid normal, got valid=%v quality=%s warnings=%v errors=%v",
			verdict.Valid, verdict.Quality, verdict.Warnings, verdict.Errors)
	}
}

func TestClassifyBackfillWindow(t *testing.T) {
	verdict := classifyAt(t, MetricTemperature, 75.5, classifyNow.Add(-2*time.Hour), "")
	if !verdict.Valid {
		t.Fatalf("expected valid, errors %v", verdict.Errors)
	}
	if verdict.Quality != QualitySuspicious {
		t.Fatalf("expected suspicious, got %s", verdict.Quality)
	}
	if !containsPrefix(verdict.Warnings, "possible backfill") {
		t.Fatalf("expected backfill warning, got %v", verdict.Warnings)
	}
}

func TestClassifyRecentTimestampNoWarning(t *testing.T) {
	verdict := classifyAt(t, MetricTemperature, 75.5, classifyNow.Add(-30*time.Minute), "")
	if verdict.Quality != QualityNormal {
		t.Fatalf("expected normal, got %s (warnings %v)", verdict.Quality, verdict.Warnings)
	}
}

func TestClassifyFutureTimestampInvalid(t *testing.T) {
	verdict := classifyAt(t, MetricTemperature, 75.5, classifyNow.Add(6*time.Minute), "")
	if verdict.Valid {
		t.Fatal("expected invalid")
	}
	if !containsPrefix(verdict.Errors, "timestamp in future") {
		t.Fatalf("expected future-timestamp error, got %v", verdict.Errors)
	}
}

func TestClassifyTooOldInvalid(t *testing.T) {
	verdict := classifyAt(t, MetricTemperature, 75.5, classifyNow.Add(-366*24*time.Hour), "")
	if verdict.Valid {
		t.Fatal("expected invalid")
	}
	if !containsPrefix(verdict.Errors, "timestamp too old") {
		t.Fatalf("expected too-old error, got %v", verdict.Errors)
	}
}

func TestClassifyUnitMismatchWarnsOnly(t *testing.T) {
	verdict := classifyAt(t, MetricTemperature, 75.5, classifyNow, "K")
	if !verdict.Valid {
		t.Fatalf("unit mismatch must not reject, errors %v", verdict.Errors)
	}
	if verdict.Quality != QualitySuspicious {
		t.Fatalf("expected suspicious, got %s", verdict.Quality)
	}
	if !containsPrefix(verdict.Warnings, "unit mismatch") {
		t.Fatalf("expected unit warning, got %v", verdict.Warnings)
	}
}

func TestClassifyChecksAccumulate(t *testing.T) {
	// Boundary value, backfill timestamp, wrong unit: three warnings.
	verdict := classifyAt(t, MetricTemperature, 149, classifyNow.Add(-3*time.Hour), "F")
	if !verdict.Valid {
		t.Fatalf("expected valid, errors %v", verdict.Errors)
	}
	if len(verdict.Warnings) != 3 {
		t.Fatalf("expected 3 warnings, got %v", verdict.Warnings)
	}
}

func TestClassifyRespectsReplacedRanges(t *testing.T) {
	ranges := NewRangeTable()
	if err := ranges.Replace(map[MetricType]MetricRange{
		MetricTemperature: {Min: 0, Max: 50},
	}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	verdict := Classify(ranges, MetricTemperature, 75.5, classifyNow, "", classifyNow)
	if verdict.Valid {
		t.Fatal("expected invalid after retuning range down")
	}
}

func containsPrefix(list []string, prefix string) bool {
	for _, entry := range list {
		if strings.HasPrefix(entry, prefix) {
			return true
		}
	}
	return false
}
