package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MetricType identifies the physical quantity a sensor measures.
type MetricType string

// Closed set of supported metric types.
const (
	MetricVoltage     MetricType = "voltage"
	MetricCurrent     MetricType = "current"
	MetricTemperature MetricType = "temperature"
	MetricPressure    MetricType = "pressure"
	MetricHumidity    MetricType = "humidity"
	MetricVibration   MetricType = "vibration"
	MetricSpeed       MetricType = "speed"
	MetricPower       MetricType = "power"
	MetricFrequency   MetricType = "frequency"
	MetricLevel       MetricType = "level"
	MetricResistance  MetricType = "resistance"
	MetricSwitch      MetricType = "switch"
)

// AllMetricTypes lists every supported metric type.
func AllMetricTypes() []MetricType {
	return []MetricType{
		MetricVoltage,
		MetricCurrent,
		MetricTemperature,
		MetricPressure,
		MetricHumidity,
		MetricVibration,
		MetricSpeed,
		MetricPower,
		MetricFrequency,
		MetricLevel,
		MetricResistance,
		MetricSwitch,
	}
}

// Valid reports whether the metric type belongs to the closed set.
func (m MetricType) Valid() bool {
	_, ok := defaultRanges[m]
	return ok
}

// Quality is the classification tier of a reading.
type Quality string

// Quality tiers.
const (
	QualityNormal     Quality = "normal"
	QualitySuspicious Quality = "suspicious"
	QualityAbnormal   Quality = "abnormal"
)

// Valid reports whether the quality tier is known.
func (q Quality) Valid() bool {
	switch q {
	case QualityNormal, QualitySuspicious, QualityAbnormal:
		return true
	}
	return false
}

// Source tags the provenance of a reading.
type Source string

// Reading provenance tags.
const (
	SourceSensorUpload Source = "sensor-upload"
	SourceFileImport   Source = "file-import"
	SourceManualEntry  Source = "manual-entry"
)

// Valid reports whether the source tag is known.
func (s Source) Valid() bool {
	switch s {
	case SourceSensorUpload, SourceFileImport, SourceManualEntry:
		return true
	}
	return false
}

// MaxAbsValue bounds reading values to a large but finite range.
const MaxAbsValue = 999999.99

// Reading is one telemetry sample. A reading is immutable once
// persisted; quality and unit are resolved exactly once, at write time.
type Reading struct {
	ID              int64
	EquipmentID     string
	Timestamp       time.Time
	MetricType      MetricType
	MonitoringPoint string
	Value           float64
	Unit            string
	Quality         Quality
	Source          Source
	CreatedAt       time.Time
}

// Validate checks reading invariants before persistence.
func (r Reading) Validate() error {
	if r.EquipmentID == "" {
		return errors.New("reading: empty equipment id")
	}
	if r.Timestamp.IsZero() {
		return errors.New("reading: zero timestamp")
	}
	if !r.MetricType.Valid() {
		return fmt.Errorf("reading: unknown metric type %q", r.MetricType)
	}
	if r.Value < -MaxAbsValue || r.Value > MaxAbsValue {
		return fmt.Errorf("reading: value %v outside allowed range", r.Value)
	}
	if !r.Quality.Valid() {
		return fmt.Errorf("reading: unknown quality %q", r.Quality)
	}
	if !r.Source.Valid() {
		return fmt.Errorf("reading: unknown source %q", r.Source)
	}
	return nil
}

// ReadingRepository persists single readings.
type ReadingRepository interface {
	Insert(ctx context.Context, reading *Reading) (int64, error)
}

// ReadingTx is one open storage transaction for a batch of readings.
// Insert failures are isolated per row; Commit makes the surviving rows
// durable together.
type ReadingTx interface {
	Insert(ctx context.Context, reading *Reading) (int64, error)
	Commit() error
	Rollback() error
}

// BatchWriter opens reading transactions.
type BatchWriter interface {
	Begin(ctx context.Context) (ReadingTx, error)
}
