package alarms

import (
	"context"
	"errors"
	"time"

	monitoring "vessel-monitor/internal/monitoring/domain"
)

// Operator compares a reading value against a rule threshold.
type Operator string

// Supported comparison operators.
const (
	OperatorGreater        Operator = ">"
	OperatorGreaterOrEqual Operator = ">="
	OperatorLess           Operator = "<"
	OperatorLessOrEqual    Operator = "<="
)

// Rule is one enabled threshold condition for an equipment. An empty
// MonitoringPoint matches readings from any point of the metric type.
type Rule struct {
	ID              string
	EquipmentID     string
	MetricType      monitoring.MetricType
	MonitoringPoint string
	Operator        Operator
	Threshold       float64
	Severity        string
	Enabled         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Validate checks rule invariants.
func (r Rule) Validate() error {
	if r.ID == "" {
		return errors.New("alarm rule: empty id")
	}
	if r.EquipmentID == "" {
		return errors.New("alarm rule: empty equipment id")
	}
	if !r.MetricType.Valid() {
		return errors.New("alarm rule: unknown metric type")
	}
	switch r.Operator {
	case OperatorGreater, OperatorGreaterOrEqual, OperatorLess, OperatorLessOrEqual:
	default:
		return errors.New("alarm rule: unknown operator")
	}
	return nil
}

// Matches reports whether the rule applies to the reading.
func (r Rule) Matches(reading monitoring.Reading) bool {
	if r.MetricType != reading.MetricType {
		return false
	}
	if r.MonitoringPoint != "" && r.MonitoringPoint != reading.MonitoringPoint {
		return false
	}
	return true
}

// Triggered reports whether the value violates the rule threshold.
func (r Rule) Triggered(value float64) bool {
	switch r.Operator {
	case OperatorGreater:
		return value > r.Threshold
	case OperatorGreaterOrEqual:
		return value >= r.Threshold
	case OperatorLess:
		return value < r.Threshold
	case OperatorLessOrEqual:
		return value <= r.Threshold
	default:
		return false
	}
}

// Alarm is one triggered threshold violation, tied to the reading that
// caused it.
type Alarm struct {
	ID              string
	EquipmentID     string
	RuleID          string
	MetricType      monitoring.MetricType
	MonitoringPoint string
	Value           float64
	Threshold       float64
	Operator        Operator
	Severity        string
	TriggeredAt     time.Time
	ReadingID       int64
}

// RuleRepository reads threshold rules.
type RuleRepository interface {
	ListEnabledByEquipment(ctx context.Context, equipmentID string) ([]Rule, error)
}

// AlarmRepository persists triggered alarms for audit.
type AlarmRepository interface {
	Create(ctx context.Context, alarm *Alarm) error
}
