package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	alarms "vessel-monitor/internal/alarms/domain"
	monitoring "vessel-monitor/internal/monitoring/domain"
	"vessel-monitor/internal/observability/metrics"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Evaluator matches persisted readings against the equipment's enabled
// threshold rules and records every violation.
type Evaluator struct {
	rules  alarms.RuleRepository
	store  alarms.AlarmRepository
	logger *zap.Logger
	clock  Clock
	newID  func() string
}

// EvaluatorOption customizes the evaluator.
type EvaluatorOption func(*Evaluator)

// WithClock assigns a clock.
func WithClock(clock Clock) EvaluatorOption {
	return func(e *Evaluator) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithIDFactory overrides alarm id generation, for tests.
func WithIDFactory(factory func() string) EvaluatorOption {
	return func(e *Evaluator) {
		if factory != nil {
			e.newID = factory
		}
	}
}

// NewEvaluator constructs an evaluator.
func NewEvaluator(rules alarms.RuleRepository, store alarms.AlarmRepository, logger *zap.Logger, opts ...EvaluatorOption) (*Evaluator, error) {
	if rules == nil {
		return nil, errors.New("alarms: nil rule repository")
	}
	if store == nil {
		return nil, errors.New("alarms: nil alarm repository")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	evaluator := &Evaluator{
		rules:  rules,
		store:  store,
		logger: logger,
		clock:  systemClock{},
		newID:  func() string { return "alarm-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(evaluator)
	}
	return evaluator, nil
}

// Evaluate returns the alarms triggered by one persisted reading. Each
// triggered alarm is persisted before it is returned; a persistence
// failure on one alarm does not suppress the others.
func (e *Evaluator) Evaluate(ctx context.Context, reading monitoring.Reading) ([]alarms.Alarm, error) {
	if e == nil {
		return nil, errors.New("alarms: nil evaluator")
	}
	if reading.EquipmentID == "" {
		return nil, errors.New("alarms: reading missing equipment id")
	}

	rules, err := e.rules.ListEnabledByEquipment(ctx, reading.EquipmentID)
	if err != nil {
		return nil, fmt.Errorf("alarms: list rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, nil
	}

	var triggered []alarms.Alarm
	var storeErrs []error
	for _, rule := range rules {
		if !rule.Matches(reading) || !rule.Triggered(reading.Value) {
			continue
		}
		alarm := alarms.Alarm{
			ID:              e.newID(),
			EquipmentID:     reading.EquipmentID,
			RuleID:          rule.ID,
			MetricType:      reading.MetricType,
			MonitoringPoint: reading.MonitoringPoint,
			Value:           reading.Value,
			Threshold:       rule.Threshold,
			Operator:        rule.Operator,
			Severity:        rule.Severity,
			TriggeredAt:     e.clock.Now().UTC(),
			ReadingID:       reading.ID,
		}
		if err := e.store.Create(ctx, &alarm); err != nil {
			storeErrs = append(storeErrs, err)
			e.logger.Error("alarm persist failed",
				zap.String("equipment_id", alarm.EquipmentID),
				zap.String("rule_id", alarm.RuleID),
				zap.String("metric_type", string(alarm.MetricType)),
				zap.Error(err))
			continue
		}
		metrics.IncAlarmEvent(alarm.Severity)
		triggered = append(triggered, alarm)
	}
	return triggered, errors.Join(storeErrs...)
}
