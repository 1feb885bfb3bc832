package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	alarms "vessel-monitor/internal/alarms/domain"
	equipment "vessel-monitor/internal/equipment/domain"
	monitoring "vessel-monitor/internal/monitoring/domain"
)

// ErrPersistence is the generic failure surfaced when a reading cannot
// be written; storage details stay in the logs.
var ErrPersistence = errors.New("monitoring: persistence failure")

// EquipmentRegistry checks that a target equipment exists.
type EquipmentRegistry interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// PointResolver validates monitoring point references.
type PointResolver interface {
	Resolve(ctx context.Context, equipmentID, name string, expected monitoring.MetricType) (*equipment.MonitoringPoint, error)
	ResolveMany(ctx context.Context, equipmentID string, names []string) (map[string]equipment.MonitoringPoint, error)
}

// AlarmEvaluator returns the alarms triggered by a persisted reading.
type AlarmEvaluator interface {
	Evaluate(ctx context.Context, reading monitoring.Reading) ([]alarms.Alarm, error)
}

// ReadingPublisher fans readings and alarms out to live subscribers.
// Delivery is best effort and never reports back.
type ReadingPublisher interface {
	PushOne(ctx context.Context, reading monitoring.Reading)
	PushBatch(ctx context.Context, readings []monitoring.Reading)
	PushAlarm(ctx context.Context, alarm alarms.Alarm)
}

// ReadingStore persists readings, one at a time or within a batch
// transaction.
type ReadingStore interface {
	monitoring.ReadingRepository
	monitoring.BatchWriter
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Service is the ingestion orchestrator: it validates input, resolves
// monitoring points and units, classifies quality, persists readings,
// and triggers alarm evaluation and realtime push as detached,
// error-isolated side effects.
type Service struct {
	registry  EquipmentRegistry
	resolver  PointResolver
	store     ReadingStore
	evaluator AlarmEvaluator
	publisher ReadingPublisher
	ranges    *monitoring.RangeTable
	logger    *zap.Logger
	clock     Clock
}

// ServiceOption customizes the service.
type ServiceOption func(*Service)

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithEvaluator attaches the alarm evaluator side effect.
func WithEvaluator(evaluator AlarmEvaluator) ServiceOption {
	return func(s *Service) {
		s.evaluator = evaluator
	}
}

// WithPublisher attaches the realtime push side effect.
func WithPublisher(publisher ReadingPublisher) ServiceOption {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// NewService constructs the orchestrator.
func NewService(registry EquipmentRegistry, resolver PointResolver, store ReadingStore, ranges *monitoring.RangeTable, logger *zap.Logger, opts ...ServiceOption) (*Service, error) {
	if registry == nil {
		return nil, errors.New("monitoring: nil equipment registry")
	}
	if resolver == nil {
		return nil, errors.New("monitoring: nil point resolver")
	}
	if store == nil {
		return nil, errors.New("monitoring: nil reading store")
	}
	if ranges == nil {
		return nil, errors.New("monitoring: nil range table")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	service := &Service{
		registry: registry,
		resolver: resolver,
		store:    store,
		ranges:   ranges,
		logger:   logger,
		clock:    systemClock{},
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// IngestCommand is the input for a single reading.
type IngestCommand struct {
	EquipmentID     string
	Timestamp       time.Time
	MetricType      monitoring.MetricType
	MonitoringPoint string
	Value           float64
	Unit            string
	// Quality, when set, overrides the classifier's computed tier.
	Quality monitoring.Quality
	// Source defaults to live sensor upload when unset.
	Source monitoring.Source
}

// Ingest validates, classifies and persists one reading, then triggers
// alarm evaluation and realtime push without waiting on either. It
// returns the storage-assigned reading id.
func (s *Service) Ingest(ctx context.Context, cmd IngestCommand) (int64, error) {
	if s == nil {
		return 0, errors.New("monitoring: nil service")
	}

	exists, err := s.registry.Exists(ctx, cmd.EquipmentID)
	if err != nil {
		return 0, fmt.Errorf("monitoring: equipment check: %w", err)
	}
	if !exists {
		return 0, equipment.ErrNotFound
	}

	reading, err := s.prepareReading(ctx, cmd.EquipmentID, preparedItem{
		Timestamp:       cmd.Timestamp,
		MetricType:      cmd.MetricType,
		MonitoringPoint: cmd.MonitoringPoint,
		Value:           cmd.Value,
		Unit:            cmd.Unit,
		Quality:         cmd.Quality,
		Source:          cmd.Source,
	}, nil, true)
	if err != nil {
		return 0, err
	}

	id, err := s.store.Insert(ctx, reading)
	if err != nil {
		s.logger.Error("reading persist failed",
			zap.String("equipment_id", cmd.EquipmentID),
			zap.String("metric_type", string(cmd.MetricType)),
			zap.Error(err))
		return 0, fmt.Errorf("%w: storage write rejected", ErrPersistence)
	}

	stored := *reading
	s.detach("alarm-evaluate", func(ctx context.Context) {
		s.evaluateAndPush(ctx, stored)
	})
	s.detach("realtime-push", func(ctx context.Context) {
		if s.publisher != nil {
			s.publisher.PushOne(ctx, stored)
		}
	})
	return id, nil
}

// preparedItem carries the per-item fields shared by the single and
// batch paths.
type preparedItem struct {
	Timestamp       time.Time
	MetricType      monitoring.MetricType
	MonitoringPoint string
	Value           float64
	Unit            string
	Quality         monitoring.Quality
	Source          monitoring.Source
}

// prepareReading resolves the monitoring point and unit, classifies
// quality, and builds the Reading to persist. resolved, when non-nil,
// is the batch-resolved descriptor set; fallback controls whether an
// unresolved name may retry the single-point path.
func (s *Service) prepareReading(ctx context.Context, equipmentID string, item preparedItem, resolved map[string]equipment.MonitoringPoint, fallback bool) (*monitoring.Reading, error) {
	if !item.MetricType.Valid() {
		return nil, fmt.Errorf("monitoring: unknown metric type %q", item.MetricType)
	}
	if item.Timestamp.IsZero() {
		return nil, errors.New("monitoring: timestamp required")
	}

	unit := item.Unit
	if item.MonitoringPoint != "" {
		point, err := s.resolvePoint(ctx, equipmentID, item.MonitoringPoint, item.MetricType, resolved, fallback)
		if err != nil {
			return nil, err
		}
		if unit == "" {
			unit = point.Unit
		}
	} else {
		s.logger.Debug("reading without monitoring point; alarm precision degraded",
			zap.String("equipment_id", equipmentID),
			zap.String("metric_type", string(item.MetricType)))
	}
	if unit == "" {
		unit = monitoring.CanonicalUnit(item.MetricType)
	}

	verdict := monitoring.Classify(s.ranges, item.MetricType, item.Value, item.Timestamp, unit, s.clock.Now())
	if len(verdict.Warnings) > 0 || len(verdict.Errors) > 0 {
		s.logger.Info("reading classification flags",
			zap.String("equipment_id", equipmentID),
			zap.String("metric_type", string(item.MetricType)),
			zap.Strings("warnings", verdict.Warnings),
			zap.Strings("errors", verdict.Errors))
	}

	quality := item.Quality
	if quality == "" {
		quality = verdict.Quality
	}
	source := item.Source
	if source == "" {
		source = monitoring.SourceSensorUpload
	}

	return &monitoring.Reading{
		EquipmentID:     equipmentID,
		Timestamp:       item.Timestamp.UTC(),
		MetricType:      item.MetricType,
		MonitoringPoint: item.MonitoringPoint,
		Value:           item.Value,
		Unit:            unit,
		Quality:         quality,
		Source:          source,
	}, nil
}

// resolvePoint serves a descriptor from the batch-resolved set when one
// is available, otherwise falls back to the single-point path.
func (s *Service) resolvePoint(ctx context.Context, equipmentID, name string, expected monitoring.MetricType, resolved map[string]equipment.MonitoringPoint, fallback bool) (*equipment.MonitoringPoint, error) {
	if resolved != nil {
		if point, ok := resolved[name]; ok {
			if point.MetricType != expected {
				return nil, &equipment.MetricTypeMismatchError{
					Point:    name,
					Expected: expected,
					Declared: point.MetricType,
				}
			}
			return &point, nil
		}
		if !fallback {
			return nil, fmt.Errorf("%w: %q", equipment.ErrPointNotFound, name)
		}
	}
	return s.resolver.Resolve(ctx, equipmentID, name, expected)
}

// evaluateAndPush runs the alarm evaluator for one reading and pushes
// every triggered alarm. All failures stay inside this boundary.
func (s *Service) evaluateAndPush(ctx context.Context, reading monitoring.Reading) {
	if s.evaluator == nil {
		return
	}
	triggered, err := s.evaluator.Evaluate(ctx, reading)
	if err != nil {
		s.logger.Error("alarm evaluation failed",
			zap.String("equipment_id", reading.EquipmentID),
			zap.String("metric_type", string(reading.MetricType)),
			zap.Int64("reading_id", reading.ID),
			zap.Error(err))
	}
	if s.publisher == nil {
		return
	}
	for _, alarm := range triggered {
		s.publisher.PushAlarm(ctx, alarm)
	}
}
