package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	equipment "vessel-monitor/internal/equipment/domain"
	monitoring "vessel-monitor/internal/monitoring/domain"
	"vessel-monitor/internal/observability/metrics"
)

// MaxBatchSize caps the number of readings accepted in one batch.
const MaxBatchSize = 1000

var (
	// ErrEmptyBatch rejects a batch with no items.
	ErrEmptyBatch = errors.New("monitoring: empty batch")
	// ErrBatchTooLarge rejects a batch above MaxBatchSize.
	ErrBatchTooLarge = fmt.Errorf("monitoring: batch exceeds %d items", MaxBatchSize)
)

// BatchItem is one reading inside a batch command.
type BatchItem struct {
	Timestamp       time.Time
	MetricType      monitoring.MetricType
	MonitoringPoint string
	Value           float64
	Unit            string
	Quality         monitoring.Quality
	Source          monitoring.Source
}

// BatchCommand is the input for batch ingestion. All items target one
// equipment.
type BatchCommand struct {
	EquipmentID string
	Items       []BatchItem
}

// BatchError reports one failed item by its zero-based position in the
// submitted batch.
type BatchError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// BatchResult summarizes a batch ingestion. SuccessCount plus
// FailedCount always equals TotalCount.
type BatchResult struct {
	TotalCount   int          `json:"totalCount"`
	SuccessCount int          `json:"successCount"`
	FailedCount  int          `json:"failedCount"`
	Errors       []BatchError `json:"errors,omitempty"`
}

// IngestBatch persists a batch of readings for one equipment inside a
// single transaction. A failing item is recorded and skipped without
// discarding its siblings; only a transaction-level failure marks the
// whole batch failed. After commit, alarm evaluation and realtime push
// run detached over the rows that made it in.
func (s *Service) IngestBatch(ctx context.Context, cmd BatchCommand) (BatchResult, error) {
	if s == nil {
		return BatchResult{}, errors.New("monitoring: nil service")
	}
	total := len(cmd.Items)
	if total == 0 {
		return BatchResult{}, ErrEmptyBatch
	}
	if total > MaxBatchSize {
		return BatchResult{}, ErrBatchTooLarge
	}

	exists, err := s.registry.Exists(ctx, cmd.EquipmentID)
	if err != nil {
		return BatchResult{}, fmt.Errorf("monitoring: equipment check: %w", err)
	}
	if !exists {
		return BatchResult{}, equipment.ErrNotFound
	}

	resolved := s.resolveBatchPoints(ctx, cmd)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		s.logger.Error("batch transaction begin failed",
			zap.String("equipment_id", cmd.EquipmentID),
			zap.Int("total", total),
			zap.Error(err))
		return allFailed(total, "storage transaction unavailable"), nil
	}

	var (
		saved    []monitoring.Reading
		failures []BatchError
	)
	for i, item := range cmd.Items {
		reading, err := s.prepareReading(ctx, cmd.EquipmentID, preparedItem(item), resolved, resolved == nil)
		if err != nil {
			failures = append(failures, BatchError{Index: i, Reason: err.Error()})
			continue
		}
		id, err := tx.Insert(ctx, reading)
		if err != nil {
			failures = append(failures, BatchError{Index: i, Reason: err.Error()})
			continue
		}
		reading.ID = id
		saved = append(saved, *reading)
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("batch transaction commit failed",
			zap.String("equipment_id", cmd.EquipmentID),
			zap.Int("total", total),
			zap.Error(err))
		_ = tx.Rollback()
		metrics.AddBatchRows(metrics.BatchRowFailed, total)
		return allFailed(total, "transaction commit failed"), nil
	}

	metrics.AddBatchRows(metrics.BatchRowSaved, len(saved))
	metrics.AddBatchRows(metrics.BatchRowFailed, len(failures))

	if len(saved) > 0 {
		stored := saved
		s.detach("batch-alarm-sweep", func(ctx context.Context) {
			for _, reading := range stored {
				s.sweepAlarms(ctx, reading)
			}
		})
		s.detach("batch-realtime-push", func(ctx context.Context) {
			if s.publisher != nil {
				s.publisher.PushBatch(ctx, stored)
			}
		})
	}

	return BatchResult{
		TotalCount:   total,
		SuccessCount: len(saved),
		FailedCount:  len(failures),
		Errors:       failures,
	}, nil
}

// resolveBatchPoints resolves the distinct point names of a batch in one
// call. A nil result means the bulk call itself failed and items should
// resolve individually.
func (s *Service) resolveBatchPoints(ctx context.Context, cmd BatchCommand) map[string]equipment.MonitoringPoint {
	var names []string
	seen := make(map[string]struct{})
	for _, item := range cmd.Items {
		if item.MonitoringPoint == "" {
			continue
		}
		if _, ok := seen[item.MonitoringPoint]; ok {
			continue
		}
		seen[item.MonitoringPoint] = struct{}{}
		names = append(names, item.MonitoringPoint)
	}
	if len(names) == 0 {
		return map[string]equipment.MonitoringPoint{}
	}

	resolved, err := s.resolver.ResolveMany(ctx, cmd.EquipmentID, names)
	if err != nil {
		s.logger.Warn("bulk point resolution failed; falling back to per-item lookups",
			zap.String("equipment_id", cmd.EquipmentID),
			zap.Int("points", len(names)),
			zap.Error(err))
		return nil
	}
	return resolved
}

// sweepAlarms evaluates one saved batch row. A failing evaluation is
// counted and logged; it never interrupts the sweep.
func (s *Service) sweepAlarms(ctx context.Context, reading monitoring.Reading) {
	if s.evaluator == nil {
		return
	}
	triggered, err := s.evaluator.Evaluate(ctx, reading)
	if err != nil {
		metrics.IncAlarmSweepFailure()
		s.logger.Error("batch alarm sweep failed for reading",
			zap.String("equipment_id", reading.EquipmentID),
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

func allFailed(total int, reason string) BatchResult {
	failures := make([]BatchError, total)
	for i := range failures {
		failures[i] = BatchError{Index: i, Reason: reason}
	}
	return BatchResult{TotalCount: total, FailedCount: total, Errors: failures}
}
