package equipment

import (
	"context"
	"errors"
	"fmt"
	"time"

	monitoring "vessel-monitor/internal/monitoring/domain"
)

// ErrNotFound is returned when an equipment id is not registered.
var ErrNotFound = errors.New("equipment: not found")

// ErrPointNotFound is returned when a monitoring point is not declared
// for the equipment.
var ErrPointNotFound = errors.New("equipment: monitoring point not declared")

// MetricTypeMismatchError reports a declared monitoring point whose
// metric type disagrees with the caller's expectation.
type MetricTypeMismatchError struct {
	Point    string
	Expected monitoring.MetricType
	Declared monitoring.MetricType
}

func (e *MetricTypeMismatchError) Error() string {
	return fmt.Sprintf("equipment: monitoring point %q metric type mismatch: expected %s, declared %s",
		e.Point, e.Expected, e.Declared)
}

// Equipment is a registered piece of shipboard equipment. The registry
// is owned by equipment management; the ingestion pipeline only reads it.
type Equipment struct {
	ID        string
	Code      string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MonitoringPoint declares a named measurement location on one
// equipment, binding it to a metric type and an optional unit.
type MonitoringPoint struct {
	EquipmentID string
	Name        string
	MetricType  monitoring.MetricType
	Unit        string
}

// Repository reads the equipment registry.
type Repository interface {
	Exists(ctx context.Context, id string) (bool, error)
	// ListCodes maps internal ids to external device codes. Unknown ids
	// are omitted from the result, not reported as errors.
	ListCodes(ctx context.Context, ids []string) (map[string]string, error)
}

// PointRepository reads monitoring point declarations.
type PointRepository interface {
	Get(ctx context.Context, equipmentID, name string) (*MonitoringPoint, error)
	ListByEquipment(ctx context.Context, equipmentID string) ([]MonitoringPoint, error)
}
