package application

import (
	"context"
	"errors"
	"fmt"

	equipment "vessel-monitor/internal/equipment/domain"
	monitoring "vessel-monitor/internal/monitoring/domain"
)

// Resolver validates monitoring point references against the equipment
// registry and supplies declared units.
type Resolver struct {
	points equipment.PointRepository
}

// NewResolver constructs a resolver.
func NewResolver(points equipment.PointRepository) (*Resolver, error) {
	if points == nil {
		return nil, errors.New("resolver: nil point repository")
	}
	return &Resolver{points: points}, nil
}

// Resolve loads the named monitoring point for an equipment. It fails
// with ErrPointNotFound when the point is undeclared, and with a
// MetricTypeMismatchError when expected disagrees with the declared
// metric type. Passing an empty expected type skips the type check.
func (r *Resolver) Resolve(ctx context.Context, equipmentID, name string, expected monitoring.MetricType) (*equipment.MonitoringPoint, error) {
	if r == nil || r.points == nil {
		return nil, errors.New("resolver: not initialized")
	}
	if equipmentID == "" || name == "" {
		return nil, errors.New("resolver: equipment id and point name required")
	}

	point, err := r.points.Get(ctx, equipmentID, name)
	if err != nil {
		return nil, err
	}
	if point == nil {
		return nil, fmt.Errorf("%w: %q", equipment.ErrPointNotFound, name)
	}
	if expected != "" && point.MetricType != expected {
		return nil, &equipment.MetricTypeMismatchError{
			Point:    name,
			Expected: expected,
			Declared: point.MetricType,
		}
	}
	return point, nil
}

// ResolveMany loads all declared points for an equipment in one round
// trip and returns the subset matching names. Names with no declaration
// are simply absent from the result; callers decide how to treat them.
func (r *Resolver) ResolveMany(ctx context.Context, equipmentID string, names []string) (map[string]equipment.MonitoringPoint, error) {
	if r == nil || r.points == nil {
		return nil, errors.New("resolver: not initialized")
	}
	if equipmentID == "" {
		return nil, errors.New("resolver: equipment id required")
	}

	resolved := make(map[string]equipment.MonitoringPoint, len(names))
	if len(names) == 0 {
		return resolved, nil
	}

	declared, err := r.points.ListByEquipment(ctx, equipmentID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]equipment.MonitoringPoint, len(declared))
	for _, point := range declared {
		byName[point.Name] = point
	}
	for _, name := range names {
		if point, ok := byName[name]; ok {
			resolved[name] = point
		}
	}
	return resolved, nil
}
