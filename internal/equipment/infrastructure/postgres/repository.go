package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	equipment "vessel-monitor/internal/equipment/domain"
	monitoring "vessel-monitor/internal/monitoring/domain"
)

const (
	defaultEquipmentTable = "equipment"
	defaultPointsTable    = "monitoring_points"
)

// EquipmentRepository is a Postgres read model over the equipment registry.
type EquipmentRepository struct {
	db    *sql.DB
	table string
}

// NewEquipmentRepository constructs a repository.
func NewEquipmentRepository(db *sql.DB, opts ...EquipmentOption) *EquipmentRepository {
	repo := &EquipmentRepository{db: db, table: defaultEquipmentTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// EquipmentOption configures the repository.
type EquipmentOption func(*EquipmentRepository)

// WithEquipmentTable overrides the table name.
func WithEquipmentTable(table string) EquipmentOption {
	return func(repo *EquipmentRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Exists reports whether the equipment id is registered.
func (r *EquipmentRepository) Exists(ctx context.Context, id string) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("equipment repo: nil db")
	}
	if id == "" {
		return false, nil
	}

	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, r.table)
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ListCodes maps internal equipment ids to external device codes in one
// query. Ids with no registered equipment are omitted from the result.
func (r *EquipmentRepository) ListCodes(ctx context.Context, ids []string) (map[string]string, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("equipment repo: nil db")
	}
	codes := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return codes, nil
	}

	query := fmt.Sprintf(`SELECT id, code FROM %s WHERE id = ANY($1)`, r.table)
	rows, err := r.db.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, code string
		if err := rows.Scan(&id, &code); err != nil {
			return nil, err
		}
		codes[id] = code
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return codes, nil
}

// PointRepository is a Postgres read model over monitoring point
// declarations.
type PointRepository struct {
	db    *sql.DB
	table string
}

// NewPointRepository constructs a repository.
func NewPointRepository(db *sql.DB, opts ...PointOption) *PointRepository {
	repo := &PointRepository{db: db, table: defaultPointsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// PointOption configures the repository.
type PointOption func(*PointRepository)

// WithPointsTable overrides the table name.
func WithPointsTable(table string) PointOption {
	return func(repo *PointRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get loads one monitoring point declaration, or nil when undeclared.
func (r *PointRepository) Get(ctx context.Context, equipmentID, name string) (*equipment.MonitoringPoint, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("point repo: nil db")
	}
	if equipmentID == "" || name == "" {
		return nil, errors.New("point repo: equipment id and name required")
	}

	query := fmt.Sprintf(`
SELECT equipment_id, name, metric_type, COALESCE(unit, '')
FROM %s
WHERE equipment_id = $1 AND name = $2`, r.table)

	var point equipment.MonitoringPoint
	var metricType string
	err := r.db.QueryRowContext(ctx, query, equipmentID, name).Scan(
		&point.EquipmentID,
		&point.Name,
		&metricType,
		&point.Unit,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	point.MetricType = monitoring.MetricType(metricType)
	return &point, nil
}

// ListByEquipment loads every declared point for an equipment.
func (r *PointRepository) ListByEquipment(ctx context.Context, equipmentID string) ([]equipment.MonitoringPoint, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("point repo: nil db")
	}
	if equipmentID == "" {
		return nil, errors.New("point repo: equipment id required")
	}

	query := fmt.Sprintf(`
SELECT equipment_id, name, metric_type, COALESCE(unit, '')
FROM %s
WHERE equipment_id = $1
ORDER BY name ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, equipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []equipment.MonitoringPoint
	for rows.Next() {
		var point equipment.MonitoringPoint
		var metricType string
		if err := rows.Scan(&point.EquipmentID, &point.Name, &metricType, &point.Unit); err != nil {
			return nil, err
		}
		point.MetricType = monitoring.MetricType(metricType)
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}
