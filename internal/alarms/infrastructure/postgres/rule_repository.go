package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	alarms "vessel-monitor/internal/alarms/domain"
	monitoring "vessel-monitor/internal/monitoring/domain"
)

const (
	defaultRulesTable  = "alarm_rules"
	defaultAlarmsTable = "alarms"
)

// RuleRepository is a Postgres read model over alarm rules.
type RuleRepository struct {
	db    *sql.DB
	table string
}

// NewRuleRepository constructs a repository.
func NewRuleRepository(db *sql.DB, opts ...RuleOption) *RuleRepository {
	repo := &RuleRepository{db: db, table: defaultRulesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RuleOption configures the repository.
type RuleOption func(*RuleRepository)

// WithRulesTable overrides the table name.
func WithRulesTable(table string) RuleOption {
	return func(repo *RuleRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// ListEnabledByEquipment loads the enabled rules for one equipment.
func (r *RuleRepository) ListEnabledByEquipment(ctx context.Context, equipmentID string) ([]alarms.Rule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("rule repo: nil db")
	}
	if equipmentID == "" {
		return nil, errors.New("rule repo: empty equipment id")
	}

	query := fmt.Sprintf(`
SELECT id, equipment_id, metric_type, COALESCE(monitoring_point, ''), operator, threshold, severity, enabled, created_at, updated_at
FROM %s
WHERE equipment_id = $1 AND enabled
ORDER BY id ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, equipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []alarms.Rule
	for rows.Next() {
		var rule alarms.Rule
		var metricType, operator string
		if err := rows.Scan(
			&rule.ID,
			&rule.EquipmentID,
			&metricType,
			&rule.MonitoringPoint,
			&operator,
			&rule.Threshold,
			&rule.Severity,
			&rule.Enabled,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rule.MetricType = monitoring.MetricType(metricType)
		rule.Operator = alarms.Operator(operator)
		rule.CreatedAt = rule.CreatedAt.UTC()
		rule.UpdatedAt = rule.UpdatedAt.UTC()
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

// AlarmRepository persists triggered alarms.
type AlarmRepository struct {
	db    *sql.DB
	table string
}

// NewAlarmRepository constructs a repository.
func NewAlarmRepository(db *sql.DB, opts ...AlarmOption) *AlarmRepository {
	repo := &AlarmRepository{db: db, table: defaultAlarmsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// AlarmOption configures the repository.
type AlarmOption func(*AlarmRepository)

// WithAlarmsTable overrides the table name.
func WithAlarmsTable(table string) AlarmOption {
	return func(repo *AlarmRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Create inserts one triggered alarm.
func (r *AlarmRepository) Create(ctx context.Context, alarm *alarms.Alarm) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	if alarm == nil {
		return errors.New("alarm repo: nil alarm")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	equipment_id,
	rule_id,
	metric_type,
	monitoring_point,
	value,
	threshold,
	operator,
	severity,
	triggered_at,
	reading_id
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
)`, r.table)

	_, err := r.db.ExecContext(ctx, query,
		alarm.ID,
		alarm.EquipmentID,
		alarm.RuleID,
		string(alarm.MetricType),
		nullableString(alarm.MonitoringPoint),
		alarm.Value,
		alarm.Threshold,
		string(alarm.Operator),
		alarm.Severity,
		alarm.TriggeredAt.UTC(),
		alarm.ReadingID,
	)
	return err
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
