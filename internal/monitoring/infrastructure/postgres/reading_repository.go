package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	monitoring "vessel-monitor/internal/monitoring/domain"
)

const defaultReadingsTable = "readings"

// ReadingRepository is a Postgres implementation for sensor readings.
type ReadingRepository struct {
	db    *sql.DB
	table string
}

// NewReadingRepository constructs a repository with the default table name.
func NewReadingRepository(db *sql.DB, opts ...ReadingOption) *ReadingRepository {
	repo := &ReadingRepository{db: db, table: defaultReadingsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// ReadingOption configures the repository.
type ReadingOption func(*ReadingRepository)

// WithReadingsTable overrides the table name.
func WithReadingsTable(table string) ReadingOption {
	return func(repo *ReadingRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

func (r *ReadingRepository) insertSQL() string {
	return fmt.Sprintf(`
INSERT INTO %s (
	equipment_id,
	ts,
	metric_type,
	monitoring_point,
	value,
	unit,
	quality,
	source
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8
)
RETURNING id`, r.table)
}

// Insert persists a single reading and returns the storage-assigned id.
func (r *ReadingRepository) Insert(ctx context.Context, reading *monitoring.Reading) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("reading repo: nil db")
	}
	if reading == nil {
		return 0, errors.New("reading repo: nil reading")
	}
	if err := reading.Validate(); err != nil {
		return 0, err
	}

	var id int64
	err := r.db.QueryRowContext(ctx, r.insertSQL(),
		reading.EquipmentID,
		reading.Timestamp.UTC(),
		string(reading.MetricType),
		nullableString(reading.MonitoringPoint),
		reading.Value,
		nullableString(reading.Unit),
		string(reading.Quality),
		string(reading.Source),
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	reading.ID = id
	return id, nil
}

// Begin opens one transaction for a batch of readings.
func (r *ReadingRepository) Begin(ctx context.Context) (monitoring.ReadingTx, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &readingTx{tx: tx, insert: r.insertSQL()}, nil
}

// readingTx wraps each row insert in a savepoint so one failed row does
// not poison the surrounding transaction.
type readingTx struct {
	tx     *sql.Tx
	insert string
}

// Insert persists one reading inside the open transaction.
func (t *readingTx) Insert(ctx context.Context, reading *monitoring.Reading) (int64, error) {
	if t == nil || t.tx == nil {
		return 0, errors.New("reading tx: not open")
	}
	if reading == nil {
		return 0, errors.New("reading tx: nil reading")
	}
	if err := reading.Validate(); err != nil {
		return 0, err
	}

	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT reading_row"); err != nil {
		return 0, err
	}

	var id int64
	err := t.tx.QueryRowContext(ctx, t.insert,
		reading.EquipmentID,
		reading.Timestamp.UTC(),
		string(reading.MetricType),
		nullableString(reading.MonitoringPoint),
		reading.Value,
		nullableString(reading.Unit),
		string(reading.Quality),
		string(reading.Source),
	).Scan(&id)
	if err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT reading_row"); rbErr != nil {
			// The transaction itself is broken; surface that instead.
			return 0, fmt.Errorf("reading tx: row rollback failed: %w", rbErr)
		}
		return 0, err
	}
	if _, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT reading_row"); err != nil {
		return 0, err
	}
	reading.ID = id
	return id, nil
}

// Commit makes the surviving rows durable.
func (t *readingTx) Commit() error {
	if t == nil || t.tx == nil {
		return errors.New("reading tx: not open")
	}
	return t.tx.Commit()
}

// Rollback abandons every row in the transaction.
func (t *readingTx) Rollback() error {
	if t == nil || t.tx == nil {
		return errors.New("reading tx: not open")
	}
	return t.tx.Rollback()
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
