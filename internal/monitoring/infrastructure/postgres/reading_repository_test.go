package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	monitoring "vessel-monitor/internal/monitoring/domain"
)

func testReading() *monitoring.Reading {
	return &monitoring.Reading{
		EquipmentID:     "a9f5c1de-9f91-4a7e-8e71-2f6a1f0c2d11",
		Timestamp:       time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		MetricType:      monitoring.MetricTemperature,
		MonitoringPoint: "coolant",
		Value:           75.5,
		Unit:            "°C",
		Quality:         monitoring.QualityNormal,
		Source:          monitoring.SourceSensorUpload,
	}
}

func TestInsertReturnsAssignedID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("INSERT INTO readings").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	repo := NewReadingRepository(db)
	reading := testReading()
	id, err := repo.Insert(context.Background(), reading)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id != 42 || reading.ID != 42 {
		t.Fatalf("expected id 42, got %d (reading %d)", id, reading.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertRejectsInvalidReading(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewReadingRepository(db)
	reading := testReading()
	reading.MetricType = "plasma"
	if _, err := repo.Insert(context.Background(), reading); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestBatchRowFailureRollsBackToSavepoint(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	rowErr := errors.New("duplicate key")
	mock.ExpectBegin()
	mock.ExpectExec("SAVEPOINT reading_row").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("INSERT INTO readings").WillReturnError(rowErr)
	mock.ExpectExec("ROLLBACK TO SAVEPOINT reading_row").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SAVEPOINT reading_row").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("INSERT INTO readings").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec("RELEASE SAVEPOINT reading_row").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	repo := NewReadingRepository(db)
	tx, err := repo.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	if _, err := tx.Insert(context.Background(), testReading()); !errors.Is(err, rowErr) {
		t.Fatalf("expected row error, got %v", err)
	}
	// The transaction must still accept the next row.
	id, err := tx.Insert(context.Background(), testReading())
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if id != 7 {
		t.Fatalf("expected id 7, got %d", id)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
