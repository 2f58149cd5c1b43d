package database

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	apperrors "tenant-restore/internal/errors"
)

func TestConfigDSN(t *testing.T) {
	config := Config{
		Host:     "db.internal",
		Port:     3306,
		User:     "restore",
		Password: "secret",
		Database: "tenant_db",
		Timeout:  15 * time.Second,
	}

	dsn := config.DSN()

	if !strings.Contains(dsn, "restore:secret@tcp(db.internal:3306)/tenant_db") {
		t.Errorf("Unexpected DSN: %s", dsn)
	}
	if !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("Expected parseTime=true in DSN: %s", dsn)
	}
	if !strings.Contains(dsn, "timeout=15s") {
		t.Errorf("Expected timeout in DSN: %s", dsn)
	}
}

func TestConfigDSN_DefaultTimeout(t *testing.T) {
	config := Config{Host: "localhost", Port: 3306, Database: "db"}

	if !strings.Contains(config.DSN(), "timeout=30s") {
		t.Errorf("Expected default 30s timeout, got %s", config.DSN())
	}
}

func TestBeginTenantTx_SetsTenantScope(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SET @current_org_id = \\?").
		WithArgs("tenant-42").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	svc := NewServiceWithDB(db, Config{Database: "tenant_db"}, nil)

	tx, err := svc.BeginTenantTx(context.Background(), "tenant-42")
	if err != nil {
		t.Fatalf("BeginTenantTx() error = %v", err)
	}

	if tx.TenantID != "tenant-42" {
		t.Errorf("Expected tenant id tenant-42, got %s", tx.TenantID)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestBeginTenantTx_RollsBackWhenScopeFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SET @current_org_id = \\?").
		WithArgs("tenant-42").
		WillReturnError(errors.New("variable not allowed"))
	mock.ExpectRollback()

	svc := NewServiceWithDB(db, Config{Database: "tenant_db"}, nil)

	_, err = svc.BeginTenantTx(context.Background(), "tenant-42")
	if err == nil {
		t.Fatal("Expected error when tenant scope cannot be established")
	}

	if apperrors.GetErrorType(err) != apperrors.ErrorTypeTransaction {
		t.Errorf("Expected transaction error, got %v", apperrors.GetErrorType(err))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestBeginTenantTx_RequiresTenantID(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	svc := NewServiceWithDB(db, Config{}, nil)

	_, err = svc.BeginTenantTx(context.Background(), "")
	if err == nil {
		t.Fatal("Expected error for empty tenant id")
	}
	if apperrors.GetErrorType(err) != apperrors.ErrorTypeValidation {
		t.Errorf("Expected validation error, got %v", apperrors.GetErrorType(err))
	}
}

func TestBeginTenantTx_RequiresConnection(t *testing.T) {
	svc := NewService(Config{}, nil)

	_, err := svc.BeginTenantTx(context.Background(), "tenant-1")
	if err == nil {
		t.Fatal("Expected error when service is not connected")
	}
	if apperrors.GetErrorType(err) != apperrors.ErrorTypeConnection {
		t.Errorf("Expected connection error, got %v", apperrors.GetErrorType(err))
	}
}
