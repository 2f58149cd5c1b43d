package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	apperrors "tenant-restore/internal/errors"
	"tenant-restore/internal/logging"
)

// Config holds database connection configuration
type Config struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	Database     string        `mapstructure:"database"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
}

// DSN builds the MySQL data source name
func (c Config) DSN() string {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&timeout=%s&multiStatements=false",
		c.User, c.Password, c.Host, c.Port, c.Database, timeout)
}

// Service manages the connection to the live store
type Service struct {
	db           *sql.DB
	config       Config
	logger       *logging.Logger
	retryHandler *apperrors.RetryHandler
}

// NewService creates a database service. Call Connect before use.
func NewService(config Config, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Service{
		config:       config,
		logger:       logger,
		retryHandler: apperrors.NewDefaultRetryHandler(),
	}
}

// NewServiceWithDB wraps an existing connection, used by tests.
func NewServiceWithDB(db *sql.DB, config Config, logger *logging.Logger) *Service {
	svc := NewService(config, logger)
	svc.db = db
	return svc
}

// Connect opens the connection pool and verifies it with a ping.
// Connection establishment is the one place retries are allowed; the
// restore write phase never retries.
func (s *Service) Connect(ctx context.Context) error {
	start := time.Now()

	err := s.retryHandler.Retry(ctx, func() error {
		db, err := sql.Open("mysql", s.config.DSN())
		if err != nil {
			return err
		}

		if s.config.MaxOpenConns > 0 {
			db.SetMaxOpenConns(s.config.MaxOpenConns)
		}
		if s.config.MaxIdleConns > 0 {
			db.SetMaxIdleConns(s.config.MaxIdleConns)
		}
		db.SetConnMaxLifetime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return err
		}

		s.db = db
		return nil
	})

	s.logger.LogDatabaseConnection(s.config.Host, s.config.Database, err == nil, time.Since(start), err)
	return err
}

// Close closes the connection pool
func (s *Service) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying pool for read-only lookups outside a
// tenant transaction (schema discovery, conflict preview reads still
// go through TenantTx).
func (s *Service) DB() *sql.DB {
	return s.db
}

// DatabaseName returns the configured database name
func (s *Service) DatabaseName() string {
	return s.config.Database
}

// TenantTx is a transaction with an established tenant scope. Every
// read and write of the restore pipeline goes through one of these;
// the scope is set explicitly at transaction start and never assumed
// to be inherited from a prior operation on the same connection.
type TenantTx struct {
	*sql.Tx
	TenantID string
}

// BeginTenantTx starts a transaction and establishes the tenant scope
// on its connection before returning it.
func (s *Service) BeginTenantTx(ctx context.Context, tenantID string) (*TenantTx, error) {
	if tenantID == "" {
		return nil, apperrors.NewValidationError("tenant id is required to open a tenant transaction", nil)
	}
	if s.db == nil {
		return nil, apperrors.NewAppError(apperrors.ErrorTypeConnection, "database service is not connected", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.WrapError(err, "failed to begin tenant transaction")
	}

	if err := setTenantScope(ctx, tx, tenantID); err != nil {
		tx.Rollback()
		return nil, err
	}

	return &TenantTx{Tx: tx, TenantID: tenantID}, nil
}

// FetchRecordByID loads one row by primary key as a generic map,
// returning nil when no row exists. Byte-slice values are converted to
// strings so callers can compare them against JSON-decoded records.
func (t *TenantTx) FetchRecordByID(ctx context.Context, table string, recordID interface{}) (map[string]interface{}, error) {
	query := fmt.Sprintf("SELECT * FROM `%s` WHERE id = ? LIMIT 1", table)

	rows, err := t.QueryContext(ctx, query, recordID)
	if err != nil {
		return nil, apperrors.WrapError(err,
			fmt.Sprintf("failed to look up record in %s", table))
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, apperrors.WrapError(err,
				fmt.Sprintf("failed to read record in %s", table))
		}
		return nil, nil
	}

	columns, err := rows.Columns()
	if err != nil {
		return nil, apperrors.WrapError(err, "failed to read result columns")
	}

	values := make([]interface{}, len(columns))
	pointers := make([]interface{}, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}
	if err := rows.Scan(pointers...); err != nil {
		return nil, apperrors.WrapError(err,
			fmt.Sprintf("failed to scan record in %s", table))
	}

	record := make(map[string]interface{}, len(columns))
	for i, column := range columns {
		if raw, ok := values[i].([]byte); ok {
			record[column] = string(raw)
			continue
		}
		record[column] = values[i]
	}
	return record, nil
}

// Execer is the statement-execution subset of database/sql.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// setTenantScope binds the session to one tenant. The variable is read
// by the store's row-isolation triggers and views.
func setTenantScope(ctx context.Context, execer Execer, tenantID string) error {
	if _, err := execer.ExecContext(ctx, "SET @current_org_id = ?", tenantID); err != nil {
		return apperrors.NewTransactionError("failed to establish tenant scope", err).
			WithContext("tenant_id", tenantID)
	}
	return nil
}
