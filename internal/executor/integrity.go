package executor

import (
	"context"

	"tenant-restore/internal/database"
)

// IntegrityChecker runs after all writes and reports referential
// issues as warnings. The live store's own foreign-key constraints are
// the actual enforcement backstop; this hook exists for best-effort
// checks that constraints cannot express.
type IntegrityChecker interface {
	Check(ctx context.Context, tx *database.TenantTx, tables []string) ([]string, error)
}

// NoopIntegrityChecker reports no issues.
type NoopIntegrityChecker struct{}

// Check implements IntegrityChecker.
func (NoopIntegrityChecker) Check(ctx context.Context, tx *database.TenantTx, tables []string) ([]string, error) {
	return nil, nil
}
