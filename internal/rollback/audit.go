package rollback

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditEntry records one administrative action on a job's rollback
// state.
type AuditEntry struct {
	ID            string    `json:"id"`
	JobID         string    `json:"job_id"`
	RollbackJobID string    `json:"rollback_job_id,omitempty"`
	Action        string    `json:"action"`
	Detail        string    `json:"detail,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// AuditLog persists rollback audit entries.
type AuditLog interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// MemoryAuditLog keeps audit entries in process, matching the in-memory
// job store.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// NewMemoryAuditLog creates an empty log.
func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{}
}

// Record appends an entry, assigning an id when absent.
func (l *MemoryAuditLog) Record(ctx context.Context, entry AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	l.entries = append(l.entries, entry)
	return nil
}

// Entries returns a copy of everything recorded so far.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]AuditEntry(nil), l.entries...)
}
