package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OperationStore journals marketplace writes.
type OperationStore interface {
	Create(ctx context.Context, rec OperationRecord) error
	Finish(ctx context.Context, id string, status OperationStatus, txHash, errKind, errMsg string) error
	GetByID(ctx context.Context, id string) (OperationRecord, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]OperationRecord, error)
	ListByAccount(ctx context.Context, account string, opts ListOpts) ([]OperationRecord, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
