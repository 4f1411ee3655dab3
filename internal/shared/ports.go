package shared

import (
	"context"

	"github.com/google/uuid"
)

// Auditor records audit trail entries. Satisfied by AuditLogger.
type Auditor interface {
	Record(ctx context.Context, log AuditLog) error
}

// ApprovalSink records approval history entries.
type ApprovalSink interface {
	Record(ctx context.Context, log ApprovalLog) error
}

// ApprovalTrail records and replays approval history. Satisfied by
// ApprovalRecorder.
type ApprovalTrail interface {
	ApprovalSink
	List(ctx context.Context, module string, ref uuid.UUID) ([]ApprovalLog, error)
}
