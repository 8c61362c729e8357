package models

import "time"

// AuditAction classifies audit events.
type AuditAction string

const (
	AuditActionScan   AuditAction = "SCAN"
	AuditActionCreate AuditAction = "CREATE"
	AuditActionUpdate AuditAction = "UPDATE"
)

// AuditEvent is emitted after a state-changing operation commits.
type AuditEvent struct {
	ActorID     string                 `json:"actor_id"`
	Action      AuditAction            `json:"action"`
	Description string                 `json:"description"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID          string      `db:"id" json:"id"`
	ActorID     *string     `db:"actor_id" json:"actor_id,omitempty"`
	Action      AuditAction `db:"action" json:"action"`
	Description string      `db:"description" json:"description"`
	Metadata    *string     `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}
