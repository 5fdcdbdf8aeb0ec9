package models

import "time"

// AuditAction names a sensitive operation on candidate data.
type AuditAction string

const (
	AuditActionCreate         AuditAction = "CREATE"
	AuditActionUpdate         AuditAction = "UPDATE"
	AuditActionView           AuditAction = "VIEW"
	AuditActionExport         AuditAction = "EXPORT"
	AuditActionDelete         AuditAction = "DELETE"
	AuditActionRetentionPurge AuditAction = "RETENTION_PURGE"
)

// AuditEntry is an append-only trace of one operation. Entries outlive the data they describe.
type AuditEntry struct {
	CandidateID string      `bson:"candidate_id" json:"candidate_id"`
	Action      AuditAction `bson:"action" json:"action"`
	Timestamp   time.Time   `bson:"timestamp" json:"timestamp"`
	Detail      string      `bson:"detail,omitempty" json:"detail,omitempty"`
}
