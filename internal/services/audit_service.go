package services

import (
	"context"
	"fmt"
	"time"

	"talentscout/internal/database"
	"talentscout/internal/models"
)

// AuditService is the append-only audit log over an AuditStore.
type AuditService struct {
	store database.AuditStore
	now   func() time.Time
}

// NewAuditService creates an audit service
func NewAuditService(store database.AuditStore) *AuditService {
	return &AuditService{store: store, now: time.Now}
}

// Record appends one entry stamped with the current time.
func (a *AuditService) Record(ctx context.Context, candidateID string, action models.AuditAction, detail string) error {
	return a.Append(ctx, models.AuditEntry{
		CandidateID: candidateID,
		Action:      action,
		Detail:      detail,
	})
}

// Append writes an entry, stamping it when Timestamp is zero.
// Any store failure is returned wrapped in ErrAuditWrite.
func (a *AuditService) Append(ctx context.Context, entry models.AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = a.now().UTC()
	}
	if err := a.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrAuditWrite, entry.Action, entry.CandidateID, err)
	}
	return nil
}

// Query returns a candidate's entries, oldest first.
func (a *AuditService) Query(ctx context.Context, candidateID string) ([]models.AuditEntry, error) {
	entries, err := a.store.ListByCandidate(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	return entries, nil
}

// lastAction returns the most recent action recorded for a candidate, or "".
func (a *AuditService) lastAction(ctx context.Context, candidateID string) (models.AuditAction, error) {
	entries, err := a.Query(ctx, candidateID)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", nil
	}
	return entries[len(entries)-1].Action, nil
}

// hasAction reports whether any entry for the candidate records action.
func (a *AuditService) hasAction(ctx context.Context, candidateID string, action models.AuditAction) (bool, error) {
	entries, err := a.Query(ctx, candidateID)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Action == action {
			return true, nil
		}
	}
	return false, nil
}
