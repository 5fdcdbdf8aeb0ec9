package database

import (
	"context"
	"errors"
	"time"

	"talentscout/internal/models"
)

// ErrNotFound is returned by FindByID when no document has the id.
var ErrNotFound = errors.New("document not found")

// Filter selects candidate documents. Set fields are combined with AND.
type Filter struct {
	RetentionBefore *time.Time // retention_until <= value
	EmailLookup     string
}

// CandidateStore is a document store keyed by candidate_id.
// Every call is atomic for a single document.
type CandidateStore interface {
	Upsert(ctx context.Context, doc *models.CandidateDocument) (created bool, err error)
	FindByID(ctx context.Context, candidateID string) (*models.CandidateDocument, error)
	DeleteByID(ctx context.Context, candidateID string) (deleted bool, err error)
	FindWhere(ctx context.Context, filter Filter) ([]string, error)
	Ping(ctx context.Context) error
}

// AuditStore is append-only. ListByCandidate returns entries by timestamp ascending.
type AuditStore interface {
	Append(ctx context.Context, entry models.AuditEntry) error
	ListByCandidate(ctx context.Context, candidateID string) ([]models.AuditEntry, error)
}

// Store is a backend serving both collections.
type Store interface {
	CandidateStore
	AuditStore
	Close(ctx context.Context) error
}

func cloneDocument(doc *models.CandidateDocument) *models.CandidateDocument {
	if doc == nil {
		return nil
	}
	out := *doc
	out.TechStack = append([]string(nil), doc.TechStack...)
	out.TechnicalQuestions = append([]string(nil), doc.TechnicalQuestions...)
	out.Answers = append([]models.Answer(nil), doc.Answers...)
	if doc.ConsentTimestamp != nil {
		ts := *doc.ConsentTimestamp
		out.ConsentTimestamp = &ts
	}
	return &out
}
