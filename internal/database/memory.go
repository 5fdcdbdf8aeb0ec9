package database

import (
	"context"
	"sort"
	"sync"

	"talentscout/internal/models"
)

// MemoryStore keeps both collections in process memory. Used by tests and
// STORE_DRIVER=memory for local runs.
type MemoryStore struct {
	mu         sync.RWMutex
	candidates map[string]*models.CandidateDocument
	audit      []models.AuditEntry
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{candidates: make(map[string]*models.CandidateDocument)}
}

func (s *MemoryStore) Upsert(_ context.Context, doc *models.CandidateDocument) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.candidates[doc.CandidateID]
	s.candidates[doc.CandidateID] = cloneDocument(doc)
	return !exists, nil
}

func (s *MemoryStore) FindByID(_ context.Context, candidateID string) (*models.CandidateDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.candidates[candidateID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (s *MemoryStore) DeleteByID(_ context.Context, candidateID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.candidates[candidateID]; !ok {
		return false, nil
	}
	delete(s.candidates, candidateID)
	return true, nil
}

func (s *MemoryStore) FindWhere(_ context.Context, filter Filter) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, doc := range s.candidates {
		if filter.RetentionBefore != nil && doc.RetentionUntil.After(*filter.RetentionBefore) {
			continue
		}
		if filter.EmailLookup != "" && doc.EmailLookup != filter.EmailLookup {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Append(_ context.Context, entry models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audit = append(s.audit, entry)
	return nil
}

func (s *MemoryStore) ListByCandidate(_ context.Context, candidateID string) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []models.AuditEntry
	for _, e := range s.audit {
		if e.CandidateID == candidateID {
			entries = append(entries, e)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

func (s *MemoryStore) Close(context.Context) error { return nil }
