package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"talentscout/internal/crypto"
	"talentscout/internal/database"
	"talentscout/internal/logging"
	"talentscout/internal/models"
)

// RecordStoreConfig holds record lifecycle policy.
type RecordStoreConfig struct {
	RetentionWindow  time.Duration
	EncryptAnswers   bool
	PurgeParallelism int
}

// RecordStore owns candidate records and their audit trail. Mutations for one
// candidate are serialized through the locker.
type RecordStore struct {
	candidates database.CandidateStore
	audit      *AuditService
	cipher     *crypto.FieldCipher
	hasher     *crypto.LookupHasher
	locker     CandidateLocker
	cfg        RecordStoreConfig
	now        func() time.Time
	metrics    *Metrics
}

// NewRecordStore creates a record store
func NewRecordStore(
	candidates database.CandidateStore,
	audit *AuditService,
	cipher *crypto.FieldCipher,
	hasher *crypto.LookupHasher,
	locker CandidateLocker,
	cfg RecordStoreConfig,
) *RecordStore {
	if cfg.RetentionWindow <= 0 {
		cfg.RetentionWindow = 365 * 24 * time.Hour
	}
	if cfg.PurgeParallelism <= 0 {
		cfg.PurgeParallelism = 4
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &RecordStore{
		candidates: candidates,
		audit:      audit,
		cipher:     cipher,
		hasher:     hasher,
		locker:     locker,
		cfg:        cfg,
		now:        time.Now,
		metrics:    GetMetrics(),
	}
}

// CreateOrUpdate encrypts PII and merges the profile into the stored record.
// First creation requires consent and records CREATE; later calls record UPDATE.
func (s *RecordStore) CreateOrUpdate(ctx context.Context, profile *models.CandidateProfile) (created bool, err error) {
	defer func() { s.metrics.RecordOperation("create_or_update", err) }()

	if profile == nil || profile.CandidateID == "" {
		return false, newValidationError("candidate_id", "candidate id is required")
	}
	if err := validateProfile(profile); err != nil {
		return false, err
	}

	unlock, err := s.locker.Lock(ctx, profile.CandidateID)
	if err != nil {
		return false, err
	}
	defer unlock()

	existing, err := s.candidates.FindByID(ctx, profile.CandidateID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return false, fmt.Errorf("failed to load candidate: %w", err)
	}

	now := s.now().UTC()
	doc := existing
	if doc == nil {
		if !profile.ConsentGiven {
			return false, ErrConsentRequired
		}
		doc = &models.CandidateDocument{
			CandidateID:    profile.CandidateID,
			CreatedAt:      now,
			RetentionUntil: now.Add(s.cfg.RetentionWindow),
		}
	}
	if doc.RetentionUntil.IsZero() {
		doc.RetentionUntil = doc.CreatedAt.Add(s.cfg.RetentionWindow)
	}
	doc.UpdatedAt = now

	if err := s.mergeProfile(doc, profile, now); err != nil {
		return false, err
	}

	// A record stored by an attempt whose CREATE entry failed still gets one.
	createAudited := true
	if existing != nil {
		if createAudited, err = s.audit.hasAction(ctx, profile.CandidateID, models.AuditActionCreate); err != nil {
			return false, fmt.Errorf("%w: %v", ErrAuditWrite, err)
		}
	}

	created, err = s.candidates.Upsert(ctx, doc)
	if err != nil {
		return false, fmt.Errorf("failed to store candidate: %w", err)
	}
	created = created || existing == nil

	action := models.AuditActionUpdate
	if created || !createAudited {
		action = models.AuditActionCreate
	}
	if err := s.recordAfterData(ctx, profile.CandidateID, action, ""); err != nil {
		return created, err
	}

	log.Printf("✅ [RECORDS] %s %s", action, profile.CandidateID)
	return created, nil
}

func validateProfile(p *models.CandidateProfile) error {
	if p.Email != "" {
		if _, err := ValidateEmail(p.Email); err != nil {
			return err
		}
	}
	if p.Phone != "" {
		if _, err := ValidatePhone(p.Phone); err != nil {
			return err
		}
	}
	if p.YearsExperience != nil && (*p.YearsExperience < 0 || *p.YearsExperience > maxYearsExperience) {
		return newValidationError("years_experience", "years of experience must be between 0 and 60")
	}
	return nil
}

// mergeProfile copies collected fields onto doc. Empty profile fields keep the stored value.
func (s *RecordStore) mergeProfile(doc *models.CandidateDocument, p *models.CandidateProfile, now time.Time) error {
	encrypt := func(dst *string, value string) error {
		if value == "" {
			return nil
		}
		ct, err := s.cipher.EncryptString(value)
		if err != nil {
			return fmt.Errorf("failed to encrypt field: %w", err)
		}
		*dst = ct
		return nil
	}

	if err := encrypt(&doc.EncryptedFullName, p.FullName); err != nil {
		return err
	}
	if err := encrypt(&doc.EncryptedEmail, p.Email); err != nil {
		return err
	}
	if err := encrypt(&doc.EncryptedPhone, p.Phone); err != nil {
		return err
	}
	if p.Email != "" {
		doc.EmailLookup = s.hasher.Hash(p.Email)
	}

	if p.YearsExperience != nil {
		doc.YearsExperience = *p.YearsExperience
		doc.Difficulty = string(models.DifficultyFor(*p.YearsExperience))
	}
	if p.Difficulty != "" {
		doc.Difficulty = string(p.Difficulty)
	}
	if p.DesiredPosition != "" {
		doc.DesiredPosition = p.DesiredPosition
	}
	if p.CurrentLocation != "" {
		doc.CurrentLocation = p.CurrentLocation
	}
	if p.TechStack != nil {
		doc.TechStack = NormalizeTechStack(p.TechStack)
	}
	if p.TechnicalQuestions != nil {
		doc.TechnicalQuestions = append([]string(nil), p.TechnicalQuestions...)
	}

	if p.Answers != nil {
		if s.cfg.EncryptAnswers {
			raw, err := json.Marshal(p.Answers)
			if err != nil {
				return fmt.Errorf("failed to encode answers: %w", err)
			}
			if err := encrypt(&doc.EncryptedAnswers, string(raw)); err != nil {
				return err
			}
			doc.Answers = nil
		} else {
			doc.Answers = append([]models.Answer(nil), p.Answers...)
			doc.EncryptedAnswers = ""
		}
	}

	// Consent is monotonic: a merge can grant it but never revoke it.
	if p.ConsentGiven && !doc.ConsentGiven {
		doc.ConsentGiven = true
		ts := now
		if p.ConsentTimestamp != nil {
			ts = p.ConsentTimestamp.UTC()
		}
		doc.ConsentTimestamp = &ts
	}
	return nil
}

// GetDecrypted returns the decrypted record and records VIEW.
// An unknown id returns ErrNotFound and writes no audit entry.
func (s *RecordStore) GetDecrypted(ctx context.Context, candidateID string) (rec *models.CandidateRecord, err error) {
	defer func() { s.metrics.RecordOperation("view", err) }()

	rec, err = s.loadRecord(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if err := s.recordAfterData(ctx, candidateID, models.AuditActionView, ""); err != nil {
		return nil, err
	}
	return rec, nil
}

// Export serializes the decrypted record and records EXPORT.
func (s *RecordStore) Export(ctx context.Context, candidateID string, format ExportFormat) (out []byte, err error) {
	defer func() { s.metrics.RecordOperation("export", err) }()

	format, err = ParseExportFormat(string(format))
	if err != nil {
		return nil, err
	}

	rec, err := s.loadRecord(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	out, err = SerializeRecord(rec, format)
	if err != nil {
		return nil, err
	}
	if err := s.recordAfterData(ctx, candidateID, models.AuditActionExport, "format="+string(format)); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete permanently removes a record. DELETE is audited before the removal;
// a retry after a crash between the two steps does not audit twice.
func (s *RecordStore) Delete(ctx context.Context, candidateID string) (err error) {
	defer func() { s.metrics.RecordOperation("delete", err) }()

	unlock, err := s.locker.Lock(ctx, candidateID)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := s.findDocument(ctx, candidateID); err != nil {
		return err
	}

	if err := s.recordBeforeData(ctx, candidateID, models.AuditActionDelete, "erasure request"); err != nil {
		return err
	}

	deleted, err := s.candidates.DeleteByID(ctx, candidateID)
	if err != nil {
		return fmt.Errorf("failed to delete candidate (audit already recorded, retry delete): %w", err)
	}
	if !deleted {
		return fmt.Errorf("%w: %s", ErrNotFound, candidateID)
	}

	log.Printf("🗑️  [RECORDS] Deleted %s on erasure request", candidateID)
	return nil
}

// PurgeExpired deletes every record with retention_until <= now, recording
// RETENTION_PURGE before each removal. It returns the number removed and the
// joined per-record errors; one failure does not stop the others.
func (s *RecordStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.UTC()
	ids, err := s.candidates.FindWhere(ctx, database.Filter{RetentionBefore: &cutoff})
	if err != nil {
		return 0, fmt.Errorf("failed to find expired records: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var (
		mu     sync.Mutex
		purged int
		errs   []error
		g      errgroup.Group
	)
	g.SetLimit(s.cfg.PurgeParallelism)

	for _, id := range ids {
		g.Go(func() error {
			ok, err := s.purgeOne(ctx, id, cutoff)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
			} else if ok {
				purged++
			}
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.PurgedRecords.Add(float64(purged))
	return purged, errors.Join(errs...)
}

func (s *RecordStore) purgeOne(ctx context.Context, candidateID string, cutoff time.Time) (bool, error) {
	unlock, err := s.locker.Lock(ctx, candidateID)
	if err != nil {
		return false, err
	}
	defer unlock()

	// Recheck under the lock: the record may be gone or extended since the scan.
	doc, err := s.candidates.FindByID(ctx, candidateID)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load candidate: %w", err)
	}
	if doc.RetentionUntil.After(cutoff) {
		return false, nil
	}

	detail := "retention_until=" + models.FormatTimestamp(doc.RetentionUntil)
	if err := s.recordBeforeData(ctx, candidateID, models.AuditActionRetentionPurge, detail); err != nil {
		return false, err
	}

	deleted, err := s.candidates.DeleteByID(ctx, candidateID)
	if err != nil {
		return false, fmt.Errorf("failed to delete candidate (audit already recorded): %w", err)
	}
	return deleted, nil
}

// FindByEmail returns candidate ids whose email matches, using the lookup hash.
func (s *RecordStore) FindByEmail(ctx context.Context, email string) ([]string, error) {
	lookup := s.hasher.Hash(email)
	if lookup == "" {
		return nil, newValidationError("email", "email is required")
	}
	return s.candidates.FindWhere(ctx, database.Filter{EmailLookup: lookup})
}

// AuditTrail returns the candidate's audit entries, oldest first. Entries
// remain after the record is deleted.
func (s *RecordStore) AuditTrail(ctx context.Context, candidateID string) ([]models.AuditEntry, error) {
	return s.audit.Query(ctx, candidateID)
}

// Ping checks the candidate store.
func (s *RecordStore) Ping(ctx context.Context) error {
	return s.candidates.Ping(ctx)
}

func (s *RecordStore) findDocument(ctx context.Context, candidateID string) (*models.CandidateDocument, error) {
	doc, err := s.candidates.FindByID(ctx, candidateID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, candidateID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate: %w", err)
	}
	return doc, nil
}

func (s *RecordStore) loadRecord(ctx context.Context, candidateID string) (*models.CandidateRecord, error) {
	doc, err := s.findDocument(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	return s.materialize(doc)
}

// materialize decrypts a document into the caller-facing record.
func (s *RecordStore) materialize(doc *models.CandidateDocument) (*models.CandidateRecord, error) {
	decrypt := func(field, ct string) (string, error) {
		pt, err := s.cipher.DecryptString(ct)
		if err != nil {
			return "", fmt.Errorf("%s of %s: %w", field, doc.CandidateID, err)
		}
		return pt, nil
	}

	rec := &models.CandidateRecord{
		CandidateID:        doc.CandidateID,
		CreatedAt:          models.FormatTimestamp(doc.CreatedAt),
		UpdatedAt:          models.FormatTimestamp(doc.UpdatedAt),
		RetentionUntil:     models.FormatTimestamp(doc.RetentionUntil),
		YearsExperience:    doc.YearsExperience,
		DesiredPosition:    doc.DesiredPosition,
		CurrentLocation:    doc.CurrentLocation,
		TechStack:          nonNilStrings(append([]string(nil), doc.TechStack...)),
		Difficulty:         doc.Difficulty,
		TechnicalQuestions: nonNilStrings(append([]string(nil), doc.TechnicalQuestions...)),
		Answers:            nonNilAnswers(append([]models.Answer(nil), doc.Answers...)),
		ConsentGiven:       doc.ConsentGiven,
	}
	if doc.ConsentTimestamp != nil {
		rec.ConsentTimestamp = models.FormatTimestamp(*doc.ConsentTimestamp)
	}

	var err error
	if rec.FullName, err = decrypt("full_name", doc.EncryptedFullName); err != nil {
		return nil, err
	}
	if rec.Email, err = decrypt("email", doc.EncryptedEmail); err != nil {
		return nil, err
	}
	if rec.Phone, err = decrypt("phone", doc.EncryptedPhone); err != nil {
		return nil, err
	}
	if doc.EncryptedAnswers != "" {
		raw, err := decrypt("answers", doc.EncryptedAnswers)
		if err != nil {
			return nil, err
		}
		var answers []models.Answer
		if err := json.Unmarshal([]byte(raw), &answers); err != nil {
			return nil, fmt.Errorf("failed to decode answers of %s: %w", doc.CandidateID, err)
		}
		rec.Answers = nonNilAnswers(answers)
	}
	return rec, nil
}

// recordAfterData writes the audit entry for an operation whose data step already
// succeeded. A failure here is an anomaly: it is logged, counted and returned.
func (s *RecordStore) recordAfterData(ctx context.Context, candidateID string, action models.AuditAction, detail string) error {
	err := s.audit.Record(ctx, candidateID, action, detail)
	if err == nil {
		return nil
	}
	s.metrics.AuditAnomalies.WithLabelValues(string(action)).Inc()
	logging.WithOperation(logging.WithCandidate(candidateID), string(action)).
		Error("data operation succeeded but audit write failed", "error", err)
	return err
}

// recordBeforeData writes the audit entry for a destructive operation before the
// data changes. If the latest entry already records a deletion, the earlier
// attempt crashed after auditing and the entry is not written again.
func (s *RecordStore) recordBeforeData(ctx context.Context, candidateID string, action models.AuditAction, detail string) error {
	last, err := s.audit.lastAction(ctx, candidateID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuditWrite, err)
	}
	if last == models.AuditActionDelete || last == models.AuditActionRetentionPurge {
		slog.Info("deletion already audited, retrying removal", "candidate_id", candidateID, "action", last)
		return nil
	}
	return s.audit.Record(ctx, candidateID, action, detail)
}
