package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentscout/internal/crypto"
	"talentscout/internal/database"
	"talentscout/internal/models"
)

type recordStoreFixture struct {
	store   *RecordStore
	backend *database.MemoryStore
	audit   *flakyAuditStore
	cipher  *crypto.FieldCipher
	hasher  *crypto.LookupHasher
}

// flakyAuditStore fails Append while failing is set.
type flakyAuditStore struct {
	database.AuditStore
	mu      sync.Mutex
	failing bool
}

func (f *flakyAuditStore) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func (f *flakyAuditStore) Append(ctx context.Context, entry models.AuditEntry) error {
	f.mu.Lock()
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return errors.New("audit store offline")
	}
	return f.AuditStore.Append(ctx, entry)
}

func newRecordStoreFixture(t *testing.T, cfg RecordStoreConfig) *recordStoreFixture {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	cipher, err := crypto.NewFieldCipher(key)
	require.NoError(t, err)
	hasher, err := crypto.NewLookupHasher(key)
	require.NoError(t, err)

	backend := database.NewMemoryStore()
	audit := &flakyAuditStore{AuditStore: backend}
	store := NewRecordStore(backend, NewAuditService(audit), cipher, hasher, NewLocalLocker(), cfg)
	return &recordStoreFixture{store: store, backend: backend, audit: audit, cipher: cipher, hasher: hasher}
}

func sampleProfile(id string) *models.CandidateProfile {
	years := 4.0
	consentAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &models.CandidateProfile{
		CandidateID:        id,
		FullName:           "Alex Doe",
		Email:              "alex@example.com",
		Phone:              "+1-555-0100",
		YearsExperience:    &years,
		DesiredPosition:    "Backend Engineer",
		CurrentLocation:    "Berlin",
		TechStack:          []string{"Go", "Python"},
		Difficulty:         models.DifficultyIntermediate,
		TechnicalQuestions: []string{"How do goroutines differ from threads?", "How does the Python GIL affect concurrency?"},
		Answers: []models.Answer{
			{Question: "How do goroutines differ from threads?", Answer: "They are multiplexed onto OS threads, with \"growable\" stacks, commas, and\nnewlines."},
			{Question: "How does the Python GIL affect concurrency?", Answer: "Only one thread runs bytecode at a time."},
		},
		ConsentGiven:     true,
		ConsentTimestamp: &consentAt,
	}
}

func auditActions(t *testing.T, f *recordStoreFixture, id string) []models.AuditAction {
	t.Helper()
	entries, err := f.store.AuditTrail(context.Background(), id)
	require.NoError(t, err)
	actions := make([]models.AuditAction, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	return actions
}

func TestRecordStoreCreateEncryptsPII(t *testing.T) {
	ctx := context.Background()
	f := newRecordStoreFixture(t, RecordStoreConfig{})

	created, err := f.store.CreateOrUpdate(ctx, sampleProfile("candidate_a"))
	require.NoError(t, err)
	assert.True(t, created)

	doc, err := f.backend.FindByID(ctx, "candidate_a")
	require.NoError(t, err)
	assert.NotEqual(t, "alex@example.com", doc.EncryptedEmail)
	assert.NotEqual(t, "Alex Doe", doc.EncryptedFullName)
	assert.NotEqual(t, "+1-555-0100", doc.EncryptedPhone)
	assert.Equal(t, f.hasher.Hash("Alex@Example.com "), doc.EmailLookup)
	assert.Equal(t, "intermediate", doc.Difficulty)
	assert.Equal(t, doc.CreatedAt.Add(365*24*time.Hour), doc.RetentionUntil)

	email, err := f.cipher.DecryptString(doc.EncryptedEmail)
	require.NoError(t, err)
	assert.Equal(t, "alex@example.com", email)

	assert.Equal(t, []models.AuditAction{models.AuditActionCreate}, auditActions(t, f, "candidate_a"))
}

func TestRecordStoreUpdateMergesAndKeepsConsent(t *testing.T) {
	ctx := context.Background()
	f := newRecordStoreFixture(t, RecordStoreConfig{})

	_, err := f.store.CreateOrUpdate(ctx, sampleProfile("candidate_a"))
	require.NoError(t, err)
	before, err := f.backend.FindByID(ctx, "candidate_a")
	require.NoError(t, err)

	created, err := f.store.CreateOrUpdate(ctx, &models.CandidateProfile{
		CandidateID:     "candidate_a",
		CurrentLocation: "Munich",
	})
	require.NoError(t, err)
	assert.False(t, created)

	rec, err := f.store.GetDecrypted(ctx, "candidate_a")
	require.NoError(t, err)
	assert.Equal(t, "Munich", rec.CurrentLocation)
	assert.Equal(t, "Alex Doe", rec.FullName)
	assert.True(t, rec.ConsentGiven)
	assert.Equal(t, models.FormatTimestamp(before.RetentionUntil), rec.RetentionUntil)

	assert.Equal(t,
		[]models.AuditAction{models.AuditActionCreate, models.AuditActionUpdate, models.AuditActionView},
		auditActions(t, f, "candidate_a"))
}

func TestRecordStoreRefusesCreateWithoutConsent(t *testing.T) {
	ctx := context.Background()
	f := newRecordStoreFixture(t, RecordStoreConfig{})

	p := sampleProfile("candidate_a")
	p.ConsentGiven = false
	p.ConsentTimestamp = nil

	_, err := f.store.CreateOrUpdate(ctx, p)
	require.ErrorIs(t, err, ErrConsentRequired)

	_, err = f.backend.FindByID(ctx, "candidate_a")
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.Empty(t, auditActions(t, f, "candidate_a"))
}

func TestRecordStoreRejectsInvalidProfile(t *testing.T) {
	f := newRecordStoreFixture(t, RecordStoreConfig{})
	p := sampleProfile("candidate_a")
	p.Email = "not-an-email"

	_, err := f.store.CreateOrUpdate(context.Background(), p)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRecordStoreGetDecrypted(t *testing.T) {
	ctx := context.Background()
	f := newRecordStoreFixture(t, RecordStoreConfig{})
	_, err := f.store.CreateOrUpdate(ctx, sampleProfile("candidate_a"))
	require.NoError(t, err)

	rec, err := f.store.GetDecrypted(ctx, "candidate_a")
	require.NoError(t, err)
	assert.Equal(t, "Alex Doe", rec.FullName)
	assert.Equal(t, "alex@example.com", rec.Email)
	assert.Equal(t, "+1-555-0100", rec.Phone)
	assert.Equal(t, []string{"Go", "Python"}, rec.TechStack)
	assert.Equal(t, "2026-03-01T09:00:00Z", rec.ConsentTimestamp)

	_, err = time.Parse(time.RFC3339Nano, rec.CreatedAt)
	assert.NoError(t, err)
	_, err = time.Parse(time.RFC3339Nano, rec.RetentionUntil)
	assert.NoError(t, err)
}

func TestRecordStoreNotFoundWritesNoAudit(t *testing.T) {
	ctx := context.Background()
	f := newRecordStoreFixture(t, RecordStoreConfig{})

	_, err := f.store.GetDecrypted(ctx, "candidate_missing")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "no data found: candidate_missing", err.Error())

	_, err = f.store.Export(ctx, "candidate_missing", ExportJSON)
	require.ErrorIs(t, err, ErrNotFound)

	err = f.store.Delete(ctx, "candidate_missing")
	require.ErrorIs(t, err, ErrNotFound)

	assert.Empty(t, auditActions(t, f, "candidate_missing"))
}

func TestRecordStoreAuditFailureFailsOperation(t *testing.T) {
	ctx := context.Background()
	f := newRecordStoreFixture(t, RecordStoreConfig{})
	_, err := f.store.CreateOrUpdate(ctx, sampleProfile("candidate_a"))
	require.NoError(t, err)

	f.audit.setFailing(true)
	_, err = f.store.GetDecrypted(ctx, "candidate_a")
	assert.ErrorIs(t, err, ErrAuditWrite)

	_, err = f.store.Export(ctx, "candidate_a", ExportCSV)
	assert.ErrorIs(t, err, ErrAuditWrite)

	// Deletion audits first, so nothing is removed when the audit is down.
	err = f.store.Delete(ctx, "candidate_a")
	assert.ErrorIs(t, err, ErrAuditWrite)
	_, err = f.backend.FindByID(ctx, "candidate_a")
	assert.NoError(t, err)
}

func TestRecordStoreRetryAfterFailedCreateAuditWritesCreate(t *testing.T) {
	ctx := context.Background()
	f := newRecordStoreFixture(t, RecordStoreConfig{})

	f.audit.setFailing(true)
	_, err := f.store.CreateOrUpdate(ctx, sampleProfile("candidate_a"))
	require.ErrorIs(t, err, ErrAuditWrite)
	_, err = f.backend.FindByID(ctx, "candidate_a")
	require.NoError(t, err, "data step ran before the audit write")

	f.audit.setFailing(false)
	_, err = f.store.CreateOrUpdate(ctx, sampleProfile("candidate_a"))
	require.NoError(t, err)
	assert.Equal(t, []models.AuditAction{models.AuditActionCreate}, auditActions(t, f, "candidate_a"))

	_, err = f.store.CreateOrUpdate(ctx, sampleProfile("candidate_a"))
	require.NoError(t, err)
	assert.Equal(t, []models.AuditAction{models.AuditActionCreate, models.AuditActionUpdate}, auditActions(t, f, "candidate_a"))
}

func TestRecordStoreDelete(t *testing.T) {
	ctx := context.Background()
	f := newRecordStoreFixture(t, RecordStoreConfig{})
	_, err := f.store.CreateOrUpdate(ctx, sampleProfile("candidate_a"))
	require.NoError(t, err)

	require.NoError(t, f.store.Delete(ctx, "candidate_a"))

	_, err = f.store.GetDecrypted(ctx, "candidate_a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t,
		[]models.AuditAction{models.AuditActionCreate, models.AuditActionDelete},
		auditActions(t, f, "candidate_a"))
}

// failingDeleteStore loses the first DeleteByID call, as if the process
// crashed after the audit entry was written.
type failingDeleteStore struct {
	*database.MemoryStore
	failures int
}

func (s *failingDeleteStore) DeleteByID(ctx context.Context, id string) (bool, error) {
	if s.failures > 0 {
		s.failures--
		return false, errors.New("connection reset")
	}
	return s.MemoryStore.DeleteByID(ctx, id)
}

func TestRecordStoreDeleteRetryDoesNotAuditTwice(t *testing.T) {
	ctx := context.Background()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	cipher, err := crypto.NewFieldCipher(key)
	require.NoError(t, err)
	hasher, err := crypto.NewLookupHasher(key)
	require.NoError(t, err)

	backend := &failingDeleteStore{MemoryStore: database.NewMemoryStore(), failures: 1}
	audit := NewAuditService(backend)
	store := NewRecordStore(backend, audit, cipher, hasher, nil, RecordStoreConfig{})

	_, err = store.CreateOrUpdate(ctx, sampleProfile("candidate_a"))
	require.NoError(t, err)

	err = store.Delete(ctx, "candidate_a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry delete")

	require.NoError(t, store.Delete(ctx, "candidate_a"))

	entries, err := audit.Query(ctx, "candidate_a")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.AuditActionDelete, entries[1].Action)
}

func TestRecordStorePurgeExpired(t *testing.T) {
	ctx := context.Background()
	f := newRecordStoreFixture(t, RecordStoreConfig{RetentionWindow: 24 * time.Hour, PurgeParallelism: 2})

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.store.now = func() time.Time { return created }
	for _, id := range []string{"candidate_old1", "candidate_old2", "candidate_old3"} {
		_, err := f.store.CreateOrUpdate(ctx, sampleProfile(id))
		require.NoError(t, err)
	}
	f.store.now = func() time.Time { return created.Add(10 * 24 * time.Hour) }
	_, err := f.store.CreateOrUpdate(ctx, sampleProfile("candidate_new"))
	require.NoError(t, err)

	purged, err := f.store.PurgeExpired(ctx, created.Add(5*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, purged)

	for _, id := range []string{"candidate_old1", "candidate_old2", "candidate_old3"} {
		_, err := f.backend.FindByID(ctx, id)
		assert.ErrorIs(t, err, database.ErrNotFound)
		assert.Equal(t,
			[]models.AuditAction{models.AuditActionCreate, models.AuditActionRetentionPurge},
			auditActions(t, f, id))
	}

	_, err = f.backend.FindByID(ctx, "candidate_new")
	assert.NoError(t, err)
	assert.Equal(t, []models.AuditAction{models.AuditActionCreate}, auditActions(t, f, "candidate_new"))

	purged, err = f.store.PurgeExpired(ctx, created.Add(5*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, purged)
}

func TestRecordStorePurgeBoundaryIsInclusive(t *testing.T) {
	ctx := context.Background()
	f := newRecordStoreFixture(t, RecordStoreConfig{RetentionWindow: time.Hour})
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.store.now = func() time.Time { return created }
	_, err := f.store.CreateOrUpdate(ctx, sampleProfile("candidate_edge"))
	require.NoError(t, err)

	purged, err := f.store.PurgeExpired(ctx, created.Add(time.Hour-time.Nanosecond))
	require.NoError(t, err)
	assert.Zero(t, purged)

	purged, err = f.store.PurgeExpired(ctx, created.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, purged)
}

func TestRecordStorePurgeReportsAuditFailures(t *testing.T) {
	ctx := context.Background()
	f := newRecordStoreFixture(t, RecordStoreConfig{RetentionWindow: time.Hour})
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.store.now = func() time.Time { return created }
	_, err := f.store.CreateOrUpdate(ctx, sampleProfile("candidate_a"))
	require.NoError(t, err)

	f.audit.setFailing(true)
	purged, err := f.store.PurgeExpired(ctx, created.Add(2*time.Hour))
	assert.Zero(t, purged)
	assert.ErrorIs(t, err, ErrAuditWrite)

	_, err = f.backend.FindByID(ctx, "candidate_a")
	assert.NoError(t, err)
}

func TestRecordStoreExportJSONAndCSVAgree(t *testing.T) {
	ctx := context.Background()
	f := newRecordStoreFixture(t, RecordStoreConfig{})
	_, err := f.store.CreateOrUpdate(ctx, sampleProfile("candidate_a"))
	require.NoError(t, err)

	jsonOut, err := f.store.Export(ctx, "candidate_a", ExportJSON)
	require.NoError(t, err)
	csvOut, err := f.store.Export(ctx, "candidate_a", ExportCSV)
	require.NoError(t, err)
	xlsxOut, err := f.store.Export(ctx, "candidate_a", ExportXLSX)
	require.NoError(t, err)

	var fromJSON models.CandidateRecord
	require.NoError(t, json.Unmarshal(jsonOut, &fromJSON))
	fromCSV, err := ParseCSVExport(csvOut)
	require.NoError(t, err)
	fromXLSX, err := ParseXLSXExport(xlsxOut)
	require.NoError(t, err)

	assert.Equal(t, fromJSON, *fromCSV)
	assert.Equal(t, fromJSON, *fromXLSX)
	assert.Equal(t, "alex@example.com", fromJSON.Email)
	require.Len(t, fromJSON.Answers, 2)
	assert.Contains(t, fromJSON.Answers[0].Answer, "\n")

	entries, err := f.store.AuditTrail(ctx, "candidate_a")
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "format=json", entries[1].Detail)
	assert.Equal(t, "format=csv", entries[2].Detail)
	assert.Equal(t, "format=xlsx", entries[3].Detail)
}

func TestRecordStoreExportRejectsUnknownFormat(t *testing.T) {
	ctx := context.Background()
	f := newRecordStoreFixture(t, RecordStoreConfig{})
	_, err := f.store.CreateOrUpdate(ctx, sampleProfile("candidate_a"))
	require.NoError(t, err)

	_, err = f.store.Export(ctx, "candidate_a", ExportFormat("pdf"))
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, []models.AuditAction{models.AuditActionCreate}, auditActions(t, f, "candidate_a"))
}

func TestRecordStoreEncryptedAnswers(t *testing.T) {
	ctx := context.Background()
	f := newRecordStoreFixture(t, RecordStoreConfig{EncryptAnswers: true})
	_, err := f.store.CreateOrUpdate(ctx, sampleProfile("candidate_a"))
	require.NoError(t, err)

	doc, err := f.backend.FindByID(ctx, "candidate_a")
	require.NoError(t, err)
	assert.Empty(t, doc.Answers)
	assert.NotEmpty(t, doc.EncryptedAnswers)
	assert.NotContains(t, doc.EncryptedAnswers, "goroutines")

	rec, err := f.store.GetDecrypted(ctx, "candidate_a")
	require.NoError(t, err)
	assert.Equal(t, sampleProfile("candidate_a").Answers, rec.Answers)
}

func TestRecordStoreTamperedFieldFailsRead(t *testing.T) {
	ctx := context.Background()
	f := newRecordStoreFixture(t, RecordStoreConfig{})
	_, err := f.store.CreateOrUpdate(ctx, sampleProfile("candidate_a"))
	require.NoError(t, err)

	doc, err := f.backend.FindByID(ctx, "candidate_a")
	require.NoError(t, err)
	other, err := f.cipher.EncryptString("mallory@example.com")
	require.NoError(t, err)
	doc.EncryptedEmail = other[:len(other)-4] + "AAAA"
	_, err = f.backend.Upsert(ctx, doc)
	require.NoError(t, err)

	rec, err := f.store.GetDecrypted(ctx, "candidate_a")
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, crypto.ErrDecryption)
}

func TestRecordStoreFindByEmail(t *testing.T) {
	ctx := context.Background()
	f := newRecordStoreFixture(t, RecordStoreConfig{})
	_, err := f.store.CreateOrUpdate(ctx, sampleProfile("candidate_b"))
	require.NoError(t, err)
	_, err = f.store.CreateOrUpdate(ctx, sampleProfile("candidate_a"))
	require.NoError(t, err)

	ids, err := f.store.FindByEmail(ctx, " ALEX@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"candidate_a", "candidate_b"}, ids)

	_, err = f.store.FindByEmail(ctx, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRecordStoreSerializesConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	f := newRecordStoreFixture(t, RecordStoreConfig{})
	_, err := f.store.CreateOrUpdate(ctx, sampleProfile("candidate_a"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.store.CreateOrUpdate(ctx, &models.CandidateProfile{CandidateID: "candidate_a", CurrentLocation: "Hamburg"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	actions := auditActions(t, f, "candidate_a")
	assert.Len(t, actions, 21)
	assert.Equal(t, models.AuditActionCreate, actions[0])
}
