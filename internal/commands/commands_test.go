package commands

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentscout/internal/app"
	"talentscout/internal/config"
	"talentscout/internal/models"
	"talentscout/internal/services"
)

// newTestApp returns an opener sharing one in-memory application across commands.
func newTestApp(t *testing.T) (*app.App, Opener) {
	t.Helper()
	t.Setenv("STORE_DRIVER", config.DriverMemory)
	t.Setenv("SECRET_BACKEND", "none")
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("ENCRYPTION_KEY", "")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("REDIS_URL", "")

	a, err := app.New(context.Background(), config.Load())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })

	return a, func(context.Context) (*app.App, func(), error) {
		return a, func() {}, nil
	}
}

func seed(t *testing.T, a *app.App, id string) {
	t.Helper()
	years := 6.0
	consentAt := time.Now().UTC()
	_, err := a.Records.CreateOrUpdate(context.Background(), &models.CandidateProfile{
		CandidateID:        id,
		FullName:           "Sam Rivera",
		Email:              "Sam.Rivera@example.com",
		Phone:              "+44 20 7946 0958",
		YearsExperience:    &years,
		DesiredPosition:    "Platform Engineer",
		CurrentLocation:    "London",
		TechStack:          []string{"Go", "Kubernetes"},
		Difficulty:         models.DifficultyAdvanced,
		TechnicalQuestions: []string{"How would you roll out a schema change with zero downtime?"},
		Answers:            []models.Answer{{Question: "How would you roll out a schema change with zero downtime?", Answer: "Expand, migrate, contract."}},
		ConsentGiven:       true,
		ConsentTimestamp:   &consentAt,
	})
	require.NoError(t, err)
}

func run(t *testing.T, open Opener, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestKeygen(t *testing.T) {
	out, err := run(t, nil, "keygen")
	require.NoError(t, err)

	key := strings.TrimSpace(out)
	raw, err := hex.DecodeString(key)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

func TestViewAndLookup(t *testing.T) {
	a, open := newTestApp(t)
	seed(t, a, "candidate_sam")

	out, err := run(t, open, "view", "candidate_sam")
	require.NoError(t, err)
	var rec models.CandidateRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "Sam Rivera", rec.FullName)

	out, err = run(t, open, "lookup", "sam.rivera@EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, "candidate_sam\n", out)

	_, err = run(t, open, "lookup", "nobody@example.com")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestExportToFile(t *testing.T) {
	a, open := newTestApp(t)
	seed(t, a, "candidate_sam")

	path := filepath.Join(t.TempDir(), "sam.csv")
	_, err := run(t, open, "export", "candidate_sam", "--format", "csv", "--output", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	rec, err := services.ParseCSVExport(data)
	require.NoError(t, err)
	assert.Equal(t, "London", rec.CurrentLocation)

	_, err = run(t, open, "export", "candidate_sam", "--format", "yaml")
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	a, open := newTestApp(t)
	seed(t, a, "candidate_sam")

	_, err := run(t, open, "delete", "candidate_sam")
	require.Error(t, err)

	out, err := run(t, open, "delete", "candidate_sam", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted candidate: candidate_sam")

	_, err = run(t, open, "view", "candidate_sam")
	assert.ErrorIs(t, err, services.ErrNotFound)

	out, err = run(t, open, "audit", "candidate_sam")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], string(models.AuditActionCreate))
	assert.Contains(t, lines[1], string(models.AuditActionDelete))
}

func TestPurge(t *testing.T) {
	a, open := newTestApp(t)
	seed(t, a, "candidate_sam")

	out, err := run(t, open, "purge")
	require.NoError(t, err)
	assert.Equal(t, "Purged 0 records\n", out)
}

func TestRejectsMalformedCandidateID(t *testing.T) {
	_, open := newTestApp(t)

	_, err := run(t, open, "view", "../candidate_sam")
	assert.ErrorIs(t, err, services.ErrValidation)
}
