package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"Alex Doe", "Alex Doe", true},
		{"  Alex   Doe ", "Alex Doe", true},
		{"Zoë", "Zoë", true},
		{"A", "", false},
		{"12345", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := ValidateName(tt.input)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrValidation, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got)
	}
}

func TestValidateEmail(t *testing.T) {
	valid := []string{"alex@example.com", " a.b+c@sub.example.io ", "x_y%z@d-e.org"}
	for _, in := range valid {
		_, err := ValidateEmail(in)
		assert.NoError(t, err, in)
	}

	invalid := []string{"", "alex", "alex@", "alex@example", "alex@example.c", "a b@example.com"}
	for _, in := range invalid {
		_, err := ValidateEmail(in)
		assert.ErrorIs(t, err, ErrValidation, in)
	}
}

func TestValidatePhone(t *testing.T) {
	valid := []string{"+1-555-0100", "(030) 1234 5678", "555.123.4567", "1234567"}
	for _, in := range valid {
		got, err := ValidatePhone(in)
		require.NoError(t, err, in)
		assert.Equal(t, in, got)
	}

	invalid := []string{"", "123456", "1234567890123456", "555-CALL-NOW", "++15550100"}
	for _, in := range invalid {
		_, err := ValidatePhone(in)
		assert.ErrorIs(t, err, ErrValidation, in)
	}
}

func TestParseYearsExperience(t *testing.T) {
	tests := []struct {
		input string
		want  float64
		ok    bool
	}{
		{"4", 4, true},
		{"about 2.5 years", 2.5, true},
		{"0", 0, true},
		{"60", 60, true},
		{"61", 0, false},
		{"-3", 0, false},
		{"a few", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseYearsExperience(tt.input)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrValidation, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseTechStack(t *testing.T) {
	got, err := ParseTechStack(" Go,  python ;Python\nReact   Native,, go ")
	require.NoError(t, err)
	assert.Equal(t, []string{"Go", "python", "React Native"}, got)

	_, err = ParseTechStack(" , ;\n")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidateShortText(t *testing.T) {
	got, err := ValidateShortText("current_location", "  Berlin ")
	require.NoError(t, err)
	assert.Equal(t, "Berlin", got)

	_, err = ValidateShortText("current_location", "B")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "current_location", verr.Field)
}

func TestParseExportFormat(t *testing.T) {
	for in, want := range map[string]ExportFormat{"": ExportJSON, "JSON": ExportJSON, "csv": ExportCSV, " xlsx ": ExportXLSX} {
		got, err := ParseExportFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseExportFormat("xml")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidateCandidateID(t *testing.T) {
	assert.NoError(t, ValidateCandidateID(NewCandidateID()))
	assert.NoError(t, ValidateCandidateID("candidate_sam"))

	for _, in := range []string{"", "candidate_", "sam", "candidate_../etc", "candidate_a/b", "candidate_a b"} {
		assert.ErrorIs(t, ValidateCandidateID(in), ErrValidation, in)
	}
}
