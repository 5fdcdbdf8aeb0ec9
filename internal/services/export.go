package services

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"talentscout/internal/models"
)

// ExportFormat is a serialization for data-subject exports.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
	ExportXLSX ExportFormat = "xlsx"
)

// ParseExportFormat accepts json, csv and xlsx in any case.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case ExportJSON, ExportCSV, ExportXLSX:
		return f, nil
	case "":
		return ExportJSON, nil
	default:
		return "", newValidationError("format", fmt.Sprintf("unsupported export format %q (use json, csv or xlsx)", s))
	}
}

// ContentType returns the MIME type for the format.
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportCSV:
		return "text/csv; charset=utf-8"
	case ExportXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

// techStackSeparator joins tech_stack in flat formats. ParseTechStack splits on it,
// so no stored entry can contain it.
const techStackSeparator = ";"

var exportColumns = []string{
	"candidate_id",
	"created_at",
	"updated_at",
	"retention_until",
	"full_name",
	"email",
	"phone",
	"years_experience",
	"desired_position",
	"current_location",
	"tech_stack",
	"difficulty",
	"technical_questions",
	"answers",
	"consent_given",
	"consent_timestamp",
}

// SerializeRecord renders a decrypted record. Failures wrap ErrSerialization.
func SerializeRecord(rec *models.CandidateRecord, format ExportFormat) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch format {
	case ExportJSON:
		out, err = json.MarshalIndent(rec, "", "  ")
	case ExportCSV:
		out, err = encodeCSV(rec)
	case ExportXLSX:
		out, err = encodeXLSX(rec)
	default:
		return nil, newValidationError("format", fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s export: %v", ErrSerialization, format, err)
	}
	return out, nil
}

func flattenRecord(rec *models.CandidateRecord) ([]string, error) {
	questions, err := json.Marshal(nonNilStrings(rec.TechnicalQuestions))
	if err != nil {
		return nil, err
	}
	answers, err := json.Marshal(nonNilAnswers(rec.Answers))
	if err != nil {
		return nil, err
	}

	return []string{
		rec.CandidateID,
		rec.CreatedAt,
		rec.UpdatedAt,
		rec.RetentionUntil,
		rec.FullName,
		rec.Email,
		rec.Phone,
		strconv.FormatFloat(rec.YearsExperience, 'f', -1, 64),
		rec.DesiredPosition,
		rec.CurrentLocation,
		strings.Join(rec.TechStack, techStackSeparator),
		rec.Difficulty,
		string(questions),
		string(answers),
		strconv.FormatBool(rec.ConsentGiven),
		rec.ConsentTimestamp,
	}, nil
}

func encodeCSV(rec *models.CandidateRecord) ([]byte, error) {
	row, err := flattenRecord(rec)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportColumns); err != nil {
		return nil, err
	}
	if err := w.Write(row); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeXLSX(rec *models.CandidateRecord) ([]byte, error) {
	row, err := flattenRecord(rec)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Candidate"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	header := make([]interface{}, len(exportColumns))
	for i, c := range exportColumns {
		header[i] = c
	}
	values := make([]interface{}, len(row))
	for i, v := range row {
		values[i] = v
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(sheet, "A2", &values); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseCSVExport reads a CSV export back into a record.
func ParseCSVExport(data []byte) (*models.CandidateRecord, error) {
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) != 2 {
		return nil, fmt.Errorf("expected header and one row, got %d rows", len(rows))
	}
	return unflattenRecord(rows[0], rows[1])
}

// ParseXLSXExport reads an XLSX export back into a record.
func ParseXLSXExport(data []byte) (*models.CandidateRecord, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := f.GetRows("Candidate")
	if err != nil {
		return nil, err
	}
	if len(rows) != 2 {
		return nil, fmt.Errorf("expected header and one row, got %d rows", len(rows))
	}
	// GetRows drops trailing empty cells.
	row := rows[1]
	for len(row) < len(rows[0]) {
		row = append(row, "")
	}
	return unflattenRecord(rows[0], row)
}

func unflattenRecord(header, row []string) (*models.CandidateRecord, error) {
	if len(header) != len(row) {
		return nil, fmt.Errorf("header has %d columns, row has %d", len(header), len(row))
	}
	col := make(map[string]string, len(header))
	for i, name := range header {
		col[name] = row[i]
	}

	rec := &models.CandidateRecord{
		CandidateID:      col["candidate_id"],
		CreatedAt:        col["created_at"],
		UpdatedAt:        col["updated_at"],
		RetentionUntil:   col["retention_until"],
		FullName:         col["full_name"],
		Email:            col["email"],
		Phone:            col["phone"],
		DesiredPosition:  col["desired_position"],
		CurrentLocation:  col["current_location"],
		Difficulty:       col["difficulty"],
		ConsentTimestamp: col["consent_timestamp"],
		TechStack:        []string{},
	}

	var err error
	if v := col["years_experience"]; v != "" {
		if rec.YearsExperience, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("years_experience: %w", err)
		}
	}
	if v := col["consent_given"]; v != "" {
		if rec.ConsentGiven, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("consent_given: %w", err)
		}
	}
	if v := col["tech_stack"]; v != "" {
		rec.TechStack = strings.Split(v, techStackSeparator)
	}
	if err := json.Unmarshal([]byte(orEmptyArray(col["technical_questions"])), &rec.TechnicalQuestions); err != nil {
		return nil, fmt.Errorf("technical_questions: %w", err)
	}
	if err := json.Unmarshal([]byte(orEmptyArray(col["answers"])), &rec.Answers); err != nil {
		return nil, fmt.Errorf("answers: %w", err)
	}
	return rec, nil
}

func orEmptyArray(s string) string {
	if s == "" {
		return "[]"
	}
	return s
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilAnswers(a []models.Answer) []models.Answer {
	if a == nil {
		return []models.Answer{}
	}
	return a
}
