package models

import "time"

// Answer is one technical question with the candidate's reply.
type Answer struct {
	Question string `bson:"question" json:"question"`
	Answer   string `bson:"answer" json:"answer"`
}

// CandidateDocument is the at-rest form of a candidate record.
// PII fields hold FieldCipher output and are never stored in clear text.
type CandidateDocument struct {
	CandidateID    string    `bson:"candidate_id" json:"candidate_id"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updated_at"`
	RetentionUntil time.Time `bson:"retention_until" json:"retention_until"`

	// Encrypted PII (AES-256-GCM, base64)
	EncryptedFullName string `bson:"full_name" json:"full_name"`
	EncryptedEmail    string `bson:"email" json:"email"`
	EncryptedPhone    string `bson:"phone" json:"phone"`
	EmailLookup       string `bson:"email_lookup,omitempty" json:"email_lookup,omitempty"` // HMAC of normalized email

	// Profile (plaintext)
	YearsExperience float64  `bson:"years_experience" json:"years_experience"`
	DesiredPosition string   `bson:"desired_position" json:"desired_position"`
	CurrentLocation string   `bson:"current_location" json:"current_location"`
	TechStack       []string `bson:"tech_stack" json:"tech_stack"`
	Difficulty      string   `bson:"difficulty,omitempty" json:"difficulty,omitempty"`

	// Interview
	TechnicalQuestions []string `bson:"technical_questions" json:"technical_questions"`
	Answers            []Answer `bson:"answers,omitempty" json:"answers,omitempty"`
	EncryptedAnswers   string   `bson:"answers_encrypted,omitempty" json:"answers_encrypted,omitempty"`

	ConsentGiven     bool       `bson:"consent_given" json:"consent_given"`
	ConsentTimestamp *time.Time `bson:"consent_timestamp,omitempty" json:"consent_timestamp,omitempty"`
}

// CandidateProfile is the clear-text buffer an interview session fills in.
// Zero values mean "not collected"; YearsExperience is a pointer so 0 years is distinguishable.
type CandidateProfile struct {
	CandidateID        string
	FullName           string
	Email              string
	Phone              string
	YearsExperience    *float64
	DesiredPosition    string
	CurrentLocation    string
	TechStack          []string
	Difficulty         Difficulty
	TechnicalQuestions []string
	Answers            []Answer
	ConsentGiven       bool
	ConsentTimestamp   *time.Time
}

// CandidateRecord is the decrypted, caller-facing view. All timestamps are
// RFC 3339 text so any serializer can handle the record.
type CandidateRecord struct {
	CandidateID        string   `json:"candidate_id"`
	CreatedAt          string   `json:"created_at"`
	UpdatedAt          string   `json:"updated_at"`
	RetentionUntil     string   `json:"retention_until"`
	FullName           string   `json:"full_name"`
	Email              string   `json:"email"`
	Phone              string   `json:"phone"`
	YearsExperience    float64  `json:"years_experience"`
	DesiredPosition    string   `json:"desired_position"`
	CurrentLocation    string   `json:"current_location"`
	TechStack          []string `json:"tech_stack"`
	Difficulty         string   `json:"difficulty"`
	TechnicalQuestions []string `json:"technical_questions"`
	Answers            []Answer `json:"answers"`
	ConsentGiven       bool     `json:"consent_given"`
	ConsentTimestamp   string   `json:"consent_timestamp"`
}

// FormatTimestamp renders a timestamp in the portable form used by CandidateRecord.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
