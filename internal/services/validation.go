package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxYearsExperience = 60

var (
	emailPattern  = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)
	phoneStripper = strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "")
	spaceRun      = regexp.MustCompile(`\s+`)
	candidateIDRe = regexp.MustCompile(`^candidate_[A-Za-z0-9_-]{1,64}$`)
)

// ValidateCandidateID rejects ids that NewCandidateID could not have produced,
// so operator input never reaches a store query unchecked.
func ValidateCandidateID(id string) error {
	if id == "" {
		return newValidationError("candidate_id", "cannot be empty")
	}
	if !candidateIDRe.MatchString(id) {
		return newValidationError("candidate_id", fmt.Sprintf("expected candidate_<id>, got %q", id))
	}
	return nil
}

// ValidateName accepts 2 to 100 characters containing at least one letter.
func ValidateName(input string) (string, error) {
	name := collapseSpaces(input)
	n := utf8.RuneCountInString(name)
	if n < 2 || n > 100 {
		return "", newValidationError("full_name", "please enter your full name (2 to 100 characters)")
	}
	if !strings.ContainsFunc(name, unicode.IsLetter) {
		return "", newValidationError("full_name", "a name must contain letters")
	}
	return name, nil
}

// ValidateEmail checks the address format and returns it trimmed.
func ValidateEmail(input string) (string, error) {
	email := strings.TrimSpace(input)
	if !emailPattern.MatchString(email) {
		return "", newValidationError("email", "please enter a valid email address, e.g. name@example.com")
	}
	return email, nil
}

// ValidatePhone accepts 7 to 15 digits once spaces, dashes, dots,
// parentheses and a leading plus are removed. The original formatting is kept.
func ValidatePhone(input string) (string, error) {
	phone := strings.TrimSpace(input)
	digits := strings.TrimPrefix(phoneStripper.Replace(phone), "+")
	if len(digits) < 7 || len(digits) > 15 {
		return "", newValidationError("phone", "please enter a phone number with 7 to 15 digits")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", newValidationError("phone", "a phone number may contain digits, spaces, dashes and a leading +")
		}
	}
	return phone, nil
}

// ParseYearsExperience takes the first number in the input ("about 4 years" is 4).
func ParseYearsExperience(input string) (float64, error) {
	match := numberPattern.FindString(input)
	if match == "" {
		return 0, newValidationError("years_experience", "please enter your years of experience as a number")
	}
	years, err := strconv.ParseFloat(match, 64)
	if err != nil || years < 0 || years > maxYearsExperience {
		return 0, newValidationError("years_experience", "years of experience must be between 0 and 60")
	}
	if strings.Contains(input, "-"+match) {
		return 0, newValidationError("years_experience", "years of experience cannot be negative")
	}
	return years, nil
}

// ValidateShortText accepts free text of at least 2 characters (position, location).
func ValidateShortText(field, input string) (string, error) {
	value := collapseSpaces(input)
	if utf8.RuneCountInString(value) < 2 {
		return "", newValidationError(field, "please enter at least 2 characters")
	}
	if utf8.RuneCountInString(value) > 200 {
		return "", newValidationError(field, "please keep this under 200 characters")
	}
	return value, nil
}

// ParseTechStack splits on commas, semicolons and newlines, trims and
// de-duplicates case-insensitively keeping the first spelling.
func ParseTechStack(input string) ([]string, error) {
	stack := NormalizeTechStack([]string{input})
	if len(stack) == 0 {
		return nil, newValidationError("tech_stack", "please list at least one technology, separated by commas")
	}
	return stack, nil
}

// NormalizeTechStack applies ParseTechStack rules to already split entries.
func NormalizeTechStack(entries []string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, entry := range entries {
		parts := strings.FieldsFunc(entry, func(r rune) bool {
			return r == ',' || r == ';' || r == '\n' || r == '\r'
		})
		for _, part := range parts {
			tech := collapseSpaces(part)
			if tech == "" {
				continue
			}
			key := strings.ToLower(tech)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, tech)
		}
	}
	return out
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}
