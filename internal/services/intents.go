package services

import (
	"regexp"
	"strings"
)

var affirmativeReplies = map[string]bool{
	"yes":       true,
	"y":         true,
	"i agree":   true,
	"agree":     true,
	"i consent": true,
	"accept":    true,
	"i accept":  true,
	"ok":        true,
	"okay":      true,
	"sure":      true,
}

// Exit phrases match the whole normalized input, so an answer that merely
// mentions "stop" or "exit" is not an exit.
var exitPhrases = map[string]bool{
	"bye":            true,
	"goodbye":        true,
	"exit":           true,
	"quit":           true,
	"stop":           true,
	"cancel":         true,
	"end interview":  true,
	"no thanks":      true,
	"not interested": true,
	"leave":          true,
}

var recapPatterns = []string{
	"what did i say",
	"what was my",
	"what's my",
	"what is my",
	"did i mention",
	"remind me",
	"what did you ask",
}

// Leads that turn an answer into a question back to the assistant.
var interrogativeLeads = []string{
	"what is",
	"what are",
	"what's",
	"can you",
	"could you",
	"would you",
	"will you",
	"how do you",
	"who are you",
	"tell me about yourself",
}

var offTopicPhrases = []string{
	"tell me a joke",
	"weather",
	"are you a bot",
	"are you human",
	"are you an ai",
	"ignore previous instructions",
	"ignore all previous instructions",
	"ignore your instructions",
	"what is your name",
	"who made you",
}

var updateIntent = regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:change|update|set|correct)\s+my\s+(full name|name|email address|email|phone number|phone|desired position|position|role|current location|location|city|years of experience|experience)\s+(?:to|is)\s+(.+?)\s*$`)

// normalizeIntent lower-cases, collapses whitespace and drops trailing punctuation.
func normalizeIntent(input string) string {
	s := strings.ToLower(collapseSpaces(input))
	return strings.TrimRight(s, ".!,; ")
}

func isAffirmative(input string) bool {
	return affirmativeReplies[normalizeIntent(input)]
}

func isExitPhrase(input string) bool {
	return exitPhrases[normalizeIntent(input)]
}

func isRecapRequest(input string) bool {
	s := normalizeIntent(input)
	for _, p := range recapPatterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// profileUpdate is a "change my <field> to <value>" request.
type profileUpdate struct {
	field profileField
	value string
}

func parseUpdateIntent(input string) (profileUpdate, bool) {
	m := updateIntent.FindStringSubmatch(input)
	if m == nil {
		return profileUpdate{}, false
	}

	var field profileField
	switch strings.ToLower(m[1]) {
	case "full name", "name":
		field = fieldName
	case "email address", "email":
		field = fieldEmail
	case "phone number", "phone":
		field = fieldPhone
	case "desired position", "position", "role":
		field = fieldPosition
	case "current location", "location", "city":
		field = fieldLocation
	default:
		field = fieldExperience
	}
	return profileUpdate{field: field, value: strings.TrimRight(m[2], ".!")}, true
}

// needsRedirect reports whether an answer should be redirected instead of recorded:
// empty input, a question back to the assistant, or a known off-topic request.
func needsRedirect(input string) bool {
	s := normalizeIntent(input)
	if s == "" {
		return true
	}
	if strings.HasSuffix(strings.TrimSpace(input), "?") {
		return true
	}
	for _, lead := range interrogativeLeads {
		if s == lead || strings.HasPrefix(s, lead+" ") {
			return true
		}
	}
	for _, p := range offTopicPhrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
