package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/yuin/goldmark"
)

const privacyNotice = `# Privacy notice

TalentScout collects your name, email address, phone number, experience,
desired position, location, tech stack and your answers to technical questions.

- Nothing is stored until you give consent and complete the interview.
- Your name, email address and phone number are encrypted at rest.
- Records are kept for **%d days** and then deleted automatically.
- Every access, export and deletion of your data is written to an audit log.

Using the token you received when the interview started you can:

1. view your data: ` + "`GET /api/candidates/{id}`" + `
2. export it as JSON, CSV or XLSX: ` + "`GET /api/candidates/{id}/export?format=csv`" + `
3. delete it: ` + "`DELETE /api/candidates/{id}`" + `
`

// PrivacyHandler serves the public privacy notice
type PrivacyHandler struct {
	markdown string
	html     string
	days     int
}

// NewPrivacyHandler renders the notice once for the configured retention
func NewPrivacyHandler(retentionDays int) *PrivacyHandler {
	text := fmt.Sprintf(privacyNotice, retentionDays)
	return &PrivacyHandler{
		markdown: text,
		html:     renderMarkdown(goldmark.New(), text),
		days:     retentionDays,
	}
}

// Handle returns the notice as markdown and HTML
// GET /api/privacy
func (h *PrivacyHandler) Handle(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"retention_days": h.days,
		"markdown":       h.markdown,
		"html":           h.html,
	})
}
