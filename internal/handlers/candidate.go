package handlers

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"

	"talentscout/internal/middleware"
	"talentscout/internal/models"
	"talentscout/internal/services"
)

// CandidateHandler serves data-subject requests for a candidate's own record
type CandidateHandler struct {
	records *services.RecordStore
}

// NewCandidateHandler creates a new candidate handler
func NewCandidateHandler(records *services.RecordStore) *CandidateHandler {
	return &CandidateHandler{records: records}
}

// Get returns the decrypted record
// GET /api/candidates/:id
func (h *CandidateHandler) Get(c *fiber.Ctx) error {
	rec, err := h.records.GetDecrypted(c.UserContext(), middleware.CandidateID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rec)
}

// Export downloads the record as json, csv or xlsx
// GET /api/candidates/:id/export?format=csv
func (h *CandidateHandler) Export(c *fiber.Ctx) error {
	format, err := services.ParseExportFormat(c.Query("format"))
	if err != nil {
		return respondError(c, err)
	}

	candidateID := middleware.CandidateID(c)
	data, err := h.records.Export(c.UserContext(), candidateID, format)
	if err != nil {
		return respondError(c, err)
	}

	c.Set(fiber.HeaderContentType, format.ContentType())
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.%s"`, candidateID, format))
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(data)
}

// Delete erases the record. The audit trail is kept.
// DELETE /api/candidates/:id
func (h *CandidateHandler) Delete(c *fiber.Ctx) error {
	candidateID := middleware.CandidateID(c)
	if err := h.records.Delete(c.UserContext(), candidateID); err != nil {
		return respondError(c, err)
	}
	log.Printf("🗑️  [RECORDS] Candidate %s deleted their data", candidateID)
	return c.JSON(fiber.Map{
		"deleted":      true,
		"candidate_id": candidateID,
	})
}

// Audit lists the operations recorded against the candidate
// GET /api/candidates/:id/audit
func (h *CandidateHandler) Audit(c *fiber.Ctx) error {
	entries, err := h.records.AuditTrail(c.UserContext(), middleware.CandidateID(c))
	if err != nil {
		return respondError(c, err)
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	return c.JSON(fiber.Map{
		"entries": entries,
		"count":   len(entries),
	})
}
