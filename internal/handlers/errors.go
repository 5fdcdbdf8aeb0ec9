package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"talentscout/internal/crypto"
	"talentscout/internal/services"
)

// errorStatus maps service errors onto HTTP status codes and client-safe messages.
// Integrity failures never leak their cause to the client.
func errorStatus(err error) (int, string) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		return fiber.StatusBadRequest, verr.Error()
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound, services.ErrNotFound.Error()
	case errors.Is(err, services.ErrSessionNotFound):
		return fiber.StatusNotFound, services.ErrSessionNotFound.Error()
	case errors.Is(err, services.ErrSessionEnded):
		return fiber.StatusConflict, services.ErrSessionEnded.Error()
	case errors.Is(err, services.ErrLockUnavailable):
		return fiber.StatusServiceUnavailable, "Candidate data is busy, please retry"
	case errors.Is(err, services.ErrAuditWrite):
		return fiber.StatusInternalServerError, "Operation failed: audit log unavailable"
	case errors.Is(err, crypto.ErrDecryption):
		return fiber.StatusInternalServerError, "Stored data failed an integrity check"
	case errors.Is(err, services.ErrSerialization):
		return fiber.StatusInternalServerError, "Failed to serialize record"
	case errors.Is(err, services.ErrConsentRequired):
		return fiber.StatusInternalServerError, "Consent was not recorded for this candidate"
	default:
		return fiber.StatusInternalServerError, "Internal server error"
	}
}

func respondError(c *fiber.Ctx, err error) error {
	status, message := errorStatus(err)
	if status >= fiber.StatusInternalServerError {
		log.Printf("❌ [API] %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{"error": message})
}
