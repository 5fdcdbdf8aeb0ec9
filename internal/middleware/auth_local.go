package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"talentscout/pkg/auth"
)

const candidateIDLocal = "candidate_id"

// CandidateAuthMiddleware verifies candidate tokens and requires the token
// subject to match the :id route parameter. A candidate can only reach their
// own interview and data. The token may come from the Authorization header
// or, for WebSocket connections, the token query parameter.
func CandidateAuthMiddleware(tokens *auth.CandidateTokens) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var token string

		// 1. Try Authorization header first
		if authHeader := c.Get("Authorization"); authHeader != "" {
			if extracted, err := auth.ExtractToken(authHeader); err == nil {
				token = extracted
			}
		}

		// 2. Try query parameter (for WebSocket connections)
		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing or invalid authorization token",
			})
		}

		candidateID, err := tokens.Verify(token)
		if err != nil {
			log.Printf("❌ [AUTH] Token rejected: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		if id := c.Params("id"); id != "" && id != candidateID {
			log.Printf("🚫 [AUTH] Candidate %s attempted to access %s", candidateID, id)
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Access denied",
			})
		}

		c.Locals(candidateIDLocal, candidateID)
		return c.Next()
	}
}

// CandidateID returns the authenticated candidate id, or "".
func CandidateID(c *fiber.Ctx) string {
	id, _ := c.Locals(candidateIDLocal).(string)
	return id
}
