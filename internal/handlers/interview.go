package handlers

import (
	"bytes"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"

	"talentscout/internal/services"
	"talentscout/pkg/auth"
)

// InterviewHandler exposes interview sessions over HTTP
type InterviewHandler struct {
	sessions *services.SessionManager
	tokens   *auth.CandidateTokens
	markdown goldmark.Markdown
}

// NewInterviewHandler creates a new interview handler
func NewInterviewHandler(sessions *services.SessionManager, tokens *auth.CandidateTokens) *InterviewHandler {
	return &InterviewHandler{
		sessions: sessions,
		tokens:   tokens,
		markdown: goldmark.New(goldmark.WithRendererOptions(html.WithHardWraps())),
	}
}

// ReplyResponse is a session reply plus its rendered prompt
type ReplyResponse struct {
	*services.Reply
	PromptHTML string `json:"prompt_html"`
}

// SubmitRequest is the body of POST /api/interviews/:id/messages
type SubmitRequest struct {
	Text string `json:"text"`
}

// Start creates a session and issues the candidate's access token
// POST /api/interviews
func (h *InterviewHandler) Start(c *fiber.Ctx) error {
	reply, candidateID, err := h.sessions.StartSession(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}

	token, err := h.tokens.Issue(candidateID)
	if err != nil {
		_ = h.sessions.Abandon(candidateID)
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"candidate_id": candidateID,
		"token":        token,
		"reply":        h.render(reply),
	})
}

// Submit forwards one candidate message to the session
// POST /api/interviews/:id/messages
func (h *InterviewHandler) Submit(c *fiber.Ctx) error {
	var req SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	reply, err := h.sessions.Submit(c.UserContext(), c.Params("id"), req.Text)
	return h.respond(c, reply, err)
}

// Abandon ends the session without storing anything
// DELETE /api/interviews/:id
func (h *InterviewHandler) Abandon(c *fiber.Ctx) error {
	candidateID := c.Params("id")
	if err := h.sessions.Abandon(candidateID); err != nil {
		return respondError(c, err)
	}
	log.Printf("🚪 [INTERVIEW] Session %s abandoned by candidate", candidateID)
	return c.SendStatus(fiber.StatusNoContent)
}

// respond writes a reply. A reply that comes with an error (ended session,
// failed save) is still returned so the client can show the prompt.
func (h *InterviewHandler) respond(c *fiber.Ctx, reply *services.Reply, err error) error {
	if err == nil {
		return c.JSON(h.render(reply))
	}
	if reply == nil {
		return respondError(c, err)
	}

	status := fiber.StatusInternalServerError
	message := "Your answers could not be saved yet. Send any message to retry."
	if errors.Is(err, services.ErrSessionEnded) {
		status, message = errorStatus(err)
	} else {
		log.Printf("❌ [INTERVIEW] Session %s: %v", c.Params("id"), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error": message,
		"reply": h.render(reply),
	})
}

func (h *InterviewHandler) render(reply *services.Reply) *ReplyResponse {
	return &ReplyResponse{Reply: reply, PromptHTML: renderMarkdown(h.markdown, reply.Prompt)}
}

func renderMarkdown(md goldmark.Markdown, text string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return ""
	}
	return buf.String()
}
