package app

import (
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"talentscout/internal/handlers"
	"talentscout/internal/middleware"
)

// RegisterRoutes mounts the HTTP and WebSocket API on app.
func (a *App) RegisterRoutes(app *fiber.App, limits *middleware.RateLimitConfig) {
	interviews := handlers.NewInterviewHandler(a.Sessions, a.Tokens)
	candidates := handlers.NewCandidateHandler(a.Records)
	privacy := handlers.NewPrivacyHandler(a.Config.RetentionDays)
	health := handlers.NewHealthHandler(a.Records, a.Sessions, a.Scheduler)
	wsHandler := handlers.NewWebSocketHandler(interviews)

	candidateAuth := middleware.CandidateAuthMiddleware(a.Tokens)
	submitLimiter := middleware.SubmitRateLimiter(limits)
	dataLimiter := middleware.DataAccessRateLimiter(limits)

	app.Get("/health", health.Handle)

	api := app.Group("/api", middleware.GlobalAPIRateLimiter(limits))
	api.Get("/privacy", privacy.Handle)

	// Interviews
	api.Post("/interviews", middleware.SessionStartRateLimiter(limits), interviews.Start)
	api.Post("/interviews/:id/messages", candidateAuth, submitLimiter, interviews.Submit)
	api.Delete("/interviews/:id", candidateAuth, interviews.Abandon)

	// Data-subject rights
	api.Get("/candidates/:id", candidateAuth, dataLimiter, candidates.Get)
	api.Get("/candidates/:id/export", candidateAuth, dataLimiter, candidates.Export)
	api.Get("/candidates/:id/audit", candidateAuth, dataLimiter, candidates.Audit)
	api.Delete("/candidates/:id", candidateAuth, dataLimiter, candidates.Delete)

	// WebSocket transport for interview turns
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	wsConfig := websocket.Config{
		Origins: strings.Split(a.Config.AllowedOrigins, ","),
	}
	app.Get("/ws/interviews/:id",
		middleware.WebSocketRateLimiter(limits),
		candidateAuth,
		websocket.New(wsHandler.Handle, wsConfig),
	)
}
