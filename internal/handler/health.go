package handler

import (
	"github.com/gofiber/fiber/v2"
)

// HealthInfo describes how the server was wired
type HealthInfo struct {
	Groq    bool
	R2      bool
	Auth    bool
	Store   string
	Queue   string
	Engine  string
	Encoder string
}

// Health handles GET /health
func Health(info HealthInfo) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"groq": info.Groq,
				"r2":   info.R2,
				"auth": info.Auth,
			},
			"store":   info.Store,
			"queue":   info.Queue,
			"engine":  info.Engine,
			"encoder": info.Encoder,
		})
	}
}
