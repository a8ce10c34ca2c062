// Package api exposes the transcript service over HTTP
package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Taichi-iskw/ytscribe/internal/config"
	transcriptsvc "github.com/Taichi-iskw/ytscribe/internal/service/transcript"
)

const maxBodySize = 64 << 10

// NewServer builds the fiber app with middleware and routes
func NewServer(svc transcriptsvc.Service, cfg config.ServerConfig, logger logrus.FieldLogger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "ytscribe",
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		IdleTimeout:           2 * time.Minute,
		BodyLimit:             maxBodySize,
		ErrorHandler:          ErrorHandler(logger),
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Header:    fiber.HeaderXRequestID,
		Generator: uuid.NewString,
	}))
	app.Use(RequestLogger(logger))

	app.Get("/health", HealthCheck)

	h := NewTranscriptHandler(svc)
	limited := app.Group("/transcript", RateLimit(cfg.RequestsPerMinute), Timeout(cfg.RequestTimeout))
	limited.Post("/", h.Create)
	limited.Post("/youtube", h.Create)
	limited.Get("/:id", h.Get)

	return app
}
