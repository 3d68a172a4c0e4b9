package api

import (
	"errors"
	"log/slog"
	"time"

	"github.com/freekieb7/grafana-provisioner/internal/config"
	"github.com/freekieb7/grafana-provisioner/internal/logger"
	"github.com/freekieb7/grafana-provisioner/internal/telemetry"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// NewApp builds the fiber app with middleware and routes.
func NewApp(cfg config.ServerConfig, log *slog.Logger, handler Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               cfg.ServiceName,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          ErrorHandler(log),
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: cfg.Environment != config.EnvironmentProduction,
	}))
	app.Use(requestid.New(requestid.Config{
		Generator: uuid.NewString,
	}))
	app.Use(telemetry.FiberMiddleware())
	app.Use(RequestLogger(log))

	app.Get("/health", handler.Health)
	app.Post("/webhook/user-registered", handler.UserRegistered)

	return app
}

// RequestLogger puts the request id on the user context and logs each request once it completes.
func RequestLogger(log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		ctx := logger.WithRequestID(c.UserContext(), c.GetRespHeader(fiber.HeaderXRequestID))
		c.SetUserContext(ctx)

		err := c.Next()

		status := c.Response().StatusCode()
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			status = fiberErr.Code
		}

		level := slog.LevelInfo
		if status >= fiber.StatusInternalServerError {
			level = slog.LevelError
		} else if status >= fiber.StatusBadRequest {
			level = slog.LevelWarn
		}
		log.Log(ctx, level, "Request",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"ip", c.IP(),
			"duration", time.Since(start),
		)

		return err
	}
}

// ErrorHandler turns errors escaping the handlers into JSON. Unknown errors become a 500.
func ErrorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		errorText := "Internal server error"

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
			if code < fiber.StatusInternalServerError {
				errorText = fiberErr.Message
			}
		}

		if code >= fiber.StatusInternalServerError {
			log.ErrorContext(c.UserContext(), "Unhandled error", "path", c.Path(), "error", err)
		}

		return c.Status(code).JSON(fiber.Map{
			"success": false,
			"error":   errorText,
			"message": err.Error(),
		})
	}
}
