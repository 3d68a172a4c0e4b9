package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/freekieb7/grafana-provisioner/internal/provision"
	"github.com/freekieb7/grafana-provisioner/internal/webhook"
	"github.com/gofiber/fiber/v2"
	json "github.com/goccy/go-json"
)

// Provisioner runs the folder provisioning flow for one event.
type Provisioner interface {
	Provision(ctx context.Context, event *webhook.UserRegisteredEvent) (provision.Result, error)
}

type Handler struct {
	logger      *slog.Logger
	provisioner Provisioner
	secret      string
	serviceName string
}

func NewHandler(logger *slog.Logger, provisioner Provisioner, secret, serviceName string) Handler {
	return Handler{logger: logger, provisioner: provisioner, secret: secret, serviceName: serviceName}
}

// Health is the liveness probe. It does not call Grafana.
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"service": h.serviceName,
	})
}

// UserRegistered provisions a private dashboard folder for the user in the webhook body.
func (h *Handler) UserRegistered(c *fiber.Ctx) error {
	body := c.Body()

	if err := webhook.Verify(h.secret, body, c.Get(webhook.SignatureHeader)); err != nil {
		h.logger.WarnContext(c.UserContext(), "Rejected webhook with invalid signature", "ip", c.IP())
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid webhook signature",
			"message": err.Error(),
		})
	}

	var event webhook.UserRegisteredEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.WarnContext(c.UserContext(), "Failed to parse webhook body", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid webhook payload",
			"message": "Request body must be a JSON object",
		})
	}

	// The flow runs to completion even if the caller hangs up.
	ctx := context.WithoutCancel(c.UserContext())

	result, err := h.provisioner.Provision(ctx, &event)

	var invalid *webhook.InvalidPayloadError
	switch {
	case errors.As(err, &invalid):
		errorText := "Invalid webhook payload"
		if invalid.MissingEmail() {
			errorText = "User email is required"
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   errorText,
			"message": invalid.Reason,
		})
	case err != nil:
		h.logger.ErrorContext(ctx, "Failed to provision dashboard folder",
			"email", result.Email,
			"error", err,
			"duration_ms", result.Elapsed.Milliseconds(),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to provision dashboard folder",
			"message": err.Error(),
		})
	case result.Skipped:
		return c.JSON(fiber.Map{
			"success":          true,
			"skipped":          true,
			"message":          "User not found in Grafana, skipped",
			"email":            result.Email,
			"processingTimeMs": result.Elapsed.Milliseconds(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Dashboard folder provisioned",
		"user": fiber.Map{
			"id":      result.User.ID,
			"email":   result.Email,
			"login":   result.User.Login,
			"name":    result.User.Name,
			"created": result.UserCreated,
		},
		"folder": fiber.Map{
			"id":    result.Folder.ID,
			"uid":   result.Folder.UID,
			"title": result.Folder.Title,
		},
		"processingTimeMs": result.Elapsed.Milliseconds(),
	})
}
