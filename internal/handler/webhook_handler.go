package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/kanbot-project/kanbot-sync-api/internal/dto"
	"github.com/kanbot-project/kanbot-sync-api/internal/service"
	"github.com/kanbot-project/kanbot-sync-api/internal/utils"
)

// WebhookHandler exposes subscription CRUD and the delivery log.
type WebhookHandler struct {
	service service.WebhookService
	logger  zerolog.Logger
}

// NewWebhookHandler constructs a handler instance.
func NewWebhookHandler(service service.WebhookService, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		logger:  logger.With().Str("component", "webhook_handler").Logger(),
	}
}

// Register binds the webhook routes.
func (h *WebhookHandler) Register(router fiber.Router) {
	router.Post("/", h.create)
	router.Get("/space/:spaceId", h.listBySpace)
	router.Patch("/:id", h.update)
	router.Delete("/:id", h.remove)
	router.Get("/:id/logs", h.logs)
}

func (h *WebhookHandler) create(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	var payload dto.WebhookCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	webhook, err := h.service.Create(requestContext(c), actor.UserID, payload)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "webhook created", webhook)
}

func (h *WebhookHandler) listBySpace(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	webhooks, err := h.service.ListBySpace(requestContext(c), actor.UserID, c.Params("spaceId"))
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "webhooks", webhooks)
}

func (h *WebhookHandler) update(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	var payload dto.WebhookUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	webhook, err := h.service.Update(requestContext(c), actor.UserID, c.Params("id"), payload)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "webhook updated", webhook)
}

func (h *WebhookHandler) remove(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	if err := h.service.Delete(requestContext(c), actor.UserID, c.Params("id")); err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "webhook deleted", nil)
}

func (h *WebhookHandler) logs(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	logs, err := h.service.Logs(requestContext(c), actor.UserID, c.Params("id"), limit)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "webhook deliveries", logs)
}
