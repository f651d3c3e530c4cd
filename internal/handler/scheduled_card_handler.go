package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/kanbot-project/kanbot-sync-api/internal/dto"
	"github.com/kanbot-project/kanbot-sync-api/internal/service"
	"github.com/kanbot-project/kanbot-sync-api/internal/utils"
)

// ScheduledCardHandler exposes recurring template CRUD plus the manual
// trigger and the batch sweep.
type ScheduledCardHandler struct {
	service service.SchedulerService
	logger  zerolog.Logger
}

// NewScheduledCardHandler constructs a handler instance.
func NewScheduledCardHandler(service service.SchedulerService, logger zerolog.Logger) *ScheduledCardHandler {
	return &ScheduledCardHandler{
		service: service,
		logger:  logger.With().Str("component", "scheduled_card_handler").Logger(),
	}
}

// Register binds the scheduled card routes.
func (h *ScheduledCardHandler) Register(router fiber.Router) {
	router.Post("/", h.create)
	router.Get("/space/:spaceId", h.listBySpace)
	router.Post("/sweep/:spaceId", h.sweep)
	router.Get("/:id", h.get)
	router.Patch("/:id", h.update)
	router.Delete("/:id", h.remove)
	router.Post("/:id/trigger", h.trigger)
}

func (h *ScheduledCardHandler) create(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	var payload dto.ScheduledCardCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	template, err := h.service.Create(requestContext(c), actor, payload)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "scheduled card created", template)
}

func (h *ScheduledCardHandler) listBySpace(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	activeOnly := strings.EqualFold(c.Query("active"), "true")

	templates, err := h.service.ListBySpace(requestContext(c), actor, c.Params("spaceId"), activeOnly)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "scheduled cards", templates)
}

func (h *ScheduledCardHandler) get(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	template, err := h.service.Get(requestContext(c), actor, c.Params("id"))
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "scheduled card", template)
}

func (h *ScheduledCardHandler) update(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	var payload dto.ScheduledCardUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	template, err := h.service.Update(requestContext(c), actor, c.Params("id"), payload)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "scheduled card updated", template)
}

func (h *ScheduledCardHandler) remove(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	if err := h.service.Delete(requestContext(c), actor, c.Params("id")); err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "scheduled card deleted", nil)
}

func (h *ScheduledCardHandler) trigger(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	result, err := h.service.Trigger(requestContext(c), actor, c.Params("id"))
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "card created", result)
}

func (h *ScheduledCardHandler) sweep(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	result, err := h.service.Sweep(requestContext(c), actor, c.Params("spaceId"))
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "sweep completed", result)
}
