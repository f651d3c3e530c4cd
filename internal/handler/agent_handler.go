package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/kanbot-project/kanbot-sync-api/internal/dto"
	"github.com/kanbot-project/kanbot-sync-api/internal/service"
	"github.com/kanbot-project/kanbot-sync-api/internal/utils"
)

// AgentHandler exposes the automation surface: resolved identity, the audit
// query and card delegation.
type AgentHandler struct {
	audit         service.AuditService
	notifications service.NotificationService
	logger        zerolog.Logger
}

// NewAgentHandler creates an agent handler instance.
func NewAgentHandler(audit service.AuditService, notifications service.NotificationService, logger zerolog.Logger) *AgentHandler {
	return &AgentHandler{
		audit:         audit,
		notifications: notifications,
		logger:        logger.With().Str("component", "agent_handler").Logger(),
	}
}

// Register binds the agent routes under the provided router group.
func (h *AgentHandler) Register(router fiber.Router) {
	router.Get("/me", h.me)
	router.Get("/audit", h.auditQuery)
	router.Post("/delegate", h.delegate)
}

func (h *AgentHandler) me(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	return utils.SendSuccess(c, "agent identity", dto.AgentInfoResponse{
		UserID:      actor.UserID,
		Username:    actor.Username,
		AgentName:   actor.AgentName,
		IsAgent:     actor.IsAgent,
		DisplayName: actor.DisplayName(),
	})
}

func (h *AgentHandler) auditQuery(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid since timestamp")
		}
		since = &parsed
	}

	query := dto.AuditQuery{
		CardID:    c.Query("card_id"),
		SpaceID:   c.Query("space_id"),
		ActorType: c.Query("actor_type"),
		Since:     since,
		Limit:     limit,
	}

	entries, err := h.audit.Query(requestContext(c), actor.UserID, query)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "audit entries", entries)
}

func (h *AgentHandler) delegate(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	var payload dto.DelegationRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.notifications.Delegate(requestContext(c), actor, payload)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "delegation sent", result)
}
