package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/kanbot-project/kanbot-sync-api/internal/middleware"
	"github.com/kanbot-project/kanbot-sync-api/internal/repository"
	"github.com/kanbot-project/kanbot-sync-api/internal/service"
	"github.com/kanbot-project/kanbot-sync-api/internal/utils"
)

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requireActor(c *fiber.Ctx) (service.ActorContext, error) {
	actor, ok := middleware.ActorFromCtx(c)
	if !ok {
		return service.ActorContext{}, utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}
	return actor, nil
}

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// sendServiceError maps service sentinels onto HTTP statuses so every
// handler reports them the same way.
func sendServiceError(c *fiber.Ctx, err error) error {
	switch {
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrSpaceNotFound),
		errors.Is(err, service.ErrCardNotFound),
		errors.Is(err, service.ErrWebhookNotFound),
		errors.Is(err, service.ErrNotificationNotFound),
		errors.Is(err, service.ErrScheduledCardNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrSpaceForbidden),
		errors.Is(err, service.ErrAgentOnly):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, repository.ErrNoBoardInSpace):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	default:
		return utils.SendError(c, fiber.StatusInternalServerError, err.Error())
	}
}
