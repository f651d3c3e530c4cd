package handler

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/kanbot-project/kanbot-sync-api/internal/middleware"
	"github.com/kanbot-project/kanbot-sync-api/internal/repository"
	"github.com/kanbot-project/kanbot-sync-api/internal/service"
)

// RealtimeHandler owns the websocket upgrade for space event streams.
// Credentials ride in query parameters because browsers cannot set headers on
// a websocket handshake; rejected connections are accepted first and then
// closed with 4001 (unauthenticated) or 4003 (not a member) so the client can
// tell the two apart.
type RealtimeHandler struct {
	realtime  service.RealtimeService
	spaces    repository.SpaceRepository
	users     repository.UserRepository
	jwtSecret string
	logger    zerolog.Logger
}

// NewRealtimeHandler creates a realtime handler instance.
func NewRealtimeHandler(realtime service.RealtimeService, spaces repository.SpaceRepository, users repository.UserRepository, jwtSecret string, logger zerolog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		realtime:  realtime,
		spaces:    spaces,
		users:     users,
		jwtSecret: jwtSecret,
		logger:    logger.With().Str("component", "realtime_handler").Logger(),
	}
}

// Register binds the websocket route under the provided router group.
func (h *RealtimeHandler) Register(router fiber.Router) {
	router.Use("/ws/:spaceId", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			ctx := c.UserContext()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
			c.Locals("request_ctx", ctx)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws/:spaceId", websocket.New(h.handleConnection))
}

func (h *RealtimeHandler) handleConnection(conn *websocket.Conn) {
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	spaceID := strings.TrimSpace(conn.Params("spaceId"))
	token := strings.TrimSpace(conn.Query("token"))
	apiKey := strings.TrimSpace(conn.Query("api_key"))

	actor, err := middleware.ResolveToken(baseCtx, h.jwtSecret, h.users, token, apiKey)
	if err != nil {
		h.rejectConnection(conn, service.CloseUnauthenticated, "authentication required")
		return
	}

	member, err := h.spaces.IsMember(baseCtx, spaceID, actor.UserID)
	if err != nil || !member {
		h.rejectConnection(conn, service.CloseForbidden, "not a member of this space")
		return
	}

	correlation, _ := conn.Locals("correlation_id").(string)
	opts := service.RealtimeConnectionOptions{
		UserID:        actor.UserID,
		SpaceID:       spaceID,
		CorrelationID: correlation,
		Context:       baseCtx,
	}

	h.logger.Info().Str("user_id", actor.UserID).Str("space_id", spaceID).Msg("realtime websocket connected")
	h.realtime.ServeConnection(conn, opts)
	h.logger.Info().Str("user_id", actor.UserID).Str("space_id", spaceID).Msg("realtime websocket disconnected")
}

func (h *RealtimeHandler) rejectConnection(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	_ = conn.Close()
}
