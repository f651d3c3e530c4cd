package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/kanbot-project/kanbot-sync-api/internal/repository"
	"github.com/kanbot-project/kanbot-sync-api/internal/service"
	"github.com/kanbot-project/kanbot-sync-api/internal/utils"
)

const apiKeyHeader = "X-API-Key"

// Actor resolves the acting identity for the request. An X-API-Key header
// authenticates an automated actor owned by the key's user; otherwise a JWT
// bearer token authenticates a human one. The resolved ActorContext is bound
// to the request and available through ActorFromCtx.
func Actor(secret string, users repository.UserRepository, logger zerolog.Logger) fiber.Handler {
	log := logger.With().Str("component", "actor_middleware").Logger()

	return func(c *fiber.Ctx) error {
		if rawKey := strings.TrimSpace(c.Get(apiKeyHeader)); rawKey != "" {
			return resolveAgent(c, rawKey, users, log)
		}
		return resolveUser(c, secret, users)
	}
}

func resolveAgent(c *fiber.Ctx, rawKey string, users repository.UserRepository, log zerolog.Logger) error {
	sum := sha256.Sum256([]byte(rawKey))
	apiKey, err := users.FindAPIKeyByHash(c.UserContext(), hex.EncodeToString(sum[:]))
	if err != nil || apiKey.User == nil {
		return utils.SendError(c, fiber.StatusUnauthorized, "invalid api key")
	}

	if err := users.TouchAPIKey(c.UserContext(), apiKey.ID, time.Now().UTC()); err != nil {
		log.Warn().Err(err).Str("api_key_id", apiKey.ID).Msg("failed to record api key use")
	}

	actor := service.NewAgentActor(apiKey.UserID, apiKey.User.Username, apiKey.Name)
	bindActor(c, actor)
	return c.Next()
}

// ResolveToken authenticates a raw credential outside the HTTP middleware,
// for transports that carry it in a query parameter (the websocket upgrade).
// An API key wins over a bearer token when both are present.
func ResolveToken(ctx context.Context, secret string, users repository.UserRepository, token, apiKey string) (service.ActorContext, error) {
	if apiKey = strings.TrimSpace(apiKey); apiKey != "" {
		sum := sha256.Sum256([]byte(apiKey))
		key, err := users.FindAPIKeyByHash(ctx, hex.EncodeToString(sum[:]))
		if err != nil || key.User == nil {
			return service.ActorContext{}, fmt.Errorf("invalid api key")
		}
		return service.NewAgentActor(key.UserID, key.User.Username, key.Name), nil
	}

	userID, username, err := parseJWT(secret, strings.TrimSpace(token))
	if err != nil {
		return service.ActorContext{}, err
	}
	if username == "" {
		user, err := users.FindByID(ctx, userID)
		if err != nil {
			return service.ActorContext{}, fmt.Errorf("unknown user")
		}
		username = user.Username
	}
	return service.NewUserActor(userID, username), nil
}

func parseJWT(secret, tokenString string) (string, string, error) {
	if tokenString == "" {
		return "", "", fmt.Errorf("token missing")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", fmt.Errorf("invalid token claims")
	}

	userID := claimString(claims, "sub", "user_id", "id")
	if userID == "" {
		return "", "", fmt.Errorf("invalid token subject")
	}

	return userID, claimString(claims, "username", "name"), nil
}

func resolveUser(c *fiber.Ctx, secret string, users repository.UserRepository) error {
	authorization := c.Get("Authorization")
	if authorization == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
	}

	const bearer = "Bearer "
	if !strings.HasPrefix(strings.ToLower(authorization), strings.ToLower(bearer)) {
		return utils.SendError(c, fiber.StatusUnauthorized, "invalid authorization header")
	}

	userID, username, err := parseJWT(secret, strings.TrimSpace(authorization[len(bearer):]))
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	if username == "" {
		user, err := users.FindByID(c.UserContext(), userID)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, "unknown user")
		}
		username = user.Username
	}

	bindActor(c, service.NewUserActor(userID, username))
	return c.Next()
}

func bindActor(c *fiber.Ctx, actor service.ActorContext) {
	c.Locals("actor", actor)
	c.Locals("user_id", actor.UserID)
}

// ActorFromCtx returns the resolved actor for the request.
func ActorFromCtx(c *fiber.Ctx) (service.ActorContext, bool) {
	actor, ok := c.Locals("actor").(service.ActorContext)
	return actor, ok
}

func claimString(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if value, ok := claims[key]; ok {
			if str, ok := value.(string); ok {
				if trimmed := strings.TrimSpace(str); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return ""
}
