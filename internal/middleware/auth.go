package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"task-manager/internal/apperror"
	"task-manager/internal/models"
	"task-manager/pkg/logger"
)

const (
	userKey  = "user"
	tokenKey = "token"
)

// TokenValidator resolves a bearer token to the user that owns it.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*models.User, error)
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || scheme != "Bearer" {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// UseToken rejects requests without a valid, unrevoked bearer token and
// stores the authenticated user and the presented token in c.Locals.
func UseToken(tokens TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			logger.SecurityLogger.Warn("Missing or malformed bearer token",
				zap.String("method", c.Method()), zap.String("url", c.OriginalURL()))
			return RespondError(c, apperror.ErrMissingToken)
		}

		user, err := tokens.Validate(c.UserContext(), token)
		if err != nil {
			logger.SecurityLogger.Warn("Rejected bearer token",
				zap.String("method", c.Method()), zap.String("url", c.OriginalURL()), zap.Error(err))
			return RespondError(c, err)
		}

		c.Locals(userKey, user)
		c.Locals(tokenKey, token)
		return c.Next()
	}
}

// CurrentUser returns the user authenticated by UseToken.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(userKey).(*models.User)
	return user
}

// CurrentToken returns the token the request was authenticated with.
func CurrentToken(c *fiber.Ctx) string {
	token, _ := c.Locals(tokenKey).(string)
	return token
}
