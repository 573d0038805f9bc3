package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"rulecompiler/internal/engine"
	"rulecompiler/internal/metadata"
)

// AuthMiddleware validates the bearer token and stores the caller's
// UserContext on the request.
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, appErr := bearerToken(c.Get(fiber.HeaderAuthorization))
		if appErr != nil {
			return appErr
		}

		claims, err := ParseAccessToken(token, secret)
		if err != nil {
			return engine.UnauthorizedError("Invalid or expired token")
		}

		c.Locals(metadata.UserLocalsKey, &metadata.UserContext{
			ID:    claims.Subject,
			Roles: claims.Roles,
		})
		return c.Next()
	}
}

func bearerToken(header string) (string, *engine.AppError) {
	if header == "" {
		return "", engine.UnauthorizedError("Missing auth token")
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", engine.UnauthorizedError("Invalid auth header format")
	}
	return token, nil
}

// RequireRole rejects callers that lack role. It must run after AuthMiddleware.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return engine.UnauthorizedError("Missing auth token")
		}
		if !user.HasRole(role) {
			return engine.ForbiddenError("Role required: " + role)
		}
		return c.Next()
	}
}

// RequireAdmin guards template administration.
func RequireAdmin() fiber.Handler {
	return RequireRole(metadata.RoleAdmin)
}

// GetUser extracts the UserContext from a Fiber context.
func GetUser(c *fiber.Ctx) *metadata.UserContext {
	user, _ := c.Locals(metadata.UserLocalsKey).(*metadata.UserContext)
	return user
}
