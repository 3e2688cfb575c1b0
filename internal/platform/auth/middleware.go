package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Middleware rejects requests without a valid Bearer token and stores the
// authenticated user id on the request context.
func Middleware(tokens *TokenManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			userID, _, err := tokens.Verify(parts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			ctx := context.WithValue(c.Request().Context(), userIDKey, userID)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// UserIDFromContext returns the authenticated user's id, or uuid.Nil when the
// request did not pass through the auth middleware.
func UserIDFromContext(ctx context.Context) uuid.UUID {
	uid, _ := ctx.Value(userIDKey).(uuid.UUID)
	return uid
}

// ContextWithUserID is intended for tests that exercise handlers directly.
func ContextWithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}
