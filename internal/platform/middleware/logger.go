package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/meditrack/meditrack/internal/platform/auth"
)

// Logger emits one structured line per request. Authenticated routes carry
// the user id resolved by the auth middleware, so a patient's API activity
// can be traced without grepping token payloads.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid, _ := c.Get("request_id").(string)

			err := next(c)

			evt := logger.Info()
			if err != nil {
				evt = logger.Error().Err(err)
			}

			evt = evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP())

			// The auth middleware swaps the request context, so read it
			// back after next ran.
			if uid := auth.UserIDFromContext(c.Request().Context()); uid != uuid.Nil {
				evt = evt.Str("user_id", uid.String())
			}

			evt.Msg("request")
			return err
		}
	}
}
