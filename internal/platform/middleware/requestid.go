package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const HeaderRequestID = "X-Request-ID"

// RequestID assigns a unique id to each request, honoring a caller-supplied
// X-Request-ID header. The id is stored on the echo context under
// "request_id" and echoed back in the response header.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(HeaderRequestID)
			if rid == "" {
				rid = uuid.New().String()
			}
			c.Set("request_id", rid)
			c.Response().Header().Set(HeaderRequestID, rid)
			return next(c)
		}
	}
}
