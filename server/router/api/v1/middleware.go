package v1

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hrygo/mnemo/ai/memory"
	"github.com/hrygo/mnemo/ai/observability/logging"
)

// requestContext scopes the request to its session and attaches a request logger.
func (s *APIV1Service) requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		requestID := req.Header.Get(echo.HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Response().Header().Set(echo.HeaderXRequestID, requestID)

		session := c.Param("session")
		ctx := logging.ToContext(req.Context(), s.logger.With(
			"request_id", requestID,
			"session_key", session,
		))
		ctx = memory.WithSessionKey(ctx, session)
		c.SetRequest(req.WithContext(ctx))

		start := time.Now()
		err := next(c)
		logging.FromContext(ctx).Debug("API: request handled",
			"method", req.Method,
			"path", c.Path(),
			"status", c.Response().Status,
			"duration", time.Since(start),
			"error", err)
		return err
	}
}
