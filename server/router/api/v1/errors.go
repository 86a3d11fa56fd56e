package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/ai/agents/tools"
	"github.com/hrygo/mnemo/ai/memory"
	"github.com/hrygo/mnemo/store"
)

// toHTTPError maps engine errors to status codes. Transient backend failures are
// retryable and map to 503.
func toHTTPError(err error) error {
	var (
		httpErr  *echo.HTTPError
		inputErr *tools.InputError
	)
	switch {
	case errors.As(err, &httpErr):
		return httpErr
	case memory.IsInvalidInput(err), errors.As(err, &inputErr):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	case errors.Is(err, tools.ErrToolNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error()).SetInternal(err)
	case memory.IsTransient(err):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "memory backend unavailable, retry later").SetInternal(err)
	case store.IsCapabilityUnsupported(err):
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error()).SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}

func badRequest(format string, args ...any) error {
	return echo.NewHTTPError(http.StatusBadRequest, errors.Errorf(format, args...).Error())
}
