package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fieldscan/fieldscan/internal/observability/metrics"
)

// NewRequestMetrics records request counts and latency per route template.
// Unmatched routes are recorded under "unmatched" to keep label cardinality bounded.
func NewRequestMetrics(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}

			start := time.Now()
			err := next(c)

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			method := c.Request().Method

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			if status >= http.StatusBadRequest {
				m.RecordHTTPRequestError(method, path, strconv.Itoa(status))
			}

			m.RecordHTTPRequest(method, path, status, time.Since(start).Seconds())
			return err
		}
	}
}
