package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// HeaderCorrelationID carries the correlation id of an error response.
const HeaderCorrelationID = "X-Correlation-ID"

// APIMethods are the methods the photo and analysis routes are registered with.
var APIMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}

// apiRequestHeaders are the headers a browser client needs for JSON requests
// and multipart uploads. The API has no authentication.
var apiRequestHeaders = []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept}

// apiContentSecurityPolicy blocks every subresource; responses are JSON or GeoJSON only.
const apiContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"

// preflightMaxAge is how long browsers may cache a preflight, in seconds.
const preflightMaxAge = 600

// CORSPolicy lists the browser origins allowed to call the API.
type CORSPolicy struct {
	AllowedOrigins []string // empty allows any origin
}

// NewCORS answers preflights for the API routes. Credentials are never
// allowed since no route reads cookies.
func NewCORS(policy CORSPolicy) echo.MiddlewareFunc {
	origins := policy.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  origins,
		AllowMethods:  APIMethods,
		AllowHeaders:  apiRequestHeaders,
		ExposeHeaders: []string{HeaderCorrelationID},
		MaxAge:        preflightMaxAge,
	})
}

// NewAPIHeaders sets response headers for a JSON only API.
func NewAPIHeaders() echo.MiddlewareFunc {
	return middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ContentSecurityPolicy: apiContentSecurityPolicy,
		ReferrerPolicy:        "no-referrer",
	})
}

// NewBodyLimit rejects request bodies larger than limit, e.g. "32M".
func NewBodyLimit(limit string) echo.MiddlewareFunc {
	return middleware.BodyLimit(limit)
}
