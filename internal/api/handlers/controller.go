// Package handlers implements the fieldscan JSON API: photo management and
// analysis reports.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/fieldscan/fieldscan/internal/api/middleware"
	"github.com/fieldscan/fieldscan/internal/conf"
	"github.com/fieldscan/fieldscan/internal/datastore"
	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/imagestore"
	"github.com/fieldscan/fieldscan/internal/logger"
	"github.com/fieldscan/fieldscan/internal/observability/metrics"
	"github.com/fieldscan/fieldscan/internal/pipeline"
)

// GetLogger returns the api module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// BatchRunner runs the analysis pipeline.
type BatchRunner interface {
	ProcessAll(ctx context.Context) (pipeline.Summary, error)
}

// Controller manages the API routes and handlers
type Controller struct {
	Echo      *echo.Echo
	DS        datastore.Interface
	Images    imagestore.Store
	Processor BatchRunner
	Settings  *conf.Settings

	statCache   *cache.Cache // nil when caching is disabled
	httpMetrics *metrics.HTTPMetrics
	logger      logger.Logger
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithHTTPMetrics records cache hits and misses.
func WithHTTPMetrics(m *metrics.HTTPMetrics) Option {
	return func(c *Controller) {
		c.httpMetrics = m
	}
}

// New creates the controller and registers its routes on e.
func New(e *echo.Echo, ds datastore.Interface, images imagestore.Store, runner BatchRunner,
	settings *conf.Settings, opts ...Option) *Controller {
	c := &Controller{
		Echo:      e,
		DS:        ds,
		Images:    images,
		Processor: runner,
		Settings:  settings,
		logger:    GetLogger(),
	}
	if ttl := settings.WebServer.CacheTTL; ttl > 0 {
		c.statCache = cache.New(ttl, 2*ttl)
	}
	for _, opt := range opts {
		opt(c)
	}

	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	photos := c.Echo.Group("/photos")
	photos.POST("/upload", c.UploadPhoto)
	photos.DELETE("/clear_all", c.ClearAllPhotos)
	photos.GET("/count_analyzed", c.CountAnalyzed)
	photos.GET("/:id", c.GetPhoto)
	photos.DELETE("/:id", c.DeletePhoto)

	analyze := c.Echo.Group("/analyze")
	analyze.PUT("/process_all", c.ProcessAll)
	analyze.GET("/corn_plants/list_all", c.ListAllPlants)
	analyze.GET("/corn_plants/geojson", c.PlantsGeoJSON)
	analyze.GET("/stat_by_area", c.StatByArea)
}

// Shutdown releases controller resources.
func (c *Controller) Shutdown() {
	// go-cache's janitor goroutine cannot be stopped, only emptied
	if c.statCache != nil {
		c.statCache.Flush()
	}
}

// ServeStatus is embedded in every response.
type ServeStatus struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func okStatus(description string) ServeStatus {
	return ServeStatus{OK: true, Description: description}
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Status        ServeStatus `json:"status"`
	Error         string      `json:"error"`
	Message       string      `json:"message"`
	Code          int         `json:"code"`
	CorrelationID string      `json:"correlation_id"` // unique identifier for tracking this error
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Status:        ServeStatus{OK: false, Description: message},
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString(),
	}
}

// StatusForError maps an error category to an HTTP status code.
func StatusForError(err error) int {
	switch errors.CategoryOf(err) {
	case errors.CategoryValidation, errors.CategoryImageDecode:
		return http.StatusBadRequest
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryState, errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryTimeout:
		return http.StatusGatewayTimeout
	case errors.CategoryCancellation:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandleError logs err and writes an ErrorResponse. A zero code derives the
// status from the error category.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	if code == 0 {
		code = StatusForError(err)
	}
	errorResp := NewErrorResponse(err, message, code)

	fields := []logger.Field{
		logger.String("correlation_id", errorResp.CorrelationID),
		logger.String("message", message),
		logger.String("error", errorResp.Error),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method),
		logger.String("ip", ctx.RealIP()),
	}
	if code >= http.StatusInternalServerError {
		c.logger.Error("API error", fields...)
	} else {
		c.logger.Warn("API error", fields...)
	}

	ctx.Response().Header().Set(middleware.HeaderCorrelationID, errorResp.CorrelationID)
	return ctx.JSON(code, errorResp)
}

// invalidateStats drops cached aggregates after data changed.
func (c *Controller) invalidateStats() {
	if c.statCache != nil {
		c.statCache.Delete(statCacheKey)
		c.recordCache("flush")
	}
}

func (c *Controller) recordCache(result string) {
	if c.httpMetrics != nil {
		c.httpMetrics.RecordCacheOperation(statCacheKey, result)
	}
}

// requestTimeout bounds store calls made on behalf of a request.
const requestTimeout = 30 * time.Second
