package handlers

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/fieldscan/fieldscan/internal/datastore"
	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/logger"
	"github.com/fieldscan/fieldscan/internal/pipeline"
)

// UploadPhotoResponse is returned by POST /photos/upload.
type UploadPhotoResponse struct {
	Status  ServeStatus `json:"status"`
	PhotoID uint        `json:"photo_id"`
}

// UploadPhoto stores an uploaded photo through pipeline.Ingest.
func (c *Controller) UploadPhoto(ctx echo.Context) error {
	longitude, err := formFloat(ctx, "longitude")
	if err != nil {
		return c.HandleError(ctx, err, "invalid longitude", http.StatusBadRequest)
	}
	latitude, err := formFloat(ctx, "latitude")
	if err != nil {
		return c.HandleError(ctx, err, "invalid latitude", http.StatusBadRequest)
	}
	heading, err := formFloat(ctx, "orientation_angle")
	if err != nil {
		return c.HandleError(ctx, err, "invalid orientation_angle", http.StatusBadRequest)
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return c.HandleError(ctx, err, "missing file", http.StatusBadRequest)
	}
	if limit := c.Settings.WebServer.MaxUploadSize; limit > 0 && fileHeader.Size > limit {
		return c.HandleError(ctx, nil, "file too large", http.StatusRequestEntityTooLarge)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.HandleError(ctx, err, "failed to read upload", http.StatusBadRequest)
	}
	defer func() { _ = file.Close() }()

	reqCtx, cancel := context.WithTimeout(ctx.Request().Context(), requestTimeout)
	defer cancel()

	photo, err := pipeline.Ingest(reqCtx, c.DS, c.Images, file, longitude, latitude, heading)
	if err != nil {
		return c.HandleError(ctx, err, "upload failed", 0)
	}

	c.logger.Info("photo uploaded",
		logger.Uint("photo_id", photo.ID),
		logger.String("filename", fileHeader.Filename),
		logger.Int64("size", fileHeader.Size))

	return ctx.JSON(http.StatusOK, UploadPhotoResponse{
		Status:  okStatus("upload succeeded"),
		PhotoID: photo.ID,
	})
}

// ClearAllPhotosResponse is returned by DELETE /photos/clear_all.
type ClearAllPhotosResponse struct {
	Status ServeStatus `json:"status"`
}

// ClearAllPhotos deletes every photo, observation and stored image.
func (c *Controller) ClearAllPhotos(ctx echo.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx.Request().Context(), requestTimeout)
	defer cancel()

	if err := c.DS.ClearAll(reqCtx); err != nil {
		return c.HandleError(ctx, err, "delete failed", 0)
	}
	c.invalidateStats()

	if err := c.Images.DeleteAll(reqCtx); err != nil {
		return c.HandleError(ctx, err, "records deleted but images could not be removed", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, ClearAllPhotosResponse{Status: okStatus("delete succeeded")})
}

// StatPhotoCountResponse is returned by GET /photos/count_analyzed.
type StatPhotoCountResponse struct {
	Status                ServeStatus `json:"status"`
	AnalyzedPhotoCount    int64       `json:"analyzed_photo_count"`
	NotAnalyzedPhotoCount int64       `json:"not_analyzed_photo_count"`
}

// CountAnalyzed reports how many photos are analyzed and how many are not.
func (c *Controller) CountAnalyzed(ctx echo.Context) error {
	analyzed, notAnalyzed, err := c.DS.CountPhotosByAnalysis(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "count failed", 0)
	}
	return ctx.JSON(http.StatusOK, StatPhotoCountResponse{
		Status:                okStatus("count succeeded"),
		AnalyzedPhotoCount:    analyzed,
		NotAnalyzedPhotoCount: notAnalyzed,
	})
}

// PhotoResponse is returned by GET /photos/:id.
type PhotoResponse struct {
	Status ServeStatus           `json:"status"`
	Photo  datastore.PhotoRecord `json:"photo"`
}

// GetPhoto returns one photo record.
func (c *Controller) GetPhoto(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "invalid photo id", http.StatusBadRequest)
	}
	photo, err := c.DS.GetPhoto(ctx.Request().Context(), id)
	if err != nil {
		return c.HandleError(ctx, err, "photo not available", 0)
	}
	return ctx.JSON(http.StatusOK, PhotoResponse{Status: okStatus("ok"), Photo: photo})
}

// DeletePhoto deletes one photo and its observations. The stored image is left
// in place and removed by the next clear_all.
func (c *Controller) DeletePhoto(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "invalid photo id", http.StatusBadRequest)
	}
	if err := c.DS.DeletePhoto(ctx.Request().Context(), id); err != nil {
		return c.HandleError(ctx, err, "delete failed", 0)
	}
	c.invalidateStats()
	return ctx.JSON(http.StatusOK, ClearAllPhotosResponse{Status: okStatus("delete succeeded")})
}

func formFloat(ctx echo.Context, name string) (float64, error) {
	raw := ctx.FormValue(name)
	if raw == "" {
		return 0, errors.Newf("%s is required", name).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.Newf("%s must be a finite number, got %q", name, raw).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return v, nil
}

func pathID(ctx echo.Context) (uint, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.Newf("id must be a positive integer, got %q", ctx.Param("id")).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return uint(id), nil
}
