package pipeline

import (
	"context"
	"io"

	"github.com/fieldscan/fieldscan/internal/datastore"
	"github.com/fieldscan/fieldscan/internal/imagestore"
	"github.com/fieldscan/fieldscan/internal/logger"
)

// PhotoStore is the part of the datastore an ingest needs.
type PhotoStore interface {
	AddPhoto(ctx context.Context, longitude, latitude, headingDegrees float64) (datastore.PhotoRecord, error)
	DeletePhoto(ctx context.Context, id uint) error
}

// Ingest normalizes an image to JPEG, records a photo for it and stores the
// bytes under the new photo id. Undecodable input creates no record. When the
// image cannot be stored the record is removed again, so every unanalyzed
// photo the batch run fetches has an image.
func Ingest(ctx context.Context, store PhotoStore, images imagestore.Store, r io.Reader, longitude, latitude, headingDegrees float64) (datastore.PhotoRecord, error) {
	data, err := imagestore.Normalize(r)
	if err != nil {
		return datastore.PhotoRecord{}, err
	}

	photo, err := store.AddPhoto(ctx, longitude, latitude, headingDegrees)
	if err != nil {
		return datastore.PhotoRecord{}, err
	}

	if err := images.Save(ctx, photo.ID, data); err != nil {
		if delErr := store.DeletePhoto(context.WithoutCancel(ctx), photo.ID); delErr != nil {
			GetLogger().Error("failed to remove photo record after image save failure",
				logger.Uint("photo_id", photo.ID),
				logger.Error(delErr))
		}
		return datastore.PhotoRecord{}, err
	}

	GetLogger().Info("photo ingested",
		logger.Uint("photo_id", photo.ID),
		logger.Int("bytes", len(data)))
	return photo, nil
}
