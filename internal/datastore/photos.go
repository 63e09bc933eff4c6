package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/observability/metrics"
)

const photosTable = "photos"

// AddPhoto inserts a new, unanalyzed photo record.
func (ds *DataStore) AddPhoto(ctx context.Context, longitude, latitude, headingDegrees float64) (PhotoRecord, error) {
	photo := PhotoRecord{
		Longitude:      longitude,
		Latitude:       latitude,
		HeadingDegrees: headingDegrees,
	}
	err := ds.WithLock(ctx, metrics.OpPhotoCreate, func(db *gorm.DB) error {
		if err := db.Create(&photo).Error; err != nil {
			return dbError(err, metrics.OpPhotoCreate, photosTable)
		}
		return nil
	})
	if err != nil {
		return PhotoRecord{}, err
	}
	return photo, nil
}

// GetPhoto loads a photo record by id.
func (ds *DataStore) GetPhoto(ctx context.Context, id uint) (PhotoRecord, error) {
	var photo PhotoRecord
	err := ds.WithLock(ctx, metrics.OpPhotoGet, func(db *gorm.DB) error {
		err := db.First(&photo, id).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return notFoundError("photo", id)
		case err != nil:
			return dbError(err, metrics.OpPhotoGet, photosTable, "photo_id", id)
		}
		return nil
	})
	if err != nil {
		return PhotoRecord{}, err
	}
	return photo, nil
}

// MarkPhotoAnalyzed sets analyzed_at on a photo that has not been analyzed
// yet. A missing or already analyzed photo yields a not-found error, so each
// photo transitions at most once.
func (ds *DataStore) MarkPhotoAnalyzed(ctx context.Context, id uint, at time.Time) error {
	return ds.WithLock(ctx, metrics.OpPhotoMark, func(db *gorm.DB) error {
		return markAnalyzed(db, id, at)
	})
}

func markAnalyzed(db *gorm.DB, id uint, at time.Time) error {
	result := db.Model(&PhotoRecord{}).
		Where("id = ? AND analyzed_at IS NULL", id).
		Update("analyzed_at", at)
	if result.Error != nil {
		return dbError(result.Error, metrics.OpPhotoMark, photosTable, "photo_id", id)
	}
	if result.RowsAffected == 0 {
		return notFoundError("unanalyzed photo", id)
	}
	return nil
}

// DeletePhoto removes a photo and its observations.
func (ds *DataStore) DeletePhoto(ctx context.Context, id uint) error {
	return ds.WithLock(ctx, metrics.OpPhotoDelete, func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("photo_id = ?", id).Delete(&PlantObservation{}).Error; err != nil {
				return dbError(err, metrics.OpPhotoDelete, observationsTable, "photo_id", id)
			}
			result := tx.Delete(&PhotoRecord{}, id)
			if result.Error != nil {
				return dbError(result.Error, metrics.OpPhotoDelete, photosTable, "photo_id", id)
			}
			if result.RowsAffected == 0 {
				return notFoundError("photo", id)
			}
			return nil
		})
	})
}

// ClearAll deletes every observation and photo.
func (ds *DataStore) ClearAll(ctx context.Context) error {
	return ds.WithLock(ctx, metrics.OpClearAll, func(db *gorm.DB) error {
		return db.Session(&gorm.Session{AllowGlobalUpdate: true}).Transaction(func(tx *gorm.DB) error {
			if err := tx.Delete(&PlantObservation{}).Error; err != nil {
				return dbError(err, metrics.OpClearAll, observationsTable)
			}
			if err := tx.Delete(&PhotoRecord{}).Error; err != nil {
				return dbError(err, metrics.OpClearAll, photosTable)
			}
			return nil
		})
	})
}

type photoCounts struct {
	Total    int64
	Analyzed int64
}

// CountPhotosByAnalysis returns how many photos are analyzed and how many are not.
func (ds *DataStore) CountPhotosByAnalysis(ctx context.Context) (analyzed, notAnalyzed int64, err error) {
	var counts photoCounts
	err = ds.WithLock(ctx, metrics.OpPhotoCount, func(db *gorm.DB) error {
		err := db.Model(&PhotoRecord{}).
			Select("COUNT(*) AS total, COUNT(analyzed_at) AS analyzed").
			Scan(&counts).Error
		if err != nil {
			return dbError(err, metrics.OpPhotoCount, photosTable)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return counts.Analyzed, counts.Total - counts.Analyzed, nil
}
