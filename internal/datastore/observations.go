package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/fieldscan/fieldscan/internal/observability/metrics"
)

const observationsTable = "plant_observations"

// AddObservation inserts one observation. The owning photo must exist.
func (ds *DataStore) AddObservation(ctx context.Context, obs *PlantObservation) error {
	if obs.PhotoID == 0 {
		return validationError("observation has no photo id", "photo_id", 0)
	}
	return ds.WithLock(ctx, metrics.OpObservationCreate, func(db *gorm.DB) error {
		if err := db.Create(obs).Error; err != nil {
			return dbError(err, metrics.OpObservationCreate, observationsTable,
				"photo_id", obs.PhotoID, "cell_id", obs.CellID)
		}
		return nil
	})
}

// SaveAnalysis stores all observations of a photo and marks it analyzed in
// one transaction. Either everything is persisted or nothing is. IDs are
// assigned to the observations in place.
func (ds *DataStore) SaveAnalysis(ctx context.Context, photoID uint, observations []PlantObservation, at time.Time) (int, error) {
	err := ds.WithLock(ctx, metrics.OpSaveAnalysis, func(db *gorm.DB) error {
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := markAnalyzed(tx, photoID, at); err != nil {
				return err
			}
			if len(observations) == 0 {
				return nil
			}
			for i := range observations {
				observations[i].PhotoID = photoID
			}
			if err := tx.Create(&observations).Error; err != nil {
				return dbError(err, metrics.OpSaveAnalysis, observationsTable,
					"photo_id", photoID, "count", len(observations))
			}
			return nil
		})

		if m := ds.getMetrics(); m != nil {
			status := metrics.LabelCommit
			if err != nil {
				status = metrics.LabelRollback
			}
			m.RecordTransaction(status)
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	return len(observations), nil
}

// StatByCellID averages plant height, leaf angle and ears height per cell,
// ordered by cell id.
func (ds *DataStore) StatByCellID(ctx context.Context) ([]CellStat, error) {
	stats := make([]CellStat, 0)
	err := ds.WithLock(ctx, metrics.OpStatByCell, func(db *gorm.DB) error {
		err := db.Model(&PlantObservation{}).
			Select("cell_id, AVG(plant_height) AS avg_plant_height, AVG(leaf_angle) AS avg_leaf_angle, " +
				"AVG(ears_height) AS avg_ears_height, COUNT(*) AS observations").
			Group("cell_id").
			Order("cell_id").
			Scan(&stats).Error
		if err != nil {
			return dbError(err, metrics.OpStatByCell, observationsTable)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ListObservationPoints returns every observation with the longitude and
// latitude of its photo, ordered by observation id.
func (ds *DataStore) ListObservationPoints(ctx context.Context) ([]ObservationPoint, error) {
	points := make([]ObservationPoint, 0)
	err := ds.WithLock(ctx, metrics.OpListPoints, func(db *gorm.DB) error {
		err := db.Table(observationsTable + " AS o").
			Select("o.*, p.longitude AS longitude, p.latitude AS latitude").
			Joins("JOIN " + photosTable + " AS p ON p.id = o.photo_id").
			Order("o.id").
			Scan(&points).Error
		if err != nil {
			return dbError(err, metrics.OpListPoints, observationsTable)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}
