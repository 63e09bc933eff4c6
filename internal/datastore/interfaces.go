// interfaces.go: storage contract and the shared gorm-backed implementation
package datastore

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/fieldscan/fieldscan/internal/conf"
	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/logger"
	"github.com/fieldscan/fieldscan/internal/observability/metrics"
)

// Interface is the storage contract used by the pipeline, the API and the CLI.
// Every operation runs under the store's lock, one at a time.
type Interface interface {
	Open() error
	Close() error

	// WithLock runs fn with exclusive access to a fresh session bound to ctx.
	// operation names the call in metrics and errors.
	WithLock(ctx context.Context, operation string, fn func(db *gorm.DB) error) error

	AddPhoto(ctx context.Context, longitude, latitude, headingDegrees float64) (PhotoRecord, error)
	GetPhoto(ctx context.Context, id uint) (PhotoRecord, error)
	MarkPhotoAnalyzed(ctx context.Context, id uint, at time.Time) error
	DeletePhoto(ctx context.Context, id uint) error
	ClearAll(ctx context.Context) error
	CountPhotosByAnalysis(ctx context.Context) (analyzed, notAnalyzed int64, err error)

	AddObservation(ctx context.Context, obs *PlantObservation) error
	SaveAnalysis(ctx context.Context, photoID uint, observations []PlantObservation, at time.Time) (int, error)
	StatByCellID(ctx context.Context) ([]CellStat, error)
	ListObservationPoints(ctx context.Context) ([]ObservationPoint, error)
}

// DataStore implements Interface on top of a gorm connection. SQLiteStore and
// MySQLStore embed it and only differ in how Open connects.
type DataStore struct {
	DB *gorm.DB

	mu sync.Mutex // serializes every store operation

	metricsMu sync.RWMutex
	metrics   *metrics.DatastoreMetrics
}

// New creates a DataStore for the backend enabled in settings. The store is
// not connected until Open is called.
func New(settings *conf.Settings) (Interface, error) {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}, nil
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{Settings: settings}, nil
	default:
		return nil, errors.Newf("datastore: no database backend enabled").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// SetMetrics attaches datastore metrics. A nil value disables recording.
func (ds *DataStore) SetMetrics(m *metrics.DatastoreMetrics) {
	ds.metricsMu.Lock()
	defer ds.metricsMu.Unlock()
	ds.metrics = m
}

func (ds *DataStore) getMetrics() *metrics.DatastoreMetrics {
	ds.metricsMu.RLock()
	defer ds.metricsMu.RUnlock()
	return ds.metrics
}

// WithLock implements Interface.
func (ds *DataStore) WithLock(ctx context.Context, operation string, fn func(db *gorm.DB) error) error {
	if ds.DB == nil {
		return errors.Newf("datastore: %s called before Open", operation).
			Component("datastore").
			Category(errors.CategoryState).
			Build()
	}

	waitStart := time.Now()
	ds.mu.Lock()
	defer ds.mu.Unlock()
	wait := time.Since(waitStart)

	m := ds.getMetrics()
	if m != nil {
		m.RecordLockWaitTime(metrics.LabelStore, wait.Seconds())
	}

	// a caller that gave up while queued gets nothing
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	err := fn(ds.DB.WithContext(ctx).Session(&gorm.Session{}))

	if m != nil {
		status := metrics.LabelSuccess
		if err != nil {
			status = metrics.LabelError
			m.RecordError(operation, string(errors.CategoryOf(err)))
		}
		m.RecordOperation(operation, status)
		m.RecordDuration(operation, time.Since(start).Seconds())
	}

	if err != nil && IsStoreError(err) {
		GetLogger().WithContext(ctx).Warn("datastore operation failed",
			logger.String("operation", operation),
			logger.Duration("lock_wait", wait),
			logger.Error(err))
	}
	return err
}

// Close closes the underlying connection pool.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "close", "connection")
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close", "connection")
	}
	return nil
}

// performAutoMigration creates or updates the schema.
func performAutoMigration(db *gorm.DB, dialect string) error {
	if err := db.AutoMigrate(models...); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Priority(errors.PriorityCritical).
			Context("operation", "auto_migrate").
			Context("dialect", dialect).
			Build()
	}
	return nil
}
