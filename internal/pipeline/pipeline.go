// Package pipeline runs batch analysis over every photo that has not been
// analyzed yet.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/fieldscan/fieldscan/internal/analyzer"
	"github.com/fieldscan/fieldscan/internal/datastore"
	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/imagestore"
	"github.com/fieldscan/fieldscan/internal/logger"
	"github.com/fieldscan/fieldscan/internal/observability/metrics"
)

const (
	runKey        = "process-all"
	notifyTimeout = 10 * time.Second
)

// ErrRunInProgress is returned when another process holds the run lock file.
var ErrRunInProgress = errors.NewStd("pipeline: batch run already in progress")

// Notifier receives the summary of every run that processed at least one photo.
type Notifier interface {
	NotifyRun(ctx context.Context, summary Summary) error
}

// Processor drives batch runs. It is safe for concurrent use; concurrent
// ProcessAll calls share a single run.
type Processor struct {
	store    datastore.Interface
	images   imagestore.Store
	analyzer analyzer.Analyzer

	metrics       *metrics.PipelineMetrics
	notifier      Notifier
	transactional bool
	lockFile      string
	now           func() time.Time

	group singleflight.Group
}

// Option configures a Processor.
type Option func(*Processor)

// WithMetrics records run metrics.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithNotifier sends run summaries to n.
func WithNotifier(n Notifier) Option {
	return func(p *Processor) { p.notifier = n }
}

// WithTransactional persists the observations of a photo and marks it
// analyzed in one transaction.
func WithTransactional(enabled bool) Option {
	return func(p *Processor) { p.transactional = enabled }
}

// WithLockFile holds an exclusive file lock at path for the duration of a
// run. An empty path disables it.
func WithLockFile(path string) Option {
	return func(p *Processor) { p.lockFile = path }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// New returns a Processor.
func New(store datastore.Interface, images imagestore.Store, a analyzer.Analyzer, opts ...Option) *Processor {
	p := &Processor{
		store:    store,
		images:   images,
		analyzer: a,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessAll analyzes every photo with no analysis timestamp, oldest first.
//
// Per-photo failures are recorded in the summary and never returned. Only a
// failure to fetch the work list, or a lock held by another process, is
// returned as an error. Cancellation is checked between photos: the photo in
// flight finishes, the rest stay unanalyzed and the summary is marked
// Canceled.
//
// Concurrent callers join the run already in flight and receive its summary
// with Shared set. The run uses the context of the caller that started it.
func (p *Processor) ProcessAll(ctx context.Context) (Summary, error) {
	v, err, shared := p.group.Do(runKey, func() (any, error) {
		summary, err := p.run(ctx)
		return summary, err
	})
	summary, _ := v.(Summary)
	summary.Shared = shared
	return summary, err
}

func (p *Processor) run(ctx context.Context) (Summary, error) {
	log := GetLogger()

	if p.lockFile != "" {
		unlock, err := p.acquireLockFile()
		if err != nil {
			return Summary{}, err
		}
		defer unlock()
	}

	summary := Summary{
		RunID:     uuid.NewString(),
		StartedAt: p.now(),
	}
	log = log.With(logger.String("run_id", summary.RunID))

	_, photos, err := datastore.PagedFindAndCount[datastore.PhotoRecord](ctx, p.store, datastore.Query{
		Condition: datastore.Where("analyzed_at IS NULL"),
		Orderings: []datastore.OrderKey{datastore.Asc("id")},
	})
	if err != nil {
		elapsed := p.now().Sub(summary.StartedAt)
		p.recordRun(metrics.OutcomeFailed, elapsed)
		log.Error("failed to fetch unanalyzed photos", logger.Error(err))
		return Summary{}, errors.New(err).
			Component("pipeline").
			Category(errors.CategoryPipeline).
			Timing("fetch_unanalyzed", elapsed).
			Context("run_id", summary.RunID).
			Build()
	}

	if len(photos) == 0 {
		summary.FinishedAt = p.now()
		p.recordRun(metrics.OutcomeEmpty, summary.Duration())
		log.Info("no unanalyzed photos")
		return summary, nil
	}

	log.Info("batch run started", logger.Int("photos", len(photos)))
	summary.Items = make([]ItemResult, 0, len(photos))

	for i := range photos {
		if ctx.Err() != nil {
			summary.Canceled = true
			log.Warn("batch run canceled",
				logger.Int("processed", i),
				logger.Int("remaining", len(photos)-i))
			break
		}
		// a started photo runs to completion so its observations and mark stay consistent
		item := p.processPhoto(context.WithoutCancel(ctx), log, &photos[i])
		summary.add(item)
		if item.Status == StatusSkipped {
			p.recordSkipped(item.Reason)
		}
	}

	summary.FinishedAt = p.now()
	outcome := metrics.OutcomeCompleted
	if summary.Canceled {
		outcome = metrics.OutcomeCanceled
	}
	p.recordRun(outcome, summary.Duration())
	if p.metrics != nil {
		p.metrics.AddPhotosAnalyzed(summary.PhotosAnalyzed)
		p.metrics.AddObservations(summary.ObservationsProduced, summary.dropped())
	}

	log.Info("batch run finished",
		logger.Int("photos_analyzed", summary.PhotosAnalyzed),
		logger.Int("observations_produced", summary.ObservationsProduced),
		logger.Int("skipped", summary.Skipped()),
		logger.Bool("canceled", summary.Canceled),
		logger.Duration("duration", summary.Duration()))

	p.notify(ctx, log, summary)
	return summary, nil
}

// processPhoto moves one photo to Done or Skipped.
func (p *Processor) processPhoto(ctx context.Context, log logger.Logger, photo *datastore.PhotoRecord) ItemResult {
	item := ItemResult{PhotoID: photo.ID}
	log = log.With(logger.Uint("photo_id", photo.ID))

	image, err := p.images.Load(ctx, photo.ID)
	if err != nil {
		log.Warn("skipping photo, image unavailable", logger.Error(err))
		return item.skip(ReasonImageMissing, err)
	}

	start := p.now()
	result, err := p.analyzer.Analyze(ctx, image, photo.Longitude, photo.Latitude, photo.HeadingDegrees)
	if p.metrics != nil {
		p.metrics.ObserveAnalyze(p.now().Sub(start))
	}
	if err == nil && !result.OK {
		err = errors.Newf("pipeline: analyzer rejected photo %d", photo.ID).
			Component("pipeline").
			Category(errors.CategoryAnalysis).
			Build()
	}
	if err != nil {
		log.Warn("skipping photo, analysis failed", logger.Error(err))
		return item.skip(ReasonAnalysisFailed, err)
	}

	observations := toRecords(photo.ID, result.Observations)
	if p.transactional {
		return p.persistTransactional(ctx, log, item, observations)
	}
	return p.persistEach(ctx, log, item, observations)
}

// persistEach inserts observations one by one and marks the photo after every
// insert was attempted.
func (p *Processor) persistEach(ctx context.Context, log logger.Logger, item ItemResult, observations []datastore.PlantObservation) ItemResult {
	for i := range observations {
		if err := p.store.AddObservation(ctx, &observations[i]); err != nil {
			item.Dropped++
			log.Warn("failed to save observation",
				logger.String("cell_id", observations[i].CellID),
				logger.Error(err))
			continue
		}
		item.Observations++
	}

	if err := p.store.MarkPhotoAnalyzed(ctx, item.PhotoID, p.now()); err != nil {
		log.Error("failed to mark photo analyzed",
			logger.Int("saved_observations", item.Observations),
			logger.Error(err))
		return item.skip(ReasonMarkFailed, err)
	}

	item.Status = StatusDone
	return item
}

func (p *Processor) persistTransactional(ctx context.Context, log logger.Logger, item ItemResult, observations []datastore.PlantObservation) ItemResult {
	saved, err := p.store.SaveAnalysis(ctx, item.PhotoID, observations, p.now())
	if err != nil {
		log.Error("failed to save analysis", logger.Error(err))
		return item.skip(ReasonPersistFailed, err)
	}
	item.Observations = saved
	item.Status = StatusDone
	return item
}

func (p *Processor) acquireLockFile() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(p.lockFile), 0o755); err != nil {
		return nil, errors.New(err).
			Component("pipeline").
			Category(errors.CategoryFileIO).
			Context("lock_file", p.lockFile).
			Build()
	}

	fl := flock.New(p.lockFile)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, errors.New(err).
			Component("pipeline").
			Category(errors.CategorySystem).
			Context("lock_file", p.lockFile).
			Build()
	}
	if !locked {
		return nil, errors.New(ErrRunInProgress).
			Component("pipeline").
			Category(errors.CategoryState).
			Context("lock_file", p.lockFile).
			Build()
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			GetLogger().Warn("failed to release run lock", logger.String("path", p.lockFile), logger.Error(err))
		}
	}, nil
}

func (p *Processor) notify(ctx context.Context, log logger.Logger, summary Summary) {
	if p.notifier == nil || len(summary.Items) == 0 {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := p.notifier.NotifyRun(notifyCtx, summary); err != nil {
		log.Warn("failed to publish run summary", logger.Error(err))
	}
}

func (p *Processor) recordRun(outcome string, d time.Duration) {
	if p.metrics != nil {
		p.metrics.RecordRun(outcome, d)
	}
}

func (p *Processor) recordSkipped(reason Reason) {
	if p.metrics != nil {
		p.metrics.RecordSkipped(string(reason))
	}
}

func toRecords(photoID uint, observations []analyzer.Observation) []datastore.PlantObservation {
	records := make([]datastore.PlantObservation, len(observations))
	for i, o := range observations {
		records[i] = datastore.PlantObservation{
			PhotoID:     photoID,
			CellID:      o.CellID.String(),
			PlantHeight: o.PlantHeight,
			LeafAngle:   o.LeafAngle,
			EarsHeight:  o.EarsHeight,
		}
	}
	return records
}
