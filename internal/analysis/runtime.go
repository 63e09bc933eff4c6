// Package analysis wires settings into a running fieldscan node: logging,
// metrics, the relational store, the image store, the resolver, the analyzer
// and the pipeline, plus the long running serve mode built on top of them.
package analysis

import (
	"fmt"

	"github.com/fieldscan/fieldscan/internal/analyzer"
	"github.com/fieldscan/fieldscan/internal/conf"
	"github.com/fieldscan/fieldscan/internal/datastore"
	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/grid"
	"github.com/fieldscan/fieldscan/internal/imagestore"
	"github.com/fieldscan/fieldscan/internal/logger"
	"github.com/fieldscan/fieldscan/internal/mqtt"
	"github.com/fieldscan/fieldscan/internal/observability"
	"github.com/fieldscan/fieldscan/internal/observability/metrics"
	"github.com/fieldscan/fieldscan/internal/pipeline"
	"github.com/fieldscan/fieldscan/internal/telemetry"
)

// Runtime holds the components built from one Settings value.
type Runtime struct {
	Settings  *conf.Settings
	Metrics   *observability.Metrics
	Store     datastore.Interface
	Images    *imagestore.FileStore
	Resolver  *grid.Resolver
	Analyzer  analyzer.Analyzer
	Processor *pipeline.Processor

	notifier *mqtt.Notifier
	central  *logger.CentralLogger
}

// metricsSetter is implemented by the gorm backed stores.
type metricsSetter interface {
	SetMetrics(m *metrics.DatastoreMetrics)
}

// Open builds a Runtime and opens the database. The caller owns the returned
// Runtime and must Close it.
func Open(settings *conf.Settings) (*Runtime, error) {
	rt := &Runtime{Settings: settings}

	central, err := initLogging(settings)
	if err != nil {
		return nil, err
	}
	rt.central = central

	if err := telemetry.InitSentry(settings); err != nil {
		GetLogger().Warn("error reporting not available", logger.Error(err))
	}

	if rt.Metrics, err = observability.NewMetrics(); err != nil {
		return nil, errors.New(err).
			Component("analysis").
			Category(errors.CategorySystem).
			Context("operation", "init_metrics").
			Build()
	}

	if rt.Resolver, err = newResolver(settings); err != nil {
		return nil, err
	}

	if rt.Images, err = imagestore.NewFileStore(settings.Images.Path); err != nil {
		return nil, err
	}

	store, err := datastore.New(settings)
	if err != nil {
		return nil, err
	}
	if err := store.Open(); err != nil {
		return nil, err
	}
	if setter, ok := store.(metricsSetter); ok {
		setter.SetMetrics(rt.Metrics.Datastore)
	}
	rt.Store = store

	rt.Analyzer = analyzer.NewPlaceholder(rt.Resolver, settings.Pipeline.Seed)

	opts := []pipeline.Option{
		pipeline.WithMetrics(rt.Metrics.Pipeline),
		pipeline.WithTransactional(settings.Pipeline.Transactional),
		pipeline.WithLockFile(settings.Pipeline.LockFile),
	}
	if settings.MQTT.Enabled {
		client, err := mqtt.NewClient(settings, rt.Metrics.MQTT)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.notifier = mqtt.NewNotifier(client, settings.MQTT.Topic, settings.Main.Name)
		opts = append(opts, pipeline.WithNotifier(rt.notifier))
	}
	rt.Processor = pipeline.New(rt.Store, rt.Images, rt.Analyzer, opts...)

	GetLogger().Info("runtime ready",
		logger.String("node", settings.Main.Name),
		logger.Int("grid_columns", rt.Resolver.Columns()),
		logger.String("grid_policy", rt.Resolver.Policy().Name()),
		logger.String("images", rt.Images.Root()),
		logger.Bool("transactional", settings.Pipeline.Transactional),
		logger.Bool("mqtt", settings.MQTT.Enabled))

	return rt, nil
}

// Close disconnects MQTT, closes the database and flushes logs and telemetry.
func (rt *Runtime) Close() error {
	var errs []error

	if rt.notifier != nil {
		rt.notifier.Close()
	}
	if rt.Store != nil {
		if err := rt.Store.Close(); err != nil {
			GetLogger().Error("failed to close database", logger.Error(err))
			errs = append(errs, err)
		} else {
			GetLogger().Debug("database closed")
		}
	}
	if telemetry.Enabled(rt.Settings) {
		telemetry.Flush()
	}
	if rt.central != nil {
		if err := rt.central.Flush(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// initLogging builds the central logger from settings and makes it global.
// --debug lowers the default and console levels to debug.
func initLogging(settings *conf.Settings) (*logger.CentralLogger, error) {
	cfg := settings.Logging
	if settings.Debug {
		cfg.DefaultLevel = "debug"
		if cfg.Console != nil {
			console := *cfg.Console
			console.Level = "debug"
			cfg.Console = &console
		}
	}

	central, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to initialize logging: %w", err)).
			Component("analysis").
			Category(errors.CategoryConfiguration).
			Build()
	}
	logger.SetGlobal(central)
	return central, nil
}

func newResolver(settings *conf.Settings) (*grid.Resolver, error) {
	policy, err := grid.PolicyByName(settings.Grid.Policy)
	if err != nil {
		return nil, err
	}
	return grid.New(settings.Grid.Columns, policy)
}
