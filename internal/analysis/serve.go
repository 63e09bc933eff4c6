package analysis

import (
	"context"
	"sync"

	"github.com/fieldscan/fieldscan/internal/api"
	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/logger"
	"github.com/fieldscan/fieldscan/internal/observability"
)

// Serve runs the HTTP API and the optional standalone metrics listener until
// ctx is done, then shuts both down.
func Serve(ctx context.Context, rt *Runtime) error {
	log := GetLogger()
	settings := rt.Settings

	if !settings.WebServer.Enabled && (!settings.Telemetry.Enabled || settings.Telemetry.Listen == "") {
		return errors.Newf("nothing to serve: webserver is disabled and no telemetry listener is set").
			Component("analysis").
			Category(errors.CategoryConfiguration).
			Build()
	}

	var wg sync.WaitGroup
	quitChan := make(chan struct{})

	var server *api.Server
	if settings.WebServer.Enabled {
		var err error
		server, err = api.New(settings,
			api.WithDataStore(rt.Store),
			api.WithImageStore(rt.Images),
			api.WithProcessor(rt.Processor),
			api.WithMetrics(rt.Metrics))
		if err != nil {
			return errors.New(err).
				Component("analysis").
				Category(errors.CategoryConfiguration).
				Context("operation", "init_api").
				Build()
		}
		server.Start()
	}

	startTelemetryEndpoint(&wg, rt, quitChan)

	log.Info("fieldscan serving", logger.Bool("api", server != nil))
	<-ctx.Done()
	log.Info("shutdown requested", logger.Error(context.Cause(ctx)))

	close(quitChan)

	var shutdownErr error
	if server != nil {
		shutdownErr = server.Shutdown()
	}
	wg.Wait()

	return shutdownErr
}

// startTelemetryEndpoint starts the standalone metrics listener when one is
// configured. The endpoint stops when quitChan is closed.
func startTelemetryEndpoint(wg *sync.WaitGroup, rt *Runtime, quitChan chan struct{}) {
	if !rt.Settings.Telemetry.Enabled || rt.Settings.Telemetry.Listen == "" {
		return
	}

	endpoint, err := observability.NewEndpoint(rt.Settings, rt.Metrics)
	if err != nil {
		GetLogger().Error("error initializing telemetry endpoint", logger.Error(err))
		return
	}
	endpoint.Start(wg, quitChan)
}
