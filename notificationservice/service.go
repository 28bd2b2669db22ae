// Package notificationservice assembles the notification core into a
// runnable microservice: HTTP API, Pub/Sub ingest pipeline, and lifecycle.
package notificationservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/starsage/go-notification-service/internal/api"
	"github.com/starsage/go-notification-service/internal/audience"
	"github.com/starsage/go-notification-service/internal/notifier"
	"github.com/starsage/go-notification-service/internal/pipeline"
	"github.com/starsage/go-notification-service/notificationservice/config"
	"github.com/starsage/go-notification-service/pkg/dispatch"
	"github.com/starsage/go-notification-service/pkg/notification"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[notification.Request]
	logger          *slog.Logger
}

// New assembles the service. The dispatchers map holds whichever backends are
// configured; partitions without a dispatcher fail closed inside the
// orchestrator.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	dispatchers map[notification.BackendType]dispatch.Dispatcher,
	records dispatch.RecordStore,
	registry dispatch.RegistrationStore,
	directory dispatch.UserDirectory,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Dispatch core
	resolver := audience.NewResolver(directory, logger)
	orchestrator := pipeline.NewOrchestrator(records, registry, resolver, dispatchers, cfg.SendTimeout, logger)
	core := notifier.New(records, registry, orchestrator, logger)

	// 3. Ingest pipeline
	processor := pipeline.NewProcessor(core, logger)
	streamingService, err := messagepipeline.NewStreamingService[notification.Request](
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		consumer,
		pipeline.RequestTransformer,
		processor,
		slog.New(slog.DiscardHandler),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// 4. HTTP API
	notificationAPI := api.NewNotificationAPI(core, logger)
	deviceAPI := api.NewDeviceAPI(core, logger)

	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(authMiddleware(handlerFunc)))
	}

	handle("POST /api/v1/notifications", notificationAPI.Create)
	handle("GET /api/v1/notifications/stats", notificationAPI.Stats)
	handle("POST /api/v1/notifications/{id}/dispatch", notificationAPI.Dispatch)
	handle("GET /api/v1/notifications/{id}", notificationAPI.Get)
	handle("GET /api/v1/notifications", notificationAPI.List)

	handle("POST /api/v1/devices/register", deviceAPI.Register)
	handle("POST /api/v1/devices/deactivate", deviceAPI.Deactivate)

	// CORS preflight for the API namespace
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info("Core processing pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing service: %w", err)
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Processing pipeline shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
