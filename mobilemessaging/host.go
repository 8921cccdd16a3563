package mobilemessaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/api"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/logging"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/native"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/pipeline"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/script"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/mobilemessaging/config"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

// Host runs the bridge against the in-process native runtime. It can feed the
// device from a Pub/Sub push subscription, drive the bridge from an app
// script, and serves the diagnostics API.
type Host struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[notification.NotificationRequest]
	device          *native.Runtime
	bridge          *Bridge
	script          *script.Runtime
	scriptName      string
	scriptSrc       string
	bridgeCfg       bridge.Configuration
	logger          *slog.Logger
}

// NewHost assembles the host. consumer may be nil, in which case nothing is
// ingested and messages arrive through the diagnostics API only.
func NewHost(
	cfg *config.Config,
	device *native.Runtime,
	consumer messagepipeline.MessageConsumer,
	logs *logging.Logger,
	logger *slog.Logger,
) (*Host, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	h := &Host{
		BaseServer: baseServer,
		device:     device,
		bridge:     New(device, logger),
		bridgeCfg:  cfg.Bridge.Configuration(),
		logger:     logger.With("component", "Host"),
	}

	// 2. App script
	if cfg.ScriptPath != "" {
		src, err := os.ReadFile(cfg.ScriptPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read app script: %w", err)
		}
		h.scriptName = cfg.ScriptPath
		h.scriptSrc = string(src)
	}

	// 3. Pipeline
	if consumer != nil {
		var recipient *urn.URN
		if cfg.RecipientURN != "" {
			parsed, err := urn.Parse(cfg.RecipientURN)
			if err != nil {
				return nil, fmt.Errorf("invalid recipient urn: %w", err)
			}
			recipient = &parsed
		}
		processor := pipeline.NewProcessor(device, recipient, logger)

		streamingService, err := messagepipeline.NewStreamingService(
			messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
			consumer,
			pipeline.NotificationRequestTransformer,
			processor,
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create streaming service: %w", err)
		}
		h.pipelineService = streamingService
	}

	// 4. Diagnostics API
	diagnostics := api.NewDiagnosticsAPI(device, logs, logger)

	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(handlerFunc))
	}
	handle("GET /api/v1/logs/export", diagnostics.ExportLogs)
	handle("POST /api/v1/messages", diagnostics.InjectMessage)
	handle("GET /api/v1/messages/{id}", diagnostics.GetMessage)

	// CORS preflight for the API namespace
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	return h, nil
}

// Bridge is the bridge the host drives.
func (h *Host) Bridge() *Bridge {
	return h.bridge
}

// Start initializes the bridge, through the app script when there is one, then
// starts ingestion and serves HTTP until shutdown.
func (h *Host) Start(ctx context.Context) error {
	if err := h.startBridge(ctx); err != nil {
		return err
	}

	if h.pipelineService != nil {
		h.logger.Info("Push ingestion pipeline starting...")
		if err := h.pipelineService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start processing service: %w", err)
		}
	}
	h.SetReady(true)
	h.logger.Info("Host is now ready.")
	return h.BaseServer.Start()
}

func (h *Host) startBridge(ctx context.Context) error {
	if h.scriptSrc != "" {
		h.script = script.New(ctx, h.bridge, h.logger)
		if err := h.script.RunScript(ctx, h.scriptName, h.scriptSrc); err != nil {
			return fmt.Errorf("app script failed: %w", err)
		}
		h.logger.Info("App script loaded", "script", h.scriptName)
		return nil
	}

	result := make(chan error, 1)
	h.bridge.Init(ctx, h.bridgeCfg,
		func(any) { result <- nil },
		func(err error) { result <- err },
	)
	select {
	case err := <-result:
		if err != nil {
			return fmt.Errorf("bridge init failed: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	h.logger.Info("Bridge initialized", "application_code", h.bridgeCfg.ApplicationCode)
	return nil
}

// Shutdown stops ingestion first so nothing new reaches the device, then the
// native runtime, the script and the HTTP server.
func (h *Host) Shutdown(ctx context.Context) error {
	h.logger.Info("Shutting down host components...")
	var errs []error
	if h.pipelineService != nil {
		if err := h.pipelineService.Stop(ctx); err != nil {
			h.logger.Error("Processing pipeline shutdown failed.", "err", err)
			errs = append(errs, err)
		}
	}
	if err := h.device.Close(); err != nil {
		errs = append(errs, err)
	}
	h.bridge.Wait()
	if h.script != nil {
		h.script.Close()
	}
	if err := h.BaseServer.Shutdown(ctx); err != nil {
		h.logger.Error("HTTP server shutdown failed.", "err", err)
		errs = append(errs, err)
	}
	h.logger.Info("Host shutdown complete.")
	return errors.Join(errs...)
}
