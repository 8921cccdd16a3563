package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/logging"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

// Device is the native side the diagnostics endpoints look into.
type Device interface {
	logging.Installation
	Deliver(ctx context.Context, msg bridge.Message) (bridge.Message, error)
	RequestStoredMessage(ctx context.Context, messageID string) (*bridge.Message, error)
}

// LogExporter produces the log export bundle.
type LogExporter interface {
	Bundle(inst logging.Installation) logging.Bundle
}

type DiagnosticsAPI struct {
	Device Device
	Logs   LogExporter
	Logger *slog.Logger
}

func NewDiagnosticsAPI(device Device, logs LogExporter, logger *slog.Logger) *DiagnosticsAPI {
	return &DiagnosticsAPI{
		Device: device,
		Logs:   logs,
		Logger: logger.With("component", "DiagnosticsAPI"),
	}
}

// ExportLogs returns the bundle a log export would share.
func (api *DiagnosticsAPI) ExportLogs(w http.ResponseWriter, r *http.Request) {
	bundle := api.Logs.Bundle(api.Device)
	api.Logger.Info("ExportLogs: bundle requested", "client_id", bundle.ClientID)
	writeJSON(w, http.StatusOK, bundle)
}

// InjectMessageRequest is a push message as a local tester would send it.
type InjectMessageRequest struct {
	MessageID     string            `json:"messageId,omitempty"`
	Title         string            `json:"title,omitempty"`
	Body          string            `json:"body"`
	Sound         string            `json:"sound,omitempty"`
	Silent        bool              `json:"silent,omitempty"`
	CustomPayload map[string]string `json:"customPayload,omitempty"`
}

// InjectMessage delivers a message to the device as if it had been pushed.
func (api *DiagnosticsAPI) InjectMessage(w http.ResponseWriter, r *http.Request) {
	var req InjectMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Body == "" && !req.Silent {
		response.WriteJSONError(w, http.StatusBadRequest, "missing body")
		return
	}

	msg := bridge.Message{
		MessageID:     req.MessageID,
		Title:         req.Title,
		Body:          req.Body,
		Sound:         req.Sound,
		Silent:        req.Silent,
		CustomPayload: req.CustomPayload,
	}
	delivered, err := api.Device.Deliver(r.Context(), msg)
	if err != nil {
		if errors.Is(err, bridge.ErrNotInitialized) {
			response.WriteJSONError(w, http.StatusConflict, "messaging not initialized")
			return
		}
		api.Logger.Error("InjectMessage: delivery failed", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "delivery failed")
		return
	}
	api.Logger.Info("InjectMessage: message delivered", "message_id", delivered.MessageID)

	writeJSON(w, http.StatusAccepted, delivered)
}

// GetMessage looks a stored message up on the native side.
func (api *DiagnosticsAPI) GetMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing message id")
		return
	}

	msg, err := api.Device.RequestStoredMessage(r.Context(), id)
	if err != nil {
		api.Logger.Warn("GetMessage: lookup failed", "message_id", id, "err", err)
		response.WriteJSONError(w, http.StatusServiceUnavailable, "message storage unavailable")
		return
	}
	if msg == nil {
		response.WriteJSONError(w, http.StatusNotFound, "message not found")
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
