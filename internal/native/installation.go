package native

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

// installation is the device's push identity.
type installation struct {
	deviceToken    string
	registrationID string
}

// ClientID identifies this SDK build in log exports.
func (r *Runtime) ClientID() string {
	return r.opts.ClientID
}

// DeviceToken is the push transport token, empty before registration.
func (r *Runtime) DeviceToken() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.install.deviceToken
}

// RegistrationID is the backend's id for this installation, empty before
// registration.
func (r *Runtime) RegistrationID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.install.registrationID
}

// Platform reports which native transport is being stood in for.
func (r *Runtime) Platform() bridge.Platform {
	return r.opts.Platform
}

// UpdateRegistration records a new device token, as when the transport rotates
// it. tokenReceived fires on iOS only; registrationUpdated fires everywhere.
func (r *Runtime) UpdateRegistration(_ context.Context, deviceToken string) {
	r.mu.Lock()
	r.install.deviceToken = deviceToken
	if r.install.registrationID == "" {
		r.install.registrationID = uuid.NewString()
	}
	regID := r.install.registrationID
	r.mu.Unlock()

	if r.opts.Platform == bridge.PlatformIOS {
		r.fire(bridge.EventTokenReceived, deviceToken)
	}
	r.fire(bridge.EventRegistrationUpdated, regID)
	r.logger.Info("Registration updated", "registration_id", regID)
}

// ensureRegistration gives a fresh installation its identity after init.
func (r *Runtime) ensureRegistration(ctx context.Context) {
	if r.RegistrationID() != "" {
		return
	}
	r.UpdateRegistration(ctx, strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// Deliver hands a received push message to the device: it is persisted to
// the active storage and then emitted as messageReceived.
func (r *Runtime) Deliver(ctx context.Context, msg bridge.Message) (bridge.Message, error) {
	if r.closed.Load() {
		return msg, bridge.ErrBoundaryUnavailable
	}
	if !r.initialized() {
		return msg, bridge.ErrNotInitialized
	}
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}

	if save, ok := r.target(bridge.TargetSave); ok {
		req := bridge.StorageRequest{Messages: []bridge.Message{msg}}
		r.enqueue(func() { save.OnSuccess(req) })
	} else if r.defaultStorageEnabled() {
		if err := r.opts.DefaultStore.Save(ctx, msg); err != nil {
			return msg, err
		}
	}

	r.fire(bridge.EventMessageReceived, msg)
	r.logger.Debug("Message delivered", "message_id", msg.MessageID)
	return msg, nil
}

func (r *Runtime) defaultStorageEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg != nil && r.cfg.DefaultMessageStorage
}
