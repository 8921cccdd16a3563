package logging

import (
	"context"
	"fmt"
	"io"

	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

// Installation describes the device the logs are exported from.
type Installation interface {
	ClientID() string
	DeviceToken() string
	RegistrationID() string
}

// platformInstallation is an Installation that knows its push transport.
type platformInstallation interface {
	Platform() bridge.Platform
}

// ShareTarget is the platform mechanism that hands the bundle to the user.
type ShareTarget interface {
	Share(ctx context.Context, bundle Bundle) error
}

// Bundle is what a log export carries.
type Bundle struct {
	ClientID       string `json:"clientId"`
	Platform       string `json:"platform,omitempty"`
	DeviceToken    string `json:"deviceToken,omitempty"`
	RegistrationID string `json:"registrationId,omitempty"`
	LogFilePath    string `json:"logFilePath,omitempty"`
}

// Items renders the bundle the way the share sheet shows it.
func (b Bundle) Items() []string {
	items := []string{b.ClientID}
	if b.DeviceToken != "" {
		label := "Device token: "
		if b.Platform == string(bridge.PlatformIOS) {
			label = "APNS device token: "
		}
		items = append(items, label+b.DeviceToken)
	}
	if b.RegistrationID != "" {
		items = append(items, "Push registration ID: "+b.RegistrationID)
	}
	if b.LogFilePath != "" {
		items = append(items, "file://"+b.LogFilePath)
	}
	return items
}

// Bundle gathers the export bundle for inst.
func (l *Logger) Bundle(inst Installation) Bundle {
	b := Bundle{LogFilePath: l.LogFilePath()}
	if inst != nil {
		b.ClientID = inst.ClientID()
		b.DeviceToken = inst.DeviceToken()
		b.RegistrationID = inst.RegistrationID()
		if p, ok := inst.(platformInstallation); ok {
			b.Platform = string(p.Platform())
		}
	}
	return b
}

// SendLogs gathers the bundle and hands it to target.
func (l *Logger) SendLogs(ctx context.Context, inst Installation, target ShareTarget) error {
	if target == nil {
		return fmt.Errorf("no share target")
	}
	if err := target.Share(ctx, l.Bundle(inst)); err != nil {
		return fmt.Errorf("failed to share logs: %w", err)
	}
	return nil
}

// WriterShareTarget prints the bundle items, one per line.
type WriterShareTarget struct {
	W io.Writer
}

func (t WriterShareTarget) Share(_ context.Context, bundle Bundle) error {
	for _, item := range bundle.Items() {
		if _, err := fmt.Fprintln(t.W, item); err != nil {
			return err
		}
	}
	return nil
}
