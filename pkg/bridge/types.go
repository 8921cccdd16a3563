package bridge

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is a push message as seen by the scripting layer.
type Message struct {
	MessageID     string            `json:"messageId"`
	Title         string            `json:"title,omitempty"`
	Body          string            `json:"body"`
	Sound         string            `json:"sound,omitempty"`
	Silent        bool              `json:"silent,omitempty"`
	CustomPayload map[string]string `json:"customPayload,omitempty"`
	ReceivedAt    time.Time         `json:"receivedTimestamp"`
	Seen          bool              `json:"seen,omitempty"`
}

// UserData is the profile synchronised with the push backend.
type UserData struct {
	ExternalUserID string         `json:"externalUserId,omitempty"`
	FirstName      string         `json:"firstName,omitempty"`
	LastName       string         `json:"lastName,omitempty"`
	MiddleName     string         `json:"middleName,omitempty"`
	Gender         string         `json:"gender,omitempty"`
	Birthdate      string         `json:"birthdate,omitempty"`
	Email          string         `json:"email,omitempty"`
	MSISDN         string         `json:"msisdn,omitempty"`
	CustomData     map[string]any `json:"customData,omitempty"`
}

// Merge overlays the non-empty fields of other onto u.
func (u UserData) Merge(other UserData) UserData {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&u.ExternalUserID, other.ExternalUserID)
	set(&u.FirstName, other.FirstName)
	set(&u.LastName, other.LastName)
	set(&u.MiddleName, other.MiddleName)
	set(&u.Gender, other.Gender)
	set(&u.Birthdate, other.Birthdate)
	set(&u.Email, other.Email)
	set(&u.MSISDN, other.MSISDN)
	if len(other.CustomData) > 0 {
		merged := make(map[string]any, len(u.CustomData)+len(other.CustomData))
		for k, v := range u.CustomData {
			merged[k] = v
		}
		for k, v := range other.CustomData {
			merged[k] = v
		}
		u.CustomData = merged
	}
	return u
}

// StorageRequest is what the native layer sends to a registered storage target.
type StorageRequest struct {
	RequestID string    `json:"requestId,omitempty"`
	MessageID string    `json:"messageId,omitempty"`
	Messages  []Message `json:"messages,omitempty"`
}

// Platform identifies the native transport the bridge runs on.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// AndroidConfig carries Android specific init options.
type AndroidConfig struct {
	SenderID string `json:"senderId,omitempty"`
}

// IOSConfig carries iOS specific init options.
type IOSConfig struct {
	NotificationTypes []string `json:"notificationTypes,omitempty"`
}

// Configuration is handed to init once per bridge lifetime.
type Configuration struct {
	ApplicationCode       string         `json:"applicationCode"`
	GeofencingEnabled     bool           `json:"geofencingEnabled,omitempty"`
	MessageStorage        MessageStorage `json:"-"`
	DefaultMessageStorage bool           `json:"defaultMessageStorage,omitempty"`
	Android               *AndroidConfig `json:"android,omitempty"`
	IOS                   *IOSConfig     `json:"ios,omitempty"`
}

// Validate runs the checks that must pass before init crosses the boundary.
func (c Configuration) Validate() error {
	if c.ApplicationCode == "" {
		return ErrMissingApplicationCode
	}
	if c.MessageStorage != nil {
		if err := ValidateStorage(c.MessageStorage); err != nil {
			return err
		}
		if c.DefaultMessageStorage {
			return ErrStorageConflict
		}
	}
	return nil
}

// HasCustomStorage reports whether the configuration plugs its own storage.
func (c Configuration) HasCustomStorage() bool {
	return c.MessageStorage != nil
}

// DecodeMessage converts a boundary payload into a message. A nil payload is a
// miss and yields (nil, nil).
func DecodeMessage(payload any) (*Message, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case Message:
		return &v, nil
	case *Message:
		return v, nil
	}
	var msg Message
	if err := remarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode message payload: %w", err)
	}
	return &msg, nil
}

// DecodeMessages converts a boundary payload into a message list.
func DecodeMessages(payload any) ([]Message, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case []Message:
		return v, nil
	}
	var msgs []Message
	if err := remarshal(payload, &msgs); err != nil {
		return nil, fmt.Errorf("failed to decode message list payload: %w", err)
	}
	return msgs, nil
}

// DecodeUserData converts a boundary payload into user data.
func DecodeUserData(payload any) (UserData, error) {
	switch v := payload.(type) {
	case nil:
		return UserData{}, nil
	case UserData:
		return v, nil
	case *UserData:
		return *v, nil
	}
	var data UserData
	if err := remarshal(payload, &data); err != nil {
		return UserData{}, fmt.Errorf("failed to decode user data payload: %w", err)
	}
	return data, nil
}

// DecodeConfiguration converts an init payload into a configuration. The
// storage capability never crosses the boundary and is always nil here.
func DecodeConfiguration(payload any) (Configuration, error) {
	var cfg Configuration
	switch v := payload.(type) {
	case nil:
		return Configuration{}, fmt.Errorf("%w: missing configuration", ErrInvalidArguments)
	case Configuration:
		cfg = v
	case *Configuration:
		cfg = *v
	default:
		if err := remarshal(payload, &cfg); err != nil {
			return Configuration{}, fmt.Errorf("failed to decode configuration payload: %w", err)
		}
	}
	cfg.MessageStorage = nil
	return cfg, nil
}

// DecodeStorageRequest converts a boundary payload into a storage request.
func DecodeStorageRequest(payload any) (StorageRequest, error) {
	switch v := payload.(type) {
	case nil:
		return StorageRequest{}, nil
	case StorageRequest:
		return v, nil
	case *StorageRequest:
		return *v, nil
	}
	var req StorageRequest
	if err := remarshal(payload, &req); err != nil {
		return StorageRequest{}, fmt.Errorf("failed to decode storage request payload: %w", err)
	}
	return req, nil
}

// remarshal moves loosely typed payloads (maps from a script runtime) into
// their Go shape through their JSON form.
func remarshal(in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
