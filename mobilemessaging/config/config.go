package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// BridgeConfig is what the host passes to init.
type BridgeConfig struct {
	ApplicationCode       string
	Platform              bridge.Platform
	GeofencingEnabled     bool
	DefaultMessageStorage bool
	AndroidSenderID       string
	IOSNotificationTypes  []string
}

// Configuration builds the init configuration. The message storage is chosen
// by the host, not by config.
func (b BridgeConfig) Configuration() bridge.Configuration {
	cfg := bridge.Configuration{
		ApplicationCode:       b.ApplicationCode,
		GeofencingEnabled:     b.GeofencingEnabled,
		DefaultMessageStorage: b.DefaultMessageStorage,
	}
	if b.AndroidSenderID != "" {
		cfg.Android = &bridge.AndroidConfig{SenderID: b.AndroidSenderID}
	}
	if len(b.IOSNotificationTypes) > 0 {
		cfg.IOS = &bridge.IOSConfig{NotificationTypes: b.IOSNotificationTypes}
	}
	return cfg
}

type LoggingConfig struct {
	Outputs    []string
	Level      string
	Directory  string
	DebugBuild bool
}

type APNsConfig struct {
	KeyID       string
	TeamID      string
	BundleID    string
	P8KeyPath   string
	Development bool
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	TopicID                string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int

	// RecipientURN limits ingestion to requests addressed to this device's user.
	RecipientURN string

	CorsConfig       middleware.CorsConfig
	Redis            RedisConfig
	FirestoreEnabled bool
	Bridge           BridgeConfig
	Logging          LoggingConfig
	ScriptPath       string
	APNs             APNsConfig

	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// IngestionEnabled reports whether push requests are consumed from Pub/Sub.
func (c *Config) IngestionEnabled() bool {
	return c.SubscriptionID != ""
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}
	if val := os.Getenv("RECIPIENT_URN"); val != "" {
		logger.Debug("Overriding config value", "key", "RECIPIENT_URN", "source", "env")
		cfg.RecipientURN = val
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}
	if val := os.Getenv("FIRESTORE_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.FirestoreEnabled = enabled
	}

	// Bridge Overrides
	if val := os.Getenv("MM_APPLICATION_CODE"); val != "" {
		logger.Debug("Overriding config value", "key", "MM_APPLICATION_CODE", "source", "env")
		cfg.Bridge.ApplicationCode = val
	}
	if val := os.Getenv("MM_PLATFORM"); val != "" {
		logger.Debug("Overriding config value", "key", "MM_PLATFORM", "source", "env")
		cfg.Bridge.Platform = bridge.Platform(strings.ToLower(val))
	}
	if val := os.Getenv("MM_SCRIPT"); val != "" {
		logger.Debug("Overriding config value", "key", "MM_SCRIPT", "source", "env")
		cfg.ScriptPath = val
	}

	// Logging Overrides
	if val := os.Getenv("MM_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("MM_LOG_OUTPUTS"); val != "" {
		cfg.Logging.Outputs = splitList(val)
	}
	if val := os.Getenv("MM_LOG_DIR"); val != "" {
		cfg.Logging.Directory = val
	}

	// APNs Overrides
	if val := os.Getenv("APNS_KEY_ID"); val != "" {
		cfg.APNs.KeyID = val
	}
	if val := os.Getenv("APNS_TEAM_ID"); val != "" {
		cfg.APNs.TeamID = val
	}
	if val := os.Getenv("APNS_BUNDLE_ID"); val != "" {
		cfg.APNs.BundleID = val
	}
	if val := os.Getenv("APNS_P8_KEY_PATH"); val != "" {
		cfg.APNs.P8KeyPath = val
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		cfg.CorsConfig.AllowedOrigins = splitList(corsOrigins)
	}

	// 2. Final Validation
	if cfg.Bridge.ApplicationCode == "" {
		return nil, fmt.Errorf("bridge.application_code is required (set via YAML or MM_APPLICATION_CODE env var)")
	}
	switch cfg.Bridge.Platform {
	case "":
		cfg.Bridge.Platform = bridge.PlatformAndroid
	case bridge.PlatformAndroid, bridge.PlatformIOS:
	default:
		return nil, fmt.Errorf("bridge.platform must be android or ios, got %q", cfg.Bridge.Platform)
	}
	if cfg.ProjectID == "" && (cfg.IngestionEnabled() || cfg.FirestoreEnabled) {
		return nil, fmt.Errorf("project_id is required for Pub/Sub ingestion or Firestore (set via YAML or PROJECT_ID env var)")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}

func splitList(raw string) []string {
	var clean []string
	for _, o := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	return clean
}
