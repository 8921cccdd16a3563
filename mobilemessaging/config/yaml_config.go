package config

import (
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

type YamlBridgeConfig struct {
	ApplicationCode       string `yaml:"application_code"`
	Platform              string `yaml:"platform"`
	GeofencingEnabled     bool   `yaml:"geofencing_enabled"`
	DefaultMessageStorage bool   `yaml:"default_message_storage"`
	Android               struct {
		SenderID string `yaml:"sender_id"`
	} `yaml:"android"`
	IOS struct {
		NotificationTypes []string `yaml:"notification_types"`
	} `yaml:"ios"`
}

type YamlLoggingConfig struct {
	Outputs    []string `yaml:"outputs"`
	Level      string   `yaml:"level"`
	Directory  string   `yaml:"directory"`
	DebugBuild bool     `yaml:"debug_build"`
}

type YamlAPNsConfig struct {
	KeyID       string `yaml:"key_id"`
	TeamID      string `yaml:"team_id"`
	BundleID    string `yaml:"bundle_id"`
	P8KeyPath   string `yaml:"p8_key_path"`
	Development bool   `yaml:"development"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string            `yaml:"project_id"`
	ListenAddr             string            `yaml:"listen_addr"`
	TopicID                string            `yaml:"topic_id"`
	SubscriptionID         string            `yaml:"subscription_id"`
	SubscriptionDLQTopicID string            `yaml:"subscription_dlq_topic_id"`
	NumPipelineWorkers     int               `yaml:"num_pipeline_workers"`
	RecipientURN           string            `yaml:"recipient_urn"`
	CorsConfig             YamlCorsConfig    `yaml:"cors"`
	RedisConfig            YamlRedisConfig   `yaml:"redis"`
	FirestoreEnabled       bool              `yaml:"firestore_enabled"`
	BridgeConfig           YamlBridgeConfig  `yaml:"bridge"`
	LoggingConfig          YamlLoggingConfig `yaml:"logging"`
	ScriptPath             string            `yaml:"script_path"`
	APNsConfig             YamlAPNsConfig    `yaml:"apns"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		ProjectID:      baseCfg.ProjectID,
		ListenAddr:     baseCfg.ListenAddr,
		TopicID:        baseCfg.TopicID,
		SubscriptionID: baseCfg.SubscriptionID,
		RecipientURN:   baseCfg.RecipientURN,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
		},
		FirestoreEnabled: baseCfg.FirestoreEnabled,
		Bridge: BridgeConfig{
			ApplicationCode:       baseCfg.BridgeConfig.ApplicationCode,
			Platform:              bridge.Platform(baseCfg.BridgeConfig.Platform),
			GeofencingEnabled:     baseCfg.BridgeConfig.GeofencingEnabled,
			DefaultMessageStorage: baseCfg.BridgeConfig.DefaultMessageStorage,
			AndroidSenderID:       baseCfg.BridgeConfig.Android.SenderID,
			IOSNotificationTypes:  baseCfg.BridgeConfig.IOS.NotificationTypes,
		},
		Logging: LoggingConfig{
			Outputs:    baseCfg.LoggingConfig.Outputs,
			Level:      baseCfg.LoggingConfig.Level,
			Directory:  baseCfg.LoggingConfig.Directory,
			DebugBuild: baseCfg.LoggingConfig.DebugBuild,
		},
		ScriptPath: baseCfg.ScriptPath,
		APNs: APNsConfig{
			KeyID:       baseCfg.APNsConfig.KeyID,
			TeamID:      baseCfg.APNsConfig.TeamID,
			BundleID:    baseCfg.APNsConfig.BundleID,
			P8KeyPath:   baseCfg.APNsConfig.P8KeyPath,
			Development: baseCfg.APNsConfig.Development,
		},
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"subscription_id", cfg.SubscriptionID,
		"application_code", cfg.Bridge.ApplicationCode,
	)

	return cfg, nil
}
