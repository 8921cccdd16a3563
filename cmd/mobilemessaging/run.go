package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/spf13/cobra"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/native"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-mobilemessaging-bridge/internal/storage/firestore"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/storage/memory"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/mobilemessaging"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/mobilemessaging/config"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const cacheTTL = 24 * time.Hour

func newRunCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bridge host",
		Long: `Start the bridge host.

The in-process device persists messages to memory, or to Firestore when
firestore_enabled is set, optionally behind a Redis cache. Push requests are
consumed from Pub/Sub when a subscription is configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runHost(ctx, rootOpts)
		},
	}
}

func runHost(ctx context.Context, rootOpts *rootOptions) error {
	cfg, err := loadConfig(rootOpts, bootstrapLogger())
	if err != nil {
		return fmt.Errorf("config failed: %w", err)
	}

	logs, err := newLogs(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logging setup failed: %w", err)
	}
	defer logs.Close()
	logger := logs.Slog().With("service", "go-mobilemessaging-bridge")
	slog.SetDefault(logger)

	// --- Message Store (Decorated) ---
	var store bridge.MessageStore = memory.NewMessageStore()
	if cfg.FirestoreEnabled {
		fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return fmt.Errorf("firestore client failed: %w", err)
		}
		defer fsClient.Close()
		store = fsStore.NewMessageStore(fsClient, cfg.Bridge.ApplicationCode)
		logger.Info("MessageStore initialized", "type", "firestore")
	}
	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis Cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()
		store = cache.NewCachedMessageStore(store, redisClient, cacheTTL, cfg.Bridge.ApplicationCode, logger)
		logger.Info("MessageStore upgraded", "type", "redis_cached")
	}

	device, err := native.New(native.Options{Platform: cfg.Bridge.Platform, DefaultStore: store}, logger)
	if err != nil {
		return err
	}

	// --- Consumer (optional) ---
	var consumer messagepipeline.MessageConsumer
	if cfg.IngestionEnabled() {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub client failed: %w", err)
		}
		defer psClient.Close()
		consumer, err = newIngestionConsumer(ctx, cfg, psClient, logger)
		if err != nil {
			return err
		}
	}

	host, err := mobilemessaging.NewHost(cfg, device, consumer, logs, logger)
	if err != nil {
		return fmt.Errorf("host creation failed: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting host...", "addr", cfg.ListenAddr)
		errCh <- host.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("host stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down host...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return host.Shutdown(shutdownCtx)
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.SubscriptionID, "subscriptions")
	subConfig := &pubsubpb.Subscription{
		Name:               sub,
		Topic:              convertPubsub(cfg.ProjectID, cfg.TopicID, "topics"),
		AckDeadlineSeconds: 10,
	}
	if cfg.SubscriptionDLQTopicID != "" {
		subConfig.DeadLetterPolicy = &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics"),
			MaxDeliveryAttempts: 5,
		}
	}

	if cfg.TopicID != "" {
		logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
		_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
		if err != nil {
			if status.Code(err) != codes.AlreadyExists {
				return nil, fmt.Errorf("could not create sub %s: %w", sub, err)
			}
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		}
	}

	consumerCfg := cfg.PubsubConsumerConfig
	if consumerCfg == nil {
		consumerCfg = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}
	return messagepipeline.NewGooglePubsubConsumer(consumerCfg, psClient, logger)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
