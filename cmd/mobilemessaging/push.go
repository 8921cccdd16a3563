package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	firebase "firebase.google.com/go/v4"
	"github.com/spf13/cobra"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/platform"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/platform/apns"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/internal/platform/fcm"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/mobilemessaging/config"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

type pushOptions struct {
	*rootOptions
	Transport string
	Tokens    []string
	Title     string
	Body      string
	Silent    bool
	Data      map[string]string
}

func newPushCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &pushOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Send one message to device tokens",
		Long: `Send one message to device tokens through FCM or APNs.

Example:
  mobilemessaging push --transport fcm --token abc --title Hi --body Hello
  mobilemessaging push --transport apns --token 0f3c... --silent --data messageId=m-1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPush(cmd.Context(), opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Transport, "transport", "fcm", "push transport: fcm or apns")
	cmd.Flags().StringSliceVar(&opts.Tokens, "token", nil, "device token (repeatable)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "notification title")
	cmd.Flags().StringVar(&opts.Body, "body", "", "notification body")
	cmd.Flags().BoolVar(&opts.Silent, "silent", false, "send a data only message")
	cmd.Flags().StringToStringVar(&opts.Data, "data", nil, "custom payload entries key=value")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func runPush(ctx context.Context, opts *pushOptions, cmd *cobra.Command) error {
	logger := bootstrapLogger()
	cfg, err := loadConfig(opts.rootOptions, logger)
	if err != nil {
		return fmt.Errorf("config failed: %w", err)
	}

	sender, err := newSender(ctx, opts.Transport, cfg, logger)
	if err != nil {
		return err
	}

	msg := bridge.Message{Title: opts.Title, Body: opts.Body, Silent: opts.Silent}
	msg.CustomPayload = platform.MessageFromData(&msg, opts.Data)

	receipt, invalid, err := sender.Send(ctx, opts.Tokens, msg)
	if err != nil {
		return fmt.Errorf("push failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent: %s\n", receipt)
	for _, token := range invalid {
		fmt.Fprintf(cmd.OutOrStdout(), "invalid token: %s\n", token)
	}
	return nil
}

func newSender(ctx context.Context, transport string, cfg *config.Config, logger *slog.Logger) (platform.Sender, error) {
	switch transport {
	case "fcm":
		fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
		}
		client, err := fbApp.Messaging(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create fcm messaging client: %w", err)
		}
		return fcm.NewSender(client, logger), nil
	case "apns":
		key, err := os.ReadFile(cfg.APNs.P8KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read apns key: %w", err)
		}
		return apns.NewSender(apns.Config{
			KeyID:        cfg.APNs.KeyID,
			TeamID:       cfg.APNs.TeamID,
			BundleID:     cfg.APNs.BundleID,
			P8KeyContent: string(key),
			Development:  cfg.APNs.Development,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown transport %q: want fcm or apns", transport)
	}
}
