package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/quickvocab/internal/config"
	"github.com/zulandar/quickvocab/internal/conversation"
	"github.com/zulandar/quickvocab/internal/digest"
	"github.com/zulandar/quickvocab/internal/store"
	"github.com/zulandar/quickvocab/internal/web"
)

const defaultConfigPath = "quickvocab.yaml"

func addConfigFlag(cmd *cobra.Command, configPath *string) {
	cmd.Flags().StringVarP(configPath, "config", "c", defaultConfigPath, "path to Quick Vocab config file")
}

// loadConfig reads configPath. A missing file at the default path falls back
// to built-in defaults plus environment overrides; an explicit --config must
// exist.
func loadConfig(cmd *cobra.Command, configPath string) (*config.Config, error) {
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
			cfg, err := config.Default()
			if err != nil {
				return nil, fmt.Errorf("load config: %w", err)
			}
			return cfg, nil
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	return st, nil
}

func controllerOptions(cfg *config.Config, model conversation.LanguageModel, st conversation.DocumentStore) conversation.Options {
	return conversation.Options{
		Model:                    model,
		Store:                    st,
		FailureMode:              cfg.Chat.FailureMode,
		ErrorMessage:             cfg.Chat.ErrorMessage,
		RollbackOnPersistFailure: cfg.Chat.RollbackOnPersistFailure,
		HistoryLimit:             cfg.Store.ListLimit,
		RevealInterval:           time.Duration(cfg.Chat.RevealIntervalMS) * time.Millisecond,
		ThinkingText:             cfg.Chat.ThinkingText,
	}
}

func controllerFactory(cfg *config.Config, model conversation.LanguageModel, st conversation.DocumentStore) web.ControllerFactory {
	return func() (*conversation.Controller, error) {
		return conversation.New(controllerOptions(cfg, model, st))
	}
}

// digestNotifiers builds a notifier for every configured webhook.
func digestNotifiers(cfg config.DigestConfig) ([]digest.Notifier, error) {
	var notifiers []digest.Notifier
	if cfg.SlackWebhookURL != "" {
		n, err := digest.NewSlack(digest.SlackOpts{WebhookURL: cfg.SlackWebhookURL})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}
	if cfg.DiscordWebhookURL != "" {
		n, err := digest.NewDiscord(digest.DiscordOpts{WebhookURL: cfg.DiscordWebhookURL})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}
	return notifiers, nil
}

func newDigestScheduler(cfg *config.Config, lister digest.HistoryLister) (*digest.Scheduler, error) {
	notifiers, err := digestNotifiers(cfg.Digest)
	if err != nil {
		return nil, err
	}
	if len(notifiers) == 0 {
		return nil, fmt.Errorf("no digest webhook configured (set digest.slack_webhook_url or digest.discord_webhook_url)")
	}
	return digest.NewScheduler(digest.SchedulerOpts{
		History:   lister,
		Notifiers: notifiers,
		Schedule:  cfg.Digest.Schedule,
		Lookback:  time.Duration(cfg.Digest.LookbackHours) * time.Hour,
	})
}

// signalContext returns a context that is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(cmd.Context())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
