package digest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/slack-go/slack"
)

// colorInfo is the accent color of digest attachments and embeds.
const colorInfo = "#3b6ef5"

// Notifier delivers a formatted digest.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, f Formatted) error
}

// SlackNotifier posts digests to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
}

// SlackOpts holds parameters for creating a SlackNotifier.
type SlackOpts struct {
	WebhookURL string
	HTTPClient *http.Client // defaults to http.DefaultClient
}

// NewSlack creates a SlackNotifier.
func NewSlack(opts SlackOpts) (*SlackNotifier, error) {
	if opts.WebhookURL == "" {
		return nil, fmt.Errorf("digest: slack: webhook url is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &SlackNotifier{webhookURL: opts.WebhookURL, httpClient: hc}, nil
}

func (s *SlackNotifier) Name() string { return "slack" }

// Notify posts f as a single colored attachment.
func (s *SlackNotifier) Notify(ctx context.Context, f Formatted) error {
	msg := &slack.WebhookMessage{
		Text: f.Title,
		Attachments: []slack.Attachment{{
			Color: colorInfo,
			Title: f.Title,
			Text:  f.Body,
		}},
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.httpClient, msg); err != nil {
		return fmt.Errorf("digest: slack: post webhook: %w", err)
	}
	return nil
}

// webhookExecutor abstracts the discordgo webhook call, enabling test mocks.
type webhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier posts digests to a Discord webhook.
type DiscordNotifier struct {
	exec      webhookExecutor
	webhookID string
	token     string
}

// DiscordOpts holds parameters for creating a DiscordNotifier.
type DiscordOpts struct {
	WebhookURL string // https://discord.com/api/webhooks/{id}/{token}
	// For testing: inject a mock executor instead of a real session.
	Executor webhookExecutor
}

// NewDiscord creates a DiscordNotifier.
func NewDiscord(opts DiscordOpts) (*DiscordNotifier, error) {
	id, token, err := parseDiscordWebhook(opts.WebhookURL)
	if err != nil {
		return nil, err
	}
	exec := opts.Executor
	if exec == nil {
		// Webhook execution is authorized by the token in the URL.
		sess, err := discordgo.New("")
		if err != nil {
			return nil, fmt.Errorf("digest: discord: new session: %w", err)
		}
		exec = sess
	}
	return &DiscordNotifier{exec: exec, webhookID: id, token: token}, nil
}

func (d *DiscordNotifier) Name() string { return "discord" }

// Notify posts f as a single embed.
func (d *DiscordNotifier) Notify(ctx context.Context, f Formatted) error {
	params := &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       f.Title,
			Description: f.Body,
			Color:       parseHexColor(colorInfo),
		}},
	}
	if _, err := d.exec.WebhookExecute(d.webhookID, d.token, false, params, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("digest: discord: execute webhook: %w", err)
	}
	return nil
}

// parseDiscordWebhook extracts the id and token from a webhook URL.
func parseDiscordWebhook(raw string) (id, token string, err error) {
	if raw == "" {
		return "", "", fmt.Errorf("digest: discord: webhook url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("digest: discord: parse webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("digest: discord: webhook url %q has no id/token", raw)
}

// parseHexColor converts a hex color string (e.g. "#36a64f") to an int.
func parseHexColor(hex string) int {
	hex = strings.TrimPrefix(hex, "#")
	var color int
	for _, c := range hex {
		color <<= 4
		switch {
		case c >= '0' && c <= '9':
			color |= int(c - '0')
		case c >= 'a' && c <= 'f':
			color |= int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			color |= int(c-'A') + 10
		}
	}
	return color
}
