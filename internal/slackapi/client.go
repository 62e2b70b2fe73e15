// Package slackapi wraps the Slack Web API calls parrot makes.
package slackapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/slack-go/slack"

	"github.com/dohr-michael/parrot/internal/config"
)

// ErrNotInChannel is returned when the bot was not invited to the target channel.
var ErrNotInChannel = errors.New("bot is not in the channel, please invite the bot to the channel")

// ErrNotConfigured is returned when a call needs a setting that is empty.
var ErrNotConfigured = errors.New("slack not configured")

// Client posts messages, webhooks and files to Slack.
type Client struct {
	api           *slack.Client
	uploadChannel string
	webhookURL    string
}

// Option customises the underlying slack client.
type Option = slack.Option

// New creates a Client from the Slack config. opts are passed to slack.New.
func New(cfg config.SlackConfig, opts ...Option) *Client {
	base := []slack.Option{slack.OptionDebug(cfg.Debug)}
	if cfg.AppToken != "" {
		base = append(base, slack.OptionAppLevelToken(cfg.AppToken))
	}
	return &Client{
		api:           slack.New(cfg.BotToken, append(base, opts...)...),
		uploadChannel: cfg.UploadChannel,
		webhookURL:    cfg.WebhookURL,
	}
}

// API exposes the underlying client, used by the Socket Mode listener.
func (c *Client) API() *slack.Client {
	return c.api
}

// PostText posts text to channel, under threadTS when it is not empty.
func (c *Client) PostText(ctx context.Context, channel, threadTS, text string) error {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	if _, _, err := c.api.PostMessageContext(ctx, channel, opts...); err != nil {
		return fmt.Errorf("post message to %s: %w", channel, mapError(err))
	}
	return nil
}

// PostWebhook sends text through the configured incoming webhook.
func (c *Client) PostWebhook(ctx context.Context, text string) error {
	if c.webhookURL == "" {
		return fmt.Errorf("%w: webhook_url is empty", ErrNotConfigured)
	}
	if err := slack.PostWebhookContext(ctx, c.webhookURL, &slack.WebhookMessage{Text: text}); err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	return nil
}

// UploadFile uploads size bytes from r as name into the upload channel
// using the external upload flow.
func (c *Client) UploadFile(ctx context.Context, name string, size int64, r io.Reader) error {
	if c.uploadChannel == "" {
		return fmt.Errorf("%w: upload_channel is empty", ErrNotConfigured)
	}
	if size <= 0 {
		return fmt.Errorf("upload %s: empty file", name)
	}

	_, err := c.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Reader:   r,
		Filename: name,
		FileSize: int(size),
		Title:    name,
		Channel:  c.uploadChannel,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, mapError(err))
	}
	return nil
}

func mapError(err error) error {
	if strings.Contains(err.Error(), "not_in_channel") {
		return ErrNotInChannel
	}
	return err
}
