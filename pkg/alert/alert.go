// Package alert delivers job status notifications to a Discord-style
// webhook. Delivery is best effort: a failed notification is logged and
// never fails the caller.
package alert

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dripworks/dripper/pkg/httpclient"
	"github.com/dripworks/dripper/pkg/logger"
	"github.com/dripworks/dripper/pkg/logger/slogx"
)

const (
	colorSuccess = 5832585
	colorFailure = 16734296

	// postPause throttles consecutive webhook posts.
	postPause = 1 * time.Second
)

type Config struct {
	Disabled   bool   `mapstructure:"disabled"`
	WebhookURL string `mapstructure:"webhook_url"`

	// Mention is prepended to failure notifications, e.g. a role mention.
	Mention string `mapstructure:"mention"`
}

type Client struct {
	httpClient *httpclient.Client
	config     Config
}

func New(config Config) (*Client, error) {
	if config.Disabled {
		return &Client{config: config}, nil
	}
	if config.WebhookURL == "" {
		return nil, errors.New("alert.webhook_url config is required if alerting is enabled")
	}
	httpClient, err := httpclient.New(config.WebhookURL)
	if err != nil {
		return nil, errors.Wrap(err, "can't create http client")
	}
	return &Client{
		httpClient: httpClient,
		config:     config,
	}, nil
}

type embed struct {
	Title       string `json:"title"`
	Color       int    `json:"color"`
	Description string `json:"description"`
}

type payload struct {
	Content     string  `json:"content"`
	Embeds      []embed `json:"embeds"`
	Attachments []any   `json:"attachments"`
}

// Pass posts a success notification for the given job.
func (c *Client) Pass(ctx context.Context, job, msg string) {
	c.post(ctx, payload{
		Embeds:      []embed{{Title: job + " - PASSED", Color: colorSuccess, Description: msg}},
		Attachments: []any{},
	})
}

// Fail posts a failure notification for the given job, mentioning the
// configured role.
func (c *Client) Fail(ctx context.Context, job, msg string) {
	c.post(ctx, payload{
		Content:     c.config.Mention,
		Embeds:      []embed{{Title: job + " - FAILED", Color: colorFailure, Description: msg}},
		Attachments: []any{},
	})
}

func (c *Client) post(ctx context.Context, p payload) {
	if c.config.Disabled {
		return
	}
	body, err := json.Marshal(p)
	if err != nil {
		logger.WarnContext(ctx, "can't marshal alert payload", slogx.Error(errors.WithStack(err)))
		return
	}
	resp, err := c.httpClient.Post(ctx, "", httpclient.RequestOptions{Body: body})
	if err != nil {
		logger.WarnContext(ctx, "failed to deliver alert", slogx.Error(err))
		return
	}
	if err := resp.StatusError(); err != nil {
		logger.WarnContext(ctx, "alert webhook rejected notification", slogx.Error(err), slog.Any("payload", p))
		return
	}
	time.Sleep(postPause)
}
