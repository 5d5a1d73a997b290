// Package webhook posts plain-text messages to chat incoming webhooks.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/noahxzhu/redmine-notify/internal/logger"
	"github.com/noahxzhu/redmine-notify/internal/retry"
)

const maxErrorBody = 512

// Payload is the body accepted by Slack-compatible incoming webhooks.
type Payload struct {
	Text string `json:"text"`
}

type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	retry   retry.Policy
	log     zerolog.Logger
}

type Options struct {
	HTTPClient *http.Client
	Retry      retry.Policy
	// RatePerSec caps outgoing posts across all channels. Zero means one per second.
	RatePerSec float64
	Logger     zerolog.Logger
}

func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	rps := opts.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	p := opts.Retry
	if p.Attempts == 0 {
		p = retry.Default()
	}
	return &Client{
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		retry:   p,
		log:     logger.Component(opts.Logger, "webhook"),
	}
}

// Post sends text to webhookURL, retrying with the client's policy.
func (c *Client) Post(ctx context.Context, webhookURL, text string) error {
	return retry.Do(ctx, c.retry, func() error {
		return c.send(ctx, webhookURL, text)
	}, func(attempt uint, err error) {
		c.log.Warn().Err(err).Uint("attempt", attempt).Uint("max", c.retry.Attempts).Msg("Webhook post failed")
	})
}

// PostOnce sends text with a single attempt.
func (c *Client) PostOnce(ctx context.Context, webhookURL, text string) error {
	return c.send(ctx, webhookURL, text)
}

func (c *Client) send(ctx context.Context, webhookURL, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(Payload{Text: text})
	if err != nil {
		return retry.Permanent(fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(redactURLError(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return redactURLError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("webhook error: status %s, body %s", resp.Status, string(b))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

// redactURLError strips the webhook URL in err down to its origin. The path
// of an incoming webhook is its credential.
func redactURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = origin(ue.URL)
	}
	return err
}

func origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<redacted>"
	}
	return u.Scheme + "://" + u.Host
}
