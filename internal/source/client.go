// Package source reads the issue snapshot and per-issue feeds from the tracker.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noahxzhu/redmine-notify/internal/apperr"
	"github.com/noahxzhu/redmine-notify/internal/logger"
	"github.com/noahxzhu/redmine-notify/internal/model"
	"github.com/noahxzhu/redmine-notify/internal/render"
	"github.com/noahxzhu/redmine-notify/internal/retry"
)

const (
	FormatCSV  = "csv"
	FormatAtom = "atom"

	EncodingUTF8     = "utf-8"
	EncodingShiftJIS = "shift_jis"

	maxErrorBody = 512
)

type Options struct {
	SnapshotURL  string
	Format       string
	Encoding     string
	FeedBaseURL  string
	FeedKey      string
	Location     *time.Location
	SnapshotPath string
	Retry        retry.Policy
	HTTPClient   *http.Client
	Logger       zerolog.Logger
}

type Client struct {
	opts Options
	http *http.Client
	log  zerolog.Logger
}

func NewClient(opts Options) *Client {
	if opts.Format == "" {
		opts.Format = FormatCSV
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = retry.Default()
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		opts: opts,
		http: hc,
		log:  logger.Component(opts.Logger, "source"),
	}
}

// FetchSnapshot downloads the snapshot and returns its issues newest first.
func (c *Client) FetchSnapshot(ctx context.Context) ([]model.Issue, error) {
	body, err := c.get(ctx, "snapshot", c.opts.SnapshotURL)
	if err != nil {
		return nil, err
	}

	c.saveSnapshot(body)

	var issues []model.Issue
	switch c.opts.Format {
	case FormatAtom:
		issues, err = parseAtomSnapshot(body, c.opts.Location)
	default:
		issues, err = parseCSV(body, c.opts.Encoding, c.opts.Location)
	}
	if err != nil {
		return nil, err
	}

	// Stable so equal minutes keep the tracker's own order.
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].UpdatedAt.After(issues[j].UpdatedAt)
	})

	c.log.Debug().Int("issues", len(issues)).Msg("Snapshot fetched")
	return issues, nil
}

// FetchLatestNote returns the newest entry of the issue's own feed rendered
// as an update line. ok is false when the feed has no entries or no feed is
// configured.
func (c *Client) FetchLatestNote(ctx context.Context, issueID string) (string, bool, error) {
	if c.opts.FeedBaseURL == "" {
		return "", false, nil
	}

	feedURL := c.issueFeedURL(issueID)
	body, err := c.get(ctx, "latest note", feedURL)
	if err != nil {
		return "", false, err
	}

	entry, err := lastAtomEntry(body)
	if err != nil {
		return "", false, apperr.Fetch("latest note", redact(feedURL), err)
	}
	if entry == nil {
		return "", false, nil
	}

	return fmt.Sprintf("%s【%s】 %s", render.UpdatePrefix, entry.author, entry.text), true, nil
}

func (c *Client) issueFeedURL(issueID string) string {
	return c.opts.FeedBaseURL + "issues/" + url.PathEscape(issueID) + ".atom?key=" + url.QueryEscape(c.opts.FeedKey)
}

// get performs a GET with the retry policy. Only the final failure is returned.
func (c *Client) get(ctx context.Context, op, rawURL string) ([]byte, error) {
	var body []byte
	err := retry.Do(ctx, c.opts.Retry, func() error {
		b, err := c.getOnce(ctx, rawURL)
		if err != nil {
			return err
		}
		body = b
		return nil
	}, func(attempt uint, err error) {
		c.log.Warn().
			Err(err).
			Str("op", op).
			Str("url", redact(rawURL)).
			Uint("attempt", attempt).
			Uint("max", c.opts.Retry.Attempts).
			Msg("Fetch attempt failed")
	})
	if err != nil {
		return nil, apperr.Fetch(op, redact(rawURL), err)
	}
	return body, nil
}

func (c *Client) getOnce(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("unexpected status %s, body %s", resp.Status, strings.TrimSpace(string(b)))
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return b, nil
}

// saveSnapshot keeps the raw payload on disk for inspection. Failures are only logged.
func (c *Client) saveSnapshot(body []byte) {
	if c.opts.SnapshotPath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.opts.SnapshotPath), 0o755); err != nil {
		c.log.Warn().Err(err).Str("path", c.opts.SnapshotPath).Msg("Failed to save snapshot")
		return
	}
	if err := os.WriteFile(c.opts.SnapshotPath, body, 0o644); err != nil {
		c.log.Warn().Err(err).Str("path", c.opts.SnapshotPath).Msg("Failed to save snapshot")
	}
}

// redact drops the query string, which carries the access key.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	return u.String()
}
