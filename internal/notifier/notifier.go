package notifier

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/noahxzhu/redmine-notify/internal/apperr"
	"github.com/noahxzhu/redmine-notify/internal/logger"
	"github.com/noahxzhu/redmine-notify/internal/model"
	"github.com/noahxzhu/redmine-notify/internal/render"
)

// Poster delivers text to a webhook URL.
type Poster interface {
	Post(ctx context.Context, webhookURL, text string) error
	PostOnce(ctx context.Context, webhookURL, text string) error
}

// Summarizer renders the summary line of an issue.
type Summarizer interface {
	Summary(ctx context.Context, issue model.Issue) (string, error)
}

type Channels struct {
	Each  string
	Daily string
	Error string
}

type Notifier struct {
	poster   Poster
	renderer Summarizer
	channels Channels
	log      zerolog.Logger
}

func New(poster Poster, renderer Summarizer, channels Channels, log zerolog.Logger) *Notifier {
	if channels.Error == "" {
		channels.Error = channels.Each
	}
	return &Notifier{
		poster:   poster,
		renderer: renderer,
		channels: channels,
		log:      logger.Component(log, "notifier"),
	}
}

// NotifyEachUpdate posts the newest issue to the each-update channel.
func (n *Notifier) NotifyEachUpdate(ctx context.Context, issue model.Issue) error {
	summary, err := n.renderer.Summary(ctx, issue)
	if err != nil {
		return err
	}

	if err := n.poster.Post(ctx, n.channels.Each, render.EachUpdateMessage(issue, summary)); err != nil {
		return apperr.Notify(string(model.ChannelEach), err)
	}
	n.log.Info().Str("issue", issue.ID).Msg("Update notification sent")
	return nil
}

// NotifyDailyDigest posts one block per issue under the daily banner.
func (n *Notifier) NotifyDailyDigest(ctx context.Context, issues []model.Issue, now time.Time) error {
	blocks := make([]string, 0, len(issues))
	for _, issue := range issues {
		summary, err := n.renderer.Summary(ctx, issue)
		if err != nil {
			return err
		}
		blocks = append(blocks, render.IssueBlock(issue, summary))
	}

	if err := n.poster.Post(ctx, n.channels.Daily, render.DailyDigestMessage(blocks, now)); err != nil {
		return apperr.Notify(string(model.ChannelDaily), err)
	}
	n.log.Info().Int("issues", len(issues)).Msg("Daily digest sent")
	return nil
}

// NotifyError reports err on the error channel with one attempt. It never
// fails; delivery problems are only logged.
func (n *Notifier) NotifyError(ctx context.Context, err error) {
	n.log.Error().Err(err).Msg("Tick failed")

	if postErr := n.poster.PostOnce(ctx, n.channels.Error, render.ErrorMessage(err)); postErr != nil {
		n.log.Warn().Err(postErr).Str("channel", string(model.ChannelError)).Msg("Failed to report error")
	}
}
