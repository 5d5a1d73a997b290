package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noahxzhu/redmine-notify/internal/apperr"
	"github.com/noahxzhu/redmine-notify/internal/model"
	"github.com/noahxzhu/redmine-notify/internal/render"
	"github.com/noahxzhu/redmine-notify/internal/retry"
	"github.com/noahxzhu/redmine-notify/internal/webhook"
)

type post struct {
	url  string
	text string
	once bool
}

type fakePoster struct {
	posts []post
	err   error
}

func (f *fakePoster) Post(_ context.Context, url, text string) error {
	f.posts = append(f.posts, post{url: url, text: text})
	return f.err
}

func (f *fakePoster) PostOnce(_ context.Context, url, text string) error {
	f.posts = append(f.posts, post{url: url, text: text, once: true})
	return f.err
}

var channels = Channels{Each: "https://hooks/each", Daily: "https://hooks/daily", Error: "https://hooks/error"}

var jst = time.FixedZone("JST", 9*60*60)

func issue(id string, updated time.Time) model.Issue {
	return model.Issue{ID: id, Title: "t" + id, Status: "新規", Description: "desc " + id, UpdatedAt: updated}
}

func TestNotifyEachUpdate(t *testing.T) {
	p := &fakePoster{}
	n := New(p, render.New(nil), channels, zerolog.Nop())

	err := n.NotifyEachUpdate(context.Background(), issue("5", time.Date(2024, 1, 2, 3, 4, 0, 0, jst)))
	require.NoError(t, err)

	require.Len(t, p.posts, 1)
	assert.Equal(t, channels.Each, p.posts[0].url)
	assert.False(t, p.posts[0].once)
	assert.True(t, strings.HasPrefix(p.posts[0].text, render.EachBanner))
	assert.Contains(t, p.posts[0].text, "【新規】desc 5")
}

func TestNotifyEachUpdateWrapsPostFailure(t *testing.T) {
	p := &fakePoster{err: errors.New("500")}
	n := New(p, render.New(nil), channels, zerolog.Nop())

	err := n.NotifyEachUpdate(context.Background(), issue("5", time.Now()))

	var ne *apperr.NotifyError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, "each", ne.Channel)
}

func TestNotifyDailyDigest(t *testing.T) {
	p := &fakePoster{}
	n := New(p, render.New(nil), channels, zerolog.Nop())
	now := time.Date(2024, 1, 5, 9, 1, 0, 0, jst)

	err := n.NotifyDailyDigest(context.Background(), []model.Issue{
		issue("1", now.Add(-time.Hour)),
		issue("2", now.Add(-24*time.Hour)),
	}, now)
	require.NoError(t, err)

	require.Len(t, p.posts, 1)
	text := p.posts[0].text
	assert.Equal(t, channels.Daily, p.posts[0].url)
	assert.True(t, strings.HasPrefix(text, render.DailyBanner))
	assert.Contains(t, text, "`1`")
	assert.Contains(t, text, "`2`")
	assert.Equal(t, 2, strings.Count(text, strings.Repeat("=", 60)))
	assert.True(t, strings.HasSuffix(text, "`更新時間:2024-01-05T09:01:00.000000+0900`"))
}

func TestNotifyDailyDigestRenderError(t *testing.T) {
	p := &fakePoster{}
	n := New(p, render.New(nil), channels, zerolog.Nop())

	err := n.NotifyDailyDigest(context.Background(), []model.Issue{{Title: "no id"}}, time.Now())

	var re *apperr.RenderError
	assert.True(t, errors.As(err, &re))
	assert.Empty(t, p.posts)
}

func TestNotifyErrorSwallowsFailure(t *testing.T) {
	p := &fakePoster{err: errors.New("unreachable")}
	n := New(p, render.New(nil), channels, zerolog.Nop())

	assert.NotPanics(t, func() {
		n.NotifyError(context.Background(), errors.New("boom"))
	})

	require.Len(t, p.posts, 1)
	assert.True(t, p.posts[0].once)
	assert.Equal(t, channels.Error, p.posts[0].url)
	assert.Equal(t, "*ERROR OCCURRED!!*```boom```", p.posts[0].text)
}

func TestErrorChannelDefaultsToEach(t *testing.T) {
	p := &fakePoster{}
	n := New(p, render.New(nil), Channels{Each: "each", Daily: "daily"}, zerolog.Nop())

	n.NotifyError(context.Background(), errors.New("x"))

	require.Len(t, p.posts, 1)
	assert.Equal(t, "each", p.posts[0].url)
}

func TestNotifyEachUpdateErrorOmitsWebhookSecret(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	eachURL := dead.URL + "/services/T000/B000/SECRETTOKEN"
	dead.Close()

	var reported string
	errSink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhook.Payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		reported = p.Text
	}))
	defer errSink.Close()

	hook := webhook.NewClient(webhook.Options{Retry: retry.Once(), RatePerSec: 1000, Logger: zerolog.Nop()})
	n := New(hook, render.New(nil), Channels{Each: eachURL, Daily: eachURL, Error: errSink.URL}, zerolog.Nop())

	err := n.NotifyEachUpdate(context.Background(), issue("5", time.Now()))
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRETTOKEN")

	n.NotifyError(context.Background(), err)
	require.NotEmpty(t, reported)
	assert.NotContains(t, reported, "SECRETTOKEN")
}
