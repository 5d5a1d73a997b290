// Package render turns issues into the plain text posted to chat webhooks.
package render

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/noahxzhu/redmine-notify/internal/apperr"
	"github.com/noahxzhu/redmine-notify/internal/model"
)

const (
	WrapWidth = 40

	// ContinuationIndent lines up wrapped lines under the value column of an issue block.
	ContinuationIndent = "　　　　　　"

	UpdatePrefix = "【更新】"
	NewPrefix    = "【新規】"
)

var tagPattern = regexp.MustCompile(`<[^>]*?>`)

// NoteFetcher looks up the newest note of one issue from its own feed.
type NoteFetcher interface {
	FetchLatestNote(ctx context.Context, issueID string) (string, bool, error)
}

type Renderer struct {
	notes NoteFetcher
}

// New returns a Renderer. notes may be nil, which disables the feed fallback.
func New(notes NoteFetcher) *Renderer {
	return &Renderer{notes: notes}
}

// Summary picks the first non-empty text out of the latest note, the
// description and the per-issue feed, then sanitizes and wraps it.
// An issue with nothing to say yields an empty summary.
func (r *Renderer) Summary(ctx context.Context, issue model.Issue) (string, error) {
	if strings.TrimSpace(issue.ID) == "" {
		return "", apperr.Render("", "id", errors.New("missing issue id"))
	}

	var content string
	switch {
	case strings.TrimSpace(issue.LatestNote) != "":
		content = UpdatePrefix + issue.LatestNote
	case strings.TrimSpace(issue.Description) != "":
		content = NewPrefix + issue.Description
	case r.notes != nil:
		note, ok, err := r.notes.FetchLatestNote(ctx, issue.ID)
		if err != nil {
			return "", err
		}
		if ok {
			content = note
		}
	}

	return Wrap(Sanitize(content), WrapWidth), nil
}

// StripTags removes anything that looks like an HTML tag.
func StripTags(s string) string {
	return tagPattern.ReplaceAllString(s, "")
}

// Sanitize strips tags and backticks and folds all whitespace, newlines
// included, into single spaces so the text reads as one line.
func Sanitize(s string) string {
	s = StripTags(s)
	s = strings.ReplaceAll(s, "`", "")
	return strings.Join(strings.Fields(s), " ")
}

// Wrap breaks s into lines of at most width runes, preferring spaces and
// splitting words that are longer than a line. Lines are joined with a
// newline followed by ContinuationIndent.
func Wrap(s string, width int) string {
	lines := wrapLines(s, width)
	return strings.Join(lines, "\n"+ContinuationIndent)
}

func wrapLines(s string, width int) []string {
	if width <= 0 {
		return []string{s}
	}

	var (
		lines  []string
		cur    []rune
		curLen int
	)
	flush := func() {
		if curLen > 0 {
			lines = append(lines, string(cur))
		}
		cur, curLen = nil, 0
	}

	for _, word := range strings.Fields(s) {
		w := []rune(word)
		for len(w) > 0 {
			sep := 0
			if curLen > 0 {
				sep = 1
			}
			if curLen+sep+len(w) <= width {
				if sep == 1 {
					cur = append(cur, ' ')
				}
				cur = append(cur, w...)
				curLen += sep + len(w)
				w = nil
				continue
			}
			if len(w) <= width {
				flush()
				continue
			}
			room := width - curLen - sep
			if room <= 0 {
				flush()
				continue
			}
			if sep == 1 {
				cur = append(cur, ' ')
			}
			cur = append(cur, w[:room]...)
			curLen += sep + room
			w = w[room:]
			flush()
		}
	}
	flush()
	return lines
}
