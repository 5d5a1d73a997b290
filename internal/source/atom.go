package source

import (
	"bytes"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed/atom"

	"github.com/noahxzhu/redmine-notify/internal/apperr"
	"github.com/noahxzhu/redmine-notify/internal/model"
	"github.com/noahxzhu/redmine-notify/internal/render"
)

type noteEntry struct {
	author string
	text   string
}

func parseAtom(body []byte) (*atom.Feed, error) {
	fp := &atom.Parser{}
	return fp.Parse(bytes.NewReader(body))
}

// parseAtomSnapshot reads the legacy feed form of the snapshot. Entry titles
// look like "<status>: <title>".
func parseAtomSnapshot(body []byte, loc *time.Location) ([]model.Issue, error) {
	feed, err := parseAtom(body)
	if err != nil {
		return nil, apperr.Fetch("parse snapshot", "", err)
	}

	issues := make([]model.Issue, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		id := issueIDFromEntry(e.ID)
		if id == "" {
			return nil, apperr.Render("", "id", errors.New("entry without id"))
		}
		if e.UpdatedParsed == nil {
			return nil, apperr.Render(id, "updated", errors.New("entry without updated time"))
		}

		status, title := splitStatus(e.Title)
		issue := model.Issue{
			ID:        id,
			Title:     title,
			Status:    status,
			Author:    entryAuthor(e),
			UpdatedAt: e.UpdatedParsed.In(loc),
		}
		if e.Content != nil {
			issue.Description = htmlToText(e.Content.Value)
		} else {
			issue.Description = htmlToText(e.Summary)
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// lastAtomEntry returns the newest note of a per-issue feed, or nil when empty.
func lastAtomEntry(body []byte) (*noteEntry, error) {
	feed, err := parseAtom(body)
	if err != nil {
		return nil, err
	}
	if len(feed.Entries) == 0 {
		return nil, nil
	}
	e := feed.Entries[len(feed.Entries)-1]

	var text string
	if e.Content != nil {
		text = htmlToText(e.Content.Value)
	}
	return &noteEntry{author: entryAuthor(e), text: text}, nil
}

func entryAuthor(e *atom.Entry) string {
	if len(e.Authors) == 0 || e.Authors[0] == nil {
		return ""
	}
	return e.Authors[0].Name
}

// splitStatus cuts the status prefix off a feed title at the first colon.
func splitStatus(title string) (status, rest string) {
	i := strings.Index(title, ":")
	if i < 0 {
		return "", strings.TrimSpace(title)
	}
	return strings.TrimSpace(title[:i]), strings.TrimSpace(title[i+1:])
}

// issueIDFromEntry takes the last path segment of an entry id such as
// https://tracker/issues/123.
func issueIDFromEntry(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	base := path.Base(strings.TrimRight(id, "/"))
	if i := strings.LastIndex(base, ":"); i >= 0 {
		base = base[i+1:]
	}
	return strings.TrimPrefix(base, "#")
}

// htmlToText flattens feed HTML into text, decoding entities on the way.
func htmlToText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return render.StripTags(s)
	}
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, li, div, pre").AppendHtml("\n")
	return strings.TrimSpace(doc.Text())
}
