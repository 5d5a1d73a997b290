package source

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"github.com/noahxzhu/redmine-notify/internal/apperr"
	"github.com/noahxzhu/redmine-notify/internal/model"
)

// Column headers of the tracker's CSV export.
const (
	ColID          = "#"
	ColTitle       = "題名"
	ColStatus      = "ステータス"
	ColAssignee    = "担当者"
	ColAuthor      = "作成者"
	ColDescription = "説明"
	ColUpdated     = "更新日"
	ColLatestNote  = "最新の注記"
)

var requiredColumns = []string{ColID, ColTitle, ColStatus, ColAssignee, ColDescription, ColUpdated}

var updatedLayouts = []string{model.UpdatedLayout, "2006/01/02 15:04:05", "2006-01-02 15:04"}

func parseCSV(body []byte, encoding string, loc *time.Location) ([]model.Issue, error) {
	var r io.Reader = bytes.NewReader(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	if encoding == EncodingShiftJIS {
		r = transform.NewReader(r, japanese.ShiftJIS.NewDecoder())
	}

	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, apperr.Fetch("parse snapshot", "", fmt.Errorf("read header: %w", err))
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		cols[h] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, apperr.Fetch("parse snapshot", "", fmt.Errorf("missing column %q", name))
		}
	}
	noteIdx, hasNote := cols[ColLatestNote]

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var issues []model.Issue
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperr.Fetch("parse snapshot", "", err)
		}

		id := strings.TrimSpace(field(row, ColID))
		if id == "" {
			return nil, apperr.Render("", ColID, errors.New("empty issue id"))
		}
		updated, err := parseUpdated(field(row, ColUpdated), loc)
		if err != nil {
			return nil, apperr.Render(id, ColUpdated, err)
		}

		issue := model.Issue{
			ID:          id,
			Title:       field(row, ColTitle),
			Status:      field(row, ColStatus),
			Assignee:    field(row, ColAssignee),
			Author:      field(row, ColAuthor),
			Description: field(row, ColDescription),
			UpdatedAt:   updated,
		}
		if hasNote && noteIdx < len(row) {
			issue.LatestNote = row[noteIdx]
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

func parseUpdated(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	for _, layout := range updatedLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", v)
}
