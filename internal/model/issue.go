package model

import "time"

// WatermarkLayout is the canonical form of a persisted watermark token.
const WatermarkLayout = "2006-01-02T15:04:05.000000-0700"

// UpdatedLayout is how issue timestamps appear in snapshots and messages.
const UpdatedLayout = "2006/01/02 15:04"

// Issue is one row of a polled snapshot. Issues are rebuilt on every tick.
type Issue struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Status      string    `json:"status"`
	Assignee    string    `json:"assignee,omitempty"`
	Author      string    `json:"author,omitempty"`
	Description string    `json:"description,omitempty"`
	LatestNote  string    `json:"latest_note,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}
