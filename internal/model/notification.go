package model

import "time"

type Channel string

const (
	ChannelEach  Channel = "each"
	ChannelDaily Channel = "daily"
	ChannelError Channel = "error"
)

type TickOutcome string

const (
	OutcomeNotified  TickOutcome = "Notified"
	OutcomeUnchanged TickOutcome = "Unchanged"
	OutcomeEmpty     TickOutcome = "Empty"
	OutcomeFailed    TickOutcome = "Failed"
	// OutcomeStopped marks a tick cut short by shutdown.
	OutcomeStopped TickOutcome = "Stopped"
)

// TickResult is the explicit result of one pass of the polling loop. A failed
// tick has already been reported on the error channel when it is returned.
type TickResult struct {
	ID          string      `json:"id"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at"`
	Outcome     TickOutcome `json:"outcome"`
	IssueCount  int         `json:"issue_count"`
	Watermark   string      `json:"watermark,omitempty"`
	DigestSent  bool        `json:"digest_sent"`
	DigestCount int         `json:"digest_count"`
	Error       string      `json:"error,omitempty"`

	Err error `json:"-"`
}

// Failed reports whether the tick hit the failure barrier.
func (r TickResult) Failed() bool {
	return r.Outcome == OutcomeFailed
}
