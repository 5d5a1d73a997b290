// Package apperr defines the failure classes a polling tick can end with.
package apperr

import "fmt"

// FetchError is a network, HTTP or payload failure while reading the issue source.
type FetchError struct {
	Op  string
	URL string
	Err error
}

func (e *FetchError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("fetch %s (%s): %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PersistenceError is a watermark read or write failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("watermark %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NotifyError is a webhook post that still failed after its retries.
type NotifyError struct {
	Channel string
	Err     error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Channel, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }

// RenderError marks malformed issue data. It is never coerced into an empty value.
type RenderError struct {
	IssueID string
	Field   string
	Err     error
}

func (e *RenderError) Error() string {
	if e.IssueID != "" {
		return fmt.Sprintf("render issue %s: field %q: %v", e.IssueID, e.Field, e.Err)
	}
	return fmt.Sprintf("render: field %q: %v", e.Field, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

func Fetch(op, url string, err error) error {
	if err == nil {
		return nil
	}
	return &FetchError{Op: op, URL: url, Err: err}
}

func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

func Notify(channel string, err error) error {
	if err == nil {
		return nil
	}
	return &NotifyError{Channel: channel, Err: err}
}

func Render(issueID, field string, err error) error {
	if err == nil {
		return nil
	}
	return &RenderError{IssueID: issueID, Field: field, Err: err}
}
