package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noahxzhu/redmine-notify/internal/logger"
	"github.com/noahxzhu/redmine-notify/internal/model"
	"github.com/noahxzhu/redmine-notify/internal/storage"
)

type Source interface {
	FetchSnapshot(ctx context.Context) ([]model.Issue, error)
}

type Notifier interface {
	NotifyEachUpdate(ctx context.Context, issue model.Issue) error
	NotifyDailyDigest(ctx context.Context, issues []model.Issue, now time.Time) error
	NotifyError(ctx context.Context, err error)
}

type Schedule struct {
	IntervalMinutes int
	DailyHour       int
	DailyMinute     int
	DigestDays      int
	Location        *time.Location
}

func (s Schedule) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

type Worker struct {
	source   Source
	store    storage.WatermarkStore
	notifier Notifier
	sched    Schedule
	log      zerolog.Logger

	now        func() time.Time
	updateChan chan struct{}
	onUpdate   func(model.TickResult)

	mu      sync.RWMutex
	last    model.TickResult
	hasLast bool
	// local date of the last delivered digest, 2006-01-02
	lastDigestDay string
}

func NewWorker(source Source, store storage.WatermarkStore, notifier Notifier, sched Schedule, log zerolog.Logger) *Worker {
	if sched.Location == nil {
		sched.Location = time.Local
	}
	if sched.DigestDays <= 0 {
		sched.DigestDays = 3
	}
	return &Worker{
		source:     source,
		store:      store,
		notifier:   notifier,
		sched:      sched,
		log:        logger.Component(log, "worker"),
		now:        time.Now,
		updateChan: make(chan struct{}, 1),
	}
}

// SetClock replaces the wall clock, for tests.
func (w *Worker) SetClock(now func() time.Time) {
	w.now = now
}

// SetOnUpdate registers a callback run after every tick.
func (w *Worker) SetOnUpdate(fn func(model.TickResult)) {
	w.onUpdate = fn
}

// Refresh asks the loop to run a tick now instead of waiting out the interval.
func (w *Worker) Refresh() {
	select {
	case w.updateChan <- struct{}{}:
	default:
		// A tick is already pending.
	}
}

// LastResult returns the result of the most recent tick.
func (w *Worker) LastResult() (model.TickResult, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.last, w.hasLast
}

// Start runs ticks until ctx is done, pausing one interval after each tick
// however long the tick took. A failed tick never stops the loop.
func (w *Worker) Start(ctx context.Context) {
	interval := w.sched.Interval()
	w.log.Info().Dur("interval", interval).Msg("Worker started")

	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		w.Tick(ctx)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(interval)

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-w.updateChan:
			w.log.Info().Msg("Worker received refresh signal")
		case <-timer.C:
		}
	}
}

// Tick runs one fetch, compare, notify pass behind a failure barrier. Any
// error, or panic, is reported on the error channel and returned in the
// result instead of propagating. Errors after ctx is done only mark the tick
// stopped.
func (w *Worker) Tick(ctx context.Context) model.TickResult {
	res := model.TickResult{
		ID:        uuid.NewString(),
		StartedAt: w.now(),
	}
	log := w.log.With().Str("tick_id", res.ID).Logger()

	if err := w.safeRun(ctx, &res, log); err != nil {
		res.Err = err
		res.Error = err.Error()
		if ctx.Err() != nil {
			res.Outcome = model.OutcomeStopped
		} else {
			res.Outcome = model.OutcomeFailed
			w.notifier.NotifyError(ctx, err)
		}
	}
	res.FinishedAt = w.now()

	log.Info().
		Str("outcome", string(res.Outcome)).
		Int("issues", res.IssueCount).
		Bool("digest", res.DigestSent).
		Dur("took", res.FinishedAt.Sub(res.StartedAt)).
		Msg("Tick finished")

	w.mu.Lock()
	w.last = res
	w.hasLast = true
	w.mu.Unlock()

	if w.onUpdate != nil {
		w.onUpdate(res)
	}
	return res
}

func (w *Worker) safeRun(ctx context.Context, res *model.TickResult, log zerolog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during tick: %v", r)
		}
	}()
	return w.run(ctx, res, log)
}

func (w *Worker) run(ctx context.Context, res *model.TickResult, log zerolog.Logger) error {
	issues, err := w.source.FetchSnapshot(ctx)
	if err != nil {
		return err
	}
	res.IssueCount = len(issues)

	if len(issues) == 0 {
		// Treated as a transient upstream condition, not an error.
		res.Outcome = model.OutcomeEmpty
		log.Warn().Msg("Snapshot is empty, skipping")
		return nil
	}

	newest := issues[0]
	candidate := CanonicalWatermark(newest, w.sched.Location)

	prev, ok, err := w.store.Read(ctx)
	if err != nil {
		return err
	}
	res.Watermark = prev

	if ok && prev == candidate {
		res.Outcome = model.OutcomeUnchanged
		log.Debug().Str("watermark", prev).Msg("No update, skip")
	} else {
		// The watermark only moves once the notification went out.
		if err := w.notifier.NotifyEachUpdate(ctx, newest); err != nil {
			return err
		}
		if err := w.store.Write(ctx, candidate); err != nil {
			return err
		}
		res.Outcome = model.OutcomeNotified
		res.Watermark = candidate
		log.Info().Str("issue", newest.ID).Str("watermark", candidate).Msg("Update detected")
	}

	local := res.StartedAt.In(w.sched.Location)
	if !InDailyWindow(local, w.sched.DailyHour, w.sched.DailyMinute, w.sched.IntervalMinutes) {
		return nil
	}
	day := local.Format(time.DateOnly)
	if w.digestDay() == day {
		// A refresh can land a second tick in the same window.
		log.Debug().Str("day", day).Msg("Daily digest already sent")
		return nil
	}

	recent := FilterRecent(issues, local, w.sched.DigestDays)
	if err := w.notifier.NotifyDailyDigest(ctx, recent, local); err != nil {
		return err
	}
	w.mu.Lock()
	w.lastDigestDay = day
	w.mu.Unlock()
	res.DigestSent = true
	res.DigestCount = len(recent)
	return nil
}

func (w *Worker) digestDay() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastDigestDay
}
