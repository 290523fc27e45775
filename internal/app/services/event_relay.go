package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/faeln1/go-contact-groups/internal/app/repositories"
)

// RelayOptions configures an EventRelay.
type RelayOptions struct {
	// Cursor names the persisted position; relays with different names progress independently.
	Cursor    string
	BatchSize int
	Interval  time.Duration
	// Wake, when set, triggers an immediate pass (PostgreSQL LISTEN).
	Wake <-chan struct{}
}

// EventRelay forwards committed notification events to a dispatcher, in sequence
// order, at least once. The cursor only advances after a successful dispatch.
type EventRelay struct {
	store      repositories.Store
	dispatcher EventsDispatcher
	opts       RelayOptions
	log        waLog.Logger
}

func NewEventRelay(store repositories.Store, dispatcher EventsDispatcher, opts RelayOptions, log waLog.Logger) *EventRelay {
	if opts.Cursor == "" {
		opts.Cursor = "webhook"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if log == nil {
		log = waLog.Noop
	}
	return &EventRelay{store: store, dispatcher: dispatcher, opts: opts, log: log}
}

// RunOnce dispatches at most one batch and returns how many events were sent.
func (r *EventRelay) RunOnce(ctx context.Context) (int, error) {
	after, err := r.store.GetCursor(ctx, r.opts.Cursor)
	if err != nil {
		return 0, fmt.Errorf("load cursor: %w", err)
	}
	batch, err := r.store.ListEventsAfter(ctx, after, r.opts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := r.dispatcher.Dispatch(ctx, batch); err != nil {
		return 0, fmt.Errorf("dispatch events after %d: %w", after, err)
	}
	last := batch[len(batch)-1].Seq
	if err := r.store.SaveCursor(ctx, r.opts.Cursor, last); err != nil {
		return 0, fmt.Errorf("save cursor: %w", err)
	}
	r.log.Debugf("relay %s forwarded %d event(s) up to seq %d", r.opts.Cursor, len(batch), last)
	return len(batch), nil
}

// Run drains the backlog, then waits for the next tick or wake-up, until ctx ends.
func (r *EventRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()
	wake := r.opts.Wake
	r.log.Infof("event relay %s started (interval %s)", r.opts.Cursor, r.opts.Interval)
	for {
		r.drain(ctx)
		select {
		case <-ctx.Done():
			r.log.Infof("event relay %s stopped", r.opts.Cursor)
			return nil
		case <-ticker.C:
		case _, ok := <-wake:
			if !ok {
				r.log.Warnf("event relay %s lost its wake-up channel, polling only", r.opts.Cursor)
				wake = nil
			}
		}
	}
}

func (r *EventRelay) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := r.RunOnce(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				r.log.Warnf("event relay %s: %v", r.opts.Cursor, err)
			}
			return
		}
		if n < r.opts.BatchSize {
			return
		}
	}
}
