package main

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// BroadcastResult aggregates the outcome of one fan-out.
type BroadcastResult struct {
	Sent   int
	Failed int
}

// Dispatcher fans a payload out to many recipients with a bounded number of
// in-flight sends. A failed send is counted, never aborts the batch.
type Dispatcher struct {
	workers int
	delay   time.Duration
	log     *slog.Logger
}

// NewDispatcher creates a Dispatcher with the given concurrency ceiling and
// optional per-send pacing delay.
func NewDispatcher(workers int, delay time.Duration, log *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{workers: workers, delay: delay, log: log}
}

// Broadcast invokes send once per recipient. Sends already in flight when ctx
// is cancelled finish on their own; recipients not yet dispatched are counted
// as failed.
func (d *Dispatcher) Broadcast(ctx context.Context, recipients []User, send func(ctx context.Context, u User) error) BroadcastResult {
	var sent, failed atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(d.workers)

	for _, u := range recipients {
		if ctx.Err() != nil {
			failed.Add(1)
			continue
		}
		u := u
		g.Go(func() error {
			if d.delay > 0 {
				time.Sleep(d.delay)
			}
			if err := send(ctx, u); err != nil {
				failed.Add(1)
				d.log.Warn("broadcast: send failed",
					slog.Int("user_id", u.ID), errAttr(err))
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	g.Wait()

	return BroadcastResult{Sent: int(sent.Load()), Failed: int(failed.Load())}
}
