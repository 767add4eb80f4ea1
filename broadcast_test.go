package main

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func makeRecipients(n int) []User {
	users := make([]User, n)
	for i := range users {
		users[i] = User{ID: i + 1, FirstName: "A", LastName: "B"}
	}
	return users
}

func TestBroadcastCountsSentAndFailed(t *testing.T) {
	d := NewDispatcher(4, 0, testLogger())
	recipients := makeRecipients(50)

	errSend := errors.New("blocked")
	result := d.Broadcast(context.Background(), recipients, func(_ context.Context, u User) error {
		if u.ID%5 == 0 {
			return errSend
		}
		return nil
	})

	if result.Sent != 40 {
		t.Errorf("Sent = %d, want 40", result.Sent)
	}
	if result.Failed != 10 {
		t.Errorf("Failed = %d, want 10", result.Failed)
	}
}

func TestBroadcastSendsExactlyOncePerRecipient(t *testing.T) {
	d := NewDispatcher(8, 0, testLogger())
	recipients := makeRecipients(30)

	var mu sync.Mutex
	attempts := make(map[int]int)
	result := d.Broadcast(context.Background(), recipients, func(_ context.Context, u User) error {
		mu.Lock()
		attempts[u.ID]++
		mu.Unlock()
		return nil
	})

	if result.Sent != len(recipients) {
		t.Errorf("Sent = %d, want %d", result.Sent, len(recipients))
	}
	for _, u := range recipients {
		if attempts[u.ID] != 1 {
			t.Errorf("recipient %d attempted %d times, want 1", u.ID, attempts[u.ID])
		}
	}
}

func TestBroadcastRespectsWorkerLimit(t *testing.T) {
	const workers = 3
	d := NewDispatcher(workers, 0, testLogger())

	var inFlight, peak atomic.Int64
	d.Broadcast(context.Background(), makeRecipients(40), func(_ context.Context, _ User) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		inFlight.Add(-1)
		return nil
	})

	if p := peak.Load(); p > workers {
		t.Errorf("peak in-flight sends = %d, want at most %d", p, workers)
	}
}

func TestBroadcastCancelledContext(t *testing.T) {
	d := NewDispatcher(4, 0, testLogger())
	recipients := makeRecipients(20)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int64
	result := d.Broadcast(ctx, recipients, func(_ context.Context, _ User) error {
		calls.Add(1)
		return nil
	})

	if calls.Load() != 0 {
		t.Errorf("send invoked %d times after cancel, want 0", calls.Load())
	}
	if result.Failed != len(recipients) {
		t.Errorf("Failed = %d, want %d", result.Failed, len(recipients))
	}
}

func TestBroadcastEmptyRecipients(t *testing.T) {
	d := NewDispatcher(4, 0, testLogger())

	result := d.Broadcast(context.Background(), nil, func(_ context.Context, _ User) error {
		t.Error("send invoked with no recipients")
		return nil
	})
	if result.Sent != 0 || result.Failed != 0 {
		t.Errorf("result = %+v, want zero", result)
	}
}

func TestNewDispatcherClampsWorkers(t *testing.T) {
	d := NewDispatcher(0, 0, testLogger())
	if d.workers != 1 {
		t.Errorf("workers = %d, want 1", d.workers)
	}
}
