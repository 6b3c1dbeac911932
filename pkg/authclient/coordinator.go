package authclient

import (
	"context"
	"sync"
)

// refreshOutcome is what the leader broadcasts to parked callers: the
// fresh access token on success, or the refresh error on failure.
type refreshOutcome struct {
	access string
	err    error
}

// waiter is one parked caller. The channel is buffered so a broadcast
// never blocks on a waiter that gave up between dequeue and send.
type waiter struct {
	ch chan refreshOutcome
}

// coordinator serializes refresh attempts for one Client instance. It
// is an explicit per-client value, never a package-level singleton, so
// independent clients (tests, multi-tenant embeddings) cannot share
// refresh state by accident.
//
// States: idle, refreshing, logged-out (terminal until reset). The
// first caller to hit an expired access token becomes the leader and
// runs exactly one refresh; everyone else arriving while the leader is
// in flight parks on a FIFO queue. On success the new token is handed
// to waiters in parking order; on failure all of them get the refresh
// error and the coordinator latches logged-out.
type coordinator struct {
	mu         sync.Mutex
	refreshing bool
	loggedOut  bool
	queue      []*waiter
}

// await returns a fresh access token, either by leading a refresh call
// (do) or by parking until the current leader settles. ctx only
// governs this caller's parking time: cancelling it removes the caller
// from the queue without disturbing the in-flight refresh or the other
// waiters.
func (co *coordinator) await(ctx context.Context, do func() (string, error)) (string, error) {
	co.mu.Lock()
	if co.loggedOut {
		co.mu.Unlock()
		return "", ErrLoggedOut
	}
	if co.refreshing {
		w := &waiter{ch: make(chan refreshOutcome, 1)}
		co.queue = append(co.queue, w)
		co.mu.Unlock()

		select {
		case out := <-w.ch:
			return out.access, out.err
		case <-ctx.Done():
			co.remove(w)
			return "", ctx.Err()
		}
	}
	co.refreshing = true
	co.mu.Unlock()

	// Exactly one refresh call is in flight from here until settle.
	access, err := do()

	co.mu.Lock()
	co.refreshing = false
	if err != nil {
		co.loggedOut = true
	}
	q := co.queue
	co.queue = nil
	co.mu.Unlock()

	// Replay pass in FIFO parking order. Completion order of the
	// retried requests afterwards is up to the network.
	for _, w := range q {
		w.ch <- refreshOutcome{access: access, err: err}
	}
	return access, err
}

// remove takes a cancelled waiter off the queue. If the broadcast
// already grabbed the queue the waiter is gone from it and the
// buffered outcome is simply dropped.
func (co *coordinator) remove(w *waiter) {
	co.mu.Lock()
	defer co.mu.Unlock()
	for i, q := range co.queue {
		if q == w {
			co.queue = append(co.queue[:i], co.queue[i+1:]...)
			return
		}
	}
}

// reset clears the terminal logged-out latch after a successful login.
func (co *coordinator) reset() {
	co.mu.Lock()
	defer co.mu.Unlock()
	co.loggedOut = false
}
