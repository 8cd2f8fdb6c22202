package missiontransfer

import (
	"sync"

	"github.com/rs/zerolog"
)

// base is the shared lifecycle state embedded by every concrete work item:
// the started/done flags, the mutex that serializes every externally
// triggered entry point, and the bookkeeping needed to release
// subscriptions and timers exactly once on every termination path.
//
// Grounded on spec's WorkItem state (§3) and the "polymorphism over
// WorkItem" design note (§9): rather than a deep class hierarchy, concrete
// work items embed this struct and satisfy WorkItem by adding their own
// Start/Cancel.
type base struct {
	mu sync.Mutex

	sender     Sender
	dispatcher Dispatcher
	scheduler  TimeoutScheduler
	log        zerolog.Logger

	missionType MissionType
	cfg         *Config

	started     bool
	done        bool
	retriesDone uint

	subs    []*SubscriptionCookie
	timeout *TimeoutCookie
}

func newBase(sender Sender, dispatcher Dispatcher, scheduler TimeoutScheduler, missionType MissionType, cfg *Config, log zerolog.Logger) base {
	return base{
		sender:      sender,
		dispatcher:  dispatcher,
		scheduler:   scheduler,
		missionType: missionType,
		cfg:         cfg,
		log:         log,
	}
}

// HasStarted reports whether Start has been called. Safe for concurrent use.
func (b *base) HasStarted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

// IsDone reports whether the terminal callback has already fired. Safe for
// concurrent use.
func (b *base) IsDone() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// markStarted records that Start has run. Caller must hold b.mu.
func (b *base) markStarted() {
	b.started = true
}

// markDone records termination and returns whether this call performed the
// transition (false if the item was already done). Caller must hold b.mu.
func (b *base) markDone() bool {
	if b.done {
		return false
	}
	b.done = true
	return true
}

// track records a subscription cookie so it can be released on termination.
// Caller must hold b.mu.
func (b *base) track(cookie *SubscriptionCookie) {
	b.subs = append(b.subs, cookie)
}

// armTimeout arms a fresh timeout, releasing any previously armed one.
// Caller must hold b.mu.
func (b *base) armTimeout(callback func()) {
	if b.timeout != nil {
		b.timeout.Cancel()
	}
	b.timeout = b.scheduler.Arm(b.cfg.TimeoutSeconds, callback)
}

// refreshTimeout resets the deadline of the currently armed timeout.
// Caller must hold b.mu.
func (b *base) refreshTimeout() {
	if b.timeout != nil {
		b.timeout.Refresh()
	}
}

// release unsubscribes every tracked subscription and cancels the timeout.
// Idempotent — safe even if called more than once, or concurrently with a
// termination path that already released everything. Caller must hold b.mu.
func (b *base) release() {
	for _, s := range b.subs {
		s.Release()
	}
	b.subs = nil
	if b.timeout != nil {
		b.timeout.Cancel()
		b.timeout = nil
	}
}

// retryOrElse increments the retry counter and reports whether another
// retry is permitted. Caller must hold b.mu.
func (b *base) retryOrElse() bool {
	if b.retriesDone >= b.cfg.MaxRetries {
		return false
	}
	b.retriesDone++
	return true
}

// resetRetries clears the retry counter, called whenever a step makes
// forward progress. Caller must hold b.mu.
func (b *base) resetRetries() {
	b.retriesDone = 0
}
