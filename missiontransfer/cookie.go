package missiontransfer

import (
	"sync"

	"github.com/google/uuid"
)

// SubscriptionCookie is the token returned by Dispatcher.Subscribe. Calling
// Release unsubscribes the underlying handler; it is safe to call Release
// more than once or concurrently — only the first call has effect.
type SubscriptionCookie struct {
	id      uuid.UUID
	once    sync.Once
	release func()
}

// NewSubscriptionCookie wraps an unsubscribe closure into a cookie. It is
// exported so that Dispatcher implementations outside this package can
// construct cookies to hand back from Subscribe.
func NewSubscriptionCookie(release func()) *SubscriptionCookie {
	return &SubscriptionCookie{id: uuid.New(), release: release}
}

// ID returns the cookie's opaque identity, useful for logging.
func (c *SubscriptionCookie) ID() uuid.UUID {
	return c.id
}

// Release unsubscribes the handler this cookie was issued for. Idempotent.
func (c *SubscriptionCookie) Release() {
	c.once.Do(func() {
		if c.release != nil {
			c.release()
		}
	})
}

// TimeoutCookie is the token returned by TimeoutScheduler.Arm. Refresh
// resets the deadline; Cancel removes the registration. Both are safe to
// call more than once or concurrently; Cancel after the callback has
// already fired, or after a previous Cancel, is a no-op.
type TimeoutCookie struct {
	id      uuid.UUID
	refresh func()
	once    sync.Once
	cancel  func()
}

// NewTimeoutCookie wraps refresh/cancel closures into a cookie. Exported so
// TimeoutScheduler implementations outside this package can construct one
// to hand back from Arm.
func NewTimeoutCookie(refresh, cancel func()) *TimeoutCookie {
	return &TimeoutCookie{id: uuid.New(), refresh: refresh, cancel: cancel}
}

// ID returns the cookie's opaque identity, useful for logging.
func (c *TimeoutCookie) ID() uuid.UUID {
	return c.id
}

// Refresh resets the deadline without changing the registered callback.
func (c *TimeoutCookie) Refresh() {
	if c.refresh != nil {
		c.refresh()
	}
}

// Cancel removes the timer registration. Idempotent.
func (c *TimeoutCookie) Cancel() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
	})
}
