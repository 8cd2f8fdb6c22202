package missiontransfer

import "sync"

// fakeSender is a hand-rolled Sender fake: it records every message handed
// to SendMessage and, when sendErr is set, fails the next send instead of
// recording it.
type fakeSender struct {
	mu sync.Mutex

	ownSystemID    uint8
	ownComponentID uint8
	targetSystemID uint8
	autopilot      Autopilot

	sent    []interface{}
	sendErr error
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		ownSystemID:    255,
		ownComponentID: defaultTargetComponent,
		targetSystemID: 1,
		autopilot:      AutopilotPX4,
	}
}

func (s *fakeSender) SendMessage(msg interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		err := s.sendErr
		s.sendErr = nil
		return err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) OwnSystemID() uint8    { return s.ownSystemID }
func (s *fakeSender) OwnComponentID() uint8 { return s.ownComponentID }
func (s *fakeSender) TargetSystemID() uint8 { return s.targetSystemID }
func (s *fakeSender) Autopilot() Autopilot  { return s.autopilot }

func (s *fakeSender) last() interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return nil
	}
	return s.sent[len(s.sent)-1]
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// fakeDispatcher is a hand-rolled Dispatcher fake that delivers messages
// synchronously to whichever handler is currently subscribed for a given
// MessageID.
type fakeDispatcher struct {
	mu       sync.Mutex
	handlers map[MessageID]MessageHandler
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{handlers: make(map[MessageID]MessageHandler)}
}

func (d *fakeDispatcher) Subscribe(id MessageID, handler MessageHandler) *SubscriptionCookie {
	d.mu.Lock()
	d.handlers[id] = handler
	d.mu.Unlock()
	return NewSubscriptionCookie(func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.handlers, id)
	})
}

func (d *fakeDispatcher) deliver(id MessageID, originSystemID uint8, msg interface{}) {
	d.mu.Lock()
	handler := d.handlers[id]
	d.mu.Unlock()
	if handler != nil {
		handler(originSystemID, msg)
	}
}

func (d *fakeDispatcher) subscribed(id MessageID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.handlers[id]
	return ok
}

// fakeTimeoutScheduler is a hand-rolled TimeoutScheduler fake. Nothing
// fires on its own; tests call fire() to simulate a deadline expiring.
type fakeTimeoutScheduler struct {
	mu       sync.Mutex
	armed    func()
	armCount int
	refCount int
	cancels  int
}

func newFakeTimeoutScheduler() *fakeTimeoutScheduler {
	return &fakeTimeoutScheduler{}
}

func (t *fakeTimeoutScheduler) Arm(seconds float64, callback func()) *TimeoutCookie {
	t.mu.Lock()
	t.armed = callback
	t.armCount++
	t.mu.Unlock()
	return NewTimeoutCookie(
		func() {
			t.mu.Lock()
			t.refCount++
			t.mu.Unlock()
		},
		func() {
			t.mu.Lock()
			t.cancels++
			t.armed = nil
			t.mu.Unlock()
		},
	)
}

func (t *fakeTimeoutScheduler) fire() {
	t.mu.Lock()
	cb := t.armed
	t.mu.Unlock()
	if cb != nil {
		cb()
	}
}
