package missiontransfer

import "github.com/rs/zerolog"

// SetCurrentWorkItem drives a single MISSION_SET_CURRENT /
// MISSION_CURRENT request-confirm transaction (spec §4.5).
type SetCurrentWorkItem struct {
	base
	current  int
	callback ResultCallback
}

// NewSetCurrentWorkItem constructs a not-yet-started set-current transaction.
// current must be a valid (non-negative) sequence number; construction
// accepts any value, and Start rejects a negative one with
// ResultCurrentInvalid before anything is subscribed or emitted.
func NewSetCurrentWorkItem(
	sender Sender,
	dispatcher Dispatcher,
	scheduler TimeoutScheduler,
	current int,
	cfg *Config,
	log zerolog.Logger,
	callback ResultCallback,
) *SetCurrentWorkItem {
	return &SetCurrentWorkItem{
		base:     newBase(sender, dispatcher, scheduler, 0, cfg, log.With().Str("work_item", "set_current").Logger()),
		current:  current,
		callback: callback,
	}
}

// Start validates the requested index, then subscribes for MISSION_CURRENT,
// arms the timeout and emits MISSION_SET_CURRENT.
func (w *SetCurrentWorkItem) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	w.markStarted()

	if w.current < 0 {
		w.finish(ResultCurrentInvalid)
		return
	}

	cookie := w.dispatcher.Subscribe(IDMissionCurrent, w.onMissionCurrent)
	w.track(cookie)
	w.armTimeout(w.onTimeout)
	w.sendSetCurrent()
}

func (w *SetCurrentWorkItem) sendSetCurrent() {
	msg := MissionSetCurrent{
		TargetSystem:    w.sender.TargetSystemID(),
		TargetComponent: defaultTargetComponent,
		Seq:             uint16(w.current),
	}
	if err := w.sender.SendMessage(msg); err != nil {
		w.log.Warn().Err(err).Msg("failed to send MISSION_SET_CURRENT")
		w.finish(ResultConnectionError)
	}
}

func (w *SetCurrentWorkItem) onMissionCurrent(_ uint8, raw interface{}) {
	cur, ok := raw.(MissionCurrent)
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	if int(cur.Seq) != w.current {
		// older broadcast; ignore and keep waiting.
		return
	}
	w.finish(ResultSuccess)
}

func (w *SetCurrentWorkItem) onTimeout() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	if !w.retryOrElse() {
		w.finish(ResultTimeout)
		return
	}
	w.refreshTimeout()
	w.sendSetCurrent()
}

// Cancel aborts the transaction without emitting anything to the peer.
func (w *SetCurrentWorkItem) Cancel() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return nil
	}
	w.finish(ResultCancelled)
	return nil
}

func (w *SetCurrentWorkItem) finish(result Result) {
	if !w.markDone() {
		return
	}
	w.release()
	if w.callback != nil {
		w.callback(result)
	}
}
