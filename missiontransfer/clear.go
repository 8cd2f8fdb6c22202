package missiontransfer

import "github.com/rs/zerolog"

// ClearWorkItem drives a single MISSION_CLEAR_ALL / MISSION_ACK
// request-acknowledge transaction (spec §4.4).
type ClearWorkItem struct {
	base
	callback ResultCallback
}

// NewClearWorkItem constructs a not-yet-started clear transaction.
func NewClearWorkItem(
	sender Sender,
	dispatcher Dispatcher,
	scheduler TimeoutScheduler,
	missionType MissionType,
	cfg *Config,
	log zerolog.Logger,
	callback ResultCallback,
) *ClearWorkItem {
	return &ClearWorkItem{
		base:     newBase(sender, dispatcher, scheduler, missionType, cfg, log.With().Str("work_item", "clear").Logger()),
		callback: callback,
	}
}

// Start subscribes for the ack, arms the timeout and emits MISSION_CLEAR_ALL.
func (w *ClearWorkItem) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	w.markStarted()

	cookie := w.dispatcher.Subscribe(IDMissionAck, w.onMissionAck)
	w.track(cookie)
	w.armTimeout(w.onTimeout)
	w.sendClear()
}

func (w *ClearWorkItem) sendClear() {
	msg := MissionClearAll{
		TargetSystem:    w.sender.TargetSystemID(),
		TargetComponent: defaultTargetComponent,
		MissionType:     w.missionType,
	}
	if err := w.sender.SendMessage(msg); err != nil {
		w.log.Warn().Err(err).Msg("failed to send MISSION_CLEAR_ALL")
		w.finish(ResultConnectionError)
	}
}

func (w *ClearWorkItem) onMissionAck(_ uint8, raw interface{}) {
	ack, ok := raw.(MissionAck)
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	if ack.MissionType != w.missionType {
		w.finish(ResultMissionTypeNotConsistent)
		return
	}
	w.finish(resultForAck(ack.Type))
}

func (w *ClearWorkItem) onTimeout() {
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
	w.sendClear()
}

// Cancel aborts the transaction. Clear's cancel emits nothing to the peer.
func (w *ClearWorkItem) Cancel() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return nil
	}
	w.finish(ResultCancelled)
	return nil
}

// finish releases resources and invokes the callback exactly once. Caller
// must hold w.mu.
func (w *ClearWorkItem) finish(result Result) {
	if !w.markDone() {
		return
	}
	w.release()
	if w.callback != nil {
		w.callback(result)
	}
}
