package missiontransfer

import (
	"fmt"

	"github.com/rs/zerolog"
)

// ReceiveIncomingWorkItem is the server-side counterpart of
// DownloadWorkItem (spec §4.3): the peer has already announced
// MISSION_COUNT(n, T) unsolicited, and this work item pulls the n items it
// advertised.
type ReceiveIncomingWorkItem struct {
	base

	items           []Item
	nextSequence    int
	expectedCount   int
	targetComponent uint8
	callback        ResultAndItemsCallback
}

// NewReceiveIncomingWorkItem constructs a not-yet-started pull of
// missionCount items from targetComponent, which is the peer component
// that sent the unsolicited MISSION_COUNT this responds to.
func NewReceiveIncomingWorkItem(
	sender Sender,
	dispatcher Dispatcher,
	scheduler TimeoutScheduler,
	missionType MissionType,
	missionCount uint32,
	targetComponent uint8,
	cfg *Config,
	log zerolog.Logger,
	callback ResultAndItemsCallback,
) *ReceiveIncomingWorkItem {
	return &ReceiveIncomingWorkItem{
		base:            newBase(sender, dispatcher, scheduler, missionType, cfg, log.With().Str("work_item", "receive_incoming").Logger()),
		expectedCount:   int(missionCount),
		targetComponent: targetComponent,
		callback:        callback,
	}
}

// Start either finishes immediately (an advertised count of zero: it acks
// and reports an empty list without subscribing), or subscribes for
// MISSION_ITEM_INT, arms the timeout and requests item 0.
func (w *ReceiveIncomingWorkItem) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	w.markStarted()

	if w.expectedCount == 0 {
		w.sendFinalAck(AckAccepted)
		w.finish(ResultSuccess, []Item{})
		return
	}

	cookie := w.dispatcher.Subscribe(IDMissionItemInt, w.onMissionItemInt)
	w.track(cookie)

	w.armTimeout(w.onTimeout)
	w.sendRequestItem(0)
}

func (w *ReceiveIncomingWorkItem) sendRequestItem(seq int) {
	msg := MissionRequestInt{
		TargetSystem:    w.sender.TargetSystemID(),
		TargetComponent: w.targetComponent,
		Seq:             uint16(seq),
		MissionType:     w.missionType,
	}
	if err := w.sender.SendMessage(msg); err != nil {
		w.log.Warn().Err(err).Msg("failed to send MISSION_REQUEST_INT")
		w.finish(ResultConnectionError, nil)
	}
}

func (w *ReceiveIncomingWorkItem) sendFinalAck(code AckCode) {
	_ = w.sendFinalAckErr(code)
}

func (w *ReceiveIncomingWorkItem) sendFinalAckErr(code AckCode) error {
	msg := MissionAck{
		TargetSystem:    w.sender.TargetSystemID(),
		TargetComponent: w.targetComponent,
		Type:            code,
		MissionType:     w.missionType,
	}
	err := w.sender.SendMessage(msg)
	if err != nil {
		w.log.Warn().Err(err).Msg("failed to send final MISSION_ACK")
	}
	return err
}

func (w *ReceiveIncomingWorkItem) onMissionItemInt(_ uint8, raw interface{}) {
	item, ok := raw.(MissionItemInt)
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	if item.MissionType != w.missionType {
		w.finish(ResultMissionTypeNotConsistent, nil)
		return
	}

	seq := int(item.Seq)
	switch {
	case seq == w.nextSequence:
		w.items = append(w.items, item.Item())
		w.nextSequence++
		w.resetRetries()

		if w.nextSequence == w.expectedCount {
			w.sendFinalAck(AckAccepted)
			w.finish(ResultSuccess, w.items)
			return
		}
		w.refreshTimeout()
		w.sendRequestItem(w.nextSequence)
	case w.nextSequence > 0 && seq == w.nextSequence-1:
		// duplicate delivery; keep waiting for the next one.
	default:
		w.finish(ResultInvalidSequence, nil)
	}
}

func (w *ReceiveIncomingWorkItem) onTimeout() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	if !w.retryOrElse() {
		w.finish(ResultTimeout, nil)
		return
	}
	w.refreshTimeout()
	w.sendRequestItem(w.nextSequence)
}

// Cancel aborts the pull, discarding whatever items were already received.
func (w *ReceiveIncomingWorkItem) Cancel() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return nil
	}
	if !w.started {
		w.finish(ResultCancelled, nil)
		return nil
	}
	err := w.sendFinalAckErr(AckOperationCancelled)
	w.finish(ResultCancelled, nil)
	if err != nil {
		return fmt.Errorf("receive incoming cancel: %w", err)
	}
	return nil
}

func (w *ReceiveIncomingWorkItem) finish(result Result, items []Item) {
	if !w.markDone() {
		return
	}
	w.release()
	if w.callback != nil {
		w.callback(result, items)
	}
}
