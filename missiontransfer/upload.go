package missiontransfer

import (
	"fmt"

	"github.com/rs/zerolog"
)

type uploadStep int

const (
	uploadStepSendCount uploadStep = iota
	uploadStepSendItems
)

// UploadWorkItem drives the client-to-server upload protocol (spec §4.1):
// send MISSION_COUNT, then answer MISSION_REQUEST_INT one item at a time
// until the peer sends a final MISSION_ACK.
type UploadWorkItem struct {
	base

	items            []Item
	step             uploadStep
	nextSequence     int
	progressCallback ProgressCallback
	callback         ResultCallback
}

// NewUploadWorkItem constructs a not-yet-started upload of items, tagged
// with missionType. Preflight validation (mission-type consistency,
// sequence numbering, frame acceptance, item count) runs on Start, before
// anything is subscribed or emitted.
func NewUploadWorkItem(
	sender Sender,
	dispatcher Dispatcher,
	scheduler TimeoutScheduler,
	missionType MissionType,
	items []Item,
	cfg *Config,
	log zerolog.Logger,
	callback ResultCallback,
	progressCallback ProgressCallback,
) *UploadWorkItem {
	return &UploadWorkItem{
		base:             newBase(sender, dispatcher, scheduler, missionType, cfg, log.With().Str("work_item", "upload").Logger()),
		items:            items,
		progressCallback: progressCallback,
		callback:         callback,
	}
}

// Start runs the preflight checks and, if they pass, subscribes, arms the
// timeout and emits MISSION_COUNT.
func (w *UploadWorkItem) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	w.markStarted()

	if fail := w.preflight(); fail != ResultSuccess {
		w.finish(fail)
		return
	}

	cookie := w.dispatcher.Subscribe(IDMissionRequest, w.onMissionRequest)
	w.track(cookie)
	cookie = w.dispatcher.Subscribe(IDMissionRequestInt, w.onMissionRequestInt)
	w.track(cookie)
	cookie = w.dispatcher.Subscribe(IDMissionAck, w.onMissionAck)
	w.track(cookie)

	w.armTimeout(w.onTimeout)
	w.sendCount()
	if !w.done {
		w.reportProgress(0)
	}
}

// preflight runs the checks spec requires before any message is sent.
func (w *UploadWorkItem) preflight() Result {
	if len(w.items) > 0xFFFF {
		return ResultTooManyMissionItems
	}
	for i, it := range w.items {
		if it.MissionType != w.missionType {
			return ResultMissionTypeNotConsistent
		}
		if int(it.Sequence) != i {
			return ResultInvalidSequence
		}
		if !isAcceptedUploadFrame(it.Frame) {
			return ResultUnsupportedFrame
		}
	}
	return ResultSuccess
}

func (w *UploadWorkItem) sendCount() {
	msg := MissionCount{
		TargetSystem:    w.sender.TargetSystemID(),
		TargetComponent: defaultTargetComponent,
		Count:           uint16(len(w.items)),
		MissionType:     w.missionType,
	}
	if err := w.sender.SendMessage(msg); err != nil {
		w.log.Warn().Err(err).Msg("failed to send MISSION_COUNT")
		w.finish(ResultConnectionError)
	}
}

func (w *UploadWorkItem) sendItem(seq int) {
	msg := missionItemIntFromItem(w.items[seq], w.sender.TargetSystemID(), defaultTargetComponent)
	if err := w.sender.SendMessage(msg); err != nil {
		w.log.Warn().Err(err).Msg("failed to send MISSION_ITEM_INT")
		w.finish(ResultConnectionError)
	}
}

func (w *UploadWorkItem) onMissionRequest(_ uint8, raw interface{}) {
	if _, ok := raw.(MissionRequest); !ok {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	// A legacy, non-INT request means the autopilot cannot speak the INT
	// dialect this engine requires.
	w.finish(ResultUnsupported)
}

func (w *UploadWorkItem) onMissionRequestInt(_ uint8, raw interface{}) {
	req, ok := raw.(MissionRequestInt)
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	if req.MissionType != w.missionType {
		w.finish(ResultMissionTypeNotConsistent)
		return
	}
	if len(w.items) == 0 {
		// nothing to request from an empty list; the peer should ack instead.
		w.finish(ResultProtocolError)
		return
	}

	seq := int(req.Seq)
	switch {
	case seq == w.nextSequence && seq < len(w.items):
		w.step = uploadStepSendItems
		w.reportProgress(float32(seq) / float32(len(w.items)))
		w.sendItem(seq)
		if w.done {
			return
		}
		w.nextSequence = seq + 1
		w.resetRetries()
		w.refreshTimeout()
	case w.nextSequence > 0 && seq == w.nextSequence-1:
		// peer didn't see our last item; resend without advancing.
		w.sendItem(seq)
	default:
		w.finish(ResultInvalidSequence)
	}
}

func (w *UploadWorkItem) onMissionAck(_ uint8, raw interface{}) {
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

	complete := w.nextSequence == len(w.items)
	if ack.Type == AckAccepted && !complete {
		// Accepted before every item was actually requested and sent
		// cannot be a legitimate accept.
		w.finish(ResultProtocolError)
		return
	}
	if ack.Type == AckAccepted {
		w.reportProgress(1)
	}
	w.finish(resultForAck(ack.Type))
}

func (w *UploadWorkItem) onTimeout() {
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
	switch w.step {
	case uploadStepSendCount:
		w.sendCount()
	case uploadStepSendItems:
		w.sendItem(w.nextSequence - 1)
	}
}

// Cancel aborts the upload. If it had already started, a cancel ack is
// emitted to the peer so it can release whatever it was buffering.
func (w *UploadWorkItem) Cancel() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return nil
	}
	if !w.started {
		w.finish(ResultCancelled)
		return nil
	}
	msg := MissionAck{
		TargetSystem:    w.sender.TargetSystemID(),
		TargetComponent: defaultTargetComponent,
		Type:            AckOperationCancelled,
		MissionType:     w.missionType,
	}
	err := w.sender.SendMessage(msg)
	if err != nil {
		w.log.Warn().Err(err).Msg("failed to send cancel MISSION_ACK")
	}
	w.finish(ResultCancelled)
	if err != nil {
		return fmt.Errorf("upload cancel: %w", err)
	}
	return nil
}

func (w *UploadWorkItem) reportProgress(p float32) {
	if w.progressCallback != nil {
		w.progressCallback(p)
	}
}

func (w *UploadWorkItem) finish(result Result) {
	if !w.markDone() {
		return
	}
	w.release()
	if w.callback != nil {
		w.callback(result)
	}
}
