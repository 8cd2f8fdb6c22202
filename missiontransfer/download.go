package missiontransfer

import (
	"fmt"

	"github.com/rs/zerolog"
)

type downloadStep int

const (
	downloadStepRequestList downloadStep = iota
	downloadStepRequestItem
)

// DownloadWorkItem drives the client-initiated download protocol (spec
// §4.2): request the list, learn the count, then pull items one at a time.
type DownloadWorkItem struct {
	base

	step             downloadStep
	items            []Item
	nextSequence     int
	expectedCount    int
	progressCallback ProgressCallback
	callback         ResultAndItemsCallback
}

// NewDownloadWorkItem constructs a not-yet-started download.
func NewDownloadWorkItem(
	sender Sender,
	dispatcher Dispatcher,
	scheduler TimeoutScheduler,
	missionType MissionType,
	cfg *Config,
	log zerolog.Logger,
	callback ResultAndItemsCallback,
	progressCallback ProgressCallback,
) *DownloadWorkItem {
	return &DownloadWorkItem{
		base:             newBase(sender, dispatcher, scheduler, missionType, cfg, log.With().Str("work_item", "download").Logger()),
		progressCallback: progressCallback,
		callback:         callback,
	}
}

// Start subscribes for MISSION_COUNT/MISSION_ITEM_INT/MISSION_ACK, arms the
// timeout and emits MISSION_REQUEST_LIST.
func (w *DownloadWorkItem) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	w.markStarted()

	cookie := w.dispatcher.Subscribe(IDMissionCount, w.onMissionCount)
	w.track(cookie)
	cookie = w.dispatcher.Subscribe(IDMissionItemInt, w.onMissionItemInt)
	w.track(cookie)
	cookie = w.dispatcher.Subscribe(IDMissionAck, w.onMissionAck)
	w.track(cookie)

	w.armTimeout(w.onTimeout)
	w.sendRequestList()
	if !w.done {
		w.reportProgress(0)
	}
}

func (w *DownloadWorkItem) sendRequestList() {
	msg := MissionRequestList{
		TargetSystem:    w.sender.TargetSystemID(),
		TargetComponent: defaultTargetComponent,
		MissionType:     w.missionType,
	}
	if err := w.sender.SendMessage(msg); err != nil {
		w.log.Warn().Err(err).Msg("failed to send MISSION_REQUEST_LIST")
		w.finish(ResultConnectionError, nil)
	}
}

func (w *DownloadWorkItem) sendRequestItem(seq int) {
	msg := MissionRequestInt{
		TargetSystem:    w.sender.TargetSystemID(),
		TargetComponent: defaultTargetComponent,
		Seq:             uint16(seq),
		MissionType:     w.missionType,
	}
	if err := w.sender.SendMessage(msg); err != nil {
		w.log.Warn().Err(err).Msg("failed to send MISSION_REQUEST_INT")
		w.finish(ResultConnectionError, nil)
	}
}

func (w *DownloadWorkItem) sendFinalAck(code AckCode) {
	_ = w.sendFinalAckErr(code)
}

func (w *DownloadWorkItem) sendFinalAckErr(code AckCode) error {
	msg := MissionAck{
		TargetSystem:    w.sender.TargetSystemID(),
		TargetComponent: defaultTargetComponent,
		Type:            code,
		MissionType:     w.missionType,
	}
	err := w.sender.SendMessage(msg)
	if err != nil {
		w.log.Warn().Err(err).Msg("failed to send final MISSION_ACK")
	}
	return err
}

func (w *DownloadWorkItem) onMissionCount(_ uint8, raw interface{}) {
	cnt, ok := raw.(MissionCount)
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	if w.step != downloadStepRequestList {
		return
	}
	if cnt.MissionType != w.missionType {
		w.finish(ResultMissionTypeNotConsistent, nil)
		return
	}

	if cnt.Count == 0 {
		w.sendFinalAck(AckAccepted)
		w.finish(ResultSuccess, []Item{})
		return
	}

	w.expectedCount = int(cnt.Count)
	w.nextSequence = 0
	w.step = downloadStepRequestItem
	w.resetRetries()
	w.refreshTimeout()
	w.sendRequestItem(0)
}

func (w *DownloadWorkItem) onMissionItemInt(_ uint8, raw interface{}) {
	item, ok := raw.(MissionItemInt)
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	if w.step != downloadStepRequestItem {
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
		w.reportProgress(float32(w.nextSequence) / float32(w.expectedCount))

		if w.nextSequence == w.expectedCount {
			w.sendFinalAck(AckAccepted)
			w.finish(ResultSuccess, w.items)
			return
		}
		w.refreshTimeout()
		w.sendRequestItem(w.nextSequence)
	case w.nextSequence > 0 && seq == w.nextSequence-1:
		// duplicate delivery of the item we already have; keep waiting.
	default:
		w.finish(ResultInvalidSequence, nil)
	}
}

func (w *DownloadWorkItem) onMissionAck(_ uint8, raw interface{}) {
	ack, ok := raw.(MissionAck)
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	if w.step != downloadStepRequestList {
		// an ACK during item pulling is not part of this protocol's
		// happy path; ignore rather than mistake it for a real response.
		return
	}
	if ack.MissionType != w.missionType {
		w.finish(ResultMissionTypeNotConsistent, nil)
		return
	}
	if ack.Type == AckDenied {
		w.finish(ResultNoMissionAvailable, nil)
		return
	}
	w.finish(resultForAck(ack.Type), nil)
}

func (w *DownloadWorkItem) onTimeout() {
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
	switch w.step {
	case downloadStepRequestList:
		w.sendRequestList()
	case downloadStepRequestItem:
		w.sendRequestItem(w.nextSequence)
	}
}

// Cancel aborts the download, discarding whatever items were already
// pulled, and tells the peer via MISSION_ACK(OPERATION_CANCELLED).
func (w *DownloadWorkItem) Cancel() error {
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
		return fmt.Errorf("download cancel: %w", err)
	}
	return nil
}

func (w *DownloadWorkItem) reportProgress(p float32) {
	if w.progressCallback != nil {
		w.progressCallback(p)
	}
}

func (w *DownloadWorkItem) finish(result Result, items []Item) {
	if !w.markDone() {
		return
	}
	w.release()
	if w.callback != nil {
		w.callback(result, items)
	}
}
