package missiontransfer

import (
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// Engine is the transfer engine: a FIFO of mission sub-protocol work items
// with at most one active at a time, driven by repeated calls to DoWork.
// None of its methods spawn goroutines; DoWork must be pumped by the
// embedder's own event loop, exactly as its message and timeout callbacks
// must be delivered by the embedder's Dispatcher and TimeoutScheduler.
//
// Grounded on the original_source header's MAVLinkMissionTransfer class and
// on the teacher's engine/common/synchronization.Engine for the logger
// scoping and lock discipline around a single piece of mutable state.
type Engine struct {
	mu sync.Mutex

	sender     Sender
	dispatcher Dispatcher
	scheduler  TimeoutScheduler

	timeoutSeconds func() float64
	queue          *workQueue

	intMessagesSupported bool
	closed               bool

	log zerolog.Logger
}

// NewEngine constructs an idle engine. timeoutSeconds is called once per
// work item, at submission time, so the configured timeout can track
// runtime link-quality changes between transfers.
func NewEngine(sender Sender, dispatcher Dispatcher, scheduler TimeoutScheduler, timeoutSeconds func() float64, log zerolog.Logger) *Engine {
	return &Engine{
		sender:               sender,
		dispatcher:           dispatcher,
		scheduler:            scheduler,
		timeoutSeconds:       timeoutSeconds,
		queue:                newWorkQueue(),
		intMessagesSupported: true,
		log:                  log.With().Str("component", "mission_transfer_engine").Logger(),
	}
}

// SetIntMessagesSupported records whether the connected autopilot
// understands the _INT message dialect. Upload requires it; submitting an
// upload while unsupported fails immediately with ResultIntMessagesNotSupported
// rather than ever constructing the work item.
func (e *Engine) SetIntMessagesSupported(supported bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.intMessagesSupported = supported
}

// IsIdle reports whether the queue is empty.
func (e *Engine) IsIdle() bool {
	return e.queue.Len() == 0
}

// DoWork activates the queue head if it hasn't started yet, and drops
// finished items from the front, repeating until the queue is empty or the
// new head is already running. Callers must pump this regularly; nothing
// in this package calls it on its own.
func (e *Engine) DoWork() {
	for {
		item, ok := e.queue.Head()
		if !ok {
			return
		}
		if item.IsDone() {
			e.queue.DropHead()
			continue
		}
		if item.HasStarted() {
			return
		}
		item.Start()
	}
}

func (e *Engine) config() *Config {
	return DefaultConfig(e.timeoutSeconds())
}

// UploadItemsAsync enqueues an upload of items tagged missionType. Returns
// nil, without enqueuing anything, if the engine is closed or the autopilot
// has not been marked as supporting _INT messages.
func (e *Engine) UploadItemsAsync(missionType MissionType, items []Item, progressCallback ProgressCallback, callback ResultCallback) *WorkHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		if callback != nil {
			callback(ResultCancelled)
		}
		return nil
	}
	if !e.intMessagesSupported {
		if callback != nil {
			callback(ResultIntMessagesNotSupported)
		}
		return nil
	}
	item := NewUploadWorkItem(e.sender, e.dispatcher, e.scheduler, missionType, items, e.config(), e.log, callback, progressCallback)
	e.queue.Enqueue(item)
	return &WorkHandle{item: item}
}

// DownloadItemsAsync enqueues a download of the peer's items of missionType.
func (e *Engine) DownloadItemsAsync(missionType MissionType, progressCallback ProgressCallback, callback ResultAndItemsCallback) *WorkHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		if callback != nil {
			callback(ResultCancelled, nil)
		}
		return nil
	}
	item := NewDownloadWorkItem(e.sender, e.dispatcher, e.scheduler, missionType, e.config(), e.log, callback, progressCallback)
	e.queue.Enqueue(item)
	return &WorkHandle{item: item}
}

// ReceiveIncomingItemsAsync enqueues a pull of missionCount items the peer
// already announced unsolicited, addressed back to targetComponent.
func (e *Engine) ReceiveIncomingItemsAsync(missionType MissionType, missionCount uint32, targetComponent uint8, callback ResultAndItemsCallback) *WorkHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		if callback != nil {
			callback(ResultCancelled, nil)
		}
		return nil
	}
	item := NewReceiveIncomingWorkItem(e.sender, e.dispatcher, e.scheduler, missionType, missionCount, targetComponent, e.config(), e.log, callback)
	e.queue.Enqueue(item)
	return &WorkHandle{item: item}
}

// ClearItemsAsync enqueues a clear-all of missionType. Unlike the other
// async entry points, a clear cannot later be cancelled by the caller — it
// mirrors the original protocol surface, which exposes no handle for it.
func (e *Engine) ClearItemsAsync(missionType MissionType, callback ResultCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		if callback != nil {
			callback(ResultCancelled)
		}
		return
	}
	item := NewClearWorkItem(e.sender, e.dispatcher, e.scheduler, missionType, e.config(), e.log, callback)
	e.queue.Enqueue(item)
}

// SetCurrentItemAsync enqueues a set-current request for sequence current.
func (e *Engine) SetCurrentItemAsync(current int, callback ResultCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		if callback != nil {
			callback(ResultCancelled)
		}
		return
	}
	item := NewSetCurrentWorkItem(e.sender, e.dispatcher, e.scheduler, current, e.config(), e.log, callback)
	e.queue.Enqueue(item)
}

// Close marks the engine closed and cancels every item still queued,
// started or not, in FIFO order. Once closed, every subsequent async
// submission is rejected without being enqueued. Close is idempotent.
//
// Returns the accumulated errors, if any, encountered while emitting
// cancel messages to the peer — a queued but unstarted item cancels
// silently, so only the started head (at most one) can contribute.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	items := e.queue.Drain()
	e.mu.Unlock()

	var errs *multierror.Error
	for _, item := range items {
		if err := item.Cancel(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
