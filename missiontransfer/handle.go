package missiontransfer

// WorkHandle is a non-owning reference to a submitted work item, returned by
// the async submission methods that the original protocol surface exposes a
// handle for (upload, download, receive-incoming). It outlives neither the
// work item nor the Engine; calling its methods after the underlying
// transfer has already finished is always safe and a no-op.
type WorkHandle struct {
	item WorkItem
}

// Cancel aborts the referenced transfer. Safe to call more than once.
func (h *WorkHandle) Cancel() error {
	if h == nil {
		return nil
	}
	return h.item.Cancel()
}

// HasStarted reports whether the referenced transfer has begun.
func (h *WorkHandle) HasStarted() bool {
	if h == nil {
		return false
	}
	return h.item.HasStarted()
}

// IsDone reports whether the referenced transfer's terminal callback has
// already fired.
func (h *WorkHandle) IsDone() bool {
	if h == nil {
		return false
	}
	return h.item.IsDone()
}
