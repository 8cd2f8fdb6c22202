package missiontransfer

// ResultCallback reports the terminal outcome of a transfer that does not
// produce a list of items. It fires exactly once per work item.
type ResultCallback func(Result)

// ResultAndItemsCallback reports the terminal outcome of a transfer that
// produces a list of items (download, receive-incoming). The list is only
// meaningful when Result is ResultSuccess.
type ResultAndItemsCallback func(Result, []Item)

// ProgressCallback reports transfer progress as a monotone nondecreasing
// value in [0, 1]. It is invoked only between the first outbound action and
// the terminal callback, and never after the terminal callback fires.
type ProgressCallback func(float32)
