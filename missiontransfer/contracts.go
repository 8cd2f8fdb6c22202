package missiontransfer

// Autopilot identifies the kind of flight stack on the other end of the
// link, as reported by the Sender.
type Autopilot int

const (
	AutopilotUnknown Autopilot = iota
	AutopilotPX4
	AutopilotArduPilot
)

// Sender is the outbound half of the link: it emits MAVLink messages and
// exposes the local/peer identity needed to address them. A non-nil error
// from SendMessage is terminal for whatever work item triggered it and maps
// to ResultConnectionError — the transport is presumed healthy at this
// layer, so send failures are never retried.
type Sender interface {
	SendMessage(msg interface{}) error
	OwnSystemID() uint8
	OwnComponentID() uint8
	TargetSystemID() uint8
	Autopilot() Autopilot
}

// MessageHandler is invoked by a Dispatcher when a message matching a
// subscription arrives. It may be invoked concurrently with other
// dispatcher operations, but never re-entrantly on the same subscription.
type MessageHandler func(originSystemID uint8, msg interface{})

// Dispatcher routes inbound typed messages to subscribers by message ID.
// Subscribe returns a cookie whose Release unsubscribes, idempotently.
type Dispatcher interface {
	Subscribe(id MessageID, handler MessageHandler) *SubscriptionCookie
}

// TimeoutScheduler arms, refreshes and cancels deferred callbacks. A
// callback fires at most once per Arm/Refresh cycle unless re-armed via
// Refresh before it fires.
type TimeoutScheduler interface {
	Arm(seconds float64, callback func()) *TimeoutCookie
}
