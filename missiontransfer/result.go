package missiontransfer

// Result is the closed set of terminal outcomes for a mission transfer.
// Exactly one Result is produced per submitted work item.
type Result int

const (
	// ResultSuccess indicates the transfer completed as intended.
	ResultSuccess Result = iota
	// ResultConnectionError indicates the Sender reported a failure to transmit.
	ResultConnectionError
	// ResultDenied indicates the peer rejected the request outright.
	ResultDenied
	// ResultTooManyMissionItems indicates the peer has no space for the list.
	ResultTooManyMissionItems
	// ResultTimeout indicates the retry budget was exhausted without progress.
	ResultTimeout
	// ResultUnsupported indicates the peer does not support the operation.
	ResultUnsupported
	// ResultUnsupportedFrame indicates an item's coordinate frame was rejected.
	ResultUnsupportedFrame
	// ResultNoMissionAvailable indicates there is nothing to download.
	ResultNoMissionAvailable
	// ResultCancelled indicates the caller cancelled the transfer.
	ResultCancelled
	// ResultMissionTypeNotConsistent indicates a mission-type tag mismatch.
	ResultMissionTypeNotConsistent
	// ResultInvalidSequence indicates a sequence-number protocol violation.
	ResultInvalidSequence
	// ResultCurrentInvalid indicates an out-of-range set-current index.
	ResultCurrentInvalid
	// ResultProtocolError indicates a peer response the protocol cannot make sense of.
	ResultProtocolError
	// ResultInvalidParam indicates a caller-supplied argument was invalid.
	ResultInvalidParam
	// ResultIntMessagesNotSupported indicates the peer lacks the *_INT message variants.
	ResultIntMessagesNotSupported
)

// String returns the human-readable name of the Result.
func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "Success"
	case ResultConnectionError:
		return "ConnectionError"
	case ResultDenied:
		return "Denied"
	case ResultTooManyMissionItems:
		return "TooManyMissionItems"
	case ResultTimeout:
		return "Timeout"
	case ResultUnsupported:
		return "Unsupported"
	case ResultUnsupportedFrame:
		return "UnsupportedFrame"
	case ResultNoMissionAvailable:
		return "NoMissionAvailable"
	case ResultCancelled:
		return "Cancelled"
	case ResultMissionTypeNotConsistent:
		return "MissionTypeNotConsistent"
	case ResultInvalidSequence:
		return "InvalidSequence"
	case ResultCurrentInvalid:
		return "CurrentInvalid"
	case ResultProtocolError:
		return "ProtocolError"
	case ResultInvalidParam:
		return "InvalidParam"
	case ResultIntMessagesNotSupported:
		return "IntMessagesNotSupported"
	default:
		return "Unknown"
	}
}
