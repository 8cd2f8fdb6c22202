package missiontransfer

// MessageID identifies a MAVLink message type. Values match the common.xml
// message IDs used by the mission micro-protocol.
type MessageID uint32

// defaultTargetComponent is MAV_COMP_ID_AUTOPILOT1, the component every
// work item but ReceiveIncomingWorkItem addresses its outbound messages
// to; ReceiveIncomingWorkItem instead targets whichever component sent
// the unsolicited MISSION_COUNT it is responding to.
const defaultTargetComponent uint8 = 1

const (
	IDMissionRequest     MessageID = 40
	IDMissionSetCurrent  MessageID = 41
	IDMissionCurrent     MessageID = 42
	IDMissionRequestList MessageID = 43
	IDMissionCount       MessageID = 44
	IDMissionClearAll    MessageID = 45
	IDMissionAck         MessageID = 47
	IDMissionRequestInt  MessageID = 51
	IDMissionItemInt     MessageID = 73
)

// MissionCount is MISSION_COUNT: the total number of items a transfer will
// carry, sent by the uploader or reported by the downloadee.
type MissionCount struct {
	TargetSystem    uint8
	TargetComponent uint8
	Count           uint16
	MissionType     MissionType
}

// MissionRequest is the legacy (non-INT) MISSION_REQUEST. The engine never
// emits it; receiving one from a peer means that peer lacks the INT variant.
type MissionRequest struct {
	TargetSystem    uint8
	TargetComponent uint8
	Seq             uint16
	MissionType     MissionType
}

// MissionRequestInt is MISSION_REQUEST_INT, requesting one item by sequence
// number, or (seq 0) kicking off a download/receive pull loop.
type MissionRequestInt struct {
	TargetSystem    uint8
	TargetComponent uint8
	Seq             uint16
	MissionType     MissionType
}

// MissionItemInt is MISSION_ITEM_INT: one item on the wire.
type MissionItemInt struct {
	TargetSystem    uint8
	TargetComponent uint8
	Seq             uint16
	Frame           Frame
	Command         uint16
	Current         uint8
	Autocontinue    uint8
	Param1          float32
	Param2          float32
	Param3          float32
	Param4          float32
	X               int32
	Y               int32
	Z               float32
	MissionType     MissionType
}

// Item extracts the Item value carried by this wire message.
func (m MissionItemInt) Item() Item {
	return Item{
		Sequence:     m.Seq,
		Frame:        m.Frame,
		Command:      m.Command,
		Current:      m.Current,
		Autocontinue: m.Autocontinue,
		Param1:       m.Param1,
		Param2:       m.Param2,
		Param3:       m.Param3,
		Param4:       m.Param4,
		X:            m.X,
		Y:            m.Y,
		Z:            m.Z,
		MissionType:  m.MissionType,
	}
}

// missionItemIntFromItem builds the wire form of an Item addressed to the
// given target system/component.
func missionItemIntFromItem(it Item, targetSystem, targetComponent uint8) MissionItemInt {
	return MissionItemInt{
		TargetSystem:    targetSystem,
		TargetComponent: targetComponent,
		Seq:             it.Sequence,
		Frame:           it.Frame,
		Command:         it.Command,
		Current:         it.Current,
		Autocontinue:    it.Autocontinue,
		Param1:          it.Param1,
		Param2:          it.Param2,
		Param3:          it.Param3,
		Param4:          it.Param4,
		X:               it.X,
		Y:               it.Y,
		Z:               it.Z,
		MissionType:     it.MissionType,
	}
}

// MissionAck is MISSION_ACK, terminating an upload or download with a
// status code.
type MissionAck struct {
	TargetSystem    uint8
	TargetComponent uint8
	Type            AckCode
	MissionType     MissionType
}

// MissionRequestList is MISSION_REQUEST_LIST, starting a download.
type MissionRequestList struct {
	TargetSystem    uint8
	TargetComponent uint8
	MissionType     MissionType
}

// MissionClearAll is MISSION_CLEAR_ALL.
type MissionClearAll struct {
	TargetSystem    uint8
	TargetComponent uint8
	MissionType     MissionType
}

// MissionSetCurrent is MISSION_SET_CURRENT.
type MissionSetCurrent struct {
	TargetSystem    uint8
	TargetComponent uint8
	Seq             uint16
}

// MissionCurrent is MISSION_CURRENT, the broadcast confirming the active item.
type MissionCurrent struct {
	Seq uint16
}
