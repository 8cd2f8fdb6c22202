package missiontransfer

// Item describes one element of a mission, geofence or rally item list.
// It is immutable after construction and transferred by value. Equality
// is structural over all thirteen fields.
type Item struct {
	Sequence     uint16
	Frame        Frame
	Command      uint16
	Current      uint8
	Autocontinue uint8
	Param1       float32
	Param2       float32
	Param3       float32
	Param4       float32
	X            int32
	Y            int32
	Z            float32
	MissionType  MissionType
}

// Equal reports whether two items are structurally identical.
func (i Item) Equal(other Item) bool {
	return i == other
}
