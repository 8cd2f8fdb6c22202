package missiontransfer

// Frame is the coordinate frame tag carried on MISSION_ITEM_INT, mirroring
// MAVLink's MAV_FRAME enum. Only the members relevant to mission items are
// named here.
type Frame uint8

const (
	FrameGlobal               Frame = 0
	FrameLocalNED             Frame = 1
	FrameMission              Frame = 2
	FrameGlobalRelativeAlt    Frame = 3
	FrameLocalENU             Frame = 4
	FrameGlobalInt            Frame = 5
	FrameGlobalRelativeAltInt Frame = 6
	FrameLocalOffsetNED       Frame = 7
	FrameBodyNED              Frame = 8
	FrameBodyOffsetNED        Frame = 9
	FrameGlobalTerrainAlt     Frame = 10
	FrameGlobalTerrainAltInt  Frame = 11
)

// acceptedUploadFrames is the policy of this component for which frames an
// uploaded item may carry (spec UnsupportedFrame preflight). Both the int
// and non-int terrain-relative frames are accepted.
var acceptedUploadFrames = map[Frame]bool{
	FrameGlobal:              true,
	FrameGlobalRelativeAlt:   true,
	FrameGlobalInt:           true,
	FrameLocalNED:            true,
	FrameMission:             true,
	FrameGlobalTerrainAlt:    true,
	FrameGlobalTerrainAltInt: true,
}

func isAcceptedUploadFrame(f Frame) bool {
	return acceptedUploadFrames[f]
}
