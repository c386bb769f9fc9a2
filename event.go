package racekart

import "fmt"

// Kind identifies an event. The set is closed: every producer and consumer in
// the robot shares this enumeration.
type Kind uint8

const (
	NoEvent Kind = iota

	// Pseudo-events used by the framework itself. The interpreter delivers
	// entry/exit through State callbacks, so these only appear on the wire
	// (keymap, logs) and are never matched by a Transition.
	Entry
	EntryHistory
	Exit

	// Race lifecycle, raised by the DRS collaborator.
	RaceStarted
	RaceCaution
	RaceFinished
	DRSUpdated

	// Side-quest hand-offs between Racing and Playing.
	ObstacleCrossingEntry
	ObstacleCrossingStart
	ObstacleCrossingExit
	BallLaunchingEntry
	BallLaunchingStart
	BallLaunchingExit

	CornerEntry
	CornerExit

	// Sensors.
	BumpDetected
	IRBeaconDetected
	IRBeaconLost

	// Motion. MotorTimeout's Tag is the drive command generation it
	// completes; 0 means untagged.
	MotorTimeout
	MotorTickTimeout
	NavigationArrived

	// Timeout is raised by the timer service. Param carries the timer id and
	// Tag the generation that armed it.
	Timeout

	// Keystroke is raised by the keyboard harness. Param carries the key.
	Keystroke
)

var kindNames = [...]string{
	NoEvent:               "NoEvent",
	Entry:                 "Entry",
	EntryHistory:          "EntryHistory",
	Exit:                  "Exit",
	RaceStarted:           "RaceStarted",
	RaceCaution:           "RaceCaution",
	RaceFinished:          "RaceFinished",
	DRSUpdated:            "DRSUpdated",
	ObstacleCrossingEntry: "ObstacleCrossingEntry",
	ObstacleCrossingStart: "ObstacleCrossingStart",
	ObstacleCrossingExit:  "ObstacleCrossingExit",
	BallLaunchingEntry:    "BallLaunchingEntry",
	BallLaunchingStart:    "BallLaunchingStart",
	BallLaunchingExit:     "BallLaunchingExit",
	CornerEntry:           "CornerEntry",
	CornerExit:            "CornerExit",
	BumpDetected:          "BumpDetected",
	IRBeaconDetected:      "IRBeaconDetected",
	IRBeaconLost:          "IRBeaconLost",
	MotorTimeout:          "MotorTimeout",
	MotorTickTimeout:      "MotorTickTimeout",
	NavigationArrived:     "NavigationArrived",
	Timeout:               "Timeout",
	Keystroke:             "Keystroke",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Event is an immutable value passed between services and down the state
// machine hierarchy. Param is a small payload (a key code or a timer id);
// Tag is an owner generation used to reject stale timeouts.
type Event struct {
	Kind  Kind
	Param uint8
	Tag   uint32
}

// NewEvent returns an event of the given kind with no payload.
func NewEvent(k Kind) Event {
	return Event{Kind: k}
}

// None is the consumed event. A machine returns it when it handled the event
// and nothing above it should react.
var None = Event{}

// IsNone reports whether the event has been consumed.
func (e Event) IsNone() bool {
	return e.Kind == NoEvent
}

func (e Event) String() string {
	switch e.Kind {
	case Timeout:
		return fmt.Sprintf("Timeout(timer=%d gen=%d)", e.Param, e.Tag)
	case Keystroke:
		return fmt.Sprintf("Keystroke(%q)", rune(e.Param))
	}
	if e.Tag != 0 {
		return fmt.Sprintf("%s(gen=%d)", e.Kind, e.Tag)
	}
	return e.Kind.String()
}
