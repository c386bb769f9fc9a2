package drs

// Zone is a region of the gamefield. Straights and corners are numbered in
// driving order.
type Zone uint8

const (
	Straight1 Zone = iota
	Corner1
	Straight2
	Corner2
	Straight3
	Corner3
	Straight4
	Corner4
	BallLaunchingArea
	ObstacleCrossingArea
	Undefined
)

var zoneNames = [...]string{
	Straight1:            "Straight1",
	Corner1:              "Corner1",
	Straight2:            "Straight2",
	Corner2:              "Corner2",
	Straight3:            "Straight3",
	Corner3:              "Corner3",
	Straight4:            "Straight4",
	Corner4:              "Corner4",
	BallLaunchingArea:    "BallLaunchingArea",
	ObstacleCrossingArea: "ObstacleCrossingArea",
	Undefined:            "Undefined",
}

func (z Zone) String() string {
	if int(z) < len(zoneNames) {
		return zoneNames[z]
	}
	return "Undefined"
}

// Field bounds in DRS units.
const (
	xRight      = 105
	xLeft       = 220
	xCenter     = 163
	yBottom     = 32
	yTop        = 140
	cornerEntry = 20
)

// Classify returns the zone containing (x, y). The origin is reported
// before the DRS has a fix and classifies as Undefined.
func Classify(x, y float64) Zone {
	if x == 0 && y == 0 {
		return Undefined
	}
	switch {
	case x < xRight:
		switch {
		case y < yBottom:
			return Corner1
		case y < yTop-cornerEntry:
			return Straight2
		default:
			return Corner2
		}
	case x < xLeft:
		switch {
		case y < yBottom:
			if x < xRight+cornerEntry {
				return Corner1
			}
			return Straight1
		case y < yTop:
			if x < xCenter {
				return BallLaunchingArea
			}
			return ObstacleCrossingArea
		default:
			if x < xLeft-cornerEntry {
				return Straight3
			}
			return Corner3
		}
	default:
		switch {
		case y < yBottom:
			return Corner4
		case y < yBottom+cornerEntry:
			return Corner4
		case y < yTop:
			return Straight4
		default:
			return Corner3
		}
	}
}

// OnCourse reports whether z is one of the straights or corners of the
// loop. The side-quest areas sit inside it and say nothing about the leg.
func (z Zone) OnCourse() bool {
	return z < BallLaunchingArea
}

// StartingStraight is the leg a kart placed in z begins on: a corner
// leads into the straight after it.
func StartingStraight(z Zone) int {
	switch z {
	case Corner1, Straight2:
		return 2
	case Corner2, Straight3:
		return 3
	case Corner3, Straight4:
		return 4
	}
	return 1
}
