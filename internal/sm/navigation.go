package sm

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/comalice/racekart"
	"github.com/comalice/racekart/internal/config"
)

const (
	Orienting racekart.StateID = iota
	Driving
	Waiting
)

// Navigation steers the kart to a point: turn in place until the heading
// is within tolerance of the target heading, then drive until the position
// is within the arrival radius. It reads nothing but the kart record, so
// any machine can own one.
type Navigation struct {
	m      *racekart.Machine
	motion Motion
	kart   KartSource
	cfg    config.Navigation

	target  config.Point
	heading float64
}

func NewNavigation(motion Motion, kart KartSource, cfg config.Navigation, log zerolog.Logger) *Navigation {
	n := &Navigation{motion: motion, kart: kart, cfg: cfg}

	orienting := &racekart.State{ID: Orienting, Name: "ORIENTING", Initial: true}
	orienting.OnEntry(func(bool) { n.orient() })
	orienting.OnExit(motion.Cancel)
	orienting.On(racekart.DRSUpdated, Driving, n.aligned, n.stop)

	driving := &racekart.State{ID: Driving, Name: "DRIVING"}
	driving.OnEntry(func(bool) { motion.Forward(cfg.DriveRPM, cfg.WatchdogMS) })
	driving.OnExit(motion.Cancel)
	driving.On(racekart.MotorTimeout, Orienting, nil, nil)
	driving.On(racekart.DRSUpdated, Waiting, n.arrived, n.stop)

	waiting := &racekart.State{ID: Waiting, Name: "WAITING"}
	waiting.OnEntry(func(bool) { motion.Stop() })

	n.m = racekart.MustMachine("navigation", orienting, driving, waiting)
	n.m.SetLogger(log)
	return n
}

// SetTargetPosition sets the point to drive to.
func (n *Navigation) SetTargetPosition(p config.Point) {
	n.target = p
}

// SetTargetHeading sets the heading, in degrees, to orient to.
func (n *Navigation) SetTargetHeading(deg float64) {
	n.heading = normalize(deg)
}

// Aim targets p and orients toward it from the kart's current position.
func (n *Navigation) Aim(p config.Point) {
	k := n.kart.Kart()
	n.SetTargetPosition(p)
	n.SetTargetHeading(HeadingTo(config.Point{X: k.X, Y: k.Y}, p))
}

func (n *Navigation) Target() (config.Point, float64) {
	return n.target, n.heading
}

func (n *Navigation) Start(history bool) { n.m.Start(history) }
func (n *Navigation) Stop()              { n.m.Stop() }

func (n *Navigation) Current() racekart.StateID { return n.m.Current() }

// Run processes evt. Reaching the target is reported to the owner as
// NavigationArrived.
func (n *Navigation) Run(evt racekart.Event) racekart.Event {
	before := n.m.Current()
	out := n.m.Run(evt)
	if before == Driving && n.m.Current() == Waiting {
		return racekart.NewEvent(racekart.NavigationArrived)
	}
	return out
}

func (n *Navigation) orient() {
	diff := signedDiff(n.kart.Kart().Heading, n.heading)
	// Positive headings turn counter-clockwise.
	n.motion.Rotate(diff < 0, n.cfg.OrientRPM, 0)
}

func (n *Navigation) stop(racekart.Event) {
	n.motion.Stop()
}

func (n *Navigation) aligned(racekart.Event) bool {
	return HeadingError(n.kart.Kart().Heading, n.heading) < n.cfg.HeadingToleranceDeg
}

func (n *Navigation) arrived(racekart.Event) bool {
	k := n.kart.Kart()
	return math.Hypot(k.X-n.target.X, k.Y-n.target.Y) < n.cfg.ArrivalRadius
}

// HeadingError is the angle between two headings in degrees, in [0, 180].
func HeadingError(a, b float64) float64 {
	return math.Abs(signedDiff(a, b))
}

// HeadingTo is the heading from one point to another in degrees [0, 360).
func HeadingTo(from, to config.Point) float64 {
	return normalize(math.Atan2(to.Y-from.Y, to.X-from.X) * 180 / math.Pi)
}

// signedDiff is target-current wrapped into (-180, 180].
func signedDiff(current, target float64) float64 {
	d := math.Mod(target-current, 360)
	switch {
	case d > 180:
		d -= 360
	case d <= -180:
		d += 360
	}
	return d
}

func normalize(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
