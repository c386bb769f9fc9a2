// Package config holds every tuning constant of the kart. The defaults are
// the values calibrated on the course; a YAML file may override any subset.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Gains is one PID gain set. The controller computes
// duty = Kp*(e + Ki*sum(e) + Kd*de).
type Gains struct {
	Kp float64 `yaml:"kp"`
	Ki float64 `yaml:"ki"`
	Kd float64 `yaml:"kd"`
}

// Bias is a left/right RPM pair used for straight-line corrections.
type Bias struct {
	Left  float64 `yaml:"left"`
	Right float64 `yaml:"right"`
}

// Point is a gamefield coordinate as reported by the DRS.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

type Encoder struct {
	ClockHz         uint32 `yaml:"clock_hz"`
	PulsesPerRev    uint32 `yaml:"pulses_per_rev"`
	StallMS         uint32 `yaml:"stall_ms"`
	SmoothingWindow int    `yaml:"smoothing_window"`
}

type Motor struct {
	ControlPeriodUS int     `yaml:"control_period_us"`
	WheelDiameterMM float64 `yaml:"wheel_diameter_mm"`
	StallFaultMS    uint32  `yaml:"stall_fault_ms"`
	Default         Gains   `yaml:"default_gains"`
}

type Corner struct {
	BackoffRPM      float64 `yaml:"backoff_rpm"`
	BackoffMS       uint32  `yaml:"backoff_ms"`
	PivotRPM        float64 `yaml:"pivot_rpm"`
	PivotTicks      uint32  `yaml:"pivot_ticks"`
	ReturnBackoffMS uint32  `yaml:"return_backoff_ms"`
}

type Racing struct {
	NormalGains      Gains   `yaml:"normal_gains"`
	NormalRPM        float64 `yaml:"normal_rpm"`
	NormalDistanceMM float64 `yaml:"normal_distance_mm"`
	FeedGains        Gains   `yaml:"feed_gains"`
	BallFeedRPM      float64 `yaml:"ball_feed_rpm"`
	BallFeedMM       float64 `yaml:"ball_feed_distance_mm"`
	ObstacleFeedRPM  float64 `yaml:"obstacle_feed_rpm"`
	ObstacleFeedMM   float64 `yaml:"obstacle_feed_distance_mm"`
	CruiseGains      Gains   `yaml:"cruise_gains"`
	Cruise           Bias    `yaml:"cruise"`
	BallStraight     int     `yaml:"ball_straight"`
	ObstacleStraight int     `yaml:"obstacle_straight"`
	Corner           Corner  `yaml:"corner"`
	NavigateLegs     bool    `yaml:"navigate_legs"`
	Waypoints        []Point `yaml:"waypoints"`
}

type BallLaunch struct {
	PivotGains    Gains   `yaml:"pivot_gains"`
	PivotRPM      float64 `yaml:"pivot_rpm"`
	PivotTicks    uint32  `yaml:"pivot_ticks"`
	Backward      Bias    `yaml:"backward"`
	BackwardMS    uint32  `yaml:"backward_ms"`
	PauseMS       uint32  `yaml:"pause_ms"`
	Forward       Bias    `yaml:"forward"`
	ForwardMS     uint32  `yaml:"forward_ms"`
	AlignDuty     uint8   `yaml:"align_duty"`
	AlignCW       bool    `yaml:"align_cw"`
	ConfirmMS     uint32  `yaml:"confirm_ms"`
	SpinUpMS      uint32  `yaml:"spin_up_ms"`
	ServoMS       uint32  `yaml:"servo_ms"`
	Feeds         int     `yaml:"feeds"`
	SpinDownMS    uint32  `yaml:"spin_down_ms"`
	ExitForward   Bias    `yaml:"exit_forward"`
	ExitForwardMS uint32  `yaml:"exit_forward_ms"`
	ExitRotateRPM float64 `yaml:"exit_rotate_rpm"`
	ExitRotateMS  uint32  `yaml:"exit_rotate_ms"`
}

type Obstacle struct {
	PivotGains     Gains   `yaml:"pivot_gains"`
	PivotRPM       float64 `yaml:"pivot_rpm"`
	PivotTicks     uint32  `yaml:"pivot_ticks"`
	Backward       Bias    `yaml:"backward"`
	BackwardMS     uint32  `yaml:"backward_ms"`
	CrossingDuty   uint8   `yaml:"crossing_duty"`
	ExitPivotTicks uint32  `yaml:"exit_pivot_ticks"`
}

type Navigation struct {
	HeadingToleranceDeg float64 `yaml:"heading_tolerance_deg"`
	ArrivalRadius       float64 `yaml:"arrival_radius"`
	OrientRPM           float64 `yaml:"orient_rpm"`
	DriveRPM            float64 `yaml:"drive_rpm"`
	WatchdogMS          uint32  `yaml:"watchdog_ms"`
}

type Dispatch struct {
	QueueSize int `yaml:"queue_size"`
}

type Config struct {
	Encoder    Encoder    `yaml:"encoder"`
	Motor      Motor      `yaml:"motor"`
	Racing     Racing     `yaml:"racing"`
	BallLaunch BallLaunch `yaml:"ball_launch"`
	Obstacle   Obstacle   `yaml:"obstacle"`
	Navigation Navigation `yaml:"navigation"`
	Dispatch   Dispatch   `yaml:"dispatch"`
}

// Default returns the calibrated constants.
func Default() Config {
	return Config{
		Encoder: Encoder{
			ClockHz:         40_000_000,
			PulsesPerRev:    28,
			StallMS:         150,
			SmoothingWindow: 1,
		},
		Motor: Motor{
			ControlPeriodUS: 1000,
			WheelDiameterMM: 94,
			StallFaultMS:    500,
			Default:         Gains{Kp: 0.05, Ki: 0.03, Kd: 0.03},
		},
		Racing: Racing{
			NormalGains:      Gains{Kp: 0.1, Ki: 0.5},
			NormalRPM:        500,
			NormalDistanceMM: 1000,
			FeedGains:        Gains{Kp: 0.05, Ki: 0.02},
			BallFeedRPM:      200,
			BallFeedMM:       1000,
			ObstacleFeedRPM:  200,
			ObstacleFeedMM:   1250,
			CruiseGains:      Gains{Kp: 0.05, Ki: 0.02},
			Cruise:           Bias{Left: 105, Right: 100},
			BallStraight:     2,
			ObstacleStraight: 3,
			Corner: Corner{
				BackoffRPM:      100,
				BackoffMS:       25,
				PivotRPM:        150,
				PivotTicks:      18,
				ReturnBackoffMS: 150,
			},
			Waypoints: []Point{{X: 200, Y: 30}, {X: 105, Y: 30}, {X: 105, Y: 145}, {X: 215, Y: 145}},
		},
		BallLaunch: BallLaunch{
			PivotGains:    Gains{Kp: 0.03, Ki: 0.15},
			PivotRPM:      40,
			PivotTicks:    8,
			Backward:      Bias{Left: 100, Right: 100},
			BackwardMS:    150,
			PauseMS:       50,
			Forward:       Bias{Left: 100, Right: 100},
			ForwardMS:     125,
			AlignDuty:     30,
			AlignCW:       true,
			ConfirmMS:     30,
			SpinUpMS:      1000,
			ServoMS:       1000,
			Feeds:         2,
			SpinDownMS:    500,
			ExitForward:   Bias{Left: 100, Right: 100},
			ExitForwardMS: 150,
			ExitRotateRPM: 40,
			ExitRotateMS:  60,
		},
		Obstacle: Obstacle{
			PivotGains:     Gains{Kp: 0.03, Ki: 0.15},
			PivotRPM:       100,
			PivotTicks:     20,
			Backward:       Bias{Left: 100, Right: 100},
			BackwardMS:     100,
			CrossingDuty:   80,
			ExitPivotTicks: 10,
		},
		Navigation: Navigation{
			HeadingToleranceDeg: 15,
			ArrivalRadius:       10,
			OrientRPM:           40,
			DriveRPM:            100,
			WatchdogMS:          2000,
		},
		Dispatch: Dispatch{QueueSize: 64},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("yaml unmarshal %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

var ErrInvalid = errors.New("invalid config")

// Validate reports every nonsensical value at once.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Encoder.ClockHz == 0 {
		bad("encoder.clock_hz must be positive")
	}
	if c.Encoder.PulsesPerRev == 0 {
		bad("encoder.pulses_per_rev must be positive")
	}
	if c.Encoder.SmoothingWindow < 1 {
		bad("encoder.smoothing_window must be at least 1")
	}
	if c.Motor.ControlPeriodUS <= 0 {
		bad("motor.control_period_us must be positive")
	}
	if c.Motor.WheelDiameterMM <= 0 {
		bad("motor.wheel_diameter_mm must be positive")
	}
	for _, n := range []struct {
		name string
		leg  int
	}{{"racing.ball_straight", c.Racing.BallStraight}, {"racing.obstacle_straight", c.Racing.ObstacleStraight}} {
		if n.leg < 1 || n.leg > 4 {
			bad("%s must be in 1..4, got %d", n.name, n.leg)
		}
	}
	if c.Racing.BallStraight == c.Racing.ObstacleStraight {
		bad("racing.ball_straight and racing.obstacle_straight must differ")
	}
	if c.Racing.NavigateLegs && len(c.Racing.Waypoints) != 4 {
		bad("racing.waypoints needs 4 entries when navigate_legs is set, got %d", len(c.Racing.Waypoints))
	}
	if c.BallLaunch.AlignDuty > 100 || c.Obstacle.CrossingDuty > 100 {
		bad("duty cycles must be within 0..100")
	}
	if c.BallLaunch.Feeds < 1 {
		bad("ball_launch.feeds must be at least 1")
	}
	if tol := c.Navigation.HeadingToleranceDeg; tol <= 0 || tol >= 180 {
		bad("navigation.heading_tolerance_deg must be within (0, 180), got %g", tol)
	}
	if c.Navigation.ArrivalRadius <= 0 {
		bad("navigation.arrival_radius must be positive")
	}
	if c.Dispatch.QueueSize <= 0 {
		bad("dispatch.queue_size must be positive")
	}
	return errors.Join(errs...)
}

// ControlPeriod is the motor control tick as a duration.
func (c Config) ControlPeriod() time.Duration {
	return time.Duration(c.Motor.ControlPeriodUS) * time.Microsecond
}
