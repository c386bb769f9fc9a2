package sm

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/comalice/racekart"
	"github.com/comalice/racekart/internal/config"
	"github.com/comalice/racekart/internal/drs"
)

func TestBallLaunchingSequence(t *testing.T) {
	t.Parallel()

	r := newRig(t, config.Default(), onStraight2)
	r.send(racekart.RaceStarted)
	r.motion.take()
	r.send(racekart.MotorTimeout)
	r.expectStates(MasterPlaying, PlayingBallLaunching, BallEntry)
	r.expectMotion("stop", "cancel", "gains 0.03/0.15/0", "pivot ccw 40 8")

	ball := r.playing().BallLaunching()
	entry, launch, exit := ball.Chains()
	if entry.Position() != 0 {
		t.Fatalf("Expected entry chain at 0 on entry, got %d", entry.Position())
	}
	if entry.Timeouts() != 4 || launch.Timeouts() != 6 || exit.Timeouts() != 2 {
		t.Fatalf("Unexpected chain lengths %d/%d/%d", entry.Timeouts(), launch.Timeouts(), exit.Timeouts())
	}

	r.send(racekart.MotorTimeout, racekart.MotorTimeout, racekart.MotorTimeout)
	r.expectStates(MasterPlaying, PlayingBallLaunching, BallEntry)
	r.expectMotion("backward_bias 100/100 150", "stop", "wait 50", "forward_bias 100/100 125")
	r.send(racekart.MotorTimeout)
	r.expectStates(MasterPlaying, PlayingBallLaunching, IRAlign)
	r.expectMotion("cancel", "rotate_duty cw 30")

	// Only a confirmed sighting starts the launch.
	r.send(racekart.MotorTimeout, racekart.IRBeaconDetected, racekart.IRBeaconLost, racekart.MotorTimeout)
	r.expectStates(MasterPlaying, PlayingBallLaunching, IRAlign)
	r.expectMotion("wait 30", "cancel")
	r.send(racekart.IRBeaconDetected, racekart.MotorTimeout)
	r.expectStates(MasterPlaying, PlayingBallLaunching, Launch)
	r.expectMotion("wait 30", "cancel", "stop", "wait 1000")

	for i := 0; i < 5; i++ {
		r.send(racekart.MotorTimeout)
	}
	r.expectStates(MasterPlaying, PlayingBallLaunching, Launch)
	r.expectMotion("wait 1000", "wait 1000", "wait 1000", "wait 1000", "wait 500")
	want := []string{"shooter off", "shooter on", "servo forward", "servo reverse", "servo forward", "servo reverse", "shooter off"}
	if diff := cmp.Diff(want, r.launcher.log); diff != "" {
		t.Errorf("launcher mismatch (-want +got):\n%s", diff)
	}

	r.send(racekart.MotorTimeout)
	r.expectStates(MasterPlaying, PlayingBallLaunching, BallExit)
	r.expectMotion("cancel", "forward_bias 100/100 150")
	r.send(racekart.MotorTimeout)
	r.expectMotion("rotate ccw 40 60")

	r.run(racekart.MotorTimeout)
	if len(r.posted) != 1 || r.posted[0].Kind != racekart.BallLaunchingExit {
		t.Fatalf("Expected BallLaunchingExit posted, got %v", r.posted)
	}
	r.flush()
	r.expectStates(MasterPlaying, PlayingRacing, Straight)
	if r.racing().CurrentStraight() != 2 {
		t.Errorf("Expected to resume Straight2, got %d", r.racing().CurrentStraight())
	}
	// Resuming the leg after the launch cruises to the wall.
	r.expectMotion("cancel", "gains 0.05/0.02/0", "forward_bias 105/100 0")
	if _, launch := r.racing().Flags(); launch {
		t.Error("Ball launch still armed after launching")
	}
}

func TestObstacleCrossingSequence(t *testing.T) {
	t.Parallel()

	r := newRig(t, config.Default(), onStraight3)
	r.send(racekart.RaceStarted)
	r.motion.take()
	r.send(racekart.MotorTimeout)
	r.expectStates(MasterPlaying, PlayingCrossingObstacle, ObstacleEntry)
	r.expectMotion("stop", "cancel", "gains 0.03/0.15/0", "pivot cw 100 20")

	entry, exit := r.playing().ObstacleCrossing().Chains()
	if entry.Timeouts() != 2 || exit.Timeouts() != 1 {
		t.Fatalf("Unexpected chain lengths %d/%d", entry.Timeouts(), exit.Timeouts())
	}

	r.send(racekart.MotorTimeout)
	r.expectMotion("backward_bias 100/100 100")
	r.send(racekart.MotorTimeout)
	r.expectStates(MasterPlaying, PlayingCrossingObstacle, Crossing)
	r.expectMotion("cancel", "forward_duty 80")

	// Crossing ends on the far wall, never on time.
	r.send(racekart.MotorTimeout)
	r.expectStates(MasterPlaying, PlayingCrossingObstacle, Crossing)
	r.send(racekart.BumpDetected)
	r.expectStates(MasterPlaying, PlayingCrossingObstacle, ObstacleExit)
	r.expectMotion("cancel", "stop", "gains 0.03/0.15/0", "pivot cw 100 10")

	r.run(racekart.MotorTimeout)
	if len(r.posted) != 1 || r.posted[0].Kind != racekart.ObstacleCrossingExit {
		t.Fatalf("Expected ObstacleCrossingExit posted, got %v", r.posted)
	}
	r.flush()
	r.expectStates(MasterPlaying, PlayingRacing, Straight)
	r.expectMotion("cancel", "gains 0.1/0.5/0", "forward_distance 500 1000")
	if r.racing().CurrentStraight() != 3 {
		t.Errorf("Expected Straight3, got %d", r.racing().CurrentStraight())
	}
}

func TestObstacleExitInsideAreaKeepsLeg(t *testing.T) {
	t.Parallel()

	r := newRig(t, config.Default(), onStraight3)
	r.send(racekart.RaceStarted, racekart.MotorTimeout)
	r.expectStates(MasterPlaying, PlayingCrossingObstacle, ObstacleEntry)

	k := drs.Kart{X: 200, Y: 60, Flag: drs.FlagDropped, ObstacleCompleted: true}
	if z := k.Zone(); z != drs.ObstacleCrossingArea {
		t.Fatalf("Expected the kart inside the obstacle area, got %s", z)
	}
	r.store.Set(k)
	r.motion.take()
	r.send(racekart.ObstacleCrossingExit)
	r.expectStates(MasterPlaying, PlayingRacing, Straight)
	if got := r.racing().CurrentStraight(); got != 3 {
		t.Errorf("Expected Straight3, got %d", got)
	}
	if cross, _ := r.racing().Flags(); cross {
		t.Error("Expected the crossing to stay done")
	}
	r.expectMotion("cancel", "gains 0.1/0.5/0", "forward_distance 500 1000")
}

func TestSideQuestStartKeys(t *testing.T) {
	t.Parallel()

	r := newRig(t, config.Default(), onStraight1)
	r.send(racekart.RaceStarted, racekart.ObstacleCrossingStart)
	r.expectStates(MasterPlaying, PlayingCrossingObstacle, ObstacleEntry)

	r.send(racekart.RaceFinished, racekart.RaceStarted, racekart.BallLaunchingStart)
	r.expectStates(MasterPlaying, PlayingBallLaunching, BallEntry)
}
