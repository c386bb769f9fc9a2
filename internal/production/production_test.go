package production

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"

	"github.com/comalice/racekart"
	"github.com/comalice/racekart/internal/config"
	"github.com/comalice/racekart/internal/dispatch"
	"github.com/comalice/racekart/internal/sim"
)

func racingKart(t *testing.T, opts ...sim.KartOption) *sim.Kart {
	t.Helper()
	k, err := sim.NewKart(config.Default(), zerolog.Nop(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	k.Plant.Place(180, 10, 180)
	if err := k.Post(racekart.NewEvent(racekart.RaceStarted)); err != nil {
		t.Fatal(err)
	}
	k.Step(1)
	return k
}

func TestVisualizerExportDOT(t *testing.T) {
	t.Parallel()

	k := racingKart(t)
	dot := (&Visualizer{}).ExportDOT(k.Master.Machines())

	for _, want := range []string{
		"digraph Racekart {",
		`subgraph "cluster_master"`,
		`subgraph "cluster_racing"`,
		`"master.PLAYING" [label="PLAYING" style=filled fillcolor=lightgreen];`,
		`"racing.STRAIGHT" [label="STRAIGHT" style=filled fillcolor=lightgreen];`,
		`"master.PAUSED" -> "master.PLAYING" [label="RaceStarted (H)"];`,
		`"racing.STRAIGHT" -> "racing.CORNER" [label="BumpDetected"];`,
		`"racing.STRAIGHT" -> "racing.STRAIGHT" [label="MotorTimeout" style=dashed];`,
		`"playing.RACING" -> "racing.STRAIGHT" [label="" style=dotted];`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("Missing %s in:\n%s", want, dot)
		}
	}
	if n := strings.Count(dot, `"racing.STRAIGHT" -> "racing.STRAIGHT"`); n != 1 {
		t.Errorf("Expected internal transitions collapsed into one edge, got %d", n)
	}
	if strings.Contains(dot, "cluster_ball_launching") {
		t.Error("Inactive machine rendered")
	}
}

func TestVisualizerExportJSON(t *testing.T) {
	t.Parallel()

	k := racingKart(t)
	data, err := (&Visualizer{}).ExportJSON(k.Master.Machines())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"current": "STRAIGHT"`) {
		t.Errorf("Unexpected JSON %s", data)
	}
}

func TestYAMLPersisterRoundTrip(t *testing.T) {
	t.Parallel()

	k := racingKart(t)
	p, err := NewYAMLPersister(t.TempDir())
	if err != nil {
		t.Fatalf("NewYAMLPersister failed: %v", err)
	}
	snap := Capture("run", k.Master, k.Store.Kart(), k.Launcher.Launched())
	if snap.Straight != 1 || !snap.WillBallLaunch || !snap.WillCrossObstacle {
		t.Errorf("Unexpected race progress %+v", snap)
	}
	if snap.Kart.Zone != "Straight1" {
		t.Errorf("Expected zone Straight1, got %s", snap.Kart.Zone)
	}

	if err := p.Save(context.Background(), snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := p.Load(context.Background(), "run")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(snap, loaded, cmpopts.EquateApproxTime(0)); diff != "" {
		t.Errorf("snapshot mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestYAMLPersisterMissing(t *testing.T) {
	t.Parallel()

	p, err := NewYAMLPersister(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Load(context.Background(), "nope"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected ErrNotExist, got %v", err)
	}
}

func TestTapPublishesDeliveries(t *testing.T) {
	t.Parallel()

	ch := make(chan Dispatched, 64)
	pub := NewChannelPublisher(ch)
	racingKart(t, sim.WithServiceWrapper(func(name string, svc dispatch.Service) dispatch.Service {
		return Tap(name, svc, pub)
	}))

	select {
	case d := <-ch:
		if d.Service != "master" || d.Event.Kind != racekart.RaceStarted || d.At.IsZero() {
			t.Errorf("Unexpected delivery %+v", d)
		}
	default:
		t.Fatal("Expected the RaceStarted delivery to be published")
	}
}

func TestChannelPublisherDrops(t *testing.T) {
	t.Parallel()

	ch := make(chan Dispatched, 1)
	pub := NewChannelPublisher(ch)
	ctx := context.Background()
	for range 3 {
		if err := pub.Publish(ctx, Dispatched{Service: "master"}); err != nil {
			t.Fatal(err)
		}
	}
	if got := pub.Dropped(); got != 2 {
		t.Errorf("Expected 2 dropped, got %d", got)
	}
	_ = pub.Close()
	if _, ok := <-ch; !ok {
		t.Error("Expected the buffered delivery before close")
	}
}
