package production

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/comalice/racekart/internal/drs"
	"github.com/comalice/racekart/internal/sm"
)

// Snapshot records where a run left the kart.
type Snapshot struct {
	Name              string        `yaml:"name"`
	Timestamp         time.Time     `yaml:"timestamp"`
	Active            []MachineView `yaml:"active"`
	Straight          int           `yaml:"straight"`
	WillCrossObstacle bool          `yaml:"will_cross_obstacle"`
	WillBallLaunch    bool          `yaml:"will_ball_launch"`
	Kart              KartView      `yaml:"kart"`
	BallsLaunched     int           `yaml:"balls_launched"`
}

type KartView struct {
	X             float64 `yaml:"x"`
	Y             float64 `yaml:"y"`
	Heading       float64 `yaml:"heading"`
	Zone          string  `yaml:"zone"`
	Flag          string  `yaml:"flag"`
	LapsRemaining uint8   `yaml:"laps_remaining"`
}

// Capture takes a snapshot of the hierarchy and the last kart record.
func Capture(name string, ms *sm.Master, k drs.Kart, launched int) Snapshot {
	racing := ms.Playing().Racing()
	willCross, willBall := racing.Flags()
	return Snapshot{
		Name:              name,
		Timestamp:         time.Now(),
		Active:            Describe(ms.Machines()),
		Straight:          racing.CurrentStraight(),
		WillCrossObstacle: willCross,
		WillBallLaunch:    willBall,
		Kart: KartView{
			X:             k.X,
			Y:             k.Y,
			Heading:       k.Heading,
			Zone:          k.Zone().String(),
			Flag:          k.Flag.String(),
			LapsRemaining: k.LapsRemaining,
		},
		BallsLaunched: launched,
	}
}

// YAMLPersister is a file-based persister for snapshots.
type YAMLPersister struct {
	dir string
}

// NewYAMLPersister creates a YAMLPersister, ensuring the directory exists.
func NewYAMLPersister(dir string) (*YAMLPersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &YAMLPersister{dir: dir}, nil
}

func (p *YAMLPersister) Save(ctx context.Context, snapshot Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}

	fn := filepath.Join(p.dir, snapshot.Name+".yaml")
	if err := os.WriteFile(fn, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", fn, err)
	}
	return nil
}

func (p *YAMLPersister) Load(ctx context.Context, name string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	fn := filepath.Join(p.dir, name+".yaml")
	data, err := os.ReadFile(fn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, fmt.Errorf("snapshot %q: %w", name, os.ErrNotExist)
		}
		return Snapshot{}, fmt.Errorf("read %s: %w", fn, err)
	}

	var snapshot Snapshot
	if err := yaml.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("yaml unmarshal: %w", err)
	}
	snapshot.Name = name // Ensure name
	return snapshot, nil
}
