package motor

import (
	"github.com/rs/zerolog"

	"github.com/comalice/racekart"
	"github.com/comalice/racekart/internal/dispatch"
)

// Service turns the end of a drive command (drive timer expiry or travel
// target arrival) into a stop and a MotorTimeout for the state machines.
// The MotorTimeout is tagged with the drive generation left by that stop;
// any later command makes it stale.
type Service struct {
	drive *Drive
	post  func(racekart.Event)
	log   zerolog.Logger
}

// NewService returns the drive service. post delivers MotorTimeout to the
// state machines.
func NewService(drive *Drive, post func(racekart.Event), log zerolog.Logger) *Service {
	return &Service{drive: drive, post: post, log: log}
}

// Arrival is the controller's arrival callback: it queues the arrival on
// the dispatcher so it is handled on the dispatch goroutine.
func Arrival(post func(racekart.Event)) func(gen uint32) {
	return func(gen uint32) {
		post(racekart.Event{Kind: racekart.MotorTickTimeout, Tag: gen})
	}
}

func (s *Service) Run(evt racekart.Event) {
	switch evt.Kind {
	case racekart.Timeout:
		if dispatch.TimerID(evt.Param) != dispatch.DriveMotorTimer {
			return
		}
	case racekart.MotorTickTimeout:
		if !s.drive.ctrl.TicksCurrent(evt.Tag) {
			s.log.Debug().Stringer("event", evt).Msg("stale travel target dropped")
			return
		}
	default:
		return
	}
	s.drive.Stop()
	s.post(racekart.Event{Kind: racekart.MotorTimeout, Tag: s.drive.Generation()})
}
