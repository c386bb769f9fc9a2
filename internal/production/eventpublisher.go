package production

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/comalice/racekart"
	"github.com/comalice/racekart/internal/dispatch"
)

// Dispatched is one delivery observed on the dispatcher.
type Dispatched struct {
	Service string
	Event   racekart.Event
	At      time.Time
}

// ChannelPublisher forwards deliveries to a Go channel.
// Non-blocking publish with drop on backpressure.
type ChannelPublisher struct {
	ch      chan<- Dispatched
	dropped atomic.Uint64
}

// NewChannelPublisher creates a ChannelPublisher with the given output channel.
func NewChannelPublisher(ch chan<- Dispatched) *ChannelPublisher {
	return &ChannelPublisher{ch: ch}
}

func (p *ChannelPublisher) Publish(ctx context.Context, d Dispatched) error {
	select {
	case p.ch <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.dropped.Add(1)
		return nil
	}
}

// Dropped counts deliveries lost to a full channel.
func (p *ChannelPublisher) Dropped() uint64 {
	return p.dropped.Load()
}

func (p *ChannelPublisher) Close() error {
	close(p.ch)
	return nil
}

// Tap wraps svc so every event delivered to it is published first.
func Tap(name string, svc dispatch.Service, p *ChannelPublisher) dispatch.Service {
	return dispatch.ServiceFunc(func(evt racekart.Event) {
		_ = p.Publish(context.Background(), Dispatched{Service: name, Event: evt, At: time.Now()})
		svc.Run(evt)
	})
}
