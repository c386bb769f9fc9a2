// Package drs holds the race-status view of the kart: the record the DRS
// radio keeps current and the gamefield zone it lies in. The state machines
// only read it.
package drs

import (
	"fmt"
	"sync"
)

// Flag is the race flag broadcast by the DRS.
type Flag uint8

const (
	FlagWaiting Flag = iota
	FlagDropped
	FlagCaution
	FlagFinished
)

func (f Flag) String() string {
	switch f {
	case FlagWaiting:
		return "waiting"
	case FlagDropped:
		return "dropped"
	case FlagCaution:
		return "caution"
	case FlagFinished:
		return "finished"
	}
	return fmt.Sprintf("Flag(%d)", uint8(f))
}

// Kart is one kart's record as last reported.
type Kart struct {
	X, Y              float64
	Heading           float64 // degrees
	LapsRemaining     uint8
	ObstacleCompleted bool
	TargetSuccess     bool
	Flag              Flag
}

// Zone classifies the kart's position.
func (k Kart) Zone() Zone {
	return Classify(k.X, k.Y)
}

// Store is the shared record of this kart. The DRS collaborator writes it
// from its own goroutine; readers get a copy.
type Store struct {
	mu     sync.RWMutex
	kart   Kart
	notify func()
}

// NewStore returns a store that calls notify after every update, typically
// to post DRSUpdated. notify may be nil.
func NewStore(notify func()) *Store {
	return &Store{notify: notify}
}

func (s *Store) Kart() Kart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kart
}

// Set replaces the record.
func (s *Store) Set(k Kart) {
	s.Update(func(cur *Kart) { *cur = k })
}

// Update edits the record in place.
func (s *Store) Update(fn func(*Kart)) {
	s.mu.Lock()
	fn(&s.kart)
	s.mu.Unlock()
	if s.notify != nil {
		s.notify()
	}
}
