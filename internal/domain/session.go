package domain

import "time"

// ReservationSession is the per-actor ephemeral reservation state: the set of
// ticket numbers currently locked by the actor and, after a purchase, the set
// just sold (kept only to support a single compensating cancellation). It is a
// plain value handed to the lifecycle controller on each call; persistence is
// left to the surrounding session mechanism. Losing it is safe: locks expire on
// their own and sold tickets merely become uncancelable by that actor.
type ReservationSession struct {
	ID       string    `json:"id"`
	Locked   []int     `json:"locked,omitempty"`
	LockedAt time.Time `json:"locked_at,omitzero"`
	LastSold []int     `json:"last_sold,omitempty"`
}

func (s *ReservationSession) HasLock() bool {
	return len(s.Locked) > 0
}

func (s *ReservationSession) ClearLock() {
	s.Locked = nil
	s.LockedAt = time.Time{}
}

func (s *ReservationSession) ClearLastSold() {
	s.LastSold = nil
}
