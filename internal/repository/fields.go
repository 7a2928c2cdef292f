package repository

import (
	"time"

	"github.com/huynhbt/raffle-go/internal/domain"
)

// TransitionFields carries the column values a status transition writes along
// with the status itself. Buyer and LockedAt are tri-state: nil leaves the
// column untouched, a value writes it, and the Clear flags null it out.
type TransitionFields struct {
	Buyer         *domain.Buyer
	ClearBuyer    bool
	LockedAt      *time.Time
	ClearLockedAt bool
}

// LockFields marks tickets as locked at the given instant.
func LockFields(lockedAt time.Time) TransitionFields {
	return TransitionFields{LockedAt: &lockedAt}
}

// SoldFields attaches buyer info; locked_at is left as-is and ignored for sold
// tickets.
func SoldFields(buyer domain.Buyer) TransitionFields {
	return TransitionFields{Buyer: &buyer}
}

// AvailableFields clears everything a reservation or sale ever set.
func AvailableFields() TransitionFields {
	return TransitionFields{ClearBuyer: true, ClearLockedAt: true}
}
