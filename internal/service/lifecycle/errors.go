package lifecycle

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoTicketsSelected  = errors.New("no tickets selected")
	ErrNoActiveLock       = errors.New("no active reservation")
	ErrMissingBuyerInfo   = errors.New("buyer name and phone are required")
	ErrReservationExpired = errors.New("reservation expired")
	ErrRateLimited        = errors.New("rate limited")
)

// TicketsUnavailableError reports the numbers that were already locked or sold
// when a lock was requested. Nothing was mutated; the caller must re-select.
type TicketsUnavailableError struct {
	Numbers []int
}

func (e *TicketsUnavailableError) Error() string {
	return fmt.Sprintf("tickets %v are no longer available", e.Numbers)
}

// TicketsNotFoundError reports numbers outside the inventory.
type TicketsNotFoundError struct {
	Numbers []int
}

func (e *TicketsNotFoundError) Error() string {
	return fmt.Sprintf("tickets %v not found", e.Numbers)
}

// RateLimitedError carries the suggested backoff.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }
