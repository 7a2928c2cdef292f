package inventory

import "errors"

var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrNoTicketsGiven = errors.New("no ticket numbers given")
)
