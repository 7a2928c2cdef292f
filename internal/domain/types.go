package domain

import "time"

type TicketStatus string

const (
	TicketAvailable TicketStatus = "AVAILABLE"
	TicketLocked    TicketStatus = "LOCKED"
	TicketSold      TicketStatus = "SOLD"
)

// Ticket is one of the fixed pool of numbered raffle tickets. The number is the
// identity; records are created once at inventory initialization and only mutated
// through status transitions.
type Ticket struct {
	Number     int          `json:"number"`
	Status     TicketStatus `json:"status"`
	BuyerName  *string      `json:"buyer_name,omitempty"`
	BuyerPhone *string      `json:"buyer_phone,omitempty"`
	LockedAt   *time.Time   `json:"locked_at,omitempty"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

type Buyer struct {
	Name  string
	Phone string
}

type TicketCounts struct {
	Available int64 `json:"available"`
	Locked    int64 `json:"locked"`
	Sold      int64 `json:"sold"`
	Total     int64 `json:"total"`
}

// Message is a public note left by a visitor on the fundraising page.
type Message struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Message   string    `json:"message"`
	IsPublic  bool      `json:"is_public"`
	CreatedAt time.Time `json:"created_at"`
}
