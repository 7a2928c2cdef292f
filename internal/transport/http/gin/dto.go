package httpgin

import (
	"time"

	"github.com/huynhbt/raffle-go/internal/domain"
	"github.com/huynhbt/raffle-go/internal/service/lifecycle"
)

type LockTicketsRequest struct {
	Numbers []int `json:"numbers" binding:"required,min=1,dive,gt=0"`
}

type ConfirmPurchaseRequest struct {
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone" binding:"required"`
}

type SubmitMessageRequest struct {
	Name     string `json:"name" binding:"required"`
	Phone    string `json:"phone" binding:"required"`
	Message  string `json:"message" binding:"required"`
	IsPublic *bool  `json:"is_public"`
}

type TicketNumbersRequest struct {
	Numbers []int `json:"numbers" binding:"required,min=1,dive,gt=0"`
}

type MarkSoldRequest struct {
	Numbers []int  `json:"numbers" binding:"required,min=1,dive,gt=0"`
	Name    string `json:"name" binding:"required"`
	Phone   string `json:"phone" binding:"required"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Numbers []int  `json:"numbers,omitempty"`
	Expired bool   `json:"expired,omitempty"`
}

type LockTicketsResponse struct {
	Numbers      []int     `json:"numbers"`
	LockedAt     time.Time `json:"locked_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	RemainingSec int64     `json:"remaining_sec"`
}

type CheckoutResponse struct {
	Tickets      []domain.Ticket `json:"tickets"`
	TotalAmount  string          `json:"total_amount"`
	ExpiresAt    time.Time       `json:"expires_at"`
	RemainingSec int64           `json:"remaining_sec"`
}

type PurchaseResponse struct {
	Numbers     []int  `json:"numbers"`
	TotalAmount string `json:"total_amount"`
	QRDataURL   string `json:"qr_data_url,omitempty"`
}

type CancelResponse struct {
	Released int64 `json:"released"`
}

type SubmitMessageResponse struct {
	MessageID int64 `json:"message_id"`
}

type CountResponse struct {
	Affected int64 `json:"affected"`
}

func lockResponse(info *lifecycle.LockInfo, now time.Time) LockTicketsResponse {
	return LockTicketsResponse{
		Numbers:      info.Numbers,
		LockedAt:     info.LockedAt,
		ExpiresAt:    info.ExpiresAt,
		RemainingSec: int64(info.ExpiresAt.Sub(now).Seconds()),
	}
}

func checkoutResponse(info *lifecycle.CheckoutInfo) CheckoutResponse {
	return CheckoutResponse{
		Tickets:      info.Tickets,
		TotalAmount:  info.Amount.String(),
		ExpiresAt:    info.ExpiresAt,
		RemainingSec: int64(info.Remaining.Seconds()),
	}
}
