package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/huynhbt/raffle-go/internal/domain"
	"github.com/huynhbt/raffle-go/internal/monitoring"
	"github.com/huynhbt/raffle-go/internal/repository"
	redisrepo "github.com/huynhbt/raffle-go/internal/repository/redis"
	"github.com/shopspring/decimal"
)

// TicketStore is the slice of the inventory store the controller drives. All
// coordination between concurrent reservations happens behind these calls; the
// controller itself holds no shared mutable state.
type TicketStore interface {
	Fetch(ctx context.Context, numbers []int) ([]domain.Ticket, error)
	Transition(ctx context.Context, numbers []int, from, to domain.TicketStatus, fields repository.TransitionFields) error
	TransitionAny(ctx context.Context, numbers []int, from, to domain.TicketStatus, fields repository.TransitionFields) (int64, error)
	SweepExpiredLocks(ctx context.Context, maxAge time.Duration) (int64, error)
}

// QRProvider produces a renderable payment QR payload for an amount in VND.
type QRProvider interface {
	GenerateQR(ctx context.Context, amount decimal.Decimal, addInfo string) (string, error)
}

type Config struct {
	// LockWindow is the reservation time-to-live. A LOCKED ticket past this
	// window is logically AVAILABLE even before a sweep runs.
	LockWindow time.Duration
	// UnitPrice is the per-ticket price in VND.
	UnitPrice decimal.Decimal
	// Logger receives hot-path warnings (a failing opportunistic sweep).
	// Defaults to slog.Default().
	Logger *slog.Logger
}

// Service enforces the reservation state machine:
// AVAILABLE -> LOCKED -> SOLD, with reverse edges for expiry and the two
// compensating cancellations. Session state is handed in by the caller and
// mutated in place; the service never touches session storage.
type Service struct {
	store   TicketStore
	cache   *redisrepo.Cache
	pubsub  *redisrepo.TicketsPubSub
	limiter *redisrepo.Limiter
	qr      QRProvider
	log     *slog.Logger
	cfg     Config
}

func New(
	store TicketStore,
	cache *redisrepo.Cache,
	pubsub *redisrepo.TicketsPubSub,
	limiter *redisrepo.Limiter,
	qr QRProvider,
	cfg Config,
) *Service {
	if cfg.LockWindow <= 0 {
		cfg.LockWindow = 3 * time.Minute
	}

	if cfg.UnitPrice.IsZero() {
		cfg.UnitPrice = decimal.NewFromInt(10000)
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Service{
		store:   store,
		cache:   cache,
		pubsub:  pubsub,
		limiter: limiter,
		qr:      qr,
		log:     cfg.Logger,
		cfg:     cfg,
	}
}

// LockInfo describes a freshly acquired reservation.
type LockInfo struct {
	Numbers   []int
	LockedAt  time.Time
	ExpiresAt time.Time
}

// CheckoutInfo is what the checkout page needs for an active reservation.
type CheckoutInfo struct {
	Tickets   []domain.Ticket
	Amount    decimal.Decimal
	LockedAt  time.Time
	ExpiresAt time.Time
	Remaining time.Duration
}

// PurchaseResult is the outcome of a confirmed purchase. QRDataURL is empty
// when the QR collaborator failed; the sale is committed either way.
type PurchaseResult struct {
	Numbers   []int
	Amount    decimal.Decimal
	QRDataURL string
}

// RequestLock atomically transitions the requested tickets from AVAILABLE to
// LOCKED and records them as the actor's active lock set. On conflict nothing
// is mutated and the error names the unavailable numbers.
//
// Returns:
//   - *lifecycle.TicketsUnavailableError if any ticket is locked or sold.
//   - *lifecycle.TicketsNotFoundError if any number has no record.
//   - *lifecycle.RateLimitedError when the actor exceeds the lock-request
//     budget.
func (s *Service) RequestLock(
	ctx context.Context,
	sess *domain.ReservationSession,
	numbers []int,
	rlKey string,
) (*LockInfo, error) {
	const op = "service.lifecycle.RequestLock"

	numbers = normalizeNumbers(numbers)
	if len(numbers) == 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrNoTicketsSelected)
	}

	if s.limiter != nil && rlKey != "" {
		d, err := s.limiter.Allow(ctx, rlKey)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		if !d.Allowed {
			return nil, fmt.Errorf("%s:%w", op, &RateLimitedError{RetryAfter: d.RetryAfter})
		}
	}

	// Stale locks are logically available; reclaim them before the
	// availability check so a past-expiry LOCKED ticket can be re-locked.
	// A failing sweep is not fatal here, the conditional transition below
	// still decides the outcome.
	if released, err := s.store.SweepExpiredLocks(ctx, s.cfg.LockWindow); err != nil {
		s.log.WarnContext(ctx, "pre-lock sweep failed", "error", err)
	} else {
		monitoring.AddLocksSwept(released)
	}

	now := time.Now().UTC()

	err := s.store.Transition(
		ctx,
		numbers,
		domain.TicketAvailable,
		domain.TicketLocked,
		repository.LockFields(now),
	)
	if err != nil {
		var conflict *repository.ConflictError
		if errors.As(err, &conflict) {
			monitoring.RecordReservationOp("lock", "conflict")
			return nil, fmt.Errorf("%s:%w", op, &TicketsUnavailableError{Numbers: conflict.Numbers})
		}

		var notFound *repository.NotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%s:%w", op, &TicketsNotFoundError{Numbers: notFound.Numbers})
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	sess.Locked = numbers
	sess.LockedAt = now

	monitoring.RecordReservationOp("lock", "ok")
	s.notifyChanged(ctx, numbers)

	return &LockInfo{
		Numbers:   numbers,
		LockedAt:  now,
		ExpiresAt: s.ComputeExpiry(now),
	}, nil
}

// Checkout re-validates the actor's active lock set for the checkout page.
// Tickets that expired or were taken in the meantime surface as
// ErrReservationExpired; the session's lock set is cleared in that case.
func (s *Service) Checkout(ctx context.Context, sess *domain.ReservationSession) (*CheckoutInfo, error) {
	const op = "service.lifecycle.Checkout"

	if !sess.HasLock() {
		return nil, fmt.Errorf("%s:%w", op, ErrNoActiveLock)
	}

	tickets, lockedAt, err := s.fetchLocked(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	remaining := s.Remaining(lockedAt, time.Now())
	if remaining <= 0 {
		s.expireReservation(ctx, sess)
		return nil, fmt.Errorf("%s:%w", op, ErrReservationExpired)
	}

	return &CheckoutInfo{
		Tickets:   tickets,
		Amount:    s.cfg.UnitPrice.Mul(decimal.NewFromInt(int64(len(tickets)))),
		LockedAt:  lockedAt,
		ExpiresAt: s.ComputeExpiry(lockedAt),
		Remaining: remaining,
	}, nil
}

// ConfirmPurchase transitions the actor's locked tickets to SOLD with the
// buyer's info, then asks the QR collaborator for a payment code best-effort.
// The reservation must still be inside its window; otherwise the lock set is
// cleared, a sweep is triggered for hygiene and ErrReservationExpired is
// returned.
func (s *Service) ConfirmPurchase(
	ctx context.Context,
	sess *domain.ReservationSession,
	buyerName, buyerPhone string,
) (*PurchaseResult, error) {
	const op = "service.lifecycle.ConfirmPurchase"

	if buyerName == "" || buyerPhone == "" {
		return nil, fmt.Errorf("%s:%w", op, ErrMissingBuyerInfo)
	}

	if !sess.HasLock() {
		return nil, fmt.Errorf("%s:%w", op, ErrNoActiveLock)
	}

	numbers := sess.Locked

	_, lockedAt, err := s.fetchLocked(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if s.Remaining(lockedAt, time.Now()) <= 0 {
		s.expireReservation(ctx, sess)
		monitoring.RecordReservationOp("confirm", "expired")
		return nil, fmt.Errorf("%s:%w", op, ErrReservationExpired)
	}

	err = s.store.Transition(
		ctx,
		numbers,
		domain.TicketLocked,
		domain.TicketSold,
		repository.SoldFields(domain.Buyer{Name: buyerName, Phone: buyerPhone}),
	)
	if err != nil {
		// A conflict here means the lock was reclaimed between the fetch and
		// the transition; to the buyer that is an expired reservation.
		if errors.Is(err, repository.ErrConflict) {
			s.expireReservation(ctx, sess)
			monitoring.RecordReservationOp("confirm", "expired")
			return nil, fmt.Errorf("%s:%w", op, ErrReservationExpired)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	sess.LastSold = numbers
	sess.ClearLock()

	monitoring.RecordReservationOp("confirm", "ok")
	s.notifyChanged(ctx, numbers)

	amount := s.cfg.UnitPrice.Mul(decimal.NewFromInt(int64(len(numbers))))

	result := &PurchaseResult{
		Numbers: numbers,
		Amount:  amount,
	}

	if s.qr != nil {
		payload, qrErr := s.qr.GenerateQR(ctx, amount, "Thanh Toan Tien Ve So "+buyerName)
		if qrErr != nil {
			monitoring.RecordQRFailure()
		} else {
			result.QRDataURL = payload
		}
	}

	return result, nil
}

// CancelLock releases the actor's locked tickets back to AVAILABLE. Tickets
// that already expired or were taken are skipped; the actor's lock set is
// cleared regardless, and repeating the call is a no-op.
func (s *Service) CancelLock(ctx context.Context, sess *domain.ReservationSession) error {
	const op = "service.lifecycle.CancelLock"

	if !sess.HasLock() {
		return nil
	}

	numbers := sess.Locked

	released, err := s.store.TransitionAny(
		ctx,
		numbers,
		domain.TicketLocked,
		domain.TicketAvailable,
		repository.AvailableFields(),
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	sess.ClearLock()

	monitoring.RecordReservationOp("cancel_lock", "ok")
	if released > 0 {
		s.notifyChanged(ctx, numbers)
	}

	return nil
}

// CancelSale is the compensating cancellation after a purchase: the actor's
// last-sold tickets revert to AVAILABLE with buyer info cleared. Idempotent.
func (s *Service) CancelSale(ctx context.Context, sess *domain.ReservationSession) error {
	const op = "service.lifecycle.CancelSale"

	if len(sess.LastSold) == 0 {
		return nil
	}

	numbers := sess.LastSold

	reverted, err := s.store.TransitionAny(
		ctx,
		numbers,
		domain.TicketSold,
		domain.TicketAvailable,
		repository.AvailableFields(),
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	sess.ClearLastSold()

	monitoring.RecordReservationOp("cancel_sale", "ok")
	if reverted > 0 {
		s.notifyChanged(ctx, numbers)
	}

	return nil
}

// Sweep reclaims stale locks. Read paths call it opportunistically; the app
// may also run it on a ticker.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	const op = "service.lifecycle.Sweep"

	released, err := s.store.SweepExpiredLocks(ctx, s.cfg.LockWindow)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	monitoring.AddLocksSwept(released)
	if released > 0 {
		s.notifyChanged(ctx, nil)
	}

	return released, nil
}

func (s *Service) ComputeExpiry(lockedAt time.Time) time.Time {
	return lockedAt.Add(s.cfg.LockWindow)
}

// Remaining returns how long the reservation is still valid, floored at zero.
func (s *Service) Remaining(lockedAt time.Time, now time.Time) time.Duration {
	return max(0, s.ComputeExpiry(lockedAt).Sub(now))
}

func (s *Service) LockWindow() time.Duration { return s.cfg.LockWindow }

func (s *Service) UnitPrice() decimal.Decimal { return s.cfg.UnitPrice }

// fetchLocked re-reads the session's lock set and requires every ticket to
// still be LOCKED. Any count mismatch with the remembered set is a hard
// error; a non-LOCKED ticket means the reservation is gone.
//
// The lock timestamp is taken from the first ticket: the whole set was locked
// in one transaction, so the values are identical within clock resolution.
func (s *Service) fetchLocked(
	ctx context.Context,
	sess *domain.ReservationSession,
) ([]domain.Ticket, time.Time, error) {
	tickets, err := s.store.Fetch(ctx, sess.Locked)
	if err != nil {
		var notFound *repository.NotFoundError
		if errors.As(err, &notFound) {
			sess.ClearLock()
			return nil, time.Time{}, &TicketsNotFoundError{Numbers: notFound.Numbers}
		}
		return nil, time.Time{}, err
	}

	for _, t := range tickets {
		if t.Status != domain.TicketLocked || t.LockedAt == nil {
			s.expireReservation(ctx, sess)
			return nil, time.Time{}, ErrReservationExpired
		}
	}

	return tickets, *tickets[0].LockedAt, nil
}

// expireReservation is the shared expired-path handling: sweep for hygiene and
// drop the actor's lock set.
func (s *Service) expireReservation(ctx context.Context, sess *domain.ReservationSession) {
	if released, err := s.store.SweepExpiredLocks(ctx, s.cfg.LockWindow); err != nil {
		s.log.WarnContext(ctx, "expiry sweep failed", "error", err)
	} else {
		monitoring.AddLocksSwept(released)
		if released > 0 {
			s.notifyChanged(ctx, nil)
		}
	}
	sess.ClearLock()
}

func (s *Service) notifyChanged(ctx context.Context, numbers []int) {
	if s.cache != nil {
		_ = s.cache.InvalidateTickets(ctx)
	}
	if s.pubsub != nil {
		_ = s.pubsub.PublishTicketsChanged(ctx, numbers)
	}
}

// normalizeNumbers sorts and deduplicates the requested set so the
// all-or-nothing row count check in the store lines up with the input.
func normalizeNumbers(numbers []int) []int {
	out := slices.Clone(numbers)
	slices.Sort(out)
	return slices.Compact(out)
}
