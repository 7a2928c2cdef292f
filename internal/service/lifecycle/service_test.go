package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/huynhbt/raffle-go/internal/domain"
	"github.com/huynhbt/raffle-go/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is a mutex-guarded in-memory TicketStore with the same transition
// semantics as the postgres repository: all-or-nothing Transition, best-effort
// TransitionAny, cutoff-based sweep.
type memStore struct {
	mu      sync.Mutex
	tickets map[int]*domain.Ticket
}

func newMemStore(n int) *memStore {
	s := &memStore{tickets: make(map[int]*domain.Ticket, n)}
	for i := 1; i <= n; i++ {
		s.tickets[i] = &domain.Ticket{
			Number:    i,
			Status:    domain.TicketAvailable,
			UpdatedAt: time.Now().UTC(),
		}
	}
	return s
}

func (s *memStore) Fetch(_ context.Context, numbers []int) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Ticket
	var missing []int
	for _, n := range numbers {
		t, ok := s.tickets[n]
		if !ok {
			missing = append(missing, n)
			continue
		}
		out = append(out, *t)
	}
	if len(missing) > 0 {
		return nil, &repository.NotFoundError{Numbers: missing}
	}
	return out, nil
}

func (s *memStore) Transition(
	_ context.Context,
	numbers []int,
	from, to domain.TicketStatus,
	fields repository.TransitionFields,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var missing, conflicting []int
	for _, n := range numbers {
		t, ok := s.tickets[n]
		if !ok {
			missing = append(missing, n)
			continue
		}
		if t.Status != from {
			conflicting = append(conflicting, n)
		}
	}
	if len(missing) > 0 {
		return &repository.NotFoundError{Numbers: missing}
	}
	if len(conflicting) > 0 {
		return &repository.ConflictError{Numbers: conflicting}
	}

	for _, n := range numbers {
		s.apply(s.tickets[n], to, fields)
	}
	return nil
}

func (s *memStore) TransitionAny(
	_ context.Context,
	numbers []int,
	from, to domain.TicketStatus,
	fields repository.TransitionFields,
) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var moved int64
	for _, n := range numbers {
		t, ok := s.tickets[n]
		if !ok || t.Status != from {
			continue
		}
		s.apply(t, to, fields)
		moved++
	}
	return moved, nil
}

func (s *memStore) SweepExpiredLocks(_ context.Context, maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	var released int64
	for _, t := range s.tickets {
		if t.Status == domain.TicketLocked && t.LockedAt != nil && t.LockedAt.Before(cutoff) {
			s.apply(t, domain.TicketAvailable, repository.AvailableFields())
			released++
		}
	}
	return released, nil
}

func (s *memStore) apply(t *domain.Ticket, to domain.TicketStatus, fields repository.TransitionFields) {
	t.Status = to
	if fields.Buyer != nil {
		t.BuyerName = &fields.Buyer.Name
		t.BuyerPhone = &fields.Buyer.Phone
	}
	if fields.ClearBuyer {
		t.BuyerName = nil
		t.BuyerPhone = nil
	}
	if fields.LockedAt != nil {
		ts := *fields.LockedAt
		t.LockedAt = &ts
	}
	if fields.ClearLockedAt {
		t.LockedAt = nil
	}
	t.UpdatedAt = time.Now().UTC()
}

func (s *memStore) status(n int) domain.TicketStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickets[n].Status
}

func (s *memStore) backdate(n int, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	past := time.Now().UTC().Add(-d)
	s.tickets[n].LockedAt = &past
}

type stubQR struct {
	payload string
	err     error
	calls   int
}

func (q *stubQR) GenerateQR(context.Context, decimal.Decimal, string) (string, error) {
	q.calls++
	return q.payload, q.err
}

func newTestService(store TicketStore, qr QRProvider) *Service {
	return New(store, nil, nil, nil, qr, Config{
		LockWindow: 3 * time.Minute,
		UnitPrice:  decimal.NewFromInt(10000),
	})
}

func TestRequestLock(t *testing.T) {
	store := newMemStore(20)
	svc := newTestService(store, nil)
	sess := &domain.ReservationSession{ID: "s1"}

	info, err := svc.RequestLock(context.Background(), sess, []int{7, 3, 3, 7, 12}, "")
	require.NoError(t, err)

	assert.Equal(t, []int{3, 7, 12}, info.Numbers)
	assert.Equal(t, []int{3, 7, 12}, sess.Locked)
	assert.Equal(t, info.LockedAt.Add(3*time.Minute), info.ExpiresAt)

	for _, n := range []int{3, 7, 12} {
		assert.Equal(t, domain.TicketLocked, store.status(n))
	}
	assert.Equal(t, domain.TicketAvailable, store.status(4))
}

func TestRequestLockEmptySelection(t *testing.T) {
	svc := newTestService(newMemStore(5), nil)
	sess := &domain.ReservationSession{ID: "s1"}

	_, err := svc.RequestLock(context.Background(), sess, nil, "")
	assert.ErrorIs(t, err, ErrNoTicketsSelected)
}

func TestRequestLockUnknownNumbers(t *testing.T) {
	svc := newTestService(newMemStore(5), nil)
	sess := &domain.ReservationSession{ID: "s1"}

	_, err := svc.RequestLock(context.Background(), sess, []int{4, 999}, "")

	var notFound *TicketsNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, []int{999}, notFound.Numbers)
	assert.Empty(t, sess.Locked)
}

func TestRequestLockConflictNamesTickets(t *testing.T) {
	store := newMemStore(20)
	svc := newTestService(store, nil)

	first := &domain.ReservationSession{ID: "first"}
	_, err := svc.RequestLock(context.Background(), first, []int{5, 6}, "")
	require.NoError(t, err)

	second := &domain.ReservationSession{ID: "second"}
	_, err = svc.RequestLock(context.Background(), second, []int{4, 5, 6, 7}, "")

	var unavailable *TicketsUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.ElementsMatch(t, []int{5, 6}, unavailable.Numbers)

	// all-or-nothing: the free tickets in the losing request stay untouched
	assert.Equal(t, domain.TicketAvailable, store.status(4))
	assert.Equal(t, domain.TicketAvailable, store.status(7))
	assert.Empty(t, second.Locked)
}

func TestRequestLockReclaimsExpiredLock(t *testing.T) {
	store := newMemStore(10)
	svc := newTestService(store, nil)

	stale := &domain.ReservationSession{ID: "stale"}
	_, err := svc.RequestLock(context.Background(), stale, []int{2}, "")
	require.NoError(t, err)

	// 3m1s old: one second past the window
	store.backdate(2, 3*time.Minute+time.Second)

	fresh := &domain.ReservationSession{ID: "fresh"}
	info, err := svc.RequestLock(context.Background(), fresh, []int{2}, "")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, info.Numbers)
	assert.Equal(t, domain.TicketLocked, store.status(2))
}

func TestRequestLockConcurrentOverlap(t *testing.T) {
	store := newMemStore(50)
	svc := newTestService(store, nil)

	const actors = 16
	target := []int{10, 11, 12}

	var wg sync.WaitGroup
	winners := make(chan string, actors)
	for i := 0; i < actors; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			sess := &domain.ReservationSession{ID: string(rune('a' + id))}
			if _, err := svc.RequestLock(context.Background(), sess, target, ""); err == nil {
				winners <- sess.ID
			}
		}(i)
	}
	wg.Wait()
	close(winners)

	var count int
	for range winners {
		count++
	}
	assert.Equal(t, 1, count, "exactly one actor may win an overlapping set")
	for _, n := range target {
		assert.Equal(t, domain.TicketLocked, store.status(n))
	}
}

func TestRequestLockConcurrentDisjoint(t *testing.T) {
	store := newMemStore(40)
	svc := newTestService(store, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess := &domain.ReservationSession{ID: string(rune('a' + i))}
			numbers := []int{i*4 + 1, i*4 + 2, i*4 + 3, i*4 + 4}
			_, err := svc.RequestLock(context.Background(), sess, numbers, "")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err, "disjoint sets never conflict")
	}
	for n := 1; n <= 40; n++ {
		assert.Equal(t, domain.TicketLocked, store.status(n))
	}
}

func TestCheckout(t *testing.T) {
	store := newMemStore(10)
	svc := newTestService(store, nil)
	sess := &domain.ReservationSession{ID: "s1"}

	_, err := svc.RequestLock(context.Background(), sess, []int{1, 2, 3}, "")
	require.NoError(t, err)

	info, err := svc.Checkout(context.Background(), sess)
	require.NoError(t, err)

	assert.Len(t, info.Tickets, 3)
	assert.True(t, info.Amount.Equal(decimal.NewFromInt(30000)))
	assert.Positive(t, info.Remaining)
	assert.True(t, info.Remaining <= 3*time.Minute)
}

func TestCheckoutWithoutLock(t *testing.T) {
	svc := newTestService(newMemStore(5), nil)

	_, err := svc.Checkout(context.Background(), &domain.ReservationSession{ID: "s1"})
	assert.ErrorIs(t, err, ErrNoActiveLock)
}

func TestCheckoutExpired(t *testing.T) {
	store := newMemStore(10)
	svc := newTestService(store, nil)
	sess := &domain.ReservationSession{ID: "s1"}

	_, err := svc.RequestLock(context.Background(), sess, []int{8}, "")
	require.NoError(t, err)

	store.backdate(8, 3*time.Minute+time.Second)

	_, err = svc.Checkout(context.Background(), sess)
	assert.ErrorIs(t, err, ErrReservationExpired)
	assert.Empty(t, sess.Locked, "expired checkout drops the lock set")
	assert.Equal(t, domain.TicketAvailable, store.status(8), "expired lock is reclaimed")
}

func TestConfirmPurchase(t *testing.T) {
	store := newMemStore(10)
	qr := &stubQR{payload: "data:image/png;base64,QQ=="}
	svc := newTestService(store, qr)
	sess := &domain.ReservationSession{ID: "s1"}

	_, err := svc.RequestLock(context.Background(), sess, []int{5, 6, 7}, "")
	require.NoError(t, err)

	result, err := svc.ConfirmPurchase(context.Background(), sess, "Nguyen Van A", "0901234567")
	require.NoError(t, err)

	assert.Equal(t, []int{5, 6, 7}, result.Numbers)
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(30000)))
	assert.Equal(t, "data:image/png;base64,QQ==", result.QRDataURL)
	assert.Equal(t, 1, qr.calls)

	assert.Empty(t, sess.Locked)
	assert.Equal(t, []int{5, 6, 7}, sess.LastSold)

	store.mu.Lock()
	sold := store.tickets[5]
	assert.Equal(t, domain.TicketSold, sold.Status)
	require.NotNil(t, sold.BuyerName)
	assert.Equal(t, "Nguyen Van A", *sold.BuyerName)
	require.NotNil(t, sold.BuyerPhone)
	assert.Equal(t, "0901234567", *sold.BuyerPhone)
	store.mu.Unlock()
}

func TestConfirmPurchaseMissingBuyerInfo(t *testing.T) {
	svc := newTestService(newMemStore(5), nil)
	sess := &domain.ReservationSession{ID: "s1", Locked: []int{1}, LockedAt: time.Now()}

	_, err := svc.ConfirmPurchase(context.Background(), sess, "", "0901234567")
	assert.ErrorIs(t, err, ErrMissingBuyerInfo)
}

func TestConfirmPurchaseWithoutLock(t *testing.T) {
	svc := newTestService(newMemStore(5), nil)

	_, err := svc.ConfirmPurchase(context.Background(), &domain.ReservationSession{ID: "s1"}, "A", "0901")
	assert.ErrorIs(t, err, ErrNoActiveLock)
}

func TestConfirmPurchaseExpired(t *testing.T) {
	store := newMemStore(10)
	svc := newTestService(store, nil)
	sess := &domain.ReservationSession{ID: "s1"}

	_, err := svc.RequestLock(context.Background(), sess, []int{3, 4}, "")
	require.NoError(t, err)

	store.backdate(3, 3*time.Minute+time.Second)
	store.backdate(4, 3*time.Minute+time.Second)

	_, err = svc.ConfirmPurchase(context.Background(), sess, "Nguyen Van A", "0901234567")
	assert.ErrorIs(t, err, ErrReservationExpired)
	assert.Empty(t, sess.Locked)
	assert.Equal(t, domain.TicketAvailable, store.status(3))
	assert.Equal(t, domain.TicketAvailable, store.status(4))
}

func TestConfirmPurchaseQRFailureStillSells(t *testing.T) {
	store := newMemStore(10)
	qr := &stubQR{err: errors.New("upstream down")}
	svc := newTestService(store, qr)
	sess := &domain.ReservationSession{ID: "s1"}

	_, err := svc.RequestLock(context.Background(), sess, []int{9}, "")
	require.NoError(t, err)

	result, err := svc.ConfirmPurchase(context.Background(), sess, "Nguyen Van A", "0901234567")
	require.NoError(t, err, "a QR failure never blocks the sale")
	assert.Empty(t, result.QRDataURL)
	assert.Equal(t, domain.TicketSold, store.status(9))
}

func TestCancelLock(t *testing.T) {
	store := newMemStore(10)
	svc := newTestService(store, nil)
	sess := &domain.ReservationSession{ID: "s1"}

	_, err := svc.RequestLock(context.Background(), sess, []int{1, 2}, "")
	require.NoError(t, err)

	require.NoError(t, svc.CancelLock(context.Background(), sess))
	assert.Empty(t, sess.Locked)
	assert.Equal(t, domain.TicketAvailable, store.status(1))
	assert.Equal(t, domain.TicketAvailable, store.status(2))

	// repeating the cancel is a no-op
	require.NoError(t, svc.CancelLock(context.Background(), sess))
}

func TestCancelLockSkipsReclaimedTickets(t *testing.T) {
	store := newMemStore(10)
	svc := newTestService(store, nil)
	sess := &domain.ReservationSession{ID: "s1"}

	_, err := svc.RequestLock(context.Background(), sess, []int{1, 2}, "")
	require.NoError(t, err)

	// ticket 1 expired and was bought by someone else in the meantime
	store.backdate(1, 4*time.Minute)
	other := &domain.ReservationSession{ID: "other"}
	_, err = svc.RequestLock(context.Background(), other, []int{1}, "")
	require.NoError(t, err)
	_, err = svc.ConfirmPurchase(context.Background(), other, "Tran Thi B", "0907654321")
	require.NoError(t, err)

	require.NoError(t, svc.CancelLock(context.Background(), sess))
	assert.Empty(t, sess.Locked)
	assert.Equal(t, domain.TicketSold, store.status(1), "the new owner's sale survives")
	assert.Equal(t, domain.TicketAvailable, store.status(2))
}

func TestCancelSale(t *testing.T) {
	store := newMemStore(10)
	svc := newTestService(store, nil)
	sess := &domain.ReservationSession{ID: "s1"}

	_, err := svc.RequestLock(context.Background(), sess, []int{5, 6}, "")
	require.NoError(t, err)
	_, err = svc.ConfirmPurchase(context.Background(), sess, "Nguyen Van A", "0901234567")
	require.NoError(t, err)

	require.NoError(t, svc.CancelSale(context.Background(), sess))
	assert.Empty(t, sess.LastSold)

	store.mu.Lock()
	for _, n := range []int{5, 6} {
		tk := store.tickets[n]
		assert.Equal(t, domain.TicketAvailable, tk.Status)
		assert.Nil(t, tk.BuyerName)
		assert.Nil(t, tk.BuyerPhone)
		assert.Nil(t, tk.LockedAt)
	}
	store.mu.Unlock()

	// no remembered sale, nothing happens
	require.NoError(t, svc.CancelSale(context.Background(), sess))
}

func TestSweep(t *testing.T) {
	store := newMemStore(10)
	svc := newTestService(store, nil)

	sess := &domain.ReservationSession{ID: "s1"}
	_, err := svc.RequestLock(context.Background(), sess, []int{1, 2, 3}, "")
	require.NoError(t, err)

	store.backdate(1, 4*time.Minute)
	store.backdate(2, 4*time.Minute)

	released, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), released)
	assert.Equal(t, domain.TicketAvailable, store.status(1))
	assert.Equal(t, domain.TicketAvailable, store.status(2))
	assert.Equal(t, domain.TicketLocked, store.status(3), "in-window locks survive the sweep")
}

func TestFullRoundTrip(t *testing.T) {
	store := newMemStore(10)
	svc := newTestService(store, nil)
	sess := &domain.ReservationSession{ID: "s1"}
	ctx := context.Background()

	// lock -> cancel
	_, err := svc.RequestLock(ctx, sess, []int{5, 6, 7}, "")
	require.NoError(t, err)
	require.NoError(t, svc.CancelLock(ctx, sess))

	// lock -> confirm -> cancel sale
	_, err = svc.RequestLock(ctx, sess, []int{5, 6, 7}, "")
	require.NoError(t, err)
	_, err = svc.ConfirmPurchase(ctx, sess, "Nguyen Van A", "0901234567")
	require.NoError(t, err)
	require.NoError(t, svc.CancelSale(ctx, sess))

	// the tickets are lockable again by someone else
	other := &domain.ReservationSession{ID: "other"}
	_, err = svc.RequestLock(ctx, other, []int{5, 6, 7}, "")
	require.NoError(t, err)
}

type sweepFailStore struct {
	*memStore
	sweepErr error
}

func (s *sweepFailStore) SweepExpiredLocks(context.Context, time.Duration) (int64, error) {
	return 0, s.sweepErr
}

func TestRequestLockSurvivesSweepFailure(t *testing.T) {
	var logBuf bytes.Buffer
	store := &sweepFailStore{
		memStore: newMemStore(5),
		sweepErr: errors.New("store unavailable"),
	}
	svc := New(store, nil, nil, nil, nil, Config{
		LockWindow: 3 * time.Minute,
		UnitPrice:  decimal.NewFromInt(10000),
		Logger:     slog.New(slog.NewTextHandler(&logBuf, nil)),
	})
	sess := &domain.ReservationSession{ID: "s1"}

	_, err := svc.RequestLock(context.Background(), sess, []int{1}, "")
	require.NoError(t, err, "a failing opportunistic sweep must not block the lock")
	assert.Equal(t, domain.TicketLocked, store.status(1))
	assert.Contains(t, logBuf.String(), "pre-lock sweep failed")
}

func TestRemaining(t *testing.T) {
	svc := newTestService(newMemStore(1), nil)
	now := time.Now()

	assert.Equal(t, 3*time.Minute, svc.Remaining(now, now))
	assert.Equal(t, time.Duration(0), svc.Remaining(now.Add(-3*time.Minute-time.Second), now),
		"past-window remaining floors at zero")
	assert.Equal(t, 59*time.Second, svc.Remaining(now.Add(-2*time.Minute-time.Second), now))
}
