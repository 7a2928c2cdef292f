package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/huynhbt/raffle-go/internal/domain"
	"github.com/huynhbt/raffle-go/internal/monitoring"
	"github.com/huynhbt/raffle-go/internal/repository"
	postgresrepo "github.com/huynhbt/raffle-go/internal/repository/postgres"
	redisrepo "github.com/huynhbt/raffle-go/internal/repository/redis"
	"github.com/huynhbt/raffle-go/internal/uow"
	"github.com/xuri/excelize/v2"
)

type Config struct {
	// TicketCount is the pool size ensured at initialization.
	TicketCount     int
	DefaultPageSize int
	MaxPageSize     int
	ListTTL         time.Duration
	AvailabilityTTL time.Duration
}

// Service owns inventory setup, read paths and the manual admin actions. The
// reservation state machine itself lives in the lifecycle service.
type Service struct {
	store  *postgresrepo.Store
	cache  *redisrepo.Cache
	pubsub *redisrepo.TicketsPubSub
	uow    *uow.UoW
	cfg    Config
}

func New(
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.TicketsPubSub,
	cfg Config,
) *Service {
	if cfg.TicketCount <= 0 {
		cfg.TicketCount = 500
	}

	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 100
	}

	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 500
	}

	if cfg.ListTTL <= 0 {
		cfg.ListTTL = 5 * time.Second
	}

	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = 5 * time.Second
	}

	return &Service{
		store:  store,
		cache:  cache,
		pubsub: pubsub,
		uow:    uow.NewUoW(store),
		cfg:    cfg,
	}
}

// EnsureTickets creates tickets 1..TicketCount if absent. Safe to invoke
// repeatedly; existing records are never altered.
func (s *Service) EnsureTickets(ctx context.Context) (int64, error) {
	const op = "service.inventory.EnsureTickets"

	var created int64

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		n, err := s.store.Tickets().With(tx).EnsureTickets(ctx, s.cfg.TicketCount)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		created = n

		if n > 0 {
			after(func(ctx context.Context) {
				s.invalidate(ctx, nil)
			})
		}
		return nil
	})

	return created, err
}

// PageSize clamps a requested page size to the configured bounds. Callers
// that derive offsets from the page size must use the clamped value, or page
// math and page contents drift apart.
func (s *Service) PageSize(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultPageSize
	}
	if limit > s.cfg.MaxPageSize {
		return s.cfg.MaxPageSize
	}
	return limit
}

// ListTickets returns one page of the pool, ordered by number. Pages are
// cached briefly; a transition invalidates them.
func (s *Service) ListTickets(ctx context.Context, limit, offset int) ([]domain.Ticket, error) {
	const op = "service.inventory.ListTickets"

	limit = s.PageSize(limit)

	if offset < 0 {
		offset = 0
	}

	key := redisrepo.KeyTicketPage(limit, offset)

	tickets, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.ListTTL,
		func(ctx context.Context) ([]domain.Ticket, error) {
			return s.store.Tickets().List(ctx, limit, offset)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return tickets, nil
}

// Counts returns the pool-wide availability counters.
func (s *Service) Counts(ctx context.Context) (*domain.TicketCounts, error) {
	const op = "service.inventory.Counts"

	counts, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyAvailability(),
		s.cfg.AvailabilityTTL,
		func(ctx context.Context) (domain.TicketCounts, error) {
			c, err := s.store.Tickets().CountsByStatus(ctx)
			if err != nil {
				return domain.TicketCounts{}, err
			}
			monitoring.SetTicketCounts(*c)
			return *c, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &counts, nil
}

// Ticket returns a single record by number.
func (s *Service) Ticket(ctx context.Context, number int) (*domain.Ticket, error) {
	const op = "service.inventory.Ticket"

	tickets, err := s.store.Tickets().Fetch(ctx, []int{number})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrTicketNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &tickets[0], nil
}

// Fetch returns the records for the given numbers.
func (s *Service) Fetch(ctx context.Context, numbers []int) ([]domain.Ticket, error) {
	const op = "service.inventory.Fetch"

	tickets, err := s.store.Tickets().Fetch(ctx, numbers)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return tickets, nil
}

// Release force-reverts tickets to AVAILABLE regardless of status, clearing
// buyer info and lock timestamps. Mirrors the manual "cancel and reopen"
// admin action.
func (s *Service) Release(ctx context.Context, numbers []int) (int64, error) {
	const op = "service.inventory.Release"

	if len(numbers) == 0 {
		return 0, fmt.Errorf("%s:%w", op, ErrNoTicketsGiven)
	}

	var affected int64

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		n, err := s.store.Tickets().With(tx).ForceStatus(
			ctx, numbers, domain.TicketAvailable, repository.AvailableFields(),
		)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		affected = n

		after(func(ctx context.Context) {
			s.invalidate(ctx, numbers)
		})
		return nil
	})

	return affected, err
}

// MarkSold force-marks tickets as SOLD with the given buyer. Used for sales
// that happen outside the web flow (cash in hand).
func (s *Service) MarkSold(ctx context.Context, numbers []int, buyer domain.Buyer) (int64, error) {
	const op = "service.inventory.MarkSold"

	if len(numbers) == 0 {
		return 0, fmt.Errorf("%s:%w", op, ErrNoTicketsGiven)
	}

	var affected int64

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		n, err := s.store.Tickets().With(tx).ForceStatus(
			ctx, numbers, domain.TicketSold, repository.TransitionFields{Buyer: &buyer},
		)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		affected = n

		after(func(ctx context.Context) {
			s.invalidate(ctx, numbers)
		})
		return nil
	})

	return affected, err
}

// Export renders the whole pool as an xlsx workbook.
func (s *Service) Export(ctx context.Context) (*excelize.File, error) {
	const op = "service.inventory.Export"

	tickets, err := s.store.Tickets().List(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	f := excelize.NewFile()
	const sheet = "Tickets"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Number", "Status", "Buyer Name", "Buyer Phone", "Locked At", "Updated At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for row, t := range tickets {
		values := []any{
			t.Number,
			string(t.Status),
			strOrEmpty(t.BuyerName),
			strOrEmpty(t.BuyerPhone),
			timeOrEmpty(t.LockedAt),
			t.UpdatedAt.Format(time.RFC3339),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	return f, nil
}

func (s *Service) invalidate(ctx context.Context, numbers []int) {
	if s.cache != nil {
		_ = s.cache.InvalidateTickets(ctx)
	}
	if s.pubsub != nil {
		_ = s.pubsub.PublishTicketsChanged(ctx, numbers)
	}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func timeOrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
