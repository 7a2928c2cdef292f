package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/huynhbt/raffle-go/internal/domain"
	"github.com/huynhbt/raffle-go/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TicketRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *TicketRepo) With(db DB) *TicketRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *TicketRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// EnsureTickets makes sure tickets numbered 1..n exist. Existing records are
// left untouched, so the call is idempotent.
//
// Returns the number of records created.
func (r *TicketRepo) EnsureTickets(ctx context.Context, n int) (int64, error) {
	const op = "postgres.TicketRepo.EnsureTickets"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`INSERT INTO tickets(number, status)
         SELECT g, 'AVAILABLE'
         FROM generate_series(1, $1) AS g
         ON CONFLICT (number) DO NOTHING`,
		n,
	)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tag.RowsAffected(), nil
}

// Fetch returns the records for exactly the requested numbers, ordered by
// number.
//
// Returns:
//   - error: *repository.NotFoundError naming the missing numbers if any
//     requested number has no record.
func (r *TicketRepo) Fetch(ctx context.Context, numbers []int) ([]domain.Ticket, error) {
	const op = "postgres.TicketRepo.Fetch"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT number, status, buyer_name, buyer_phone, locked_at, updated_at
         FROM tickets
         WHERE number = ANY($1)
         ORDER BY number`,
		intArray(numbers),
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if len(tickets) != len(numbers) {
		found := make(map[int]bool, len(tickets))
		for _, t := range tickets {
			found[t.Number] = true
		}
		var missing []int
		for _, n := range numbers {
			if !found[n] {
				missing = append(missing, n)
			}
		}
		return nil, fmt.Errorf("%s:%w", op, &repository.NotFoundError{Numbers: missing})
	}

	return tickets, nil
}

// Transition atomically moves every requested ticket from one status to
// another, writing the given field values and bumping updated_at. The
// conditional update re-verifies the source status inside the transaction; if
// any ticket is not in it, the whole operation rolls back and the error names
// the offenders. This is the at-most-one-winner mechanism for racing lock
// requests: even under weaker isolation, two transactions cannot both match a
// row whose status one of them has already changed.
//
// Returns:
//   - error: *repository.NotFoundError if any number has no record.
//   - error: *repository.ConflictError naming the numbers not in fromStatus.
func (r *TicketRepo) Transition(
	ctx context.Context,
	numbers []int,
	from, to domain.TicketStatus,
	fields repository.TransitionFields,
) error {
	const op = "postgres.TicketRepo.Transition"

	if r.db != nil {
		if err := r.transitionCore(ctx, r.db, numbers, from, to, fields); err != nil {
			return fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer tx.Rollback(ctx)

	if err := r.transitionCore(ctx, tx, numbers, from, to, fields); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// TransitionAny is the best-effort variant used by compensating cancellations:
// it moves whichever of the requested tickets are still in fromStatus and
// skips the rest instead of failing. Returns the number of rows updated.
func (r *TicketRepo) TransitionAny(
	ctx context.Context,
	numbers []int,
	from, to domain.TicketStatus,
	fields repository.TransitionFields,
) (int64, error) {
	const op = "postgres.TicketRepo.TransitionAny"

	db := r.handle()

	sql, args := transitionSQL(numbers, &from, to, fields)
	tag, err := db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tag.RowsAffected(), nil
}

// ForceStatus sets the status and fields on the requested tickets regardless
// of their current status. Admin-only escape hatch mirroring the manual
// mark-sold / release actions.
func (r *TicketRepo) ForceStatus(
	ctx context.Context,
	numbers []int,
	to domain.TicketStatus,
	fields repository.TransitionFields,
) (int64, error) {
	const op = "postgres.TicketRepo.ForceStatus"

	db := r.handle()

	sql, args := transitionSQL(numbers, nil, to, fields)
	tag, err := db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tag.RowsAffected(), nil
}

// SweepExpiredLocks reverts every LOCKED ticket whose lock is older than
// maxAge back to AVAILABLE, clearing locked_at. Returns the count affected;
// side-effect-free when none qualify.
func (r *TicketRepo) SweepExpiredLocks(ctx context.Context, maxAge time.Duration) (int64, error) {
	const op = "postgres.TicketRepo.SweepExpiredLocks"

	db := r.handle()

	cutoff := time.Now().Add(-maxAge)

	tag, err := db.Exec(ctx,
		`UPDATE tickets
         SET status = 'AVAILABLE', locked_at = NULL, updated_at = now()
         WHERE status = 'LOCKED' AND locked_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tag.RowsAffected(), nil
}

// List returns tickets ordered by number. A non-positive limit returns the
// whole pool.
func (r *TicketRepo) List(ctx context.Context, limit, offset int) ([]domain.Ticket, error) {
	const op = "postgres.TicketRepo.List"

	db := r.handle()

	sql := `SELECT number, status, buyer_name, buyer_phone, locked_at, updated_at
            FROM tickets
            ORDER BY number`
	args := []any{}
	if limit > 0 {
		sql += ` LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tickets, nil
}

// CountsByStatus returns the pool-wide availability counters.
func (r *TicketRepo) CountsByStatus(ctx context.Context) (*domain.TicketCounts, error) {
	const op = "postgres.TicketRepo.CountsByStatus"

	db := r.handle()

	var c domain.TicketCounts
	err := db.QueryRow(ctx,
		`SELECT
            count(*) FILTER (WHERE status = 'AVAILABLE'),
            count(*) FILTER (WHERE status = 'LOCKED'),
            count(*) FILTER (WHERE status = 'SOLD'),
            count(*)
         FROM tickets`,
	).Scan(&c.Available, &c.Locked, &c.Sold, &c.Total)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &c, nil
}

func (r *TicketRepo) transitionCore(
	ctx context.Context,
	db DB,
	numbers []int,
	from, to domain.TicketStatus,
	fields repository.TransitionFields,
) error {
	sql, args := transitionSQL(numbers, &from, to, fields)

	rows, err := db.Query(ctx, sql+` RETURNING number`, args...)
	if err != nil {
		return err
	}

	updated := make(map[int]bool, len(numbers))
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return err
		}
		updated[n] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if len(updated) == len(numbers) {
		return nil
	}

	// Short row count: attribute the failure before the rollback. The
	// transaction sees its own writes, so the rows the UPDATE just moved must
	// be excluded from the re-read; of the rest, a present row failed the
	// status guard and an absent one has no record.
	rows, err = db.Query(ctx,
		`SELECT number FROM tickets WHERE number = ANY($1)`,
		intArray(numbers),
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	exists := make(map[int]bool, len(numbers))
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return err
		}
		exists[n] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	var missing, conflicting []int
	for _, n := range numbers {
		switch {
		case updated[n]:
		case !exists[n]:
			missing = append(missing, n)
		default:
			conflicting = append(conflicting, n)
		}
	}

	if len(missing) > 0 {
		return &repository.NotFoundError{Numbers: missing}
	}

	return &repository.ConflictError{Numbers: conflicting}
}

// transitionSQL builds the conditional batch UPDATE. from == nil drops the
// status guard (admin force).
func transitionSQL(
	numbers []int,
	from *domain.TicketStatus,
	to domain.TicketStatus,
	fields repository.TransitionFields,
) (string, []any) {
	var b strings.Builder
	args := []any{intArray(numbers), string(to)}

	b.WriteString(`UPDATE tickets SET status = $2, updated_at = now()`)

	switch {
	case fields.Buyer != nil:
		args = append(args, fields.Buyer.Name, fields.Buyer.Phone)
		b.WriteString(`, buyer_name = $` + strconv.Itoa(len(args)-1))
		b.WriteString(`, buyer_phone = $` + strconv.Itoa(len(args)))
	case fields.ClearBuyer:
		b.WriteString(`, buyer_name = NULL, buyer_phone = NULL`)
	}

	switch {
	case fields.LockedAt != nil:
		args = append(args, *fields.LockedAt)
		b.WriteString(`, locked_at = $` + strconv.Itoa(len(args)))
	case fields.ClearLockedAt:
		b.WriteString(`, locked_at = NULL`)
	}

	b.WriteString(` WHERE number = ANY($1)`)
	if from != nil {
		args = append(args, string(*from))
		b.WriteString(` AND status = $` + strconv.Itoa(len(args)))
	}

	return b.String(), args
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		var t domain.Ticket
		if err := rows.Scan(
			&t.Number, &t.Status, &t.BuyerName, &t.BuyerPhone, &t.LockedAt, &t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return tickets, nil
}

func intArray(numbers []int) []int32 {
	out := make([]int32, len(numbers))
	for i, n := range numbers {
		out[i] = int32(n)
	}
	return out
}
