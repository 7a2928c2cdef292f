package postgres

import (
	"context"
	"fmt"

	"github.com/huynhbt/raffle-go/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *MessageRepo) With(db DB) *MessageRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *MessageRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *MessageRepo) Create(ctx context.Context, m domain.Message) (int64, error) {
	const op = "postgres.MessageRepo.Create"

	db := r.handle()

	var id int64
	err := db.QueryRow(ctx,
		`INSERT INTO messages(name, phone, message, is_public)
         VALUES ($1, $2, $3, $4)
         RETURNING id`,
		m.Name, m.Phone, m.Message, m.IsPublic,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return id, nil
}

func (r *MessageRepo) ListPublic(ctx context.Context, limit int) ([]domain.Message, error) {
	const op = "postgres.MessageRepo.ListPublic"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, name, phone, message, is_public, created_at
         FROM messages
         WHERE is_public
         ORDER BY created_at DESC
         LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.Name, &m.Phone, &m.Message, &m.IsPublic, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return msgs, nil
}
