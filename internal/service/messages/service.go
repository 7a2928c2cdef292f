package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/huynhbt/raffle-go/internal/domain"
	postgresrepo "github.com/huynhbt/raffle-go/internal/repository/postgres"
)

var ErrIncompleteMessage = errors.New("name, phone and message are required")

type Service struct {
	store *postgresrepo.Store
}

func New(store *postgresrepo.Store) *Service {
	return &Service{store: store}
}

// Submit stores a visitor message. Non-public messages are kept for the
// organizers only.
func (s *Service) Submit(ctx context.Context, name, phone, text string, public bool) (int64, error) {
	const op = "service.messages.Submit"

	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)
	text = strings.TrimSpace(text)

	if name == "" || phone == "" || text == "" {
		return 0, fmt.Errorf("%s:%w", op, ErrIncompleteMessage)
	}

	id, err := s.store.Messages().Create(ctx, domain.Message{
		Name:     name,
		Phone:    phone,
		Message:  text,
		IsPublic: public,
	})
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return id, nil
}

// ListPublic returns the newest public messages.
func (s *Service) ListPublic(ctx context.Context, limit int) ([]domain.Message, error) {
	const op = "service.messages.ListPublic"

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	msgs, err := s.store.Messages().ListPublic(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return msgs, nil
}
