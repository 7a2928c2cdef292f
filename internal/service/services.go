package service

import (
	postgres "github.com/huynhbt/raffle-go/internal/repository/postgres"
	redis "github.com/huynhbt/raffle-go/internal/repository/redis"
	"github.com/huynhbt/raffle-go/internal/service/inventory"
	"github.com/huynhbt/raffle-go/internal/service/lifecycle"
	"github.com/huynhbt/raffle-go/internal/service/messages"
)

type Services struct {
	Inventory *inventory.Service
	Lifecycle *lifecycle.Service
	Messages  *messages.Service
}

type Config struct {
	Inventory inventory.Config
	Lifecycle lifecycle.Config
}

func NewServices(
	store *postgres.Store,
	cache *redis.Cache,
	pubsub *redis.TicketsPubSub,
	limiter *redis.Limiter,
	qr lifecycle.QRProvider,
	cfg Config,
) *Services {
	return &Services{
		Inventory: inventory.New(store, cache, pubsub, cfg.Inventory),
		Lifecycle: lifecycle.New(store.Tickets(), cache, pubsub, limiter, qr, cfg.Lifecycle),
		Messages:  messages.New(store),
	}
}
