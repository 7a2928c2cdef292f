package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// TicketsPubSub broadcasts pool changes so interested listeners (a live
// availability page, a warming worker) can react without polling.
type TicketsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewTicketsPubSub(rdb *redis.Client) *TicketsPubSub {
	return &TicketsPubSub{
		rdb:     rdb,
		channel: ChannelTicketsChanged(),
	}
}

type ticketsChangedMsg struct {
	Type    string `json:"type"`
	Numbers []int  `json:"numbers,omitempty"`
	TsUnix  int64  `json:"ts_unix"`
}

func (p *TicketsPubSub) PublishTicketsChanged(ctx context.Context, numbers []int) error {
	msg := ticketsChangedMsg{
		Type:    "tickets_changed",
		Numbers: numbers,
		TsUnix:  time.Now().Unix(),
	}

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

func (p *TicketsPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, numbers []int)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev ticketsChangedMsg
			if err := json.Unmarshal([]byte(m.Payload), &ev); err == nil {
				handler(ctx, ev.Numbers)
			}
		}
	}
}
