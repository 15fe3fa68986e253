package redisx

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/douremember/go-descriptions-backend/internal/domain"
)

type pubClient interface {
	Publish(ctx context.Context, channel string, message any) *goredis.IntCmd
}

// Publisher sends notifications to a pub/sub channel as JSON.
type Publisher struct {
	rdb     pubClient
	channel string
}

// NewPublisher publishes on channel (default "descriptions.notifications").
func NewPublisher(rdb pubClient, channel string) *Publisher {
	if channel == "" {
		channel = "descriptions.notifications"
	}
	return &Publisher{rdb: rdb, channel: channel}
}

// Notify publishes n.
func (p *Publisher) Notify(ctx context.Context, n domain.Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, b).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}
	return nil
}
