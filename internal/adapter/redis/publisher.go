// Package redis publishes served predictions on a Redis pub/sub channel so
// dashboards can follow them live.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/couchcryptid/air-quality-model/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel predictions are published on.
const DefaultChannel = "airquality:predictions"

// publisher is the subset of the go-redis client the sink needs.
type publisher interface {
	Publish(ctx context.Context, channel string, message any) *goredis.IntCmd
}

// Publisher is a prediction sink backed by Redis PUBLISH.
type Publisher struct {
	client  publisher
	channel string
}

// Dial parses a redis:// URL and verifies the server responds.
func Dial(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck,gosec // ping error takes precedence
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// NewPublisher creates a sink publishing on channel (DefaultChannel when empty).
func NewPublisher(client publisher, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: client, channel: channel}
}

// Append publishes each record as one JSON message.
func (p *Publisher) Append(ctx context.Context, records []domain.PredictionRecord) error {
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal prediction: %w", err)
		}
		if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
			return fmt.Errorf("redis publish %s: %w", p.channel, err)
		}
	}
	return nil
}
