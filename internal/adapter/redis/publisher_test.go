package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/couchcryptid/air-quality-model/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	channel string
	payload []byte
}

type mockPublisher struct {
	msgs []published
	err  error
}

func (m *mockPublisher) Publish(ctx context.Context, channel string, message any) *goredis.IntCmd {
	cmd := goredis.NewIntCmd(ctx, "publish", channel, message)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	m.msgs = append(m.msgs, published{channel: channel, payload: message.([]byte)})
	cmd.SetVal(1)
	return cmd
}

func TestPublisher_PublishesJSONPerRecord(t *testing.T) {
	client := &mockPublisher{}
	p := NewPublisher(client, "")
	at := time.Date(2025, 5, 5, 10, 0, 0, 0, time.UTC)

	err := p.Append(context.Background(), []domain.PredictionRecord{
		{Timestamp: at, Lat: 4.7, Lon: -74.1, Target: "pm25", Value: 17.5, ModelVersion: "pm25-rf-01234567"},
		{Timestamp: at, Lat: 4.7, Lon: -74.1, Target: "no2", Value: 8, ModelVersion: "pm25-rf-01234567"},
	})
	require.NoError(t, err)
	require.Len(t, client.msgs, 2)
	assert.Equal(t, DefaultChannel, client.msgs[0].channel)

	var got map[string]any
	require.NoError(t, json.Unmarshal(client.msgs[0].payload, &got))
	assert.Equal(t, "pm25", got["target"])
	assert.Equal(t, 17.5, got["predicted_value"])
	assert.Equal(t, "2025-05-05T10:00:00Z", got["datetime_utc"])
}

func TestPublisher_ReturnsPublishError(t *testing.T) {
	p := NewPublisher(&mockPublisher{err: errors.New("connection refused")}, "custom")
	err := p.Append(context.Background(), []domain.PredictionRecord{{Target: "pm25"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "custom")
}
