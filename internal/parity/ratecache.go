package parity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	connectordomain "github.com/staybridge/channelsync/internal/connector/domain"
	"go.uber.org/zap"
)

// RateCache keeps recently fetched advertised rates so repeated parity runs
// inside the TTL do not hammer channel APIs. Misses and redis failures both
// fall through to a live fetch.
type RateCache struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRateCache(client *redis.Client, log *zap.Logger) *RateCache {
	return &RateCache{client: client, log: log.Named("parity.ratecache")}
}

func rateKey(channelID snowflake.ID, channelRoomTypeID string, from, to time.Time) string {
	return fmt.Sprintf("parity:rates:%s:%s:%s:%s",
		channelID, channelRoomTypeID,
		from.Format("2006-01-02"), to.Format("2006-01-02"))
}

func (c *RateCache) Get(ctx context.Context, channelID snowflake.ID, channelRoomTypeID string, from, to time.Time) ([]connectordomain.ChannelRate, bool) {
	if c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, rateKey(channelID, channelRoomTypeID, from, to)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug("rate cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var rates []connectordomain.ChannelRate
	if err := json.Unmarshal(raw, &rates); err != nil {
		return nil, false
	}
	return rates, true
}

func (c *RateCache) Set(ctx context.Context, channelID snowflake.ID, channelRoomTypeID string, from, to time.Time, rates []connectordomain.ChannelRate, ttl time.Duration) {
	if c.client == nil {
		return
	}
	raw, err := json.Marshal(rates)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, rateKey(channelID, channelRoomTypeID, from, to), raw, ttl).Err(); err != nil {
		c.log.Debug("rate cache write failed", zap.Error(err))
	}
}
