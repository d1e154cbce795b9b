// Package settingscache keeps channel settings in Redis in front of the settings repository.
// Every submitted image reads the settings of its channel, writes are rare.
package settingscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/UnendingLoop/Watermarker/internal/model"
	"github.com/UnendingLoop/Watermarker/internal/mwlogger"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "wm:settings:"

// SettingsRepo mirrors repository.SettingsRepo.
type SettingsRepo interface {
	Get(ctx context.Context, serverID, channelID string) (*model.ChannelSettings, error)
	UpsertWatermark(ctx context.Context, s *model.ChannelSettings) error
	UpsertOpacity(ctx context.Context, serverID, channelID string, opacity int) error
	Delete(ctx context.Context, serverID, channelID string) error
}

type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// entry is the cached form; ChannelSettings hides the object key from JSON.
type entry struct {
	WatermarkKey   string     `json:"wm_key"`
	WatermarkCType string     `json:"wm_ctype"`
	Opacity        int        `json:"opacity"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// CachedSettingsRepo is a read-through cache. Redis failures are logged and the call goes
// to the wrapped repository.
type CachedSettingsRepo struct {
	next   SettingsRepo
	client redisClient
	ttl    time.Duration
}

func New(next SettingsRepo, client redisClient, ttl time.Duration) *CachedSettingsRepo {
	return &CachedSettingsRepo{next: next, client: client, ttl: ttl}
}

func cacheKey(serverID, channelID string) string {
	return keyPrefix + serverID + ":" + channelID
}

func (c *CachedSettingsRepo) Get(ctx context.Context, serverID, channelID string) (*model.ChannelSettings, error) {
	logger := mwlogger.LoggerFromContext(ctx)
	key := cacheKey(serverID, channelID)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var e entry
		if err := json.Unmarshal(raw, &e); err == nil {
			return &model.ChannelSettings{
				ServerID:       serverID,
				ChannelID:      channelID,
				WatermarkKey:   e.WatermarkKey,
				WatermarkCType: e.WatermarkCType,
				Opacity:        e.Opacity,
				UpdatedAt:      e.UpdatedAt,
			}, nil
		}
		logger.Warn().Str("key", key).Msg("Dropping malformed settings cache entry")
	case !errors.Is(err, redis.Nil):
		logger.Warn().Err(err).Msg("Settings cache read failed")
	}

	res, err := c.next.Get(ctx, serverID, channelID)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(entry{
		WatermarkKey:   res.WatermarkKey,
		WatermarkCType: res.WatermarkCType,
		Opacity:        res.Opacity,
		UpdatedAt:      res.UpdatedAt,
	})
	if err == nil {
		err = c.client.Set(ctx, key, data, c.ttl).Err()
	}
	if err != nil {
		logger.Warn().Err(err).Msg("Settings cache write failed")
	}
	return res, nil
}

func (c *CachedSettingsRepo) UpsertWatermark(ctx context.Context, s *model.ChannelSettings) error {
	defer c.invalidate(ctx, s.ServerID, s.ChannelID)
	return c.next.UpsertWatermark(ctx, s)
}

func (c *CachedSettingsRepo) UpsertOpacity(ctx context.Context, serverID, channelID string, opacity int) error {
	defer c.invalidate(ctx, serverID, channelID)
	return c.next.UpsertOpacity(ctx, serverID, channelID, opacity)
}

func (c *CachedSettingsRepo) Delete(ctx context.Context, serverID, channelID string) error {
	defer c.invalidate(ctx, serverID, channelID)
	return c.next.Delete(ctx, serverID, channelID)
}

// invalidate runs after the write, so a concurrent Get can not re-cache the old row for long.
func (c *CachedSettingsRepo) invalidate(ctx context.Context, serverID, channelID string) {
	if err := c.client.Del(ctx, cacheKey(serverID, channelID)).Err(); err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Warn().Err(err).Msg("Settings cache invalidation failed")
	}
}
