package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/civic-desk/issue-sync/internal/domain"
	"github.com/civic-desk/issue-sync/internal/observability"
)

const (
	geocodeKeyPrefix = "issuesync:geo:"
	profileKeyPrefix = "issuesync:profile:"
)

// CachedGeocoder memoizes resolved addresses in Redis. Coordinates are rounded
// to five decimals (about one metre) for the key.
type CachedGeocoder struct {
	next    Geocoder
	client  *redis.Client
	ttl     time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
}

var _ Geocoder = (*CachedGeocoder)(nil)

// NewCachedGeocoder wraps next with a Redis cache.
func NewCachedGeocoder(next Geocoder, client *redis.Client, ttl time.Duration, logger *zap.Logger, metrics *observability.Metrics) *CachedGeocoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedGeocoder{next: next, client: client, ttl: ttl, logger: logger, metrics: metrics}
}

func geocodeKey(lat, lng float64) string {
	return fmt.Sprintf("%s%.5f,%.5f", geocodeKeyPrefix, lat, lng)
}

// ReverseGeocode serves from cache, falling through to the wrapped geocoder.
func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	key := geocodeKey(lat, lng)
	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		c.metrics.Inc(observability.CounterEnrichCacheHits)
		return cached, nil
	case !errors.Is(err, redis.Nil):
		c.logger.Debug("geocode cache read failed", zap.String("key", key), zap.Error(err))
	}

	value, err := c.next.ReverseGeocode(ctx, lat, lng)
	if err != nil || value == "" {
		return value, err
	}
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.logger.Debug("geocode cache write failed", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}

type cachedProfile struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone_no"`
}

// CachedProfiles memoizes found profiles in Redis as JSON.
type CachedProfiles struct {
	next    ProfileSource
	client  *redis.Client
	ttl     time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
}

var _ ProfileSource = (*CachedProfiles)(nil)

// NewCachedProfiles wraps next with a Redis cache.
func NewCachedProfiles(next ProfileSource, client *redis.Client, ttl time.Duration, logger *zap.Logger, metrics *observability.Metrics) *CachedProfiles {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProfiles{next: next, client: client, ttl: ttl, logger: logger, metrics: metrics}
}

// FindProfile serves from cache, falling through to the wrapped source.
// Misses are not cached so a profile created later is picked up.
func (c *CachedProfiles) FindProfile(ctx context.Context, userID string) (domain.Profile, error) {
	key := profileKeyPrefix + userID
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached cachedProfile
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			c.metrics.Inc(observability.CounterEnrichCacheHits)
			return domain.Profile{UserID: userID, FullName: cached.FullName, Phone: cached.Phone}, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Debug("profile cache read failed", zap.String("key", key), zap.Error(err))
	}

	profile, err := c.next.FindProfile(ctx, userID)
	if err != nil {
		return domain.Profile{}, err
	}
	payload, err := json.Marshal(cachedProfile{FullName: profile.FullName, Phone: profile.Phone})
	if err == nil {
		err = c.client.Set(ctx, key, payload, c.ttl).Err()
	}
	if err != nil {
		c.logger.Debug("profile cache write failed", zap.String("key", key), zap.Error(err))
	}
	return profile, nil
}
