package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/civic-desk/issue-sync/internal/domain"
	"github.com/civic-desk/issue-sync/internal/observability"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, s
}

func TestCachedGeocoderServesRepeatLookups(t *testing.T) {
	client, s := setupTestRedis(t)
	metrics := observability.NewMetrics()

	var calls int
	next := geocoderFunc(func(context.Context, float64, float64) (string, error) {
		calls++
		return "Palasia, Indore", nil
	})
	cached := NewCachedGeocoder(next, client, time.Hour, nil, metrics)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		got, err := cached.ReverseGeocode(ctx, 22.72431, 75.88712)
		if err != nil || got != "Palasia, Indore" {
			t.Fatalf("lookup %d: got %q err=%v", i, got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one upstream call, got %d", calls)
	}
	if metrics.Counter(observability.CounterEnrichCacheHits) != 2 {
		t.Fatalf("expected two cache hits")
	}

	s.FastForward(2 * time.Hour)
	if _, err := cached.ReverseGeocode(ctx, 22.72431, 75.88712); err != nil {
		t.Fatalf("lookup after expiry: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected expiry to force an upstream call, got %d calls", calls)
	}
}

func TestCachedGeocoderSkipsEmptyResults(t *testing.T) {
	client, _ := setupTestRedis(t)

	var calls int
	next := geocoderFunc(func(context.Context, float64, float64) (string, error) {
		calls++
		return "", nil
	})
	cached := NewCachedGeocoder(next, client, time.Hour, nil, nil)
	_, _ = cached.ReverseGeocode(context.Background(), 1, 2)
	_, _ = cached.ReverseGeocode(context.Background(), 1, 2)
	if calls != 2 {
		t.Fatalf("empty results must not be cached, got %d calls", calls)
	}
}

func TestCachedProfilesDoesNotCacheMisses(t *testing.T) {
	client, s := setupTestRedis(t)

	var calls int
	next := profilesFunc(func(_ context.Context, userID string) (domain.Profile, error) {
		calls++
		if userID == "u1" {
			return domain.Profile{FullName: "Ravi Patel", Phone: "9111111111"}, nil
		}
		return domain.Profile{}, errors.New("profile not found")
	})
	cached := NewCachedProfiles(next, client, time.Hour, nil, nil)
	ctx := context.Background()

	if _, err := cached.FindProfile(ctx, "u1"); err != nil {
		t.Fatalf("FindProfile: %v", err)
	}
	got, err := cached.FindProfile(ctx, "u1")
	if err != nil || got.FullName != "Ravi Patel" {
		t.Fatalf("cached profile: %+v err=%v", got, err)
	}
	if !s.Exists(profileKeyPrefix + "u1") {
		t.Fatalf("expected profile to be stored in redis")
	}

	_, _ = cached.FindProfile(ctx, "u2")
	_, _ = cached.FindProfile(ctx, "u2")
	if calls != 3 {
		t.Fatalf("expected 3 upstream calls, got %d", calls)
	}
}
