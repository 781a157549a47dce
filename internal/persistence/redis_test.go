package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/civic-desk/issue-sync/internal/config"
)

func TestNewRedisConnects(t *testing.T) {
	s := miniredis.RunT(t)

	r := NewRedis(context.Background(), config.RedisConfig{Addr: s.Addr()}, zap.NewNop())
	defer r.Close()
	if !r.Enabled() {
		t.Fatalf("expected client to be configured")
	}
	if err := r.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestDisabledStoresReportNotConfigured(t *testing.T) {
	t.Parallel()

	r := NewRedis(context.Background(), config.RedisConfig{}, zap.NewNop())
	if r.Enabled() || !errors.Is(r.Ping(context.Background()), ErrNotConfigured) {
		t.Fatalf("expected disabled redis")
	}

	pg, err := NewPostgres(context.Background(), config.PostgresConfig{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPostgres without dsn: %v", err)
	}
	if pg.Enabled() || !errors.Is(pg.Ping(context.Background()), ErrNotConfigured) {
		t.Fatalf("expected disabled postgres")
	}
	pg.Close()
}
