package gateway

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/civic-desk/issue-sync/internal/domain"
	"github.com/civic-desk/issue-sync/internal/observability"
	apperrors "github.com/civic-desk/issue-sync/pkg/util/errorutil"
)

// Geocoder resolves a coordinate to a display address. An empty string with a
// nil error means the service answered but had nothing usable.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

// MediaSigner produces a time-limited URL for a complaint image. An empty
// string with a nil error means there is no media for the complaint.
type MediaSigner interface {
	SignedImageURL(ctx context.Context, userID, complaintID string) (string, error)
}

// ProfileSource looks up citizen profiles by user id.
type ProfileSource interface {
	FindProfile(ctx context.Context, userID string) (domain.Profile, error)
}

// Dependencies wires the gateway's collaborators.
type Dependencies struct {
	Geocoder    Geocoder
	Media       MediaSigner
	Profiles    ProfileSource
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	CallTimeout time.Duration
}

// Gateway wraps the three enrichment lookups behind a uniform contract: each
// call is bounded by CallTimeout and always yields a usable value. The error,
// when non-nil, is an EnrichmentTimeout or EnrichmentFailure describing why the
// fallback was used, or the caller's context error when the cycle was cancelled.
type Gateway struct {
	geocoder Geocoder
	media    MediaSigner
	profiles ProfileSource
	logger   *zap.Logger
	metrics  *observability.Metrics
	timeout  time.Duration
}

// New constructs a Gateway. Missing collaborators make the matching lookup
// return its fallback immediately.
func New(deps Dependencies) *Gateway {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := deps.CallTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Gateway{
		geocoder: deps.Geocoder,
		media:    deps.Media,
		profiles: deps.Profiles,
		logger:   logger.With(zap.String("component", "enrichment_gateway")),
		metrics:  deps.Metrics,
		timeout:  timeout,
	}
}

// Address resolves the display address for a coordinate.
func (g *Gateway) Address(ctx context.Context, lat, lng float64) (domain.Address, error) {
	if g.geocoder == nil {
		return domain.FallbackAddress(), nil
	}
	return call(ctx, g, domain.FieldAddress, domain.FallbackAddress(), func(ctx context.Context) (domain.Address, error) {
		value, err := g.geocoder.ReverseGeocode(ctx, lat, lng)
		if err != nil {
			return domain.Address{}, err
		}
		if value == "" {
			return domain.FallbackAddress(), nil
		}
		return domain.ResolvedAddress(value), nil
	})
}

// Images returns the signed image list for a complaint.
func (g *Gateway) Images(ctx context.Context, userID, complaintID string) ([]domain.Image, error) {
	if g.media == nil {
		return []domain.Image{}, nil
	}
	return call(ctx, g, domain.FieldImages, []domain.Image{}, func(ctx context.Context) ([]domain.Image, error) {
		url, err := g.media.SignedImageURL(ctx, userID, complaintID)
		if err != nil {
			return nil, err
		}
		if url == "" {
			return []domain.Image{}, nil
		}
		return []domain.Image{{URL: url, Caption: domain.DefaultCaption}}, nil
	})
}

// Submitter resolves the citizen profile for a user id.
func (g *Gateway) Submitter(ctx context.Context, userID string) (domain.Submitter, error) {
	fallback := domain.FallbackSubmitter(userID)
	if g.profiles == nil {
		return fallback, nil
	}
	return call(ctx, g, domain.FieldSubmitter, fallback, func(ctx context.Context) (domain.Submitter, error) {
		profile, err := g.profiles.FindProfile(ctx, userID)
		if err != nil {
			return domain.Submitter{}, err
		}
		sub := domain.Submitter{UserID: userID, Name: profile.FullName, Phone: profile.Phone, Resolved: true}
		if sub.Name == "" {
			sub.Name = domain.UnknownUser
		}
		if sub.Phone == "" {
			sub.Phone = domain.UnknownPhone
		}
		return sub, nil
	})
}

type result[T any] struct {
	value T
	err   error
}

// call runs fn under its own deadline. The lookup runs on its own goroutine so
// a collaborator that ignores ctx still cannot hold the caller past the deadline.
func call[T any](ctx context.Context, g *Gateway, field domain.EnrichedField, fallback T, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := fn(callCtx)
		done <- result[T]{value: v, err: err}
	}()

	var res result[T]
	select {
	case res = <-done:
	case <-callCtx.Done():
		res = result[T]{err: callCtx.Err()}
	}
	if res.err == nil {
		return res.value, nil
	}

	if ctx.Err() != nil {
		return fallback, ctx.Err()
	}

	var classified error
	if errors.Is(res.err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		classified = apperrors.NewEnrichmentTimeout(field.String(), res.err)
		g.metrics.Inc(observability.CounterEnrichTimeouts)
	} else {
		classified = apperrors.NewEnrichmentFailure(field.String(), res.err)
		g.metrics.Inc(observability.CounterEnrichFailures)
	}
	g.logger.Warn("enrichment fallback",
		zap.String("field", field.String()),
		zap.Error(classified),
	)
	return fallback, classified
}
