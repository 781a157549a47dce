package enricher

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/civic-desk/issue-sync/internal/domain"
)

// DefaultPoolSize caps simultaneous lookups when none is configured.
const DefaultPoolSize = 8

// Gateway is the lookup surface the enricher needs.
type Gateway interface {
	Address(ctx context.Context, lat, lng float64) (domain.Address, error)
	Images(ctx context.Context, userID, complaintID string) ([]domain.Image, error)
	Submitter(ctx context.Context, userID string) (domain.Submitter, error)
}

// Enricher fills the externally sourced fields of raw issues.
type Enricher struct {
	gateway  Gateway
	poolSize int
	logger   *zap.Logger
}

// New creates an Enricher that keeps at most poolSize lookups in flight.
func New(gateway Gateway, poolSize int, logger *zap.Logger) *Enricher {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{gateway: gateway, poolSize: poolSize, logger: logger.With(zap.String("component", "enricher"))}
}

// NeedsAddress reports whether the issue carries a usable coordinate.
func NeedsAddress(issue domain.Issue) bool {
	return issue.Location.HasCoords
}

// NeedsImages reports whether the issue identifies a complaint image.
func NeedsImages(issue domain.Issue) bool {
	return issue.UserID != "" && issue.ComplaintID != ""
}

// NeedsSubmitter reports whether the issue references a citizen profile.
func NeedsSubmitter(issue domain.Issue) bool {
	return issue.UserID != ""
}

// Enrich resolves address, images and submitter for each issue. Lookups are
// started in input order and never more than poolSize at once. A failed lookup
// leaves its fallback value and is recorded in Fallbacks; the only error
// returned is ctx's, in which case the partial result must be discarded.
func (e *Enricher) Enrich(ctx context.Context, batch []domain.Issue) ([]domain.EnrichedIssue, error) {
	out := make([]domain.EnrichedIssue, len(batch))
	// one slot per field so concurrent tasks never share a write target
	addrFailed := make([]bool, len(batch))
	imagesFailed := make([]bool, len(batch))
	submitterFailed := make([]bool, len(batch))

	for i, raw := range batch {
		issue := raw.Clone()
		issue.Images = []domain.Image{}
		if NeedsAddress(issue) {
			issue.Location.Address = domain.PendingAddress()
		} else {
			issue.Location.Address = domain.FallbackAddress()
		}
		issue.Submitter = domain.FallbackSubmitter(issue.UserID)
		out[i] = domain.EnrichedIssue{Issue: issue}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.poolSize)

	for i, raw := range batch {
		issue := &out[i].Issue

		if NeedsAddress(raw) {
			lat, lng := raw.Location.Lat, raw.Location.Lng
			if !e.submit(gctx, g, func() error {
				addr, err := e.gateway.Address(gctx, lat, lng)
				issue.Location.Address = addr
				addrFailed[i] = err != nil
				return cancelled(gctx, err)
			}) {
				break
			}
		}
		if NeedsImages(raw) {
			userID, complaintID, title := raw.UserID, raw.ComplaintID, raw.Title
			if !e.submit(gctx, g, func() error {
				images, err := e.gateway.Images(gctx, userID, complaintID)
				if images == nil {
					images = []domain.Image{}
				}
				if title != "" {
					for j := range images {
						images[j].Caption = title
					}
				}
				issue.Images = images
				imagesFailed[i] = err != nil
				return cancelled(gctx, err)
			}) {
				break
			}
		}
		if NeedsSubmitter(raw) {
			userID := raw.UserID
			if !e.submit(gctx, g, func() error {
				sub, err := e.gateway.Submitter(gctx, userID)
				issue.Submitter = sub
				submitterFailed[i] = err != nil
				return cancelled(gctx, err)
			}) {
				break
			}
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var degraded int
	for i := range out {
		var mask domain.FieldMask
		if addrFailed[i] {
			mask = mask.With(domain.FieldAddress)
		}
		if imagesFailed[i] {
			mask = mask.With(domain.FieldImages)
		}
		if submitterFailed[i] {
			mask = mask.With(domain.FieldSubmitter)
		}
		out[i].Fallbacks = mask
		if mask != 0 {
			degraded++
		}
	}
	e.logger.Debug("batch enriched", zap.Int("records", len(out)), zap.Int("degraded", degraded))
	return out, nil
}

// submit queues fn, blocking while the pool is full. It reports false once the
// context is done so no further lookups are started.
func (e *Enricher) submit(ctx context.Context, g *errgroup.Group, fn func() error) bool {
	if ctx.Err() != nil {
		return false
	}
	g.Go(fn)
	return true
}

// cancelled keeps only cancellation errors; lookup failures are already
// absorbed into fallback values.
func cancelled(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return ctxErr
	}
	return nil
}
