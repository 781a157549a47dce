package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civic-desk/issue-sync/internal/domain"
	"github.com/civic-desk/issue-sync/internal/observability"
	"github.com/civic-desk/issue-sync/internal/store"
	apperrors "github.com/civic-desk/issue-sync/pkg/util/errorutil"
)

var (
	// ErrAlreadyRunning is returned by Start on a running poller.
	ErrAlreadyRunning = errors.New("poller already running")
	// ErrStopped is returned by Start after Stop; flag timers are gone by then.
	ErrStopped = errors.New("poller stopped")
)

// IssueSource fetches the raw issue list.
type IssueSource interface {
	FetchIssues(ctx context.Context) ([]domain.Issue, error)
}

// DepartmentSource lists departments.
type DepartmentSource interface {
	List(ctx context.Context) ([]domain.Department, error)
}

// Enricher resolves the external fields of a batch.
type Enricher interface {
	Enrich(ctx context.Context, batch []domain.Issue) ([]domain.EnrichedIssue, error)
}

// Dependencies wires a Poller.
type Dependencies struct {
	Issues      IssueSource
	Departments DepartmentSource
	Enricher    Enricher
	Store       *store.Store
	Flags       *FlagManager
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	Now         func() time.Time
}

// CycleReport summarizes one poll cycle.
type CycleReport struct {
	CycleID  string
	Skipped  bool
	Fetched  int
	NewIDs   []string
	Evicted  []string
	Cohort   uint64
	Version  uint64
	Duration time.Duration
}

// Poller drives fetch, enrich and merge cycles. At most one cycle runs at a time.
type Poller struct {
	deps     Dependencies
	logger   *zap.Logger
	inFlight atomic.Bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	stopped bool
	wg      sync.WaitGroup
}

// NewPoller creates a Poller.
func NewPoller(deps Dependencies) *Poller {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Poller{deps: deps, logger: deps.Logger.With(zap.String("component", "poller"))}
}

// Start runs a cycle immediately and then every interval until Stop or ctx is done.
func (p *Poller) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return apperrors.NewValidationError("poll interval must be positive", nil)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	if p.running {
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go p.loop(loopCtx, interval)
	p.logger.Info("poller started", zap.Duration("interval", interval))
	return nil
}

// Stop cancels the ticker and any in-flight cycle, waits for them to settle,
// then stops the flag timers.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.stopped = true
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	if p.deps.Flags != nil {
		p.deps.Flags.Stop()
	}
	p.logger.Info("poller stopped")
}

func (p *Poller) loop(ctx context.Context, interval time.Duration) {
	defer p.wg.Done()

	p.tick(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick starts a cycle on its own goroutine so a slow cycle makes later ticks
// skip rather than queue.
func (p *Poller) tick(ctx context.Context) {
	if p.inFlight.Load() {
		p.deps.Metrics.Inc(observability.CounterCyclesSkipped)
		p.logger.Debug("tick skipped, previous cycle still running")
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if _, err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("poll cycle failed", zap.Error(err))
		}
	}()
}

// RunOnce executes one fetch, enrich and merge cycle. When another cycle is in
// flight it returns a report with Skipped set and does nothing. A fetch failure
// leaves the store unchanged; a cancelled cycle is discarded.
func (p *Poller) RunOnce(ctx context.Context) (CycleReport, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.deps.Metrics.Inc(observability.CounterCyclesSkipped)
		return CycleReport{Skipped: true}, nil
	}
	defer p.inFlight.Store(false)

	report := CycleReport{CycleID: uuid.NewString()}
	logger := p.logger.With(zap.String("cycle_id", report.CycleID))
	startedAt := p.deps.Now()
	defer func() { p.deps.Metrics.ObserveCycle(p.deps.Now().Sub(startedAt)) }()
	p.deps.Metrics.Inc(observability.CounterCycles)

	raw, err := p.deps.Issues.FetchIssues(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return p.discard(logger, report, ctx.Err())
		}
		p.deps.Metrics.Inc(observability.CounterFetchErrors)
		fetchErr := apperrors.NewFetchError("issues", err)
		logger.Error("issue fetch failed, keeping last good data", zap.Error(fetchErr))
		return report, fetchErr
	}
	report.Fetched = len(raw)

	var departments []domain.Department
	deptOK := false
	if p.deps.Departments != nil {
		departments, err = p.deps.Departments.List(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return p.discard(logger, report, ctx.Err())
			}
			p.deps.Metrics.Inc(observability.CounterFetchErrors)
			logger.Warn("department fetch failed, keeping previous list",
				zap.Error(apperrors.NewFetchError("departments", err)))
		} else {
			deptOK = true
		}
	}

	enriched, err := p.deps.Enricher.Enrich(ctx, raw)
	if err != nil {
		return p.discard(logger, report, err)
	}

	if deptOK {
		if ctx.Err() != nil {
			return p.discard(logger, report, ctx.Err())
		}
		p.deps.Store.SetDepartments(ctx, departments)
	}
	result, err := p.deps.Store.Merge(ctx, enriched, startedAt)
	if err != nil {
		return p.discard(logger, report, err)
	}

	report.NewIDs = result.NewIDs
	report.Evicted = result.Evicted
	report.Cohort = result.Cohort
	report.Version = result.Version
	report.Duration = p.deps.Now().Sub(startedAt)
	p.deps.Metrics.Add(observability.CounterIssuesMerged, int64(len(enriched)))
	p.deps.Metrics.Add(observability.CounterIssuesNew, int64(len(result.NewIDs)))

	if p.deps.Flags != nil {
		p.deps.Flags.Schedule(result.Cohort)
	}
	logger.Info("poll cycle merged",
		zap.Int("fetched", report.Fetched),
		zap.Int("new", len(result.NewIDs)),
		zap.Int("evicted", len(result.Evicted)),
		zap.Uint64("version", result.Version),
	)
	return report, nil
}

func (p *Poller) discard(logger *zap.Logger, report CycleReport, err error) (CycleReport, error) {
	p.deps.Metrics.Inc(observability.CounterCyclesDiscarded)
	logger.Info("poll cycle discarded", zap.Error(err))
	return report, err
}
