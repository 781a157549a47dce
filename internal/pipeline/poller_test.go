package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/civic-desk/issue-sync/internal/domain"
	"github.com/civic-desk/issue-sync/internal/observability"
	"github.com/civic-desk/issue-sync/internal/store"
	apperrors "github.com/civic-desk/issue-sync/pkg/util/errorutil"
)

type stubSource struct {
	mu      sync.Mutex
	issues  []domain.Issue
	err     error
	block   chan struct{}
	fetches atomic.Int32
}

func (s *stubSource) FetchIssues(ctx context.Context) ([]domain.Issue, error) {
	s.fetches.Add(1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]domain.Issue(nil), s.issues...), nil
}

func (s *stubSource) set(issues []domain.Issue, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues, s.err = issues, err
}

type stubDepartments struct {
	depts []domain.Department
	err   error
}

func (s stubDepartments) List(context.Context) ([]domain.Department, error) {
	return s.depts, s.err
}

// passThrough marks every record enriched without lookups.
type passThrough struct{}

func (passThrough) Enrich(ctx context.Context, batch []domain.Issue) ([]domain.EnrichedIssue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.EnrichedIssue, len(batch))
	for i, issue := range batch {
		out[i] = domain.EnrichedIssue{Issue: issue.Clone()}
	}
	return out, nil
}

var created = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

func issue(id string, offset time.Duration) domain.Issue {
	return domain.Issue{ID: id, Status: domain.IssueStatusPending, CreatedAt: created.Add(offset)}
}

func newTestPoller(src *stubSource, depts DepartmentSource) (*Poller, *store.Store, *observability.Metrics) {
	s := store.New(store.Options{})
	metrics := observability.NewMetrics()
	p := NewPoller(Dependencies{
		Issues:      src,
		Departments: depts,
		Enricher:    passThrough{},
		Store:       s,
		Flags:       NewFlagManager(s, 20*time.Millisecond, nil),
		Metrics:     metrics,
	})
	return p, s, metrics
}

func TestRunOnceMergesAndSchedulesFlags(t *testing.T) {
	t.Parallel()

	src := &stubSource{issues: []domain.Issue{issue("B", 0), issue("A", time.Hour)}}
	p, s, metrics := newTestPoller(src, stubDepartments{depts: []domain.Department{{ID: "water-dept", Name: "Water"}}})
	defer p.deps.Flags.Stop()

	report, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.CycleID == "" || report.Fetched != 2 || len(report.NewIDs) != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	snap := s.Snapshot()
	if snap.Issues[0].ID != "A" || len(snap.Departments) != 1 {
		t.Fatalf("unexpected snapshot issues=%d depts=%d", len(snap.Issues), len(snap.Departments))
	}
	if metrics.Counter(observability.CounterIssuesNew) != 2 {
		t.Fatalf("expected new issues to be counted")
	}
	waitFor(t, time.Second, func() bool {
		a, _ := s.Issue("A")
		return !a.IsNew
	})
}

func TestFetchFailureLeavesStoreUnchanged(t *testing.T) {
	t.Parallel()

	src := &stubSource{issues: []domain.Issue{issue("A", 0)}}
	p, s, metrics := newTestPoller(src, nil)
	defer p.deps.Flags.Stop()

	if _, err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	before := s.Snapshot()

	src.set(nil, errors.New("connection refused"))
	_, err := p.RunOnce(context.Background())
	if !errors.Is(err, apperrors.ErrFetchFailed) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if s.Snapshot() != before {
		t.Fatalf("store replaced after failed fetch")
	}
	if metrics.Counter(observability.CounterFetchErrors) != 1 {
		t.Fatalf("expected fetch error to be counted")
	}
}

func TestDepartmentFailureStillMergesIssues(t *testing.T) {
	t.Parallel()

	src := &stubSource{issues: []domain.Issue{issue("A", 0)}}
	p, s, _ := newTestPoller(src, stubDepartments{err: errors.New("db down")})
	defer p.deps.Flags.Stop()

	if _, err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if s.Snapshot().Len() != 1 {
		t.Fatalf("issues should merge despite department failure")
	}
}

func TestOverlappingCycleIsSkipped(t *testing.T) {
	t.Parallel()

	src := &stubSource{issues: []domain.Issue{issue("A", 0)}, block: make(chan struct{})}
	p, _, metrics := newTestPoller(src, nil)
	defer p.deps.Flags.Stop()

	done := make(chan error, 1)
	go func() {
		_, err := p.RunOnce(context.Background())
		done <- err
	}()
	waitFor(t, time.Second, func() bool { return src.fetches.Load() == 1 })

	report, err := p.RunOnce(context.Background())
	if err != nil || !report.Skipped {
		t.Fatalf("expected skipped cycle, got %+v err=%v", report, err)
	}
	if src.fetches.Load() != 1 {
		t.Fatalf("skipped cycle must not fetch")
	}

	close(src.block)
	if err := <-done; err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if metrics.Counter(observability.CounterCyclesSkipped) != 1 {
		t.Fatalf("expected one skipped cycle")
	}
}

func TestStopCancelsInFlightCycle(t *testing.T) {
	t.Parallel()

	src := &stubSource{issues: []domain.Issue{issue("A", 0)}, block: make(chan struct{})}
	p, s, metrics := newTestPoller(src, nil)

	if err := p.Start(context.Background(), time.Hour); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, time.Second, func() bool { return src.fetches.Load() == 1 })

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatalf("Stop did not return")
	}

	if s.Snapshot().Len() != 0 {
		t.Fatalf("cancelled cycle wrote to the store")
	}
	if metrics.Counter(observability.CounterCyclesDiscarded) != 1 {
		t.Fatalf("expected discarded cycle to be counted")
	}
	if err := p.Start(context.Background(), time.Hour); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped on restart, got %v", err)
	}
}

func TestStartRunsFirstCycleImmediately(t *testing.T) {
	t.Parallel()

	src := &stubSource{issues: []domain.Issue{issue("A", 0)}}
	p, s, _ := newTestPoller(src, nil)
	defer p.Stop()

	if err := p.Start(context.Background(), time.Hour); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, time.Second, func() bool { return s.Snapshot().Len() == 1 })
	if err := p.Start(context.Background(), time.Hour); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}
