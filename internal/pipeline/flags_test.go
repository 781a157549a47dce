package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/civic-desk/issue-sync/internal/domain"
	"github.com/civic-desk/issue-sync/internal/store"
)

type countingClearer struct {
	mu    sync.Mutex
	calls map[uint64]int
}

func (c *countingClearer) ClearNew(_ context.Context, cohort uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[uint64]int)
	}
	c.calls[cohort]++
	return 1
}

func (c *countingClearer) count(cohort uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[cohort]
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestFlagManagerClearsEachCohortOnce(t *testing.T) {
	t.Parallel()

	clearer := &countingClearer{}
	fm := NewFlagManager(clearer, 20*time.Millisecond, nil)
	fm.Schedule(1)
	fm.Schedule(1)
	fm.Schedule(2)
	fm.Schedule(0)

	waitFor(t, time.Second, func() bool { return clearer.count(1) == 1 && clearer.count(2) == 1 })
	time.Sleep(50 * time.Millisecond)
	if clearer.count(1) != 1 || clearer.count(2) != 1 {
		t.Fatalf("cohorts cleared more than once: %v", clearer.calls)
	}
	if fm.Pending() != 0 {
		t.Fatalf("expected no pending timers")
	}
	fm.Stop()
	if clearer.count(1) != 1 {
		t.Fatalf("Stop re-cleared a fired cohort")
	}
}

func TestFlagManagerStopFlushesPendingCohorts(t *testing.T) {
	t.Parallel()

	clearer := &countingClearer{}
	fm := NewFlagManager(clearer, time.Hour, nil)
	fm.Schedule(7)
	fm.Stop()

	if clearer.count(7) != 1 {
		t.Fatalf("expected pending cohort to be flushed on stop")
	}
	fm.Schedule(8)
	if fm.Pending() != 0 || clearer.count(8) != 0 {
		t.Fatalf("schedule after stop must be ignored")
	}
}

func TestTransientFlagLifecycle(t *testing.T) {
	t.Parallel()

	s := store.New(store.Options{})
	fm := NewFlagManager(s, 30*time.Millisecond, nil)
	defer fm.Stop()

	created := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	first, err := s.Merge(context.Background(), []domain.EnrichedIssue{
		{Issue: domain.Issue{ID: "A", CreatedAt: created.Add(time.Hour), Status: domain.IssueStatusPending}},
		{Issue: domain.Issue{ID: "B", CreatedAt: created, Status: domain.IssueStatusPending}},
	}, created)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	fm.Schedule(first.Cohort)

	for _, id := range []string{"A", "B"} {
		if issue, _ := s.Issue(id); !issue.IsNew {
			t.Fatalf("%s should be new right after merge", id)
		}
	}

	// a later cohort arrives before the first timer fires
	time.Sleep(10 * time.Millisecond)
	second, _ := s.Merge(context.Background(), []domain.EnrichedIssue{
		{Issue: domain.Issue{ID: "A", CreatedAt: created.Add(time.Hour), Status: domain.IssueStatusPending}},
		{Issue: domain.Issue{ID: "B", CreatedAt: created, Status: domain.IssueStatusPending}},
		{Issue: domain.Issue{ID: "C", CreatedAt: created, Status: domain.IssueStatusPending}},
	}, created)
	fm.Schedule(second.Cohort)

	waitFor(t, time.Second, func() bool {
		a, _ := s.Issue("A")
		return !a.IsNew
	})
	waitFor(t, time.Second, func() bool {
		c, _ := s.Issue("C")
		return !c.IsNew
	})
	time.Sleep(60 * time.Millisecond)
	for _, id := range []string{"A", "B", "C"} {
		if issue, _ := s.Issue(id); issue.IsNew {
			t.Fatalf("%s flickered back to new", id)
		}
	}
}
