package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civic-desk/issue-sync/internal/domain"
	"github.com/civic-desk/issue-sync/internal/events"
	apperrors "github.com/civic-desk/issue-sync/pkg/util/errorutil"
)

// Options configures a Store.
type Options struct {
	// MaxMissedCycles evicts an issue after it is absent from this many
	// consecutive polls. Zero keeps issues forever.
	MaxMissedCycles int
	Dispatcher      events.Dispatcher
	Logger          *zap.Logger
	Now             func() time.Time
}

// MergeResult describes what a merge changed.
type MergeResult struct {
	// Cohort tags the ids first seen by this merge; zero when there were none.
	Cohort  uint64
	NewIDs  []string
	Evicted []string
	Updated int
	Version uint64
}

// Mutation identifies an optimistic write awaiting backend confirmation.
type Mutation struct {
	Kind    string
	IssueID string
	Token   uint64
	Before  domain.MutableFields
	After   domain.MutableFields
}

// MutateFunc computes the optimistic fields for an issue. Returning an error
// aborts the mutation before anything is written.
type MutateFunc func(current domain.Issue) (domain.MutableFields, error)

// Store is the canonical issue and department collection. Reads are lock-free
// snapshot loads; writes are serialized and publish a fresh snapshot.
type Store struct {
	mu         sync.Mutex
	snap       atomic.Pointer[Snapshot]
	state      mergeState
	nextCohort uint64
	nextToken  uint64

	maxMissed  int
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// New creates an empty Store.
func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher()
	}
	s := &Store{
		state: mergeState{
			overrides: make(map[string]*override),
			cohorts:   make(map[string]uint64),
			missed:    make(map[string]int),
		},
		maxMissed:  opts.MaxMissedCycles,
		dispatcher: dispatcher,
		logger:     logger.With(zap.String("component", "store")),
		now:        now,
	}
	s.snap.Store(newSnapshot(nil, nil, 0, now()))
	return s
}

// Snapshot returns the current immutable view.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Issue returns a copy of one issue.
func (s *Store) Issue(id string) (domain.Issue, bool) {
	return s.Snapshot().Issue(id)
}

// Subscribe calls fn after every snapshot replacement. Concurrent writers may
// deliver snapshots out of order; compare Version when that matters. The
// returned func removes the subscription.
func (s *Store) Subscribe(fn func(context.Context, *Snapshot)) func() {
	return s.dispatcher.Subscribe(events.EventStoreUpdated, func(ctx context.Context, evt events.Event) error {
		if snap, ok := evt.Payload.(*Snapshot); ok {
			fn(ctx, snap)
		}
		return nil
	})
}

// Merge folds an enriched batch into the store. A batch whose ctx is already
// done is discarded without writing. fetchStartedAt is when the batch's fetch
// began and decides whether confirmed mutations are reflected in it.
func (s *Store) Merge(ctx context.Context, batch []domain.EnrichedIssue, fetchStartedAt time.Time) (MergeResult, error) {
	s.mu.Lock()
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return MergeResult{}, err
	}

	cur := s.snap.Load()
	s.nextCohort++
	cohort := s.nextCohort
	outcome := mergeBatch(cur.Issues, batch, &s.state, mergeParams{
		cohort:          cohort,
		fetchStartedAt:  fetchStartedAt,
		maxMissedCycles: s.maxMissed,
	})
	if len(outcome.newIDs) == 0 {
		cohort = 0
	}
	next := s.replaceLocked(outcome.issues, cur.Departments)
	s.mu.Unlock()

	result := MergeResult{
		Cohort:  cohort,
		NewIDs:  outcome.newIDs,
		Evicted: outcome.evicted,
		Updated: outcome.updated,
		Version: next.Version,
	}
	s.publish(ctx, next, "")
	if cohort != 0 {
		s.emit(ctx, events.EventIssuesArrived, "", next.Version, events.IssuesArrivedPayload{Cohort: cohort, IDs: outcome.newIDs})
	}
	return result, nil
}

// ClearNew resets IsNew on the ids still tagged with cohort. It returns how
// many flags were cleared; a second call for the same cohort clears nothing.
func (s *Store) ClearNew(ctx context.Context, cohort uint64) int {
	if cohort == 0 {
		return 0
	}
	s.mu.Lock()
	targets := make(map[string]struct{})
	for id, tag := range s.state.cohorts {
		if tag == cohort {
			targets[id] = struct{}{}
			delete(s.state.cohorts, id)
		}
	}
	if len(targets) == 0 {
		s.mu.Unlock()
		return 0
	}

	cur := s.snap.Load()
	issues := make([]domain.Issue, len(cur.Issues))
	cleared := 0
	for i, issue := range cur.Issues {
		cp := issue.Clone()
		if _, ok := targets[cp.ID]; ok && cp.IsNew {
			cp.IsNew = false
			cleared++
		}
		issues[i] = cp
	}
	next := s.replaceLocked(issues, cur.Departments)
	s.mu.Unlock()

	s.publish(ctx, next, "")
	s.emit(ctx, events.EventFlagsCleared, "", next.Version, events.FlagsClearedPayload{Cohort: cohort, Count: cleared})
	return cleared
}

// SetDepartments replaces the department list.
func (s *Store) SetDepartments(ctx context.Context, departments []domain.Department) {
	s.mu.Lock()
	cur := s.snap.Load()
	next := s.replaceLocked(cur.Issues, append([]domain.Department(nil), departments...))
	s.mu.Unlock()

	s.publish(ctx, next, "")
	s.emit(ctx, events.EventDepartmentsReplaced, "", next.Version, len(departments))
}

// UpsertDepartment adds or replaces one department.
func (s *Store) UpsertDepartment(ctx context.Context, dept domain.Department) {
	s.mu.Lock()
	cur := s.snap.Load()
	departments := make([]domain.Department, 0, len(cur.Departments)+1)
	replaced := false
	for _, d := range cur.Departments {
		if d.ID == dept.ID {
			departments = append(departments, dept)
			replaced = true
			continue
		}
		departments = append(departments, d)
	}
	if !replaced {
		departments = append(departments, dept)
	}
	next := s.replaceLocked(cur.Issues, departments)
	s.mu.Unlock()

	s.publish(ctx, next, "")
}

// BeginMutation applies an optimistic write. mutate runs under the write lock
// and sees the issue as currently stored, so validation and write are atomic.
// A second mutation on an issue whose previous one is unconfirmed is rejected.
func (s *Store) BeginMutation(ctx context.Context, kind, issueID string, mutate MutateFunc) (Mutation, error) {
	s.mu.Lock()
	cur := s.snap.Load()
	idx, ok := cur.index[issueID]
	if !ok {
		s.mu.Unlock()
		return Mutation{}, apperrors.NewNotFound("issue", map[string]any{"issue_id": issueID})
	}
	existing := s.state.overrides[issueID]
	if existing != nil && existing.inFlight {
		s.mu.Unlock()
		return Mutation{}, apperrors.NewConflict("a change to this issue is still being saved", map[string]any{"issue_id": issueID})
	}

	current := cur.Issues[idx]
	after, err := mutate(current.Clone())
	if err != nil {
		s.mu.Unlock()
		return Mutation{}, err
	}

	s.nextToken++
	ov := &override{
		fields:   cloneFields(after),
		upstream: current.Mutable(),
		inFlight: true,
		token:    s.nextToken,
		prev:     existing.clone(),
	}
	if existing != nil {
		ov.upstream = cloneFields(existing.upstream)
	}
	s.state.overrides[issueID] = ov

	issues := make([]domain.Issue, len(cur.Issues))
	copy(issues, cur.Issues)
	issues[idx] = current.WithMutable(after)
	next := s.replaceLocked(issues, cur.Departments)
	s.mu.Unlock()

	s.publish(ctx, next, issueID)
	return Mutation{Kind: kind, IssueID: issueID, Token: ov.token, Before: current.Mutable(), After: cloneFields(after)}, nil
}

// Confirm records that the backend accepted m. The override stays until a
// poll that started afterwards reflects the backend state.
func (s *Store) Confirm(ctx context.Context, m Mutation) {
	s.mu.Lock()
	ov, ok := s.state.overrides[m.IssueID]
	if !ok || ov.token != m.Token {
		s.mu.Unlock()
		return
	}
	ov.inFlight = false
	ov.confirmedAt = s.now()
	ov.prev = nil
	version := s.snap.Load().Version
	s.mu.Unlock()

	s.emit(ctx, events.EventMutationConfirmed, m.IssueID, version, events.MutationPayload{
		Kind:        m.Kind,
		Status:      m.After.Status,
		Departments: m.After.AssignedDepartments,
	})
}

// Rollback reverts m. The issue returns to the override that preceded it or,
// when there was none, to the latest backend values, which are the pre-call
// values unless a poll landed in between.
func (s *Store) Rollback(ctx context.Context, m Mutation, reason error) {
	s.mu.Lock()
	ov, ok := s.state.overrides[m.IssueID]
	if !ok || ov.token != m.Token {
		s.mu.Unlock()
		return
	}

	var restored domain.MutableFields
	if ov.prev != nil {
		s.state.overrides[m.IssueID] = ov.prev
		restored = ov.prev.fields
	} else {
		delete(s.state.overrides, m.IssueID)
		restored = ov.upstream
	}

	cur := s.snap.Load()
	idx, present := cur.index[m.IssueID]
	if !present {
		s.mu.Unlock()
		return
	}
	issues := make([]domain.Issue, len(cur.Issues))
	copy(issues, cur.Issues)
	issues[idx] = cur.Issues[idx].WithMutable(restored)
	next := s.replaceLocked(issues, cur.Departments)
	s.mu.Unlock()

	s.publish(ctx, next, m.IssueID)
	payload := events.MutationPayload{Kind: m.Kind, Status: restored.Status, Departments: restored.AssignedDepartments}
	if reason != nil {
		payload.Reason = reason.Error()
	}
	s.emit(ctx, events.EventMutationRolledBack, m.IssueID, next.Version, payload)
}

// HasPendingMutation reports whether an override for the issue is unconfirmed.
func (s *Store) HasPendingMutation(issueID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ov, ok := s.state.overrides[issueID]
	return ok && ov.inFlight
}

func (s *Store) replaceLocked(issues []domain.Issue, departments []domain.Department) *Snapshot {
	cur := s.snap.Load()
	next := newSnapshot(issues, departments, cur.Version+1, s.now())
	s.snap.Store(next)
	return next
}

func (s *Store) publish(ctx context.Context, snap *Snapshot, issueID string) {
	evt := events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventStoreUpdated,
		IssueID:   issueID,
		Version:   snap.Version,
		Timestamp: snap.UpdatedAt,
		Payload:   snap,
	}
	if err := s.dispatcher.Publish(context.WithoutCancel(ctx), evt); err != nil {
		s.logger.Warn("store subscriber failed", zap.Uint64("version", snap.Version), zap.Error(err))
	}
}

func (s *Store) emit(ctx context.Context, eventType events.EventType, issueID string, version uint64, payload interface{}) {
	evt := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		IssueID:   issueID,
		Version:   version,
		Timestamp: s.now(),
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(context.WithoutCancel(ctx), evt); err != nil {
		s.logger.Warn("event handler failed", zap.String("event", string(eventType)), zap.Error(err))
	}
}
