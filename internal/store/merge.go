package store

import (
	"time"

	"github.com/civic-desk/issue-sync/internal/domain"
)

// override holds local mutation fields that win over polled values until the
// backend reflects them.
type override struct {
	fields      domain.MutableFields
	upstream    domain.MutableFields
	inFlight    bool
	confirmedAt time.Time
	token       uint64
	// prev is the override replaced by the in-flight mutation, restored on rollback.
	prev *override
}

func (o *override) clone() *override {
	if o == nil {
		return nil
	}
	cp := *o
	cp.fields = cloneFields(o.fields)
	cp.upstream = cloneFields(o.upstream)
	cp.prev = o.prev.clone()
	return &cp
}

func cloneFields(f domain.MutableFields) domain.MutableFields {
	return domain.Issue{}.WithMutable(f).Mutable()
}

// reconciled reports whether the backend has caught up with the override, so
// the polled values can be trusted again.
func (o *override) reconciled(fetchStartedAt time.Time) bool {
	if o.inFlight {
		return false
	}
	if o.upstream.Matches(o.fields) {
		return true
	}
	return !o.confirmedAt.IsZero() && fetchStartedAt.After(o.confirmedAt)
}

// mergeState is the bookkeeping a merge reads and updates. It is owned by the
// Store and only touched under its write lock.
type mergeState struct {
	overrides map[string]*override
	cohorts   map[string]uint64
	missed    map[string]int
}

type mergeParams struct {
	cohort          uint64
	fetchStartedAt  time.Time
	maxMissedCycles int
}

type mergeOutcome struct {
	issues  []domain.Issue
	newIDs  []string
	evicted []string
	updated int
}

// mergeBatch combines a polled batch with the current issues. Duplicate ids in
// the batch keep their first occurrence. The result is sorted and never shares
// memory with current or batch.
func mergeBatch(current []domain.Issue, batch []domain.EnrichedIssue, st *mergeState, p mergeParams) mergeOutcome {
	prev := make(map[string]domain.Issue, len(current))
	for _, issue := range current {
		prev[issue.ID] = issue
	}

	var out mergeOutcome
	seen := make(map[string]struct{}, len(batch))
	merged := make([]domain.Issue, 0, len(current)+len(batch))

	for _, rec := range batch {
		id := rec.Issue.ID
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		delete(st.missed, id)

		incoming := rec.Issue.Clone()
		old, exists := prev[id]
		if !exists {
			incoming.IsNew = true
			st.cohorts[id] = p.cohort
			out.newIDs = append(out.newIDs, id)
		} else {
			incoming.IsNew = old.IsNew
			keepLastGood(&incoming, old, rec.Fallbacks)
			fillGaps(&incoming, old, st.overrides[id])
			out.updated++
		}

		if ov, ok := st.overrides[id]; ok {
			ov.upstream = incoming.Mutable()
			if ov.prev != nil {
				ov.prev.upstream = incoming.Mutable()
			}
			if ov.reconciled(p.fetchStartedAt) {
				delete(st.overrides, id)
			} else {
				incoming = incoming.WithMutable(ov.fields)
			}
		}
		merged = append(merged, incoming)
	}

	for _, issue := range current {
		if _, ok := seen[issue.ID]; ok {
			continue
		}
		st.missed[issue.ID]++
		if p.maxMissedCycles > 0 && st.missed[issue.ID] >= p.maxMissedCycles && !pinned(st, issue.ID) {
			out.evicted = append(out.evicted, issue.ID)
			delete(st.missed, issue.ID)
			delete(st.cohorts, issue.ID)
			delete(st.overrides, issue.ID)
			continue
		}
		merged = append(merged, issue.Clone())
	}

	domain.SortIssues(merged)
	out.issues = merged
	return out
}

// pinned issues have a mutation in flight and are never evicted.
func pinned(st *mergeState, id string) bool {
	ov, ok := st.overrides[id]
	return ok && ov.inFlight
}

// keepLastGood restores previously resolved enrichment for fields whose lookup
// fell back this cycle.
func keepLastGood(incoming *domain.Issue, old domain.Issue, fallbacks domain.FieldMask) {
	if fallbacks.Has(domain.FieldAddress) &&
		old.Location.Address.State == domain.AddressResolved &&
		old.Location.Lat == incoming.Location.Lat && old.Location.Lng == incoming.Location.Lng {
		incoming.Location.Address = old.Location.Address
	}
	if fallbacks.Has(domain.FieldImages) && len(old.Images) > 0 && old.ComplaintID == incoming.ComplaintID {
		incoming.Images = append([]domain.Image(nil), old.Images...)
	}
	if fallbacks.Has(domain.FieldSubmitter) && old.Submitter.Resolved && old.Submitter.UserID == incoming.UserID {
		incoming.Submitter = old.Submitter
	}
}

// fillGaps keeps the stored creation time and status when the backend omitted
// them this cycle. With an override active the stored status is the local one,
// so the last polled status is taken from the override instead.
func fillGaps(incoming *domain.Issue, old domain.Issue, ov *override) {
	if incoming.Gaps.Has(domain.GapCreatedAt) {
		incoming.CreatedAt = old.CreatedAt
		incoming.Gaps = incoming.Gaps&^domain.GapCreatedAt | old.Gaps&domain.GapCreatedAt
	}
	if incoming.Gaps.Has(domain.GapStatus) {
		if ov != nil {
			incoming.Status = ov.upstream.Status
		} else {
			incoming.Status = old.Status
		}
	}
}
