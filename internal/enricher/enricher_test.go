package enricher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/civic-desk/issue-sync/internal/domain"
	apperrors "github.com/civic-desk/issue-sync/pkg/util/errorutil"
)

type fakeGateway struct {
	delay     time.Duration
	inFlight  atomic.Int32
	maxSeen   atomic.Int32
	mu        sync.Mutex
	addrCalls int
	failAddr  map[float64]bool
}

func (f *fakeGateway) enter() func() {
	n := f.inFlight.Add(1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeGateway) wait(ctx context.Context) error {
	if f.delay == 0 {
		return nil
	}
	select {
	case <-time.After(f.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeGateway) Address(ctx context.Context, lat, lng float64) (domain.Address, error) {
	defer f.enter()()
	f.mu.Lock()
	f.addrCalls++
	fail := f.failAddr[lat]
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return domain.FallbackAddress(), err
	}
	if fail {
		return domain.FallbackAddress(), apperrors.NewEnrichmentTimeout("address", context.DeadlineExceeded)
	}
	return domain.ResolvedAddress(fmt.Sprintf("%.2f,%.2f", lat, lng)), nil
}

func (f *fakeGateway) Images(ctx context.Context, userID, complaintID string) ([]domain.Image, error) {
	defer f.enter()()
	if err := f.wait(ctx); err != nil {
		return []domain.Image{}, err
	}
	return []domain.Image{{URL: "https://media/" + userID + "/" + complaintID, Caption: domain.DefaultCaption}}, nil
}

func (f *fakeGateway) Submitter(ctx context.Context, userID string) (domain.Submitter, error) {
	defer f.enter()()
	if err := f.wait(ctx); err != nil {
		return domain.FallbackSubmitter(userID), err
	}
	return domain.Submitter{UserID: userID, Name: "name-" + userID, Phone: "phone", Resolved: true}, nil
}

func rawIssue(id string, lat float64) domain.Issue {
	return domain.Issue{
		ID:          id,
		UserID:      "u-" + id,
		ComplaintID: "c-" + id,
		Status:      domain.IssueStatusPending,
		Location:    domain.Location{Lat: lat, Lng: 75.8, HasCoords: true},
	}
}

func TestEnrichKeepsInputOrderAndFillsFields(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{delay: time.Millisecond}
	batch := make([]domain.Issue, 0, 20)
	for i := 0; i < 20; i++ {
		batch = append(batch, rawIssue(fmt.Sprintf("id-%02d", i), 22+float64(i)/100))
	}

	out, err := New(gw, 3, nil).Enrich(context.Background(), batch)
	if err != nil {
		t.Fatalf("Enrich returned error: %v", err)
	}
	if len(out) != len(batch) {
		t.Fatalf("expected %d records, got %d", len(batch), len(out))
	}
	for i, rec := range out {
		if rec.Issue.ID != batch[i].ID {
			t.Fatalf("position %d: got %s, want %s", i, rec.Issue.ID, batch[i].ID)
		}
		if rec.Issue.Location.Address.State != domain.AddressResolved {
			t.Fatalf("%s: address not resolved: %+v", rec.Issue.ID, rec.Issue.Location.Address)
		}
		if len(rec.Issue.Images) != 1 || !rec.Issue.Submitter.Resolved {
			t.Fatalf("%s: incomplete enrichment %+v", rec.Issue.ID, rec.Issue)
		}
		if rec.Fallbacks != 0 {
			t.Fatalf("%s: unexpected fallbacks %b", rec.Issue.ID, rec.Fallbacks)
		}
	}
	if got := gw.maxSeen.Load(); got > 3 {
		t.Fatalf("pool limit exceeded: %d lookups in flight", got)
	}
}

func TestEnrichFallbackKeepsOtherFields(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{failAddr: map[float64]bool{22.5: true}}
	out, err := New(gw, 4, nil).Enrich(context.Background(), []domain.Issue{rawIssue("A", 22.5)})
	if err != nil {
		t.Fatalf("Enrich returned error: %v", err)
	}
	rec := out[0]
	if rec.Issue.Location.Address.Value != domain.UnknownAddress {
		t.Fatalf("expected unknown address, got %+v", rec.Issue.Location.Address)
	}
	if !rec.Fallbacks.Has(domain.FieldAddress) || rec.Fallbacks.Has(domain.FieldImages) {
		t.Fatalf("unexpected fallback mask %b", rec.Fallbacks)
	}
	if len(rec.Issue.Images) != 1 || rec.Issue.Submitter.Name != "name-u-A" {
		t.Fatalf("other fields must be populated, got %+v", rec.Issue)
	}
}

func TestEnrichSkipsLookupsWithoutKeys(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	issue := domain.Issue{ID: "bare", Status: domain.IssueStatusPending}
	out, err := New(gw, 2, nil).Enrich(context.Background(), []domain.Issue{issue})
	if err != nil {
		t.Fatalf("Enrich returned error: %v", err)
	}
	if gw.addrCalls != 0 {
		t.Fatalf("expected no geocoding without coordinates")
	}
	rec := out[0].Issue
	if rec.Location.Address.Value != domain.UnknownAddress || rec.Images == nil || len(rec.Images) != 0 {
		t.Fatalf("unexpected defaults %+v", rec)
	}
	if rec.Submitter.Name != domain.UnknownUser || out[0].Fallbacks != 0 {
		t.Fatalf("unexpected submitter defaults %+v mask=%b", rec.Submitter, out[0].Fallbacks)
	}
}

func TestEnrichDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	batch := []domain.Issue{rawIssue("A", 22.6)}
	if _, err := New(&fakeGateway{}, 2, nil).Enrich(context.Background(), batch); err != nil {
		t.Fatalf("Enrich returned error: %v", err)
	}
	if batch[0].Location.Address.State != "" || batch[0].Images != nil {
		t.Fatalf("input record was modified: %+v", batch[0])
	}
}

func TestEnrichReturnsContextErrorWhenCancelled(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{delay: time.Second}
	batch := []domain.Issue{rawIssue("A", 22.6), rawIssue("B", 22.7), rawIssue("C", 22.8)}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	out, err := New(gw, 2, nil).Enrich(ctx, batch)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if out != nil {
		t.Fatalf("cancelled enrichment must not return records")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("cancellation did not stop pending lookups")
	}
}
