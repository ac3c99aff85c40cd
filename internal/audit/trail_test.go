package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/medquill/medquill/pipeline/pkg/models"
)

type recordingDelivery struct {
	count int
	err   error
}

func (d *recordingDelivery) Deliver(event models.PipelineEvent) error {
	d.count++
	return d.err
}

func event(id string, et models.EventType, ts time.Time) models.PipelineEvent {
	return models.PipelineEvent{ID: id, Type: et, Timestamp: ts}
}

func TestTrail_RecordsAndForwards(t *testing.T) {
	next := &recordingDelivery{}
	trail := NewTrail(next, 8, time.Hour)

	if err := trail.Deliver(event("a", models.EventInvocationDone, time.Now())); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if trail.Len() != 1 {
		t.Errorf("Len() = %d, want 1", trail.Len())
	}
	if next.count != 1 {
		t.Errorf("downstream deliveries = %d, want 1", next.count)
	}
}

func TestTrail_ForwardErrorPropagates(t *testing.T) {
	next := &recordingDelivery{err: errors.New("backend down")}
	trail := NewTrail(next, 8, time.Hour)

	err := trail.Deliver(event("a", models.EventInvocationDone, time.Now()))
	if err == nil {
		t.Fatal("expected the downstream error to propagate")
	}
	// The event is recorded regardless of the forward outcome.
	if trail.Len() != 1 {
		t.Errorf("Len() = %d, want 1", trail.Len())
	}
}

func TestTrail_CapacityEvictsOldest(t *testing.T) {
	trail := NewTrail(nil, 3, time.Hour)
	now := time.Now()

	for _, id := range []string{"a", "b", "c", "d"} {
		trail.Deliver(event(id, models.EventInvocationDone, now))
	}

	if trail.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", trail.Len())
	}
	recent := trail.Recent(0, "")
	if recent[len(recent)-1].ID != "b" {
		t.Errorf("oldest retained = %s, want b (a evicted)", recent[len(recent)-1].ID)
	}
}

func TestTrail_RecentNewestFirstWithFilter(t *testing.T) {
	trail := NewTrail(nil, 8, time.Hour)
	now := time.Now()

	trail.Deliver(event("a", models.EventInvocationDone, now))
	trail.Deliver(event("b", models.EventPhiBlocked, now))
	trail.Deliver(event("c", models.EventInvocationDone, now))

	recent := trail.Recent(0, "")
	if len(recent) != 3 || recent[0].ID != "c" {
		t.Errorf("Recent() = %v, want newest first", recent)
	}

	blocked := trail.Recent(0, models.EventPhiBlocked)
	if len(blocked) != 1 || blocked[0].ID != "b" {
		t.Errorf("filtered Recent() = %v, want [b]", blocked)
	}

	limited := trail.Recent(2, "")
	if len(limited) != 2 {
		t.Errorf("limited Recent() returned %d events, want 2", len(limited))
	}
}

func TestTrail_PruneByAge(t *testing.T) {
	trail := NewTrail(nil, 8, time.Hour)
	now := time.Now()

	trail.Deliver(event("old", models.EventInvocationDone, now.Add(-2*time.Hour)))
	trail.Deliver(event("fresh", models.EventInvocationDone, now))

	pruned := trail.prune(now)
	if pruned != 1 {
		t.Errorf("prune() = %d, want 1", pruned)
	}
	recent := trail.Recent(0, "")
	if len(recent) != 1 || recent[0].ID != "fresh" {
		t.Errorf("after prune: %v, want [fresh]", recent)
	}
}

func TestTrail_PruneNothingExpired(t *testing.T) {
	trail := NewTrail(nil, 8, time.Hour)
	trail.Deliver(event("fresh", models.EventInvocationDone, time.Now()))

	if pruned := trail.prune(time.Now()); pruned != 0 {
		t.Errorf("prune() = %d, want 0", pruned)
	}
}
