package events

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/medquill/medquill/pipeline/pkg/models"
)

// captureDelivery records delivered events; entered signals each Deliver
// call and gate (when set) blocks it until released.
type captureDelivery struct {
	mu       sync.Mutex
	events   []models.PipelineEvent
	entered  chan struct{}
	gate     chan struct{}
	deliverE error
}

func (d *captureDelivery) Deliver(event models.PipelineEvent) error {
	if d.entered != nil {
		d.entered <- struct{}{}
	}
	if d.gate != nil {
		<-d.gate
	}
	d.mu.Lock()
	d.events = append(d.events, event)
	d.mu.Unlock()
	return d.deliverE
}

func (d *captureDelivery) delivered() []models.PipelineEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.PipelineEvent, len(d.events))
	copy(out, d.events)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSink_DeliversEmittedEvents(t *testing.T) {
	delivery := &captureDelivery{}
	sink := NewSink(delivery, 8)
	defer sink.Close()

	sink.Emit(models.PipelineEvent{Type: models.EventInvocationDone, PromptHash: "abc123"})

	waitFor(t, func() bool { return len(delivery.delivered()) == 1 })
	got := delivery.delivered()[0]
	if got.Type != models.EventInvocationDone {
		t.Errorf("Type = %s", got.Type)
	}
	if got.ID == "" {
		t.Error("Emit must assign an event ID")
	}
	if got.Timestamp.IsZero() {
		t.Error("Emit must stamp the event")
	}
}

func TestSink_DropsOldestUnderBackpressure(t *testing.T) {
	delivery := &captureDelivery{
		entered: make(chan struct{}, 16),
		gate:    make(chan struct{}),
	}
	sink := NewSink(delivery, 2)
	defer sink.Close()

	// First event occupies the drain worker.
	sink.Emit(models.PipelineEvent{PromptHash: "first"})
	<-delivery.entered

	// Fill the queue, then overflow it. The oldest queued event must go.
	sink.Emit(models.PipelineEvent{PromptHash: "second"})
	sink.Emit(models.PipelineEvent{PromptHash: "third"})
	sink.Emit(models.PipelineEvent{PromptHash: "fourth"})

	close(delivery.gate)
	waitFor(t, func() bool { return len(delivery.delivered()) == 3 })

	hashes := make(map[string]bool)
	for _, e := range delivery.delivered() {
		hashes[e.PromptHash] = true
	}
	if hashes["second"] {
		t.Error("oldest queued event should have been dropped")
	}
	for _, want := range []string{"first", "third", "fourth"} {
		if !hashes[want] {
			t.Errorf("event %q was lost", want)
		}
	}
}

func TestSink_EmitNeverBlocks(t *testing.T) {
	delivery := &captureDelivery{gate: make(chan struct{})}
	sink := NewSink(delivery, 1)
	defer sink.Close()
	defer close(delivery.gate)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			sink.Emit(models.PipelineEvent{Type: models.EventPromptRefined})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked under backpressure")
	}
}

func TestSink_DeliveryFailureTolerated(t *testing.T) {
	delivery := &captureDelivery{deliverE: errors.New("collector down")}
	sink := NewSink(delivery, 8)
	defer sink.Close()

	for i := 0; i < 5; i++ {
		sink.Emit(models.PipelineEvent{Type: models.EventInvocationFailed})
	}

	// All events still reach Deliver; failures are swallowed.
	waitFor(t, func() bool { return len(delivery.delivered()) == 5 })
}

func TestSink_PreservesExistingID(t *testing.T) {
	delivery := &captureDelivery{}
	sink := NewSink(delivery, 8)
	defer sink.Close()

	sink.Emit(models.PipelineEvent{ID: "fixed-id", Type: models.EventTierEscalated})

	waitFor(t, func() bool { return len(delivery.delivered()) == 1 })
	if got := delivery.delivered()[0].ID; got != "fixed-id" {
		t.Errorf("ID = %q, want fixed-id", got)
	}
}
