// Package audit keeps a bounded in-memory trail of pipeline events for
// operator inspection.
//
// The trail sits in the telemetry delivery path: every event the sink
// drains is recorded here and then forwarded to the downstream backend.
// Events carry prompt fingerprints and decision metadata only, so the
// trail holds nothing that needs redaction. A janitor prunes entries
// past the retention window; the capacity bound evicts oldest-first
// regardless of age.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/medquill/medquill/pipeline/internal/events"
	"github.com/medquill/medquill/pipeline/pkg/models"
)

// DefaultCapacity bounds the trail when no capacity is configured.
const DefaultCapacity = 1024

// DefaultRetention is how long events stay queryable.
const DefaultRetention = 24 * time.Hour

// Trail records delivered events and forwards them downstream.
type Trail struct {
	next      events.Delivery
	capacity  int
	retention time.Duration

	mu     sync.RWMutex
	buffer []models.PipelineEvent
}

// NewTrail creates a trail forwarding to next. next may be nil when the
// trail is the only consumer.
func NewTrail(next events.Delivery, capacity int, retention time.Duration) *Trail {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Trail{next: next, capacity: capacity, retention: retention}
}

// Deliver records the event, evicting the oldest entry at capacity, then
// forwards it. Recording never fails; the forward error propagates so the
// sink's failure accounting still sees the backend.
func (t *Trail) Deliver(event models.PipelineEvent) error {
	t.mu.Lock()
	if len(t.buffer) >= t.capacity {
		t.buffer = t.buffer[1:]
	}
	t.buffer = append(t.buffer, event)
	t.mu.Unlock()

	if t.next == nil {
		return nil
	}
	return t.next.Deliver(event)
}

// Recent returns up to limit events, newest first, optionally filtered by
// type. limit <= 0 selects everything retained.
func (t *Trail) Recent(limit int, eventType models.EventType) []models.PipelineEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.PipelineEvent, 0, len(t.buffer))
	for i := len(t.buffer) - 1; i >= 0; i-- {
		if eventType != "" && t.buffer[i].Type != eventType {
			continue
		}
		out = append(out, t.buffer[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Len returns the number of retained events.
func (t *Trail) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.buffer)
}

// prune drops events older than the retention window and returns the
// count removed. The buffer is ordered by arrival, which tracks event
// time closely enough for retention purposes.
func (t *Trail) prune(now time.Time) int {
	cutoff := now.Add(-t.retention)

	t.mu.Lock()
	defer t.mu.Unlock()

	idx := 0
	for idx < len(t.buffer) && t.buffer[idx].Timestamp.Before(cutoff) {
		idx++
	}
	if idx == 0 {
		return 0
	}
	t.buffer = append([]models.PipelineEvent(nil), t.buffer[idx:]...)
	return idx
}

// ── Janitor ─────────────────────────────────────────────────

// Janitor prunes the trail on an interval until its context is cancelled.
type Janitor struct {
	trail    *Trail
	interval time.Duration
}

// NewJanitor creates a janitor. Intervals under a minute are raised to
// an hour; retention is a coarse policy, not a hot path.
func NewJanitor(trail *Trail, interval time.Duration) *Janitor {
	if interval < time.Minute {
		interval = time.Hour
	}
	return &Janitor{trail: trail, interval: interval}
}

// Run blocks, pruning each interval, until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", j.interval).Dur("retention", j.trail.retention).Msg("Audit janitor started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Audit janitor stopped")
			return
		case now := <-ticker.C:
			if pruned := j.trail.prune(now); pruned > 0 {
				log.Debug().Int("pruned", pruned).Int("retained", j.trail.Len()).Msg("Pruned expired audit events")
			}
		}
	}
}
