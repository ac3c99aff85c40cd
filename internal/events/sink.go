// Package events delivers pipeline audit events to a telemetry backend.
//
// Emission is strictly fire-and-forget: the pipeline never blocks on the
// sink. Events flow through a bounded queue drained by a single worker;
// under backpressure the oldest queued event is dropped. Delivery failures
// are logged once and then swallowed silently until delivery recovers.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/medquill/medquill/pipeline/pkg/models"
)

// DefaultQueueSize bounds the in-flight event queue.
const DefaultQueueSize = 256

// Delivery sends one event to the backend.
type Delivery interface {
	Deliver(event models.PipelineEvent) error
}

// ── Log Delivery ────────────────────────────────────────────

// LogDelivery writes events to the structured log. The zero-config
// backend: every deployment gets an audit trail even without a collector.
type LogDelivery struct{}

// Deliver logs the event.
func (LogDelivery) Deliver(event models.PipelineEvent) error {
	log.Info().
		Str("event_id", event.ID).
		Str("type", string(event.Type)).
		Str("prompt_hash", event.PromptHash).
		Str("task_type", event.TaskType).
		Str("tier", string(event.Tier)).
		Int("attempt", event.Attempt).
		Str("caller", event.Caller).
		Msg("pipeline event")
	return nil
}

// ── Sink ────────────────────────────────────────────────────

// Sink is the bounded, asynchronous event queue.
type Sink struct {
	delivery Delivery
	queue    chan models.PipelineEvent
	done     chan struct{}
	warnOnce sync.Once
	dropMu   sync.Mutex
}

// NewSink starts a sink draining into the given delivery backend.
func NewSink(delivery Delivery, queueSize int) *Sink {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	s := &Sink{
		delivery: delivery,
		queue:    make(chan models.PipelineEvent, queueSize),
		done:     make(chan struct{}),
	}
	go s.drain()
	return s
}

// Emit enqueues an event without blocking. If the queue is full the
// oldest queued event is dropped to make room.
func (s *Sink) Emit(event models.PipelineEvent) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case s.queue <- event:
		return
	default:
	}

	// Queue full: drop the oldest, then retry once. The lock keeps two
	// concurrent emitters from both popping on the same overflow.
	s.dropMu.Lock()
	select {
	case <-s.queue:
	default:
	}
	select {
	case s.queue <- event:
	default:
	}
	s.dropMu.Unlock()
}

func (s *Sink) drain() {
	for {
		select {
		case event := <-s.queue:
			if err := s.delivery.Deliver(event); err != nil {
				s.warnOnce.Do(func() {
					log.Warn().Err(err).Msg("Telemetry delivery failing, further errors suppressed")
				})
			}
		case <-s.done:
			return
		}
	}
}

// Close stops the drain worker. Queued events are discarded; telemetry is
// best-effort by contract.
func (s *Sink) Close() {
	close(s.done)
}
