package rbac

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

// AuditSink receives every audit event for durable storage.
type AuditSink interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// EvictionObserver is notified when the in-memory buffer drops its oldest entry.
type EvictionObserver interface {
	AuditEvicted()
}

// AuditTrail is an append-only, bounded in-memory audit buffer. Past capacity
// the oldest entries are evicted; the sink still receives the full stream.
type AuditTrail struct {
	mu       sync.Mutex
	entries  []shared.AuditLog
	start    int
	size     int
	sink     AuditSink
	observer EvictionObserver
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuditTrail constructs a trail with the given capacity.
func NewAuditTrail(capacity int, sink AuditSink, logger *slog.Logger) *AuditTrail {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	return &AuditTrail{
		entries: make([]shared.AuditLog, capacity),
		sink:    sink,
		logger:  logger,
		now:     time.Now,
	}
}

// WithObserver attaches an eviction observer (metrics).
func (t *AuditTrail) WithObserver(o EvictionObserver) *AuditTrail {
	t.observer = o
	return t
}

// WithNow overrides the clock for testing.
func (t *AuditTrail) WithNow(now func() time.Time) {
	if now != nil {
		t.now = now
	}
}

// Append records an event in the buffer and forwards it to the sink. Sink
// failures are logged; they never fail the audited operation.
func (t *AuditTrail) Append(ctx context.Context, event shared.AuditLog) {
	if t == nil {
		return
	}
	if event.At.IsZero() {
		event.At = t.now().UTC()
	}
	evicted := false
	t.mu.Lock()
	capacity := len(t.entries)
	if t.size < capacity {
		t.entries[(t.start+t.size)%capacity] = event
		t.size++
	} else {
		t.entries[t.start] = event
		t.start = (t.start + 1) % capacity
		evicted = true
	}
	t.mu.Unlock()

	if evicted && t.observer != nil {
		t.observer.AuditEvicted()
	}
	if t.sink != nil {
		if err := t.sink.Record(ctx, event); err != nil && t.logger != nil {
			t.logger.Warn("audit sink record", slog.String("action", event.Action), slog.Any("error", err))
		}
	}
}

// Entries returns a snapshot, oldest first.
func (t *AuditTrail) Entries() []shared.AuditLog {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]shared.AuditLog, 0, t.size)
	capacity := len(t.entries)
	for i := 0; i < t.size; i++ {
		out = append(out, t.entries[(t.start+i)%capacity])
	}
	return out
}

// Len returns the number of buffered entries.
func (t *AuditTrail) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}
