package webhook

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity bounds how many received events are kept for inspection.
const DefaultCapacity = 100

// Event is one received webhook delivery.
type Event struct {
	ID        string                 `json:"id"`
	WebhookID string                 `json:"webhook_id"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp string                 `json:"timestamp"`
}

// Log is a bounded in-memory record of received webhook deliveries, oldest
// entries evicted first.
type Log struct {
	mu       sync.Mutex
	events   []Event
	capacity int
}

// NewLog creates a webhook event log
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{capacity: capacity}
}

// Record appends a delivery, assigning it an id and timestamp.
func (l *Log) Record(webhookID string, payload map[string]interface{}) Event {
	ev := Event{
		ID:        uuid.NewString(),
		WebhookID: webhookID,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	l.mu.Lock()
	l.events = append(l.events, ev)
	if len(l.events) > l.capacity {
		l.events = l.events[len(l.events)-l.capacity:]
	}
	l.mu.Unlock()

	return ev
}

// Recent returns up to n deliveries, newest first.
func (l *Log) Recent(n int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > len(l.events) {
		n = len(l.events)
	}
	out := make([]Event, n)
	for i := 0; i < n; i++ {
		out[i] = l.events[len(l.events)-1-i]
	}
	return out
}

// Len reports how many deliveries are currently retained.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}
