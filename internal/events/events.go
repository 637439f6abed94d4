// Package events pushes attendance outcomes to live kiosk feeds and to the background
// worker, replacing client-side polling.
package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"checkin/internal/attendance"
	"checkin/internal/metrics"
	"checkin/internal/queue"
)

// TypeAttendanceRecorded is the queue message type carrying an attendance.Outcome.
const TypeAttendanceRecorded = "attendance.recorded"

// Hub fans outcomes out to subscribers of a schedule.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[chan attendance.Outcome]struct{}
	buffer int
}

// NewHub creates a hub whose subscribers buffer up to buffer outcomes.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{subs: make(map[string]map[chan attendance.Outcome]struct{}), buffer: buffer}
}

// Subscribe registers interest in scheduleID. The returned cancel func unsubscribes and
// closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(scheduleID string) (<-chan attendance.Outcome, func()) {
	ch := make(chan attendance.Outcome, h.buffer)
	h.mu.Lock()
	if h.subs[scheduleID] == nil {
		h.subs[scheduleID] = make(map[chan attendance.Outcome]struct{})
	}
	h.subs[scheduleID][ch] = struct{}{}
	h.mu.Unlock()
	metrics.FeedSubscribers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[scheduleID], ch)
			if len(h.subs[scheduleID]) == 0 {
				delete(h.subs, scheduleID)
			}
			close(ch)
			h.mu.Unlock()
			metrics.FeedSubscribers.Dec()
		})
	}
}

// Notify delivers o to every subscriber of its schedule. A subscriber whose buffer is
// full misses the outcome rather than stalling the scan.
func (h *Hub) Notify(_ context.Context, o attendance.Outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[o.ScheduleID] {
		select {
		case ch <- o:
		default:
			log.Printf("feed subscriber for %s is behind, dropping outcome", o.ScheduleID)
		}
	}
}

// QueuePublisher forwards outcomes to the worker queue.
type QueuePublisher struct {
	q queue.Queue
}

// NewQueuePublisher creates a publisher on q.
func NewQueuePublisher(q queue.Queue) *QueuePublisher {
	return &QueuePublisher{q: q}
}

// Notify publishes o. The scan is already recorded, so failures are only logged.
func (p *QueuePublisher) Notify(ctx context.Context, o attendance.Outcome) {
	body, err := json.Marshal(o)
	if err != nil {
		log.Printf("encode outcome: %v", err)
		return
	}
	if err := p.q.Publish(ctx, queue.Message{Type: TypeAttendanceRecorded, Body: body}); err != nil {
		log.Printf("queue publish failed: %v", err)
	}
}

// Fanout notifies each notifier in order.
type Fanout []attendance.Notifier

func (f Fanout) Notify(ctx context.Context, o attendance.Outcome) {
	for _, n := range f {
		n.Notify(ctx, o)
	}
}

// Decode parses the body of a TypeAttendanceRecorded message.
func Decode(msg queue.Message) (attendance.Outcome, error) {
	var o attendance.Outcome
	err := json.Unmarshal(msg.Body, &o)
	return o, err
}

// Sink records one outcome taken off the queue.
type Sink func(ctx context.Context, o attendance.Outcome) error

// Drain consumes attendance messages from q until ctx ends, handing each outcome to sink.
// Undecodable messages and sink failures are logged and skipped.
func Drain(ctx context.Context, q queue.Queue, sink Sink) error {
	msgs, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range msgs {
		if msg.Type != TypeAttendanceRecorded {
			continue
		}
		o, err := Decode(msg)
		if err != nil {
			log.Printf("decode %s message: %v", msg.Type, err)
			continue
		}
		if err := sink(ctx, o); err != nil {
			log.Printf("record scan %s for %s: %v", o.Type, o.Record.StudentID, err)
		}
	}
	return nil
}
