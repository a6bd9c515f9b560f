// Package delivery queues outbound messages and dispatches them through a
// transport with pacing and bounded retries.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dmarin/chatrelay/internal/observability/metrics"
	"github.com/dmarin/chatrelay/pkg/logging"
)

// MaxBodyLength is the transport's message size limit in characters.
const MaxBodyLength = 4096

// ErrInvalidMessage rejects an empty or oversized body at enqueue time.
var ErrInvalidMessage = errors.New("delivery: invalid message body")

// ErrQueueClosed rejects enqueues after shutdown has begun.
var ErrQueueClosed = errors.New("delivery: queue closed")

// Priority orders a message within the queue.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// OutboundMessage is one queued reply awaiting dispatch.
type OutboundMessage struct {
	ID         string    `json:"id"`
	Target     string    `json:"target"`
	Body       string    `json:"body"`
	Priority   Priority  `json:"priority"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Transport sends one message to a contact.
type Transport interface {
	Send(ctx context.Context, target, body string) error
}

// Stats is a point-in-time snapshot of the queue.
type Stats struct {
	QueueLength       int  `json:"queue_length"`
	IsDraining        bool `json:"is_draining"`
	HighPriorityCount int  `json:"high_priority_count"`
}

// Queue holds outbound messages in priority order. High priority messages go
// to the front, normal to the back. A single drain loop dispatches them
// sequentially so per-contact ordering holds for messages enqueued from the
// same flow.
type Queue struct {
	transport   Transport
	logger      *logging.Logger
	metrics     *metrics.RelayMetrics
	delay       time.Duration
	retryDelay  time.Duration
	maxAttempts int
	maxBody     int
	onDrop      func(msg OutboundMessage, err error)
	wake        chan struct{}

	mu       sync.Mutex
	pending  []*OutboundMessage
	draining bool
	closed   bool
}

// NewQueue creates a queue draining into the given transport. Run must be
// started for messages to be delivered.
func NewQueue(transport Transport, logger *logging.Logger) *Queue {
	if logger == nil {
		logger = logging.Default()
	}
	return &Queue{
		transport:   transport,
		logger:      logger,
		delay:       1 * time.Second,
		retryDelay:  5 * time.Second,
		maxAttempts: 3,
		maxBody:     MaxBodyLength,
		wake:        make(chan struct{}, 1),
	}
}

// WithMessageDelay sets the pause between successful sends.
func (q *Queue) WithMessageDelay(d time.Duration) *Queue {
	if d >= 0 {
		q.delay = d
	}
	return q
}

// WithRetryDelay sets the pause after a failed send.
func (q *Queue) WithRetryDelay(d time.Duration) *Queue {
	if d >= 0 {
		q.retryDelay = d
	}
	return q
}

// WithMaxAttempts sets how many sends a message gets before being dropped.
func (q *Queue) WithMaxAttempts(n int) *Queue {
	if n > 0 {
		q.maxAttempts = n
	}
	return q
}

// WithMaxBodyLength overrides the transport's message size limit.
func (q *Queue) WithMaxBodyLength(n int) *Queue {
	if n > 0 {
		q.maxBody = n
	}
	return q
}

// WithMetrics attaches relay metrics.
func (q *Queue) WithMetrics(m *metrics.RelayMetrics) *Queue {
	q.metrics = m
	return q
}

// WithDropHandler registers a callback invoked when a message exhausts its
// attempts. The callback runs on the drain goroutine.
func (q *Queue) WithDropHandler(fn func(msg OutboundMessage, err error)) *Queue {
	q.onDrop = fn
	return q
}

// Enqueue validates and queues a message, waking the drain loop if it is
// idle. Duplicate wakeups while a drain is in progress are no-ops.
func (q *Queue) Enqueue(target, body string, priority Priority) error {
	if body == "" {
		return fmt.Errorf("delivery: empty body: %w", ErrInvalidMessage)
	}
	if n := utf8.RuneCountInString(body); n > q.maxBody {
		return fmt.Errorf("delivery: body is %d chars, limit %d: %w", n, q.maxBody, ErrInvalidMessage)
	}
	if priority != PriorityHigh {
		priority = PriorityNormal
	}

	msg := &OutboundMessage{
		ID:         uuid.NewString(),
		Target:     target,
		Body:       body,
		Priority:   priority,
		EnqueuedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if priority == PriorityHigh {
		q.pending = append([]*OutboundMessage{msg}, q.pending...)
	} else {
		q.pending = append(q.pending, msg)
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run drives the drain loop until ctx is canceled. On cancellation the queue
// stops accepting new messages and finishes delivering what is already
// queued before returning.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.closed = true
			q.mu.Unlock()
			q.drain()
			return
		case <-q.wake:
			q.drain()
		}
	}
}

// drain pops and sends until the queue is empty.
func (q *Queue) drain() {
	q.mu.Lock()
	q.draining = true
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		msg := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		err := q.transport.Send(context.Background(), msg.Target, msg.Body)
		if err == nil {
			q.metrics.ObserveOutbound("sent")
			q.logger.Debug("message delivered",
				"message_id", msg.ID,
				"target", msg.Target,
				"attempts", msg.Attempts+1,
			)
			time.Sleep(q.delay)
			continue
		}

		msg.Attempts++
		if msg.Attempts < q.maxAttempts {
			q.metrics.ObserveOutbound("retry")
			q.logger.Warn("send failed, requeueing",
				"message_id", msg.ID,
				"target", msg.Target,
				"attempts", msg.Attempts,
				"error", err,
			)
			q.mu.Lock()
			q.pending = append(q.pending, msg)
			q.mu.Unlock()
			time.Sleep(q.retryDelay)
			continue
		}

		q.metrics.ObserveOutbound("dropped")
		q.metrics.ObserveDropped()
		q.logger.Error("message dropped after exhausting retries",
			"message_id", msg.ID,
			"target", msg.Target,
			"attempts", msg.Attempts,
			"error", err,
		)
		if q.onDrop != nil {
			q.onDrop(*msg, err)
		}
	}
}

// Stats reports the queue's current state.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	high := 0
	for _, m := range q.pending {
		if m.Priority == PriorityHigh {
			high++
		}
	}
	return Stats{
		QueueLength:       len(q.pending),
		IsDraining:        q.draining,
		HighPriorityCount: high,
	}
}
