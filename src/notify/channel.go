package notify

import (
	"context"
	"sync"
	"sync/atomic"

	"mt-gateway/src/interfaces"
	"mt-gateway/src/logger"
	"mt-gateway/src/metrics"
)

// Status is a point-in-time view of the channel for the control plane.
type Status struct {
	State    string `json:"state"`
	Failures int    `json:"failures"`
	Queued   int    `json:"queued"`
	Sent     int64  `json:"sent"`
	Failed   int64  `json:"failed"`
	Dropped  int64  `json:"dropped"`
	Rejected int64  `json:"rejected"` // queue full
}

// -----------------------------------------------------------------------------
// Channel is a bounded FIFO with exactly one consumer. Messages dequeued while
// the breaker is open are dropped, not requeued.
// -----------------------------------------------------------------------------

type Channel struct {
	queue   chan string
	sender  interfaces.ISender
	breaker *CircuitBreaker
	logger  *logger.Logger

	sent     int64
	failed   int64
	dropped  int64
	rejected int64

	startOnce sync.Once
	done      chan struct{}
}

func NewChannel(sender interfaces.ISender, breaker *CircuitBreaker, queueSize int, log *logger.Logger) *Channel {
	if log == nil {
		log = logger.NewNop()
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Channel{
		queue:   make(chan string, queueSize),
		sender:  sender,
		breaker: breaker,
		logger:  log,
		done:    make(chan struct{}),
	}
}

// -----------------------------------------------------------------------------

// Enqueue never blocks. A full queue drops the message.
func (c *Channel) Enqueue(text string) {
	select {
	case c.queue <- text:
	default:
		atomic.AddInt64(&c.rejected, 1)
		metrics.Notifications.WithLabelValues("queue_full").Inc()
		c.logger.Warning("Notification queue full, message dropped")
	}
}

// -----------------------------------------------------------------------------

// Start launches the consumer. It exits when ctx is cancelled.
func (c *Channel) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		go c.run(ctx)
	})
}

// Done is closed once the consumer has exited.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	c.logger.Info("Notification sender started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Notification sender stopped (%d queued messages discarded)", len(c.queue))
			return
		case text := <-c.queue:
			c.deliver(ctx, text)
		}
	}
}

// -----------------------------------------------------------------------------

func (c *Channel) deliver(ctx context.Context, text string) {
	if !c.breaker.Allow() {
		atomic.AddInt64(&c.dropped, 1)
		metrics.Notifications.WithLabelValues("dropped").Inc()
		return
	}

	if err := c.sender.Send(ctx, text); err != nil {
		c.breaker.RecordFailure()
		atomic.AddInt64(&c.failed, 1)
		metrics.Notifications.WithLabelValues("failed").Inc()
		c.logger.Error("Notification delivery failed: %v", err)
		if c.breaker.State() == StateOpen {
			c.logger.Warning("Notification circuit open until %s", c.breaker.ReopensAt().Format("15:04:05"))
		}
		return
	}

	c.breaker.RecordSuccess()
	atomic.AddInt64(&c.sent, 1)
	metrics.Notifications.WithLabelValues("sent").Inc()
}

// -----------------------------------------------------------------------------

func (c *Channel) Status() Status {
	return Status{
		State:    c.breaker.State().String(),
		Failures: c.breaker.Failures(),
		Queued:   len(c.queue),
		Sent:     atomic.LoadInt64(&c.sent),
		Failed:   atomic.LoadInt64(&c.failed),
		Dropped:  atomic.LoadInt64(&c.dropped),
		Rejected: atomic.LoadInt64(&c.rejected),
	}
}
