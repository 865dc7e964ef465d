package mail

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrDispatcherClosed is returned by Close when called a second time.
var ErrDispatcherClosed = errors.New("mail: dispatcher already closed")

// DispatcherConfig sizes the delivery queue and its worker pool.
type DispatcherConfig struct {
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
}

// DefaultDispatcherConfig returns a small pool suited to a single instance.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{QueueSize: 100, Workers: 2, SendTimeout: 10 * time.Second}
}

type job struct {
	ctx context.Context
	msg *Message
}

// Dispatcher hands messages to a Sender from a bounded queue. Delivery is at
// most once: a full queue drops the message and send failures are only
// logged.
type Dispatcher struct {
	sender      Sender
	sendTimeout time.Duration
	logger      *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
}

// NewDispatcher starts cfg.Workers goroutines draining the queue.
func NewDispatcher(sender Sender, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}

	d := &Dispatcher{
		sender:      sender,
		sendTimeout: cfg.SendTimeout,
		logger:      logger,
		queue:       make(chan job, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Enqueue schedules msg for delivery and never blocks. It reports whether the
// message was accepted. Request-scoped values of ctx such as the correlation
// ID travel with the message; its cancellation does not.
func (d *Dispatcher) Enqueue(ctx context.Context, msg *Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(ctx, msg, "dispatcher closed")
		return false
	}

	select {
	case d.queue <- job{ctx: context.WithoutCancel(ctx), msg: msg}:
		queueDepth.Inc()
		return true
	default:
		d.drop(ctx, msg, "queue full")
		return false
	}
}

func (d *Dispatcher) drop(ctx context.Context, msg *Message, reason string) {
	messagesDropped.WithLabelValues(msg.Template).Inc()
	d.logger.WarnContext(ctx, "email dropped",
		slog.String("reason", reason),
		slog.String("template", msg.Template),
		slog.String("username", msg.Username),
	)
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		queueDepth.Dec()
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.sendTimeout)
	defer cancel()

	start := time.Now()
	if err := d.sender.Send(ctx, j.msg); err != nil {
		messagesSent.WithLabelValues(d.sender.Name(), "error").Inc()
		d.logger.ErrorContext(ctx, "failed to send email",
			slog.String("sender", d.sender.Name()),
			slog.String("template", j.msg.Template),
			slog.String("username", j.msg.Username),
			slog.String("error", err.Error()),
		)
		return
	}

	messagesSent.WithLabelValues(d.sender.Name(), "success").Inc()
	d.logger.DebugContext(ctx, "email sent",
		slog.String("sender", d.sender.Name()),
		slog.String("template", j.msg.Template),
		slog.String("username", j.msg.Username),
		slog.Duration("duration", time.Since(start)),
	)
}

// Close stops accepting messages and waits for queued ones to be delivered
// or for ctx to end, whichever comes first.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
