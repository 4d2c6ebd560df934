package goSession

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// eventDispatcher hands session events to the sink on one worker goroutine so
// a slow sink never sits on the request path.
//
// Request-path events go through Emit and follow EventsConfig.DropIfFull.
// Events raised while a refresh is in flight go through Offer, which never
// waits: the refresh leader has queued requests behind it.
type eventDispatcher struct {
	cfg      EventsConfig
	sink     EventSink
	logger   *zap.Logger
	queue    chan SessionEvent
	stop     chan struct{}
	stopped  sync.WaitGroup
	stopOnce sync.Once
	closing  atomic.Bool
	dropped  atomic.Uint64
	panics   atomic.Uint64
}

func newEventDispatcher(cfg EventsConfig, sink EventSink, logger *zap.Logger) *eventDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &eventDispatcher{
		cfg:    cfg,
		sink:   sink,
		logger: logger.Named("events"),
		queue:  make(chan SessionEvent, cfg.BufferSize),
		stop:   make(chan struct{}),
	}
	d.stopped.Add(1)
	go d.run()
	return d
}

func (d *eventDispatcher) run() {
	defer d.stopped.Done()
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

// drain flushes whatever is buffered at Close.
func (d *eventDispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		default:
			return
		}
	}
}

// deliver calls the sink once. A panicking sink loses that event only.
func (d *eventDispatcher) deliver(event SessionEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			d.logger.Error("event sink panicked",
				zap.String("event_type", event.EventType),
				zap.String("request_id", event.RequestID),
				zap.Any("panic", r),
			)
		}
	}()
	d.sink.Emit(context.Background(), event)
}

// Emit queues event for the sink. With DropIfFull a full buffer drops the
// event; otherwise Emit waits for space until ctx ends or the dispatcher
// closes.
func (d *eventDispatcher) Emit(ctx context.Context, event SessionEvent) {
	if d == nil || d.closing.Load() {
		return
	}
	if d.cfg.DropIfFull {
		d.Offer(event)
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stop:
	}
}

// Offer queues event only if the buffer has room and reports whether it did.
// It ignores DropIfFull.
func (d *eventDispatcher) Offer(event SessionEvent) bool {
	if d == nil || d.closing.Load() {
		return false
	}
	select {
	case d.queue <- event:
		return true
	default:
		d.dropped.Add(1)
		return false
	}
}

// Close delivers buffered events and stops the worker. Safe to call more
// than once.
func (d *eventDispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		d.stopped.Wait()
	})
}

// Dropped counts events that never reached the queue.
func (d *eventDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// SinkPanics counts deliveries the sink panicked on.
func (d *eventDispatcher) SinkPanics() uint64 {
	if d == nil {
		return 0
	}
	return d.panics.Load()
}
