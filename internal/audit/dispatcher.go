package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config sizes the queue between engine hooks and the sink.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull trades completeness for never blocking a login or logout.
	DropIfFull bool
}

// Dispatcher hands events to one sink goroutine so that slow sinks stay off the session
// path. A nil *Dispatcher is a valid disabled dispatcher.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool

	queue    chan Event
	stopping chan struct{}
	worker   sync.WaitGroup

	lost     atomic.Uint64
	shut     atomic.Bool
	shutOnce sync.Once
}

// NewDispatcher starts the sink goroutine, or returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
		stopping:   make(chan struct{}),
	}
	d.worker.Add(1)
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer d.worker.Done()

	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stopping:
			d.flush()
			return
		}
	}
}

// flush delivers whatever was queued before Close without waiting for more.
func (d *Dispatcher) flush() {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	d.sink.Emit(context.Background(), ev)
}

// Emit enqueues event. A full queue either counts a drop or blocks until ctx ends,
// depending on DropIfFull. Events emitted after Close are ignored.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.shut.Load() {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		case <-d.stopping:
		default:
			d.lost.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-d.stopping:
	case <-ctx.Done():
		d.lost.Add(1)
	}
}

// Close flushes the queue and stops the sink goroutine. Later calls return at once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.shutOnce.Do(func() {
		d.shut.Store(true)
		close(d.stopping)
		d.worker.Wait()
	})
}

// Dropped reports events lost to a full queue or an expired caller context.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.lost.Load()
}
