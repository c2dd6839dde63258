package rpc

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ternsql/tern/metrics"
)

// reactorTask is a move-only unit of work posted to a Reactor's loop
// goroutine. Re-architected from the original's self-deleting task objects
// (spec.md §9): it is a plain function value placed on a channel, and its
// storage is reclaimed naturally once the loop goroutine returns from
// running it -- nothing to remember to delete.
type reactorTask struct {
	fn func()
}

// Reactor is a single goroutine that owns a set of Connections and is the
// only goroutine ever allowed to mutate their non-atomic state. It is
// grounded on net/stateful/actor.go's actorRuntime.oneLoop (ticker +
// channel select + context cancellation), adapted from one goroutine per
// actor to one goroutine multiplexing many connections -- the same
// one-thread-owns-many-sockets shape a libev/epoll reactor has, realized in
// Go as a channel of posted closures instead of registered fd callbacks.
type Reactor struct {
	id int

	taskCh  chan reactorTask
	closeCh chan struct{}
	closeOnce sync.Once
	wg      sync.WaitGroup

	connCount atomic.Int64
	loopGID   atomic.Uint64
}

func newReactor(id, queueSize int) *Reactor {
	r := &Reactor{
		id:      id,
		taskCh:  make(chan reactorTask, queueSize),
		closeCh: make(chan struct{}),
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

func (r *Reactor) loop() {
	defer r.wg.Done()
	r.loopGID.Store(goroutineID())

	for {
		select {
		case t := <-r.taskCh:
			t.fn()
		case <-r.closeCh:
			r.drain()
			return
		}
	}
}

// drain runs whatever is still queued without waiting for further posts,
// mirroring FileAppender.asyncLoop's shutdown drain: pending shutdown tasks
// (connection teardown, CAR failure) must still run before the reactor
// goroutine exits.
func (r *Reactor) drain() {
	for {
		select {
		case t := <-r.taskCh:
			t.fn()
		default:
			return
		}
	}
}

// post enqueues fn to run on the reactor's loop goroutine. The send blocks
// until either the task is accepted or the reactor is closing, so a post
// from a live connection is never silently dropped.
func (r *Reactor) post(fn func()) {
	select {
	case r.taskCh <- reactorTask{fn: fn}:
	case <-r.closeCh:
	}
}

func (r *Reactor) stop() {
	r.closeOnce.Do(func() { close(r.closeCh) })
	r.wg.Wait()
}

// goroutineID returns the calling goroutine's id. Go exposes no public
// goroutine-identity API the way the original compares pthread_self()
// against a stored reactor thread id; this parses runtime.Stack's
// "goroutine N [...]" header, the same trick several debugging libraries
// use, and is only ever consulted for assertions (IsCurrentGoroutine and
// Connection.IsCurrentReactor), never for correctness-critical control flow.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if idx := bytes.IndexByte(buf, ' '); idx >= 0 {
		buf = buf[:idx]
	}
	id, _ := strconv.ParseUint(string(buf), 10, 64)
	return id
}

// IsCurrentGoroutine reports whether the calling goroutine is this
// Reactor's own loop goroutine.
func (r *Reactor) IsCurrentGoroutine() bool {
	return r.loopGID.Load() == goroutineID()
}

// Closed returns a channel that is closed once this Reactor has stopped.
// A caller that posts a query and blocks on its result channel should
// select on this too, since post silently drops a task once closeCh is
// closed and would otherwise leave the caller waiting forever.
func (r *Reactor) Closed() <-chan struct{} {
	return r.closeCh
}

// ReactorPool distributes Connections round-robin across a fixed set of
// Reactors, mirroring tcp_transport.go's per-connection goroutine spawn but
// funneling state mutation through the owning Reactor instead of leaving
// each connection's concurrency implicit.
type ReactorPool struct {
	reactors []*Reactor
	next     atomic.Uint64
}

// NewReactorPool starts cfg.NumReactors reactor goroutines, each with a
// task queue of cfg.TaskQueueSize.
func NewReactorPool(cfg *ReactorPoolConfig) *ReactorPool {
	if cfg == nil {
		cfg = defaultReactorPoolConfig()
	}
	n := cfg.NumReactors
	if n <= 0 {
		n = 1
	}
	p := &ReactorPool{reactors: make([]*Reactor, n)}
	for i := range p.reactors {
		p.reactors[i] = newReactor(i, cfg.TaskQueueSize)
	}
	return p
}

// Next returns the next Reactor in round-robin order for a newly accepted
// or dialed Connection.
func (p *ReactorPool) Next() *Reactor {
	idx := p.next.Add(1) - 1
	r := p.reactors[idx%uint64(len(p.reactors))]
	metrics.UpdateGaugeWithGroup("rpc", "reactor_assign_total", metrics.Value(r.connCount.Add(1)))
	return r
}

// Stop closes every Reactor, waiting for each to drain its pending tasks.
func (p *ReactorPool) Stop() {
	for _, r := range p.reactors {
		r.stop()
	}
}
