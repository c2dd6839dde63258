package rpc

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ternsql/tern/log"
	"github.com/ternsql/tern/rpc/wire"
	"github.com/ternsql/tern/tracing"
)

// connState is a Connection's lifecycle position (spec.md §3).
type connState int

const (
	StateNew connState = iota
	StateNegotiating
	StateOpen
	StateShuttingDown
	StateClosed
)

func (s connState) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateNegotiating:
		return "Negotiating"
	case StateOpen:
		return "Open"
	case StateShuttingDown:
		return "ShuttingDown"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// car is a Call-Awaiting-Response table entry. call goes nil once the
// timeout timer fires (spec.md §4.4): the CAR stays in the table so a late
// response can still be recognized by id and silently dropped (spec.md §8
// invariant 6) instead of looking like an unknown call id.
type car struct {
	call  *OutboundCall
	timer *time.Timer
}

// InboundCallHandler dispatches a parsed InboundCall to business logic,
// grounded on net/dispatcher.go's MsgLayerReceiver: the connection core
// knows nothing about what a call means, only who to hand it to.
type InboundCallHandler interface {
	QueueInboundCall(call *InboundCall)
}

// DumpConnection is the introspection record produced by Connection.DumpPB.
type DumpConnection struct {
	Direction    string
	RemoteAddr   string
	State        string
	AwaitingResp int
	Handling     int
}

// Connection is one TCP socket multiplexing any number of in-flight calls,
// owned by exactly one Reactor goroutine (spec.md §3, §5). Every field
// below is mutated only on that Reactor's loop goroutine; the reader and
// writer goroutines below touch only the raw net.Conn and communicate back
// by posting closures, never by writing to a Connection field directly.
type Connection struct {
	direction  Direction
	remoteAddr string
	conn       net.Conn
	reactor    *Reactor
	adapter    protocolAdapter
	registry   InboundCallHandler
	cfg        *ConnectionConfig

	state               connState
	lastActivity        time.Time
	negotiationComplete bool
	isRegistered        bool
	nextCallID          uint64
	shutdownStatus      *Status

	userCredentials interface{}

	inbound       InboundTransfer
	outboundQueue []*OutboundTransfer
	writeInFlight bool

	awaitingResponse  map[uint64]*car
	callsBeingHandled map[uint64]*InboundCall

	// processingCall and pendingRedisDispatch implement Redis's
	// single-in-flight discipline; unused by Native/CQL.
	processingCall       bool
	pendingRedisDispatch [][]byte

	writeCh   chan *OutboundTransfer
	closedCh  chan struct{}
	closeOnce sync.Once
}

// NewConnection wraps an accepted or dialed socket. Register must be called
// before any bytes are read or written.
func NewConnection(conn net.Conn, direction Direction, adapter protocolAdapter, reactor *Reactor, registry InboundCallHandler, cfg *ConnectionConfig) *Connection {
	if cfg == nil {
		cfg = defaultConnectionConfig()
	}
	return &Connection{
		direction:         direction,
		remoteAddr:        conn.RemoteAddr().String(),
		conn:              conn,
		reactor:           reactor,
		adapter:           adapter,
		registry:          registry,
		cfg:               cfg,
		state:             StateNew,
		awaitingResponse:  make(map[uint64]*car),
		callsBeingHandled: make(map[uint64]*InboundCall),
		writeCh:           make(chan *OutboundTransfer),
		closedCh:          make(chan struct{}),
	}
}

// Register transitions New -> Negotiating and starts the connection's
// reader and writer goroutines. Safe to call from any goroutine.
func (c *Connection) Register() {
	c.reactor.post(func() {
		c.state = StateNegotiating
		c.lastActivity = time.Now()
		c.inbound = c.adapter.NewInboundTransfer()
	})
	go c.readLoop()
	go c.writeLoop()
}

// readLoop is the connection's reader goroutine. It never touches
// Connection state directly; every chunk or error is handed to the owning
// Reactor as a posted closure, the same discipline tcp_acceptor.go's serve
// loop uses for handing accepted conns to OnAccept.
func (c *Connection) readLoop() {
	buf := make([]byte, c.cfg.ReadBufferBytes)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			c.reactor.post(func() { c.onReadChunk(chunk) })
		}
		if err != nil {
			status := networkError("read: %v", err)
			if err == io.EOF {
				status = peerClosed("peer closed connection")
			}
			c.reactor.post(func() { c.onReadError(status) })
			return
		}
	}
}

// writeLoop is the connection's writer goroutine: it drains writeCh one
// transfer at a time and reports the outcome back onto the Reactor.
func (c *Connection) writeLoop() {
	for {
		select {
		case t, ok := <-c.writeCh:
			if !ok {
				return
			}
			_, err := t.SendBuffer(c.conn)
			c.reactor.post(func() { c.onWriteDone(t, err) })
		case <-c.closedCh:
			return
		}
	}
}

// onReadChunk runs on the reactor loop. It feeds every byte of chunk into
// however many InboundTransfers it takes to consume it (Redis's
// over-reading past a frame boundary is exactly why this loops).
func (c *Connection) onReadChunk(chunk []byte) {
	if c.state == StateShuttingDown || c.state == StateClosed {
		return
	}
	c.lastActivity = time.Now()

	for len(chunk) > 0 {
		if c.inbound == nil {
			c.inbound = c.adapter.NewInboundTransfer()
		}
		consumed, err := c.inbound.Feed(chunk)
		if err != nil {
			c.shutdownOnLoop(protocolError("frame decode: %v", err))
			return
		}
		chunk = chunk[consumed:]

		if c.inbound.Finished() {
			finished := c.inbound
			c.inbound = nil
			c.handleFinishedTransferOnLoop(finished)
			if c.state == StateShuttingDown || c.state == StateClosed {
				return
			}
		}
		if consumed == 0 {
			break
		}
	}
}

// handleFinishedTransferOnLoop hands a completed InboundTransfer to the
// protocol adapter under a span covering exactly that transfer, mirroring
// tcpctx.recvPkg's one-span-per-package tracing.
func (c *Connection) handleFinishedTransferOnLoop(t InboundTransfer) {
	span := tracing.GlobalTracer().StartSpan("rpc.recv_transfer",
		tracing.Tag("direction", c.direction.String()),
		tracing.Tag("remote_addr", c.remoteAddr),
	)
	defer span.Finish()
	c.adapter.HandleFinishedTransfer(c, t)
}

func (c *Connection) onReadError(status *Status) {
	if status.Kind() == KindPeerClosed {
		log.Info().Str("conn", c.String()).Msg("connection closed by peer")
	} else {
		log.Warn().Str("conn", c.String()).Err(status).Msg("connection read error")
	}
	c.shutdownOnLoop(status)
}

func (c *Connection) onWriteDone(t *OutboundTransfer, err error) {
	c.writeInFlight = false
	if err != nil {
		t.notifyAborted(networkError("write: %v", err))
		c.shutdownOnLoop(networkError("write: %v", err))
		return
	}
	t.notifyFinished()
	c.pumpOutboundQueue()
}

// QueueOutbound enqueues a pre-built transfer for transmission. Safe to
// call from any goroutine.
func (c *Connection) QueueOutbound(t *OutboundTransfer) {
	c.reactor.post(func() { c.queueOutboundOnLoop(t) })
}

func (c *Connection) queueOutboundOnLoop(t *OutboundTransfer) {
	if c.state == StateShuttingDown || c.state == StateClosed {
		t.notifyAborted(shutdownStatus("connection is shutting down"))
		return
	}
	c.outboundQueue = append(c.outboundQueue, t)
	c.pumpOutboundQueue()
}

// pumpOutboundQueue starts the next queued transfer writing if the writer
// goroutine is idle. Write activity is gated on StateOpen: the write watcher
// never runs until negotiation completes, so anything queued while New or
// Negotiating stays queued until CompleteNegotiation flips the state (or the
// connection is torn down and the queue is drained with an error instead).
// Transfers queued once ShuttingDown or Closed are aborted by
// queueOutboundOnLoop and never enter the queue.
func (c *Connection) pumpOutboundQueue() {
	if c.writeInFlight || len(c.outboundQueue) == 0 {
		return
	}
	if c.state != StateOpen {
		return
	}
	next := c.outboundQueue[0]
	c.outboundQueue = c.outboundQueue[1:]
	c.writeInFlight = true
	select {
	case c.writeCh <- next:
	case <-c.closedCh:
	}
}

// QueueOutboundCall assigns a call id, arms its timeout, and enqueues its
// serialized bytes for transmission (spec.md §4.4). Safe to call from any
// goroutine.
func (c *Connection) QueueOutboundCall(call *OutboundCall) {
	c.reactor.post(func() { c.queueOutboundCallOnLoop(call) })
}

func (c *Connection) queueOutboundCallOnLoop(call *OutboundCall) {
	if c.state == StateShuttingDown || c.state == StateClosed {
		call.SetFailed(shutdownStatus("connection is shutting down"))
		return
	}

	c.nextCallID++
	id := c.nextCallID
	call.SetCallID(id)

	slices, err := c.encodeOutboundCall(call, id)
	if err != nil {
		call.SetFailed(runtimeError("encode call: %v", err))
		return
	}
	call.SetQueued()

	timeout, hasTimeout := call.controllerRef().Timeout()
	if !hasTimeout && c.cfg.DefaultCallTimeoutMs > 0 {
		timeout = time.Duration(c.cfg.DefaultCallTimeoutMs) * time.Millisecond
		hasTimeout = true
	}

	cr := &car{call: call}
	if hasTimeout {
		cr.timer = time.AfterFunc(timeout, func() {
			c.reactor.post(func() { c.handleOutboundCallTimeout(id) })
		})
	}
	c.awaitingResponse[id] = cr

	transfer := NewOutboundTransfer(slices, funcTransferCallbacks{
		onFinished: func() { call.SetSent() },
		onAborted:  func(status *Status) { call.SetFailed(status) },
	})
	c.queueOutboundOnLoop(transfer)
}

// encodeOutboundCall frames the call's opaque payload for the wire. Only
// the Native protocol needs a call-id-bearing frame header here; Redis and
// CQL calls are sent exactly as SerializeTo produced them.
func (c *Connection) encodeOutboundCall(call *OutboundCall, id uint64) ([][]byte, error) {
	slices, err := call.SerializeTo()
	if err != nil {
		return nil, err
	}
	if c.adapter.Name() != "native" {
		return slices, nil
	}
	var body []byte
	for _, s := range slices {
		body = append(body, s...)
	}
	return wire.EncodeFrame(wire.Header{CallID: id, Method: call.Method()}, body), nil
}

// handleOutboundCallTimeout marks the call timed out and nulls the CAR's
// call pointer, but leaves the CAR itself in the table (spec.md §4.4) so a
// late response is still recognized by id and dropped silently rather than
// logged as unknown.
func (c *Connection) handleOutboundCallTimeout(id uint64) {
	cr, ok := c.awaitingResponse[id]
	if !ok || cr.call == nil {
		return
	}
	cr.call.SetTimedOut()
	cr.call = nil
}

// CompleteNegotiation transitions Negotiating -> Open, or shuts the
// connection down if negotiation failed. Safe to call from any goroutine.
func (c *Connection) CompleteNegotiation(status *Status) {
	c.reactor.post(func() { c.completeNegotiationOnLoop(status) })
}

func (c *Connection) completeNegotiationOnLoop(status *Status) {
	if !status.OK() {
		c.shutdownOnLoop(status)
		return
	}
	c.state = StateOpen
	c.negotiationComplete = true
	c.isRegistered = true
	c.pumpOutboundQueue()
}

// QueueResponseForCall serializes and enqueues the response to a
// server-direction InboundCall. It may be invoked from a worker goroutine
// handling the call, never just the reactor.
func (c *Connection) QueueResponseForCall(call *InboundCall) {
	c.reactor.post(func() { c.queueResponseForCallOnLoop(call) })
}

func (c *Connection) queueResponseForCallOnLoop(call *InboundCall) {
	slices, err := call.SerializeResponseTo()
	if err != nil {
		log.Error().Str("conn", c.String()).Err(err).Msg("serialize response")
		return
	}
	if c.adapter.Name() == "native" {
		var body []byte
		for _, s := range slices {
			body = append(body, s...)
		}
		slices = wire.EncodeFrame(wire.Header{CallID: call.CallID(), Method: call.Method()}, body)
	}
	transfer := NewOutboundTransfer(slices, c.adapter.ResponseCallbacks(c, call))
	c.queueOutboundOnLoop(transfer)
}

// Shutdown tears the connection down with the given status. Safe to call
// from any goroutine, and idempotent.
func (c *Connection) Shutdown(status *Status) {
	c.reactor.post(func() { c.shutdownOnLoop(status) })
}

// shutdownOnLoop implements spec.md §4.6: record the status, warn about any
// partial inbound transfer, fail every outstanding CAR, abort every queued
// outbound transfer, then close the socket.
func (c *Connection) shutdownOnLoop(status *Status) {
	if c.state == StateShuttingDown || c.state == StateClosed {
		return
	}
	c.state = StateShuttingDown
	c.shutdownStatus = status

	if c.inbound != nil && c.inbound.Started() && !c.inbound.Finished() {
		log.Warn().Str("conn", c.String()).Msg("shutting down with a partial inbound transfer")
	}

	for id, cr := range c.awaitingResponse {
		if cr.timer != nil {
			cr.timer.Stop()
		}
		if cr.call != nil {
			cr.call.SetFailed(status)
		}
		delete(c.awaitingResponse, id)
	}

	for _, t := range c.outboundQueue {
		t.notifyAborted(status)
	}
	c.outboundQueue = nil
	c.callsBeingHandled = make(map[uint64]*InboundCall)
	c.isRegistered = false
	c.state = StateClosed

	c.closeOnce.Do(func() {
		close(c.closedCh)
		_ = c.conn.Close()
	})
}

// Idle implements spec.md §4.1's idleness predicate: no in-flight outbound
// calls, no calls being handled, nothing queued or mid-write, and no
// partial inbound transfer. It runs as a posted query so the caller always
// observes a consistent snapshot from the owning reactor goroutine. Once the
// owning reactor has stopped there is nothing left in flight by definition,
// so Idle reports true instead of waiting on a query that will never run.
func (c *Connection) Idle() bool {
	result := make(chan bool, 1)
	c.reactor.post(func() { result <- c.idleOnLoop() })
	select {
	case idle := <-result:
		return idle
	case <-c.reactor.Closed():
		return true
	}
}

func (c *Connection) idleOnLoop() bool {
	return len(c.awaitingResponse) == 0 &&
		len(c.callsBeingHandled) == 0 &&
		len(c.outboundQueue) == 0 &&
		!c.writeInFlight &&
		(c.inbound == nil || !c.inbound.Started())
}

// IsCurrentReactor reports whether the calling goroutine is this
// connection's owning reactor goroutine. Assertion-only, per goroutineID's
// own caveat.
func (c *Connection) IsCurrentReactor() bool {
	return c.reactor.IsCurrentGoroutine()
}

// DumpPB produces an introspection snapshot. It returns an error while the
// connection is still negotiating, since no stable state exists to report
// yet. If the owning reactor has already stopped (post would otherwise
// never run the query), it reports the connection as Closed rather than
// blocking forever.
func (c *Connection) DumpPB() (DumpConnection, error) {
	type dumpResult struct {
		dump DumpConnection
		err  error
	}
	resultCh := make(chan dumpResult, 1)
	c.reactor.post(func() {
		if c.state == StateNegotiating {
			resultCh <- dumpResult{err: fmt.Errorf("connection is still negotiating")}
			return
		}
		resultCh <- dumpResult{dump: DumpConnection{
			Direction:    c.direction.String(),
			RemoteAddr:   c.remoteAddr,
			State:        c.state.String(),
			AwaitingResp: len(c.awaitingResponse),
			Handling:     len(c.callsBeingHandled),
		}}
	})
	select {
	case r := <-resultCh:
		return r.dump, r.err
	case <-c.reactor.Closed():
		return DumpConnection{
			Direction:  c.direction.String(),
			RemoteAddr: c.remoteAddr,
			State:      StateClosed.String(),
		}, nil
	}
}

// String summarizes the connection for logging. Only ever called from the
// owning reactor goroutine (inside a HandleFinishedTransfer/shutdown path),
// so it reads fields directly rather than posting a query.
func (c *Connection) String() string {
	return fmt.Sprintf("%s conn %s [%s]", c.direction, c.remoteAddr, c.state)
}

// dispatchInboundCall hands a parsed call off to business logic.
func (c *Connection) dispatchInboundCall(call *InboundCall) {
	if c.registry != nil {
		c.registry.QueueInboundCall(call)
	}
}
