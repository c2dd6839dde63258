package rpc

import (
	"sync"
	"time"
)

// Direction distinguishes the client side (originates calls) of a
// Connection from the server side (receives calls). It is immutable after
// construction.
type Direction int

const (
	// DirectionClient connections originate calls and await responses.
	DirectionClient Direction = iota
	// DirectionServer connections receive calls and produce responses.
	DirectionServer
)

func (d Direction) String() string {
	if d == DirectionClient {
		return "client"
	}
	return "server"
}

// CallState is the lifecycle of an OutboundCall as seen by the caller:
// Queued -> Sent -> (response delivered), or Queued/Sent -> TimedOut/Failed.
type CallState int32

const (
	CallCreated CallState = iota
	CallQueued
	CallSent
	CallTimedOut
	CallFailed
	CallFinished
)

// Controller carries the per-call tunables the core reads; grounded on the
// original's RpcController::timeout().
type Controller struct {
	timeout    time.Duration
	hasTimeout bool
}

// SetTimeout arms a deadline for the call. A zero or negative value clears
// any previously configured deadline.
func (c *Controller) SetTimeout(d time.Duration) {
	if d <= 0 {
		c.hasTimeout = false
		c.timeout = 0
		return
	}
	c.timeout = d
	c.hasTimeout = true
}

// Timeout reports the configured deadline and whether one was set at all.
func (c *Controller) Timeout() (time.Duration, bool) {
	return c.timeout, c.hasTimeout
}

// OutboundCall is one in-flight client-direction call. It is opaque to the
// core except for id assignment, serialization, and the state-transition
// setters called out in spec.md §6.
type OutboundCall struct {
	mu sync.Mutex

	id         uint64
	idAssigned bool

	method  string
	payload []byte

	controller Controller

	state    CallState
	status   *Status
	response []byte

	done     chan struct{}
	doneOnce sync.Once
}

// NewOutboundCall builds a call carrying an opaque payload the core will
// never interpret; method is carried only for introspection (DumpPB) and
// for Native-protocol routing on the peer, which is out of scope here.
func NewOutboundCall(method string, payload []byte, timeout time.Duration) *OutboundCall {
	c := &OutboundCall{
		method:  method,
		payload: payload,
		state:   CallCreated,
		done:    make(chan struct{}),
	}
	c.controller.SetTimeout(timeout)
	return c
}

// CallID returns the id assigned by QueueOutboundCall, or 0 before that.
func (c *OutboundCall) CallID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// CallIDAssigned reports whether SetCallID has been called yet.
func (c *OutboundCall) CallIDAssigned() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idAssigned
}

// SetCallID assigns the call's id. QueueOutboundCall assigns one to every
// call whatever the protocol; only the Native protocol puts it on the wire,
// while Redis and CQL calls are sent without it.
func (c *OutboundCall) SetCallID(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = id
	c.idAssigned = true
}

// SerializeTo serializes the call to the byte slices that will make up one
// OutboundTransfer. The core never reinterprets these bytes.
func (c *OutboundCall) SerializeTo() ([][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return [][]byte{c.payload}, nil
}

// SetQueued marks the call as handed to the connection for transmission.
func (c *OutboundCall) SetQueued() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CallCreated {
		c.state = CallQueued
	}
}

// SetSent marks the call as fully written to the wire. A call already
// finished (e.g. timed out before the transfer completed) is left alone.
func (c *OutboundCall) SetSent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isFinishedLocked() {
		return
	}
	c.state = CallSent
}

// SetTimedOut marks the call as timed out. Idempotent with respect to a
// response that may arrive afterward -- the caller of this method (the
// timer callback) always runs before any late response is processed,
// because both run on the same reactor goroutine.
func (c *OutboundCall) SetTimedOut() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = CallTimedOut
	c.status = timeoutStatus("call timed out")
	c.finishLocked()
}

// SetFailed marks the call as failed with the given status, e.g. because
// the connection shut down before the call could be sent.
func (c *OutboundCall) SetFailed(status *Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isFinishedLocked() {
		return
	}
	c.state = CallFailed
	c.status = status
	c.finishLocked()
}

// SetResponse delivers the response payload and marks the call finished.
func (c *OutboundCall) SetResponse(resp []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isFinishedLocked() {
		return
	}
	c.response = resp
	c.state = CallFinished
	c.finishLocked()
}

func (c *OutboundCall) finishLocked() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *OutboundCall) isFinishedLocked() bool {
	switch c.state {
	case CallTimedOut, CallFailed, CallFinished:
		return true
	default:
		return false
	}
}

// IsFinished reports whether the call reached a terminal state.
func (c *OutboundCall) IsFinished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isFinishedLocked()
}

// State returns the current lifecycle state.
func (c *OutboundCall) State() CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done returns a channel closed once the call reaches a terminal state.
func (c *OutboundCall) Done() <-chan struct{} {
	return c.done
}

// Response returns the delivered response payload, valid once Done fires
// with state CallFinished.
func (c *OutboundCall) Response() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.response
}

// Status returns the failure status, valid once Done fires with a
// non-CallFinished terminal state.
func (c *OutboundCall) Status() *Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Method returns the call's method name, used only for introspection.
func (c *OutboundCall) Method() string {
	return c.method
}

// controllerRef exposes the controller for QueueOutboundCall's timeout read
// without copying it (Controller carries no lock of its own; it is written
// only before the call is queued, by the goroutine that owns it).
func (c *OutboundCall) controllerRef() *Controller {
	return &c.controller
}

// DumpCall is the introspection record produced for one in-flight call,
// standing in for the original's DumpPB(req, out) against a protobuf
// message we don't have compiled here.
type DumpCall struct {
	CallID uint64
	Method string
	State  CallState
}

// DumpPB produces the introspection record for this outbound call.
func (c *OutboundCall) DumpPB() DumpCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return DumpCall{CallID: c.id, Method: c.method, State: c.state}
}

// InboundCall is one server-direction call being handled. Native protocol
// connections key these by call id for duplicate detection; Redis and CQL
// leave CallID at its zero value and rely on the connection's single-
// in-flight discipline (Redis) or the dispatcher's own framing (CQL)
// instead.
type InboundCall struct {
	mu sync.Mutex

	callID    uint64
	method    string
	request   []byte
	response  []byte
	conn      *Connection
	finished  bool
	protoMeta interface{} // protocol-specific metadata, e.g. Redis argv or a CQL stream id
}

// NewInboundCall wraps a parsed request payload for handoff to the
// dispatcher. The core itself never looks inside request.
func NewInboundCall(conn *Connection, callID uint64, method string, request []byte, meta interface{}) *InboundCall {
	return &InboundCall{
		conn:      conn,
		callID:    callID,
		method:    method,
		request:   request,
		protoMeta: meta,
	}
}

// CallID returns the call's id (Native only; 0 for Redis/CQL).
func (c *InboundCall) CallID() uint64 { return c.callID }

// Method returns the call's method name.
func (c *InboundCall) Method() string { return c.method }

// Request returns the opaque request payload.
func (c *InboundCall) Request() []byte { return c.request }

// Meta returns the protocol-specific metadata attached at parse time.
func (c *InboundCall) Meta() interface{} { return c.protoMeta }

// Connection returns the owning connection.
func (c *InboundCall) Connection() *Connection { return c.conn }

// SetResponse stores the serialized response payload the dispatcher
// produced. SerializeResponseTo reads it back out.
func (c *InboundCall) SetResponse(resp []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.response = resp
	c.finished = true
}

// SerializeResponseTo returns the slices making up the wire response.
func (c *InboundCall) SerializeResponseTo() ([][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return [][]byte{c.response}, nil
}

// IsFinished reports whether a response has been attached.
func (c *InboundCall) IsFinished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}

// DumpPB produces the introspection record for this inbound call.
func (c *InboundCall) DumpPB() DumpCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return DumpCall{CallID: c.callID, Method: c.method}
}
