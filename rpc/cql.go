package rpc

import (
	"encoding/binary"
)

// cqlFrameHeaderSize is CQL's frame header: a 4-byte big-endian body length
// following a fixed-size header the adapter does not otherwise interpret.
// Real CQL headers carry version/flags/stream/opcode bytes before the
// length; this adapter only needs the length to frame the body, so it
// treats everything before it as opaque header bytes.
const cqlFrameHeaderSize = 9

// cqlInboundTransfer frames one request/response by a fixed header plus a
// big-endian length-prefixed body. Unlike Native, CQL carries no call-id of
// its own that this layer tracks -- multiplexing, if any, is the body's
// business -- so there is no calls_being_handled table here (spec.md §9
// open question).
type cqlInboundTransfer struct {
	buf      []byte
	bodyLen  int
	lenKnown bool
	total    int
	state    TransferState
}

func newCQLInboundTransfer() *cqlInboundTransfer {
	return &cqlInboundTransfer{state: TransferEmpty}
}

// WantBytes implements InboundTransfer.
func (t *cqlInboundTransfer) WantBytes() int {
	if !t.lenKnown {
		return cqlFrameHeaderSize - len(t.buf)
	}
	return t.total - len(t.buf)
}

// Feed implements InboundTransfer.
func (t *cqlInboundTransfer) Feed(chunk []byte) (int, error) {
	n := t.WantBytes()
	if n > len(chunk) {
		n = len(chunk)
	}
	if n > 0 {
		t.buf = append(t.buf, chunk[:n]...)
	}

	if !t.lenKnown {
		if len(t.buf) < cqlFrameHeaderSize {
			t.state = TransferHeaderPending
			return n, nil
		}
		t.bodyLen = int(binary.BigEndian.Uint32(t.buf[cqlFrameHeaderSize-4 : cqlFrameHeaderSize]))
		t.total = cqlFrameHeaderSize + t.bodyLen
		t.lenKnown = true
		t.state = TransferBodyPending
	}

	if len(t.buf) >= t.total {
		t.state = TransferFinished
	}
	return n, nil
}

// Started implements InboundTransfer.
func (t *cqlInboundTransfer) Started() bool { return len(t.buf) > 0 }

// Finished implements InboundTransfer.
func (t *cqlInboundTransfer) Finished() bool { return t.state == TransferFinished }

// State implements InboundTransfer.
func (t *cqlInboundTransfer) State() TransferState { return t.state }

// Bytes implements InboundTransfer.
func (t *cqlInboundTransfer) Bytes() []byte { return t.buf }

// cqlProtocolAdapter hands every finished server-direction transfer straight
// to the registry with callID 0 (client-direction transfers go to
// deliverCQLResponse): there is no per-call bookkeeping to clear afterward.
type cqlProtocolAdapter struct{}

func newCQLProtocolAdapter() *cqlProtocolAdapter { return &cqlProtocolAdapter{} }

// Name implements protocolAdapter.
func (a *cqlProtocolAdapter) Name() string { return "cql" }

// NewInboundTransfer implements protocolAdapter.
func (a *cqlProtocolAdapter) NewInboundTransfer() InboundTransfer {
	return newCQLInboundTransfer()
}

// HandleFinishedTransfer implements protocolAdapter.
func (a *cqlProtocolAdapter) HandleFinishedTransfer(c *Connection, t InboundTransfer) {
	ct, ok := t.(*cqlInboundTransfer)
	if !ok {
		c.shutdownOnLoop(runtimeError("cql: unexpected transfer type"))
		return
	}
	if c.direction == DirectionClient {
		c.deliverCQLResponse(ct.Bytes())
		return
	}
	call := NewInboundCall(c, 0, "cql", ct.Bytes(), nil)
	c.dispatchInboundCall(call)
}

// ResponseCallbacks implements protocolAdapter. CQL keeps no per-call state
// to clear, so both outcomes just observe the result.
func (a *cqlProtocolAdapter) ResponseCallbacks(c *Connection, call *InboundCall) TransferCallbacks {
	return funcTransferCallbacks{
		onFinished: func() {},
		onAborted:  func(status *Status) {},
	}
}

// deliverCQLResponse hands a client-direction response to whichever single
// outstanding call is waiting; CQL multiplexes within the body rather than
// through a connection-level call-id table.
func (c *Connection) deliverCQLResponse(body []byte) {
	if len(c.awaitingResponse) == 0 {
		return
	}
	for id, cr := range c.awaitingResponse {
		delete(c.awaitingResponse, id)
		if cr.timer != nil {
			cr.timer.Stop()
		}
		if cr.call == nil {
			return
		}
		cr.call.SetResponse(body)
		return
	}
}
