package rpc

import (
	"bytes"

	"github.com/ternsql/tern/log"
)

// redisInboundTransfer accumulates bytes looking for one inline command
// terminator. Unlike the Native protocol's exact-size framing, Redis's
// inline protocol carries no a priori frame length, so Feed happily
// over-reads: WantBytes just asks for a generous chunk, and whatever
// arrives past the terminator becomes ExcessData for the next transfer
// (spec.md §3).
type redisInboundTransfer struct {
	buf    []byte
	cmdEnd int
	state  TransferState
}

func newRedisInboundTransfer() *redisInboundTransfer {
	return &redisInboundTransfer{state: TransferEmpty, cmdEnd: -1}
}

// WantBytes implements InboundTransfer.
func (t *redisInboundTransfer) WantBytes() int { return 4096 }

// Feed implements InboundTransfer.
func (t *redisInboundTransfer) Feed(chunk []byte) (int, error) {
	t.buf = append(t.buf, chunk...)
	t.state = TransferHeaderPending

	if idx := bytes.Index(t.buf, []byte("\r\n")); idx >= 0 {
		t.cmdEnd = idx + 2
		t.state = TransferFinished
	} else if idx := bytes.IndexByte(t.buf, '\n'); idx >= 0 {
		t.cmdEnd = idx + 1
		t.state = TransferFinished
	}
	return len(chunk), nil
}

// Started implements InboundTransfer.
func (t *redisInboundTransfer) Started() bool { return len(t.buf) > 0 }

// Finished implements InboundTransfer.
func (t *redisInboundTransfer) Finished() bool { return t.state == TransferFinished }

// State implements InboundTransfer.
func (t *redisInboundTransfer) State() TransferState { return t.state }

// Bytes implements InboundTransfer. The returned command is trimmed of its
// \r\n / \n terminator.
func (t *redisInboundTransfer) Bytes() []byte {
	if t.state != TransferFinished {
		return nil
	}
	return bytes.TrimRight(t.buf[:t.cmdEnd], "\r\n")
}

// ExcessData returns whatever was read past the one pipelined command this
// transfer framed; the connection seeds the next InboundTransfer with it.
func (t *redisInboundTransfer) ExcessData() []byte {
	if t.state != TransferFinished {
		return nil
	}
	return t.buf[t.cmdEnd:]
}

// redisProtocolAdapter implements the single-in-flight inline protocol:
// at most one call is ever being handled at a time per connection, tracked
// via Connection.processingCall rather than a call-id table (spec.md §9
// open question -- calls_being_handled stays Native-only by design here).
type redisProtocolAdapter struct{}

func newRedisProtocolAdapter() *redisProtocolAdapter { return &redisProtocolAdapter{} }

// Name implements protocolAdapter.
func (a *redisProtocolAdapter) Name() string { return "redis" }

// NewInboundTransfer implements protocolAdapter.
func (a *redisProtocolAdapter) NewInboundTransfer() InboundTransfer {
	return newRedisInboundTransfer()
}

// HandleFinishedTransfer implements protocolAdapter.
func (a *redisProtocolAdapter) HandleFinishedTransfer(c *Connection, t InboundTransfer) {
	rt, ok := t.(*redisInboundTransfer)
	if !ok {
		c.shutdownOnLoop(runtimeError("redis: unexpected transfer type"))
		return
	}
	c.handleRedisFinishedTransfer(rt)
}

// ResponseCallbacks implements protocolAdapter.
func (a *redisProtocolAdapter) ResponseCallbacks(c *Connection, call *InboundCall) TransferCallbacks {
	return funcTransferCallbacks{
		onFinished: func() { c.finishedHandlingACall() },
		onAborted: func(status *Status) {
			log.Warn().Err(status).Msg("redis: response aborted")
			c.finishedHandlingACall()
		},
	}
}

// handleRedisFinishedTransfer implements spec.md §4.2's Redis/Server rule:
// single-in-flight discipline. If a call is already being handled, the
// finished command is appended to pendingRedisDispatch (and any excess-
// seeded transfer stays parked on c.inbound); neither is dispatched until
// finishedHandlingACall clears processingCall and re-checks them.
func (c *Connection) handleRedisFinishedTransfer(t *redisInboundTransfer) {
	if excess := t.ExcessData(); len(excess) > 0 {
		next := newRedisInboundTransfer()
		_, _ = next.Feed(excess)
		c.inbound = next
	}

	if c.processingCall {
		// The excess-seeded transfer (if any) stays parked in c.inbound;
		// FinishedHandlingACall will notice it is already Finished.
		c.pendingRedisDispatch = append(c.pendingRedisDispatch, t.Bytes())
		return
	}

	c.dispatchRedisCommand(t.Bytes())
}

func (c *Connection) dispatchRedisCommand(cmd []byte) {
	c.processingCall = true
	call := NewInboundCall(c, 0, "redis", cmd, nil)
	c.dispatchInboundCall(call)
}

// finishedHandlingACall implements spec.md §4.2's FinishedHandlingACall:
// clear processing_call, then re-check whether the pre-read excess already
// constitutes the next finished transfer, and resume if so.
func (c *Connection) finishedHandlingACall() {
	c.processingCall = false

	if len(c.pendingRedisDispatch) > 0 {
		cmd := c.pendingRedisDispatch[0]
		c.pendingRedisDispatch = c.pendingRedisDispatch[1:]
		c.dispatchRedisCommand(cmd)
		return
	}

	if c.inbound != nil && c.inbound.Finished() {
		finished := c.inbound
		c.inbound = nil
		c.handleFinishedTransferOnLoop(finished)
	}
}
