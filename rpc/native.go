package rpc

import (
	"fmt"

	"github.com/ternsql/tern/log"
	"github.com/ternsql/tern/metrics"
	"github.com/ternsql/tern/rpc/wire"
)

// nativeInboundTransfer accumulates one Native frame: an 8-byte prehead,
// then HdrSize header bytes, then BodySize body bytes. Grounded on
// net/prehead.go's two-stage (prehead, then payload) read discipline.
type nativeInboundTransfer struct {
	buf     []byte
	preRead bool
	total   int
	hdrSize uint32

	maxFrameBytes int
	state         TransferState
}

func newNativeInboundTransfer(maxFrameBytes int) *nativeInboundTransfer {
	return &nativeInboundTransfer{state: TransferEmpty, maxFrameBytes: maxFrameBytes}
}

// WantBytes implements InboundTransfer.
func (t *nativeInboundTransfer) WantBytes() int {
	if !t.preRead {
		return wire.PreHeadSize - len(t.buf)
	}
	return t.total - len(t.buf)
}

// Feed implements InboundTransfer.
func (t *nativeInboundTransfer) Feed(chunk []byte) (int, error) {
	n := t.WantBytes()
	if n > len(chunk) {
		n = len(chunk)
	}
	if n > 0 {
		t.buf = append(t.buf, chunk[:n]...)
	}

	if !t.preRead {
		if len(t.buf) < wire.PreHeadSize {
			t.state = TransferHeaderPending
			return n, nil
		}
		pre, err := wire.DecodePreHead(t.buf[:wire.PreHeadSize])
		if err != nil {
			return n, err
		}
		t.hdrSize = pre.HdrSize
		t.total = wire.PreHeadSize + int(pre.HdrSize) + int(pre.BodySize)
		if t.maxFrameBytes > 0 && t.total > t.maxFrameBytes {
			return n, fmt.Errorf("native: frame of %d bytes exceeds limit of %d", t.total, t.maxFrameBytes)
		}
		t.preRead = true
		t.state = TransferBodyPending
	}

	if len(t.buf) >= t.total {
		t.state = TransferFinished
	}
	return n, nil
}

// Started implements InboundTransfer.
func (t *nativeInboundTransfer) Started() bool { return len(t.buf) > 0 }

// Finished implements InboundTransfer.
func (t *nativeInboundTransfer) Finished() bool { return t.state == TransferFinished }

// State implements InboundTransfer.
func (t *nativeInboundTransfer) State() TransferState { return t.state }

// Bytes implements InboundTransfer.
func (t *nativeInboundTransfer) Bytes() []byte { return t.buf }

func (t *nativeInboundTransfer) decode() (wire.Header, []byte, error) {
	h, err := wire.DecodeHeader(t.buf[wire.PreHeadSize : wire.PreHeadSize+int(t.hdrSize)])
	if err != nil {
		return wire.Header{}, nil, err
	}
	body := t.buf[wire.PreHeadSize+int(t.hdrSize):]
	return h, body, nil
}

// nativeProtocolAdapter implements the framed, call-id-correlated protocol.
// It is the only protocol that maintains calls_being_handled (spec.md §9
// open question: this divergence from Redis/CQL is preserved, not unified).
type nativeProtocolAdapter struct {
	cfg *NativeProtocolConfig
}

func newNativeProtocolAdapter(cfg *NativeProtocolConfig) *nativeProtocolAdapter {
	if cfg == nil {
		cfg = defaultNativeProtocolConfig()
	}
	return &nativeProtocolAdapter{cfg: cfg}
}

// Name implements protocolAdapter.
func (a *nativeProtocolAdapter) Name() string { return "native" }

// NewInboundTransfer implements protocolAdapter.
func (a *nativeProtocolAdapter) NewInboundTransfer() InboundTransfer {
	return newNativeInboundTransfer(a.cfg.MaxFrameBytes)
}

// HandleFinishedTransfer implements protocolAdapter.
func (a *nativeProtocolAdapter) HandleFinishedTransfer(c *Connection, t InboundTransfer) {
	nt, ok := t.(*nativeInboundTransfer)
	if !ok {
		c.shutdownOnLoop(runtimeError("native: unexpected transfer type"))
		return
	}
	h, body, err := nt.decode()
	if err != nil {
		c.shutdownOnLoop(protocolError("native: decode frame: %v", err))
		return
	}

	if c.direction == DirectionClient {
		c.deliverNativeResponse(h.CallID, body)
		return
	}
	c.handleNativeInboundCall(h.CallID, h.Method, body)
}

// ResponseCallbacks implements protocolAdapter.
func (a *nativeProtocolAdapter) ResponseCallbacks(c *Connection, call *InboundCall) TransferCallbacks {
	callID := call.CallID()
	return funcTransferCallbacks{
		onFinished: func() {
			c.removeCallBeingHandled(callID)
			metrics.IncrCounterWithGroup("rpc", "native_response_sent_total", 1)
		},
		onAborted: func(status *Status) {
			c.removeCallBeingHandled(callID)
			log.Warn().Uint64("callId", callID).Err(status).Msg("native: response aborted")
		},
	}
}

// deliverNativeResponse implements spec.md §4.2's Native/Client
// HandleFinishedTransfer: look up and erase the matching CAR, drop
// silently if absent or already timed out, otherwise deliver.
func (c *Connection) deliverNativeResponse(callID uint64, body []byte) {
	cr, ok := c.awaitingResponse[callID]
	if !ok {
		log.Warn().Uint64("callId", callID).Str("conn", c.String()).
			Msg("native: response for unknown call id, dropping")
		return
	}
	delete(c.awaitingResponse, callID)
	if cr.timer != nil {
		cr.timer.Stop()
	}
	if cr.call == nil {
		// Timed out already; a late response is silently dropped per
		// spec.md §8 invariant 6 -- no warning here.
		return
	}
	cr.call.SetResponse(body)
}

// handleNativeInboundCall implements spec.md §4.2's Native/Server
// HandleFinishedTransfer: duplicate call ids are a protocol violation that
// tears the connection down.
func (c *Connection) handleNativeInboundCall(callID uint64, method string, body []byte) {
	if _, dup := c.callsBeingHandled[callID]; dup {
		log.Warn().Uint64("callId", callID).Str("conn", c.String()).
			Msg("native: received duplicate call id, shutting down connection")
		c.shutdownOnLoop(runtimeError("received duplicate call id %d", callID))
		return
	}
	call := NewInboundCall(c, callID, method, body, nil)
	c.callsBeingHandled[callID] = call
	c.dispatchInboundCall(call)
}

// removeCallBeingHandled is only ever invoked from a TransferCallbacks
// method, which the write-completion path already runs on the owning
// reactor goroutine -- no further posting needed.
func (c *Connection) removeCallBeingHandled(callID uint64) {
	delete(c.callsBeingHandled, callID)
}
