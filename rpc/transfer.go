package rpc

import (
	"io"
	"time"

	"github.com/ternsql/tern/metrics"
)

// TransferState mirrors the states an InboundTransfer passes through on its
// way to holding one complete frame.
type TransferState int

const (
	TransferEmpty TransferState = iota
	TransferHeaderPending
	TransferBodyPending
	TransferFinished
)

func (s TransferState) String() string {
	switch s {
	case TransferEmpty:
		return "Empty"
	case TransferHeaderPending:
		return "HeaderPending"
	case TransferBodyPending:
		return "BodyPending"
	case TransferFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// InboundTransfer accumulates bytes for exactly one incoming frame across
// however many reads it takes. The connection's reader goroutine reads
// fixed-size chunks of ConnectionConfig.ReadBufferBytes, and the reactor
// hands each chunk to Feed. The frame-exact protocols (Native, CQL) consume
// only the bytes their frame still needs and leave the rest of the chunk
// for the next transfer; Redis's inline protocol -- which has no a priori
// frame size -- consumes the whole chunk and exposes the excess.
type InboundTransfer interface {
	// WantBytes returns how many more bytes the transfer asks for; the
	// Native and CQL transfers' Feed consumes at most this many.
	WantBytes() int

	// Feed consumes a prefix of chunk (all of it for Redis, at most
	// WantBytes for Native and CQL). It returns how many bytes were consumed.
	Feed(chunk []byte) (consumed int, err error)

	// Started reports whether any bytes have been fed yet.
	Started() bool

	// Finished reports whether a complete frame has been accumulated.
	Finished() bool

	// State reports the detailed transfer state, for logging/introspection.
	State() TransferState

	// Bytes returns the accumulated frame bytes once Finished is true.
	Bytes() []byte
}

// TransferCallbacks is the pair of outcomes an OutboundTransfer can report.
// Exactly one of NotifyFinished/NotifyAborted fires exactly once per
// transfer (spec.md §8 invariant 3).
type TransferCallbacks interface {
	NotifyFinished()
	NotifyAborted(status *Status)
}

// funcTransferCallbacks adapts two plain functions to TransferCallbacks,
// replacing the original's self-deleting callback objects (spec.md §9) with
// a small context struct and plain functions -- no heap churn per transfer
// beyond the closure itself, and nothing to remember to delete.
type funcTransferCallbacks struct {
	onFinished func()
	onAborted  func(status *Status)
}

func (f funcTransferCallbacks) NotifyFinished() {
	if f.onFinished != nil {
		f.onFinished()
	}
}

func (f funcTransferCallbacks) NotifyAborted(status *Status) {
	if f.onAborted != nil {
		f.onAborted(status)
	}
}

// OutboundTransfer holds one or more contiguous byte slices representing a
// serialized call (client direction) or response (server direction) plus
// the callbacks to fire when it finishes or is aborted. It is exclusively
// owned by the connection's outbound queue once enqueued.
type OutboundTransfer struct {
	slices    [][]byte
	sliceIdx  int
	offset    int
	callbacks TransferCallbacks
	queuedAt  time.Time
	finished  bool
}

// NewOutboundTransfer builds a transfer from the given slices.
func NewOutboundTransfer(slices [][]byte, callbacks TransferCallbacks) *OutboundTransfer {
	return &OutboundTransfer{slices: slices, callbacks: callbacks, queuedAt: time.Now()}
}

// TransferFinished reports whether every byte has been written.
func (t *OutboundTransfer) TransferFinished() bool {
	return t.finished
}

// SendBuffer writes as much of the transfer as w.Write will accept in one
// call per slice, looping until every slice is exhausted or an error
// occurs. Go's net.Conn.Write already loops internally for partial kernel
// writes, so -- unlike the original's genuinely non-blocking recv/send --
// this always either finishes the whole transfer or returns an error; the
// offset bookkeeping is kept anyway so a future non-blocking transport
// could resume mid-slice.
func (t *OutboundTransfer) SendBuffer(w io.Writer) (finished bool, err error) {
	for t.sliceIdx < len(t.slices) {
		s := t.slices[t.sliceIdx][t.offset:]
		if len(s) > 0 {
			n, err := w.Write(s)
			t.offset += n
			if err != nil {
				return false, err
			}
		}
		t.sliceIdx++
		t.offset = 0
	}
	t.finished = true
	return true, nil
}

// HexDump renders the pending bytes for debug logging, grounded on the
// original's debug-only HexDump() used in QueueOutbound's VLOG.
func (t *OutboundTransfer) HexDump() []byte {
	var out []byte
	for i := t.sliceIdx; i < len(t.slices); i++ {
		s := t.slices[i]
		if i == t.sliceIdx {
			s = s[t.offset:]
		}
		out = append(out, s...)
	}
	return out
}

func (t *OutboundTransfer) notifyFinished() {
	metrics.RecordStopwatchWithGroup("rpc", "handler_latency_outbound_transfer", t.queuedAt)
	if t.callbacks != nil {
		t.callbacks.NotifyFinished()
	}
}

func (t *OutboundTransfer) notifyAborted(status *Status) {
	if t.callbacks != nil {
		t.callbacks.NotifyAborted(status)
	}
}
