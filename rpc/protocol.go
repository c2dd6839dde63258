package rpc

// protocolAdapter specializes the three points where the Native, Redis and
// CQL wire protocols diverge behind one Connection lifecycle (spec.md §9):
// how an InboundTransfer is framed, how a finished inbound transfer becomes
// a Call, and what callback fires when an outbound response finishes
// transmitting. Re-architected as a tagged variant -- one small struct per
// protocol -- instead of the three-deep class hierarchy the original grew.
type protocolAdapter interface {
	// Name identifies the protocol for logging and introspection.
	Name() string

	// NewInboundTransfer starts accumulating the next frame.
	NewInboundTransfer() InboundTransfer

	// HandleFinishedTransfer runs on the owning Connection's reactor
	// goroutine once an InboundTransfer reports Finished. It is
	// responsible for turning the accumulated bytes into either a
	// delivered response (Client direction) or a dispatched InboundCall
	// (Server direction).
	HandleFinishedTransfer(c *Connection, t InboundTransfer)

	// ResponseCallbacks builds the TransferCallbacks attached to the
	// OutboundTransfer carrying call's serialized response, so the
	// protocol can clear its own bookkeeping (calls_being_handled,
	// processing_call) once the response is flushed or aborted.
	ResponseCallbacks(c *Connection, call *InboundCall) TransferCallbacks
}
