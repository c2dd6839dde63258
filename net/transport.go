// Package net provides the acceptor/listener layer that sits in front of
// the RPC connection core: it owns raw socket accept and ingress rate
// limiting, and hands each accepted socket to a caller-supplied
// callback. It does not know about frames, calls or protocols — that is
// the rpc package's job.
package net

import (
	"context"
	stdnet "net"
)

// Transport is the lifecycle interface for anything that accepts
// connections on behalf of the RPC core.
type Transport interface {
	// Start begins accepting connections, calling opt.OnAccept for each
	// new socket. It returns once the listener is bound; the accept
	// loop runs in the background until ctx is done or Stop is called.
	Start(ctx context.Context, opt TransportOption) error

	// Stop releases the listener and unblocks the accept loop.
	Stop() error
}

// OnAcceptFunc is invoked once per accepted connection. Implementations
// are expected to hand the net.Conn off to the RPC core (wrapping it in
// an rpc.Connection) and return quickly.
type OnAcceptFunc func(conn stdnet.Conn)

// TransportOption carries the callback and tunables a Transport needs
// to begin accepting connections.
type TransportOption struct {
	OnAccept      OnAcceptFunc
	MaxBufferSize int
}
