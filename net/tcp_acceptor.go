package net

import (
	"context"
	"errors"
	"fmt"
	stdnet "net"
	"sync"

	"github.com/ternsql/tern/log"
	"github.com/ternsql/tern/metrics"
)

var (
	errAddrEmpty      = errors.New("TCPAcceptorCfg.Addr is empty")
	errBufSizeInvalid = errors.New("TCPAcceptorCfg.MaxBufferSize must be positive")
)

// TCPAcceptor is a Transport implementation that accepts raw TCP
// connections and hands each one to opt.OnAccept. Every accepted
// connection gets its own goroutine-free handoff: TCPAcceptor itself
// never reads or writes application bytes, it only owns the listener.
//
// Adapted from the teacher's TCPTransport: every connection there was
// alloc'd a goroutine per direction immediately; here the accept loop
// only creates the socket and lets the rpc package decide how ownership
// is split across goroutines.
type TCPAcceptor struct {
	cfg      *TCPAcceptorCfg
	listener *stdnet.TCPListener
	stopOnce sync.Once
	cancel   context.CancelFunc
}

// NewTCPAcceptor creates a TCPAcceptor bound to the given configuration.
func NewTCPAcceptor(cfg *TCPAcceptorCfg) (*TCPAcceptor, error) {
	if cfg == nil {
		return nil, errors.New("TCPAcceptorCfg cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &TCPAcceptor{cfg: cfg}, nil
}

// Start implements Transport.
func (t *TCPAcceptor) Start(ctx context.Context, opt TransportOption) error {
	metrics.IncrCounterWithGroup("net", "acceptor_start_total", 1)

	tcpAddr, err := stdnet.ResolveTCPAddr("tcp", t.cfg.Addr)
	if err != nil {
		metrics.IncrCounterWithDimGroup("net", "acceptor_start_error_total", 1, map[string]string{"error_type": "resolve"})
		return fmt.Errorf("resolve %q: %w", t.cfg.Addr, err)
	}

	listener, err := stdnet.ListenTCP("tcp", tcpAddr)
	if err != nil {
		metrics.IncrCounterWithDimGroup("net", "acceptor_start_error_total", 1, map[string]string{"error_type": "listen"})
		return fmt.Errorf("listen %q: %w", t.cfg.Addr, err)
	}
	t.listener = listener

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	go t.serve(runCtx, listener, opt)
	return nil
}

// Stop implements Transport.
func (t *TCPAcceptor) Stop() error {
	t.stopOnce.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
		if t.listener != nil {
			_ = t.listener.Close()
		}
	})
	return nil
}

func (t *TCPAcceptor) serve(ctx context.Context, listener *stdnet.TCPListener, opt TransportOption) {
	for {
		conn, err := listener.AcceptTCP()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			var ne stdnet.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			log.Warn().Err(err).Msg("tcp acceptor: accept failed, stopping")
			return
		}

		if t.cfg.MaxBufferSize > 0 {
			if err := conn.SetReadBuffer(t.cfg.MaxBufferSize); err != nil {
				log.Error().Err(err).Msg("tcp acceptor: set read buffer")
			}
			if err := conn.SetWriteBuffer(t.cfg.MaxBufferSize); err != nil {
				log.Error().Err(err).Msg("tcp acceptor: set write buffer")
			}
		}

		metrics.IncrCounterWithGroup("net", "acceptor_connections_accepted_total", 1)
		opt.OnAccept(conn)
	}
}
