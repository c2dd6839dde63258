package rpc

import (
	"context"
	"fmt"
	stdnet "net"
	"sync"
	"time"

	"github.com/ternsql/tern/codec"
	"github.com/ternsql/tern/log"
	"github.com/ternsql/tern/metrics"
	ternnet "github.com/ternsql/tern/net"
)

// Handler produces a response for one dispatched InboundCall by calling
// call.SetResponse before returning.
type Handler func(call *InboundCall)

// ServiceRegistry is the InboundCallHandler every server-direction
// Connection dispatches into: it rate-limits ingress the way
// net/dispatcher.go's Dispatcher does with a DispatcherRecvLimiter, then
// routes by method name to a registered Handler running on its own
// goroutine, and finally queues the call's response back onto the
// connection.
type ServiceRegistry struct {
	mu          sync.RWMutex
	handlers    map[string]Handler
	limiter     *ternnet.DispatcherRecvLimiter
	leakyBucket *ternnet.FunnelRecvLimiter
	cfg         *ServiceRegistryConfig
}

// NewServiceRegistry builds a registry rate-limited per cfg. A nil cfg falls
// back to defaultServiceRegistryConfig (RecvRateLimit 10000, TokenBurst
// 1000); a zero RecvRateLimit disables rate limiting entirely. UseLeakyBucket
// picks net.FunnelRecvLimiter's leaky-bucket admission over the default
// token-bucket net.DispatcherRecvLimiter.
func NewServiceRegistry(cfg *ServiceRegistryConfig) *ServiceRegistry {
	if cfg == nil {
		cfg = defaultServiceRegistryConfig()
	}
	r := &ServiceRegistry{handlers: make(map[string]Handler), cfg: cfg}
	if cfg.RecvRateLimit > 0 {
		if cfg.UseLeakyBucket {
			r.leakyBucket = ternnet.NewFunnelRecvLimiter(cfg.RecvRateLimit)
		} else {
			r.limiter = ternnet.NewTokenRecvLimiter(cfg.RecvRateLimit, cfg.TokenBurst)
		}
	}
	return r
}

// RegisterHandler binds a method name to a Handler. Calls for unregistered
// methods fall through to a built-in "unknown method" response.
func (r *ServiceRegistry) RegisterHandler(method string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = h
}

// QueueInboundCall implements InboundCallHandler. It is invoked from the
// owning Connection's reactor goroutine, so it must never block: rate
// limiting and handler execution both happen on a freshly spawned
// goroutine, keeping the reactor free to service other connections.
func (r *ServiceRegistry) QueueInboundCall(call *InboundCall) {
	go r.handle(call)
}

func (r *ServiceRegistry) handle(call *InboundCall) {
	if r.limiter != nil {
		if err := r.limiter.Take(); err != nil {
			log.Warn().Err(err).Str("method", call.Method()).Msg("service registry: rate limiter wait failed")
			call.SetResponse(nil)
			r.respond(call)
			return
		}
	}
	if r.leakyBucket != nil {
		r.leakyBucket.Take()
	}

	r.mu.RLock()
	h, ok := r.handlers[call.Method()]
	r.mu.RUnlock()
	if !ok {
		h = unknownMethodHandler
	}

	start := time.Now()
	h(call)
	metrics.RecordStopwatchWithGroup("rpc", "service_registry_handler_latency", start)

	r.respond(call)
}

func (r *ServiceRegistry) respond(call *InboundCall) {
	conn := call.Connection()
	if conn == nil {
		return
	}
	conn.QueueResponseForCall(call)
}

func unknownMethodHandler(call *InboundCall) {
	call.SetResponse([]byte(fmt.Sprintf("unknown method %q", call.Method())))
}

// EchoHandler round-trips the request payload as the response, decoding it
// first purely to validate it (and to exercise codec.Decode, the one
// DefaultCodec path this module can drive without a compiled protobuf
// message). Decode failures still echo the raw bytes back.
func EchoHandler(call *InboundCall) {
	var payload interface{}
	_ = codec.Decode(&payload, call.Request())
	call.SetResponse(call.Request())
}

// Messenger owns a ReactorPool and hands every accepted or dialed socket
// off to a freshly built Connection, grounded on net/tcp_acceptor.go's
// accept loop (Server direction) and a plain DialTimeout (Client
// direction).
type Messenger struct {
	pool     *ReactorPool
	registry InboundCallHandler
	connCfg  *ConnectionConfig

	mu       sync.Mutex
	acceptor ternnet.Transport
	conns    map[*Connection]struct{}
}

// NewMessenger builds a Messenger whose Connections are distributed across
// pool and, for Server-direction connections, dispatch into registry.
func NewMessenger(pool *ReactorPool, registry InboundCallHandler, connCfg *ConnectionConfig) *Messenger {
	if connCfg == nil {
		connCfg = defaultConnectionConfig()
	}
	return &Messenger{
		pool:     pool,
		registry: registry,
		connCfg:  connCfg,
		conns:    make(map[*Connection]struct{}),
	}
}

func adapterForProtocol(protocol string, nativeCfg *NativeProtocolConfig) protocolAdapter {
	switch protocol {
	case "redis":
		return newRedisProtocolAdapter()
	case "cql":
		return newCQLProtocolAdapter()
	default:
		return newNativeProtocolAdapter(nativeCfg)
	}
}

// ListenAndServe starts accepting Server-direction connections for the
// given protocol ("native", "redis" or "cql") on acceptorCfg.Addr.
func (m *Messenger) ListenAndServe(ctx context.Context, acceptorCfg *ternnet.TCPAcceptorCfg, protocol string) error {
	acceptor, err := ternnet.NewTCPAcceptor(acceptorCfg)
	if err != nil {
		return fmt.Errorf("messenger: build acceptor: %w", err)
	}

	opt := ternnet.TransportOption{
		MaxBufferSize: acceptorCfg.MaxBufferSize,
		OnAccept: func(conn stdnet.Conn) {
			adapter := protocolAdapterForAccept(protocol)
			c := NewConnection(conn, DirectionServer, adapter, m.pool.Next(), m.registry, m.connCfg)
			m.track(c)
			c.Register()
			c.CompleteNegotiation(nil)
			metrics.IncrCounterWithGroup("rpc", "connections_accepted_total", 1)
		},
	}

	if err := acceptor.Start(ctx, opt); err != nil {
		return err
	}
	m.mu.Lock()
	m.acceptor = acceptor
	m.mu.Unlock()
	return nil
}

// DialClient opens a Client-direction connection to addr for the given
// protocol and completes negotiation immediately (none of the three
// protocols here requires an application-level handshake beyond TCP
// connect).
func (m *Messenger) DialClient(addr, protocol string, dialTimeout time.Duration) (*Connection, error) {
	conn, err := stdnet.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("messenger: dial %q: %w", addr, err)
	}
	adapter := protocolAdapterForAccept(protocol)
	c := NewConnection(conn, DirectionClient, adapter, m.pool.Next(), nil, m.connCfg)
	m.track(c)
	c.Register()
	c.CompleteNegotiation(nil)
	return c, nil
}

func (m *Messenger) track(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[c] = struct{}{}
}

// Shutdown tears down every tracked connection and stops accepting new
// ones.
func (m *Messenger) Shutdown() {
	m.mu.Lock()
	acceptor := m.acceptor
	conns := make([]*Connection, 0, len(m.conns))
	for c := range m.conns {
		conns = append(conns, c)
	}
	m.conns = make(map[*Connection]struct{})
	m.mu.Unlock()

	if acceptor != nil {
		_ = acceptor.Stop()
	}
	for _, c := range conns {
		c.Shutdown(shutdownStatus("messenger shutting down"))
	}
}
