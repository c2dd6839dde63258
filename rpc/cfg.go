package rpc

import "fmt"

// ReactorPoolConfig sizes a ReactorPool, following the same
// mapstructure-tagged config.Config shape as the teacher's TCPTransportCfg
// and DispatcherConfig.
type ReactorPoolConfig struct {
	NumReactors int `mapstructure:"numReactors"`
	TaskQueueSize int `mapstructure:"taskQueueSize"`
}

// GetName implements config.Config.
func (c *ReactorPoolConfig) GetName() string { return "rpc_reactor_pool" }

// Validate implements config.Config.
func (c *ReactorPoolConfig) Validate() error {
	if c.NumReactors <= 0 {
		return fmt.Errorf("rpc: NumReactors must be positive")
	}
	if c.TaskQueueSize <= 0 {
		return fmt.Errorf("rpc: TaskQueueSize must be positive")
	}
	return nil
}

func defaultReactorPoolConfig() *ReactorPoolConfig {
	return &ReactorPoolConfig{NumReactors: 4, TaskQueueSize: 1024}
}

// ConnectionConfig tunes per-connection behavior: read buffer size and the
// default call timeout applied when a caller doesn't set one explicitly.
type ConnectionConfig struct {
	ReadBufferBytes   int `mapstructure:"readBufferBytes"`
	DefaultCallTimeoutMs int `mapstructure:"defaultCallTimeoutMs"`
}

// GetName implements config.Config.
func (c *ConnectionConfig) GetName() string { return "rpc_connection" }

// Validate implements config.Config.
func (c *ConnectionConfig) Validate() error {
	if c.ReadBufferBytes <= 0 {
		return fmt.Errorf("rpc: ReadBufferBytes must be positive")
	}
	return nil
}

func defaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{ReadBufferBytes: 64 * 1024}
}

// NativeProtocolConfig configures the Native protocol adapter's framing
// limits.
type NativeProtocolConfig struct {
	MaxFrameBytes int `mapstructure:"maxFrameBytes"`
}

// GetName implements config.Config.
func (c *NativeProtocolConfig) GetName() string { return "rpc_native_protocol" }

// Validate implements config.Config.
func (c *NativeProtocolConfig) Validate() error {
	if c.MaxFrameBytes <= 0 {
		return fmt.Errorf("rpc: MaxFrameBytes must be positive")
	}
	return nil
}

func defaultNativeProtocolConfig() *NativeProtocolConfig {
	return &NativeProtocolConfig{MaxFrameBytes: 16 * 1024 * 1024}
}

// ServiceRegistryConfig tunes the ingress rate limit in front of dispatched
// InboundCalls, following net/dispatcher.go's DispatcherConfig shape
// (RecvRateLimit/TokenBurst feeding a net.DispatcherRecvLimiter). Setting
// UseLeakyBucket swaps in a net.FunnelRecvLimiter instead, for deployments
// that want a smoothed admission rate rather than bursty token refills.
type ServiceRegistryConfig struct {
	RecvRateLimit  int  `mapstructure:"recvRateLimit"`
	TokenBurst     int  `mapstructure:"tokenBurst"`
	UseLeakyBucket bool `mapstructure:"useLeakyBucket"`
}

// GetName implements config.Config.
func (c *ServiceRegistryConfig) GetName() string { return "rpc_service_registry" }

// Validate implements config.Config.
func (c *ServiceRegistryConfig) Validate() error {
	if c.RecvRateLimit < 0 || c.TokenBurst < 0 {
		return fmt.Errorf("rpc: RecvRateLimit and TokenBurst must be non-negative")
	}
	return nil
}

func defaultServiceRegistryConfig() *ServiceRegistryConfig {
	return &ServiceRegistryConfig{RecvRateLimit: 10000, TokenBurst: 1000}
}
