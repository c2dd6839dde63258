package rpc

import (
	"fmt"

	"github.com/ternsql/tern/plugin"
)

// rpcProtocolType is this module's plugin.Type, registered the same way
// plugin/plugin.go's own "db" constant works: a Setup-configured instance
// keyed by factory name (here "native"/"redis"/"cql") and an optional tag.
const rpcProtocolType plugin.Type = "rpcprotocol"

// protocolPlugin adapts a protocolAdapter to plugin.Plugin so it can live
// in the plugin package's instance registry alongside every other kind of
// configured plugin.
type protocolPlugin struct {
	adapter protocolAdapter
}

// FactoryName implements plugin.Plugin.
func (p *protocolPlugin) FactoryName() string { return p.adapter.Name() }

// protocolFactory implements plugin.Factory for one of the three wire
// protocols. Reload is intentionally unsupported: swapping a connection's
// framing rules at runtime would orphan any in-flight transfer, so a
// protocol config change requires a restart instead.
type protocolFactory struct {
	name  string
	build func(v map[string]any) (protocolAdapter, error)
}

// Type implements plugin.Factory.
func (f *protocolFactory) Type() plugin.Type { return rpcProtocolType }

// Name implements plugin.Factory.
func (f *protocolFactory) Name() string { return f.name }

// Setup implements plugin.Factory.
func (f *protocolFactory) Setup(v map[string]any) (plugin.Plugin, error) {
	adapter, err := f.build(v)
	if err != nil {
		return nil, err
	}
	return &protocolPlugin{adapter: adapter}, nil
}

// Destroy implements plugin.Factory. Protocol adapters hold no resources
// of their own to release; the owning Connection closes its socket.
func (f *protocolFactory) Destroy(plugin.Plugin, any) error { return nil }

// Reload implements plugin.Factory.
func (f *protocolFactory) Reload(plugin.Plugin, map[string]any) error {
	return fmt.Errorf("rpcprotocol: %q does not support hot reload", f.name)
}

// CanDelete implements plugin.Factory. Adapters are stateless and shared
// read-only across connections, so deletion is always safe from the
// plugin system's point of view.
func (f *protocolFactory) CanDelete(plugin.Plugin) bool { return true }

func init() {
	plugin.RegisterPlugin(&protocolFactory{name: "native", build: buildNativeAdapterPlugin})
	plugin.RegisterPlugin(&protocolFactory{name: "redis", build: buildRedisAdapterPlugin})
	plugin.RegisterPlugin(&protocolFactory{name: "cql", build: buildCQLAdapterPlugin})
}

func buildNativeAdapterPlugin(v map[string]any) (protocolAdapter, error) {
	cfg := defaultNativeProtocolConfig()
	if n, ok := toInt(v["maxFrameBytes"]); ok {
		cfg.MaxFrameBytes = n
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newNativeProtocolAdapter(cfg), nil
}

func buildRedisAdapterPlugin(map[string]any) (protocolAdapter, error) {
	return newRedisProtocolAdapter(), nil
}

func buildCQLAdapterPlugin(map[string]any) (protocolAdapter, error) {
	return newCQLProtocolAdapter(), nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// protocolAdapterForAccept resolves the protocol adapter for a newly
// accepted or dialed connection. It first consults the plugin registry
// (populated by plugin.InitPlugins from a "rpcprotocol" config section,
// tagging the desired instance "default"); if no instance was configured,
// it falls back to a bare default-configured adapter so Messenger works
// without any plugin configuration at all.
func protocolAdapterForAccept(name string) protocolAdapter {
	if ins, err := plugin.GetDefaultPlugin(string(rpcProtocolType), name); err == nil {
		if pp, ok := ins.(*protocolPlugin); ok {
			return pp.adapter
		}
	}
	return adapterForProtocol(name, nil)
}
