// Package discovery resolves a logical peer name to a dial address for
// Client-direction rpc.Connections, backed by Consul's health-checked
// service catalog the way the teacher's go.mod already pulls in
// hashicorp/consul/api without exercising it anywhere.
package discovery

import (
	"fmt"
	"sync/atomic"

	"github.com/hashicorp/consul/api"
)

// Resolver looks up healthy instances of a named service in Consul.
type Resolver struct {
	client *api.Client
	next   atomic.Uint64
}

// NewResolver builds a Resolver against the given Consul client config. A
// nil cfg uses api.DefaultConfig(), which honors the usual CONSUL_HTTP_ADDR
// environment variable.
func NewResolver(cfg *api.Config) (*Resolver, error) {
	if cfg == nil {
		cfg = api.DefaultConfig()
	}
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("discovery: build consul client: %w", err)
	}
	return &Resolver{client: client}, nil
}

// Resolve returns a "host:port" address for one healthy instance of
// serviceName, chosen round-robin across whatever Consul currently reports
// passing. It returns an error if no healthy instance exists.
func (r *Resolver) Resolve(serviceName string) (string, error) {
	entries, _, err := r.client.Health().Service(serviceName, "", true, nil)
	if err != nil {
		return "", fmt.Errorf("discovery: query %q: %w", serviceName, err)
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("discovery: no healthy instances of %q", serviceName)
	}

	idx := r.next.Add(1) - 1
	entry := entries[idx%uint64(len(entries))]

	addr := entry.Service.Address
	if addr == "" {
		addr = entry.Node.Address
	}
	return fmt.Sprintf("%s:%d", addr, entry.Service.Port), nil
}

// Register advertises a local service instance to Consul so that peer
// Messengers' Resolve calls can find it, grounded on the same
// api.AgentServiceRegistration flow Consul's own client docs use.
func (r *Resolver) Register(serviceName, serviceID, addr string, port int) error {
	reg := &api.AgentServiceRegistration{
		ID:      serviceID,
		Name:    serviceName,
		Address: addr,
		Port:    port,
		Check: &api.AgentServiceCheck{
			TCP:      fmt.Sprintf("%s:%d", addr, port),
			Interval: "10s",
			Timeout:  "2s",
		},
	}
	if err := r.client.Agent().ServiceRegister(reg); err != nil {
		return fmt.Errorf("discovery: register %q: %w", serviceName, err)
	}
	return nil
}

// Deregister removes a previously registered instance.
func (r *Resolver) Deregister(serviceID string) error {
	if err := r.client.Agent().ServiceDeregister(serviceID); err != nil {
		return fmt.Errorf("discovery: deregister %q: %w", serviceID, err)
	}
	return nil
}
