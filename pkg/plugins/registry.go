package plugins

import (
	"sync"

	"github.com/fedbroker/fedbroker/pkg/orders"
)

// registryKey identifies one plugin slot: a resource type within a cloud.
type registryKey struct {
	cloud string
	typ   orders.ResourceType
}

// Registry maps (cloud name, resource type) to the plugin serving it.
// Populated once at startup; lookups are cheap and concurrent.
type Registry struct {
	mu      sync.RWMutex
	plugins map[registryKey]Plugin
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[registryKey]Plugin)}
}

// Register binds a plugin to a cloud and resource type. Registering the
// same slot twice is an internal-contract violation.
func (r *Registry) Register(cloud string, typ orders.ResourceType, p Plugin) error {
	if p == nil {
		return orders.NewUnexpectedError("cannot register a nil plugin for %s/%s", cloud, typ)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey{cloud: cloud, typ: typ}
	if _, exists := r.plugins[key]; exists {
		return orders.NewUnexpectedError("plugin for %s/%s already registered", cloud, typ)
	}
	r.plugins[key] = p
	return nil
}

// Get resolves the plugin for a cloud and resource type.
func (r *Registry) Get(cloud string, typ orders.ResourceType) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.plugins[registryKey{cloud: cloud, typ: typ}]
	if !exists {
		return nil, orders.NewUnexpectedError("no plugin registered for %s/%s", cloud, typ)
	}
	return p, nil
}

// GetCompute resolves the compute plugin for a cloud, failing when the
// registered plugin does not implement the compute extensions.
func (r *Registry) GetCompute(cloud string) (ComputePlugin, error) {
	p, err := r.Get(cloud, orders.TypeCompute)
	if err != nil {
		return nil, err
	}
	cp, ok := p.(ComputePlugin)
	if !ok {
		return nil, orders.NewUnexpectedError(
			"plugin for %s/%s does not implement the compute operations", cloud, orders.TypeCompute)
	}
	return cp, nil
}

// Clouds returns the cloud names that have at least one registered plugin.
func (r *Registry) Clouds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for key := range r.plugins {
		if _, dup := seen[key.cloud]; dup {
			continue
		}
		seen[key.cloud] = struct{}{}
		out = append(out, key.cloud)
	}
	return out
}
