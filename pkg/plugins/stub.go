package plugins

import (
	"context"
	"fmt"
	"sync"

	"github.com/fedbroker/fedbroker/pkg/orders"
)

// StubPlugin is an in-memory cloud adapter used by the serve command's dev
// mode and by tests. Instances become ready after ReadyAfterPolls calls to
// GetInstance (zero means immediately ready). Failure and outage injection
// make the processor branches reachable without a real cloud.
type StubPlugin struct {
	mu sync.Mutex

	// ReadyAfterPolls is how many GetInstance calls an instance stays in
	// the creating state before reporting ready.
	ReadyAfterPolls int

	seq         int
	instances   map[string]*stubInstance
	unavailable bool
}

type stubInstance struct {
	polls  int
	paused bool
	failed bool
}

// NewStubPlugin creates an empty stub plugin.
func NewStubPlugin(readyAfterPolls int) *StubPlugin {
	return &StubPlugin{
		ReadyAfterPolls: readyAfterPolls,
		instances:       make(map[string]*stubInstance),
	}
}

// SetUnavailable toggles simulated loss of connectivity: every operation
// fails with an unavailable-provider error while set.
func (p *StubPlugin) SetUnavailable(unavailable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unavailable = unavailable
}

// FailInstance marks an instance as definitively failed.
func (p *StubPlugin) FailInstance(instanceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if inst, exists := p.instances[instanceID]; exists {
		inst.failed = true
	}
}

// checkAvailable is called with the mutex held.
func (p *StubPlugin) checkAvailable() error {
	if p.unavailable {
		return orders.NewUnavailableProviderError("stub cloud is unreachable")
	}
	return nil
}

// RequestInstance implements Plugin.
func (p *StubPlugin) RequestInstance(_ context.Context, o *orders.Order, _ Credential) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkAvailable(); err != nil {
		return "", err
	}
	p.seq++
	id := fmt.Sprintf("stub-%s-%d", o.Type, p.seq)
	p.instances[id] = &stubInstance{}
	return id, nil
}

// GetInstance implements Plugin.
func (p *StubPlugin) GetInstance(_ context.Context, instanceID string, _ Credential) (*Instance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkAvailable(); err != nil {
		return nil, err
	}
	inst, exists := p.instances[instanceID]
	if !exists {
		return nil, orders.NewNotFoundError("instance %s not found", instanceID)
	}
	inst.polls++
	ready := inst.polls > p.ReadyAfterPolls
	state := "creating"
	switch {
	case inst.failed:
		state = "error"
	case inst.paused:
		state = "paused"
	case ready:
		state = "active"
	}
	return &Instance{
		ID:         instanceID,
		CloudState: state,
		Ready:      ready && !inst.paused && !inst.failed,
		Failed:     inst.failed,
		Paused:     inst.paused,
	}, nil
}

// DeleteInstance implements Plugin.
func (p *StubPlugin) DeleteInstance(_ context.Context, instanceID string, _ Credential) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkAvailable(); err != nil {
		return err
	}
	if _, exists := p.instances[instanceID]; !exists {
		return orders.NewNotFoundError("instance %s not found", instanceID)
	}
	delete(p.instances, instanceID)
	return nil
}

// PauseInstance implements ComputePlugin.
func (p *StubPlugin) PauseInstance(_ context.Context, instanceID string, _ Credential) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	inst, exists := p.instances[instanceID]
	if !exists {
		return orders.NewNotFoundError("instance %s not found", instanceID)
	}
	inst.paused = true
	return nil
}

// GetQuota implements ComputePlugin.
func (p *StubPlugin) GetQuota(_ context.Context, _ Credential) (*ComputeQuota, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return &ComputeQuota{
		MaxInstances:  100,
		MaxVCPU:       400,
		MaxMemoryMB:   512000,
		UsedInstances: len(p.instances),
	}, nil
}
