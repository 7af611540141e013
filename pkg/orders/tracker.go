package orders

import (
	"sort"
	"sync"
)

// DependencyTracker records which orders reference which: key is the id of
// an order others depend on, value is the set of dependent order ids. It
// is consulted before deletion and maintained only by the member that
// originally accepted the dependent order; remote peers never mutate it.
type DependencyTracker struct {
	mu   sync.Mutex
	deps map[string]map[string]struct{}
}

// NewDependencyTracker creates an empty tracker.
func NewDependencyTracker() *DependencyTracker {
	return &DependencyTracker{deps: make(map[string]map[string]struct{})}
}

// Register records an edge from each order the given order references back
// to the order itself. Non-composite orders register nothing.
func (t *DependencyTracker) Register(o *Order) {
	ids := o.DependencyIDs()
	if len(ids) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range ids {
		if id == "" {
			continue
		}
		set, exists := t.deps[id]
		if !exists {
			set = make(map[string]struct{})
			t.deps[id] = set
		}
		set[o.ID] = struct{}{}
	}
}

// Unregister prunes the order's edges, dropping entries that become empty.
func (t *DependencyTracker) Unregister(o *Order) {
	ids := o.DependencyIDs()
	if len(ids) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range ids {
		set, exists := t.deps[id]
		if !exists {
			continue
		}
		delete(set, o.ID)
		if len(set) == 0 {
			delete(t.deps, id)
		}
	}
}

// Dependents returns the sorted ids of orders that still reference id.
func (t *DependencyTracker) Dependents(id string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, exists := t.deps[id]
	if !exists {
		return nil
	}
	out := make([]string, 0, len(set))
	for dep := range set {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// CheckNoDependents fails with a dependency-detected error when any order
// still references id.
func (t *DependencyTracker) CheckNoDependents(id string) error {
	dependents := t.Dependents(id)
	if len(dependents) > 0 {
		return NewDependencyDetectedError(
			"order %s cannot be deleted: still referenced by %v", id, dependents)
	}
	return nil
}
