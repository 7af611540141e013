package orders

import (
	"sync"
)

// Repository is the process-wide registry of active orders: the single
// authoritative id-to-order map plus one synchronized list per lifecycle
// state. One instance is constructed at process start and threaded through
// the controller, the transitioner and every processor.
type Repository struct {
	mu     sync.RWMutex
	active map[string]*Order
	lists  map[OrderState]*SynchronizedOrderList
}

// NewRepository creates a repository with an empty list for every active
// state.
func NewRepository() *Repository {
	lists := make(map[OrderState]*SynchronizedOrderList, len(ActiveStates))
	for _, s := range ActiveStates {
		lists[s] = NewSynchronizedOrderList()
	}
	return &Repository{
		active: make(map[string]*Order),
		lists:  lists,
	}
}

// Get returns the active order with the given id, or a not-found error.
func (r *Repository) Get(id string) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, exists := r.active[id]
	if !exists {
		return nil, NewNotFoundError("order %s not found", id)
	}
	return o, nil
}

// Contains reports whether an active order with the given id exists.
func (r *Repository) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.active[id]
	return exists
}

// Put inserts the order into the active map. The id must be fresh.
func (r *Repository) Put(o *Order) error {
	if o == nil {
		return NewUnexpectedError("cannot insert a nil order")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[o.ID]; exists {
		return NewUnexpectedError("order %s is already active", o.ID)
	}
	r.active[o.ID] = o
	return nil
}

// Remove deletes the order from the active map. Removal is terminal:
// deactivated ids are never reused.
func (r *Repository) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[id]; !exists {
		return NewUnexpectedError("order %s is not active", id)
	}
	delete(r.active, id)
	return nil
}

// ListFor returns the list holding all orders in the given state. A state
// with no registered list is a programming-contract violation.
func (r *Repository) ListFor(state OrderState) (*SynchronizedOrderList, error) {
	l, exists := r.lists[state]
	if !exists {
		return nil, NewUnexpectedError("no list registered for state %s", state)
	}
	return l, nil
}

// ActiveOrders returns a snapshot of all active orders. Used by the status
// and allocation queries; callers must still lock individual orders before
// reading their mutable fields.
func (r *Repository) ActiveOrders() []*Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Order, 0, len(r.active))
	for _, o := range r.active {
		out = append(out, o)
	}
	return out
}

// ActiveCount returns the number of active orders.
func (r *Repository) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}
