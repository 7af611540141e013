package orders

import (
	"sync"
)

// listNode is an intrusive doubly-linked node. The id index gives O(1)
// remove-by-identity without scanning.
type listNode struct {
	order *Order
	prev  *listNode
	next  *listNode
}

// SynchronizedOrderList holds every order currently in one lifecycle state.
// It supports append, O(1) remove-by-identity, and a resettable forward
// cursor so each processor can sweep the list once per cycle without
// holding a lock across the processing of an individual order.
//
// Single operations are internally synchronized. Composite read-modify-move
// sequences across two lists are not; callers serialize those through the
// order's own lock.
type SynchronizedOrderList struct {
	mu     sync.Mutex
	head   *listNode
	tail   *listNode
	index  map[string]*listNode
	cursor *listNode
}

// NewSynchronizedOrderList creates an empty list with the cursor at the
// (empty) head.
func NewSynchronizedOrderList() *SynchronizedOrderList {
	return &SynchronizedOrderList{index: make(map[string]*listNode)}
}

// Add appends the order at the tail. Adding a nil order or an order whose
// id is already present is an internal-contract violation.
func (l *SynchronizedOrderList) Add(o *Order) error {
	if o == nil {
		return NewUnexpectedError("cannot add a nil order to a state list")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.index[o.ID]; exists {
		return NewUnexpectedError("order %s is already in the list", o.ID)
	}

	n := &listNode{order: o}
	if l.tail == nil {
		l.head = n
		l.tail = n
		// An empty list has an exhausted cursor; pick up the new head so a
		// sweep that reset against the empty list still sees it.
		if l.cursor == nil {
			l.cursor = n
		}
	} else {
		n.prev = l.tail
		l.tail.next = n
		l.tail = n
	}
	l.index[o.ID] = n
	return nil
}

// Remove unlinks the order by identity. It returns false when the order is
// not present, which racing callers treat as somebody else having already
// moved it.
func (l *SynchronizedOrderList) Remove(o *Order) bool {
	if o == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	n, exists := l.index[o.ID]
	if !exists {
		return false
	}

	// Never leave the cursor on an unlinked node.
	if l.cursor == n {
		l.cursor = n.next
	}

	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev = nil
	n.next = nil
	delete(l.index, o.ID)
	return true
}

// Next returns the order under the cursor and advances it, or nil when the
// sweep is exhausted.
func (l *SynchronizedOrderList) Next() *Order {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cursor == nil {
		return nil
	}
	o := l.cursor.order
	l.cursor = l.cursor.next
	return o
}

// ResetCursor rewinds the cursor to the head for the next sweep.
func (l *SynchronizedOrderList) ResetCursor() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cursor = l.head
}

// Size returns the number of orders currently in the list.
func (l *SynchronizedOrderList) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.index)
}

// Contains reports whether the order with the given id is in the list.
func (l *SynchronizedOrderList) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, exists := l.index[id]
	return exists
}
