package orders

import (
	"testing"
)

func TestRepositoryPutGetRemove(t *testing.T) {
	repo := NewRepository()
	o := newTestOrder("o-1")

	if _, err := repo.Get("o-1"); !IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}

	if err := repo.Put(o); err != nil {
		t.Fatalf("failed to put order: %v", err)
	}
	if err := repo.Put(o); !IsUnexpected(err) {
		t.Fatalf("expected unexpected error on duplicate put, got %v", err)
	}

	got, err := repo.Get("o-1")
	if err != nil {
		t.Fatalf("failed to get order: %v", err)
	}
	if got != o {
		t.Fatal("Get returned a different order")
	}
	if !repo.Contains("o-1") || repo.ActiveCount() != 1 {
		t.Fatal("repository bookkeeping is inconsistent after put")
	}

	if err := repo.Remove("o-1"); err != nil {
		t.Fatalf("failed to remove order: %v", err)
	}
	if err := repo.Remove("o-1"); !IsUnexpected(err) {
		t.Fatalf("expected unexpected error on double remove, got %v", err)
	}
	if repo.Contains("o-1") {
		t.Fatal("removed order still reported as active")
	}
}

func TestRepositoryHasListPerActiveState(t *testing.T) {
	repo := NewRepository()
	for _, state := range ActiveStates {
		if _, err := repo.ListFor(state); err != nil {
			t.Errorf("no list for state %s: %v", state, err)
		}
	}
	if _, err := repo.ListFor(StateDeactivated); !IsUnexpected(err) {
		t.Fatal("expected no list for the deactivated pseudo-state")
	}
}

func TestRepositoryActiveOrdersSnapshot(t *testing.T) {
	repo := NewRepository()
	for _, id := range []string{"o-1", "o-2", "o-3"} {
		if err := repo.Put(newTestOrder(id)); err != nil {
			t.Fatalf("failed to put order: %v", err)
		}
	}

	snapshot := repo.ActiveOrders()
	if len(snapshot) != 3 {
		t.Fatalf("expected 3 orders in snapshot, got %d", len(snapshot))
	}

	// Mutating the repository must not affect an existing snapshot.
	if err := repo.Remove("o-2"); err != nil {
		t.Fatalf("failed to remove order: %v", err)
	}
	if len(snapshot) != 3 {
		t.Fatal("snapshot changed after repository mutation")
	}
}
