package controller

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/fedbroker/fedbroker/pkg/federation"
	"github.com/fedbroker/fedbroker/pkg/orders"
	"github.com/fedbroker/fedbroker/pkg/plugins"
	"github.com/fedbroker/fedbroker/pkg/telemetry"
)

const testMember = "member-a"

// fakeClient is an in-memory federation client for tests.
type fakeClient struct {
	mu          sync.Mutex
	notifyErr   error
	notified    []federation.Event
	requestID   string
	requestErr  error
	instance    *plugins.Instance
	instanceErr error
	deleteErr   error
	deleted     []string
	quota       *plugins.ComputeQuota
	quotaErr    error
}

func (c *fakeClient) RequestRemoteInstance(_ context.Context, o *orders.Order) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestID, c.requestErr
}

func (c *fakeClient) GetRemoteInstance(_ context.Context, o *orders.Order) (*plugins.Instance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.instance, c.instanceErr
}

func (c *fakeClient) DeleteRemoteInstance(_ context.Context, o *orders.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return c.deleteErr
	}
	c.deleted = append(c.deleted, o.ID)
	return nil
}

func (c *fakeClient) GetRemoteQuota(_ context.Context, member, cloud, user string) (*plugins.ComputeQuota, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quota, c.quotaErr
}

func (c *fakeClient) Notify(_ context.Context, o *orders.Order, event federation.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notifyErr != nil {
		return c.notifyErr
	}
	c.notified = append(c.notified, event)
	return nil
}

func (c *fakeClient) notifications() []federation.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]federation.Event(nil), c.notified...)
}

func testMetrics() *telemetry.Metrics {
	return telemetry.NewMetrics(telemetry.MetricsConfig{})
}

func newTestTransitioner(client federation.Client) (*StateTransitioner, *orders.Repository) {
	repo := orders.NewRepository()
	tr := NewStateTransitioner(testMember, repo, client, nil, zerolog.Nop(), testMetrics())
	return tr, repo
}

func newLocalOrder(id string) *orders.Order {
	return &orders.Order{
		ID:             id,
		Type:           orders.TypeCompute,
		Requester:      testMember,
		Provider:       testMember,
		CloudName:      "cloud-1",
		RequestingUser: "alice",
		Compute:        &orders.ComputeSpec{Name: "vm-" + id, VCPU: 2, MemoryMB: 2048},
	}
}

func listSize(t *testing.T, repo *orders.Repository, state orders.OrderState) int {
	t.Helper()
	list, err := repo.ListFor(state)
	if err != nil {
		t.Fatalf("no list for state %s: %v", state, err)
	}
	return list.Size()
}

func TestActivatePlacesOrderInOpenList(t *testing.T) {
	tr, repo := newTestTransitioner(&fakeClient{})
	o := newLocalOrder("o-1")

	if err := tr.Activate(context.Background(), o); err != nil {
		t.Fatalf("failed to activate: %v", err)
	}
	if o.State != orders.StateOpen {
		t.Fatalf("expected state OPEN, got %s", o.State)
	}
	if !repo.Contains("o-1") {
		t.Fatal("activated order missing from repository")
	}
	if listSize(t, repo, orders.StateOpen) != 1 {
		t.Fatal("activated order missing from OPEN list")
	}
}

func TestActivateDuplicateFailsCleanly(t *testing.T) {
	tr, repo := newTestTransitioner(&fakeClient{})
	o := newLocalOrder("o-1")

	if err := tr.Activate(context.Background(), o); err != nil {
		t.Fatalf("failed to activate: %v", err)
	}
	if err := tr.Activate(context.Background(), newLocalOrder("o-1")); !orders.IsUnexpected(err) {
		t.Fatalf("expected unexpected error on duplicate activation, got %v", err)
	}
	if repo.ActiveCount() != 1 || listSize(t, repo, orders.StateOpen) != 1 {
		t.Fatal("duplicate activation disturbed the repository")
	}
}

func TestTransitionMovesBetweenLists(t *testing.T) {
	tr, repo := newTestTransitioner(&fakeClient{})
	o := newLocalOrder("o-1")
	if err := tr.Activate(context.Background(), o); err != nil {
		t.Fatalf("failed to activate: %v", err)
	}

	if err := tr.Transition(context.Background(), o, orders.StateSpawning); err != nil {
		t.Fatalf("failed to transition: %v", err)
	}
	if o.State != orders.StateSpawning {
		t.Fatalf("expected state SPAWNING, got %s", o.State)
	}
	if listSize(t, repo, orders.StateOpen) != 0 || listSize(t, repo, orders.StateSpawning) != 1 {
		t.Fatal("transition did not move the order between lists")
	}
}

func TestTransitionToSameStateIsNoOp(t *testing.T) {
	tr, repo := newTestTransitioner(&fakeClient{})
	o := newLocalOrder("o-1")
	if err := tr.Activate(context.Background(), o); err != nil {
		t.Fatalf("failed to activate: %v", err)
	}

	if err := tr.Transition(context.Background(), o, orders.StateOpen); err != nil {
		t.Fatalf("same-state transition must be a no-op, got %v", err)
	}
	if listSize(t, repo, orders.StateOpen) != 1 {
		t.Fatal("same-state transition disturbed the OPEN list")
	}
}

func TestConcurrentTransitionAppliesOnce(t *testing.T) {
	tr, repo := newTestTransitioner(&fakeClient{})
	o := newLocalOrder("o-1")
	if err := tr.Activate(context.Background(), o); err != nil {
		t.Fatalf("failed to activate: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tr.Transition(context.Background(), o, orders.StateSpawning); err != nil {
				t.Errorf("racing transition failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if o.State != orders.StateSpawning {
		t.Fatalf("expected state SPAWNING, got %s", o.State)
	}
	if listSize(t, repo, orders.StateOpen) != 0 || listSize(t, repo, orders.StateSpawning) != 1 {
		t.Fatal("racing transitions corrupted the state lists")
	}
}

func TestNotifyFailureKeepsCurrentState(t *testing.T) {
	client := &fakeClient{notifyErr: orders.NewUnavailableProviderError("peer down")}
	tr, repo := newTestTransitioner(client)

	o := newLocalOrder("o-1")
	o.Requester = "member-b" // provider-side copy of a remote request
	if err := tr.Activate(context.Background(), o); err != nil {
		t.Fatalf("failed to activate: %v", err)
	}
	if err := tr.Transition(context.Background(), o, orders.StateSpawning); err != nil {
		t.Fatalf("failed to transition: %v", err)
	}

	// FULFILLED is notable to the requester; the failed notification must
	// leave the order in SPAWNING for a later retry.
	if err := tr.Transition(context.Background(), o, orders.StateFulfilled); err != nil {
		t.Fatalf("transition with failed notification must not error, got %v", err)
	}
	if o.State != orders.StateSpawning {
		t.Fatalf("expected state to stay SPAWNING, got %s", o.State)
	}
	if listSize(t, repo, orders.StateFulfilled) != 0 {
		t.Fatal("order moved despite failed notification")
	}

	// Connectivity returns; the retry notifies first, then advances.
	client.mu.Lock()
	client.notifyErr = nil
	client.mu.Unlock()
	if err := tr.Transition(context.Background(), o, orders.StateFulfilled); err != nil {
		t.Fatalf("failed to transition after recovery: %v", err)
	}
	if o.State != orders.StateFulfilled {
		t.Fatalf("expected state FULFILLED, got %s", o.State)
	}
	if got := client.notifications(); len(got) != 1 || got[0] != federation.EventInstanceFulfilled {
		t.Fatalf("expected one INSTANCE_FULFILLED notification, got %v", got)
	}
}

func TestLocalRequesterIsNeverNotified(t *testing.T) {
	client := &fakeClient{}
	tr, _ := newTestTransitioner(client)
	o := newLocalOrder("o-1")
	if err := tr.Activate(context.Background(), o); err != nil {
		t.Fatalf("failed to activate: %v", err)
	}
	if err := tr.Transition(context.Background(), o, orders.StateSpawning); err != nil {
		t.Fatalf("failed to transition: %v", err)
	}
	if err := tr.Transition(context.Background(), o, orders.StateFulfilled); err != nil {
		t.Fatalf("failed to transition: %v", err)
	}
	if got := client.notifications(); len(got) != 0 {
		t.Fatalf("expected no notifications for a local requester, got %v", got)
	}
}

func TestDeactivateRemovesClosedOrder(t *testing.T) {
	tr, repo := newTestTransitioner(&fakeClient{})
	o := newLocalOrder("o-1")
	if err := tr.Activate(context.Background(), o); err != nil {
		t.Fatalf("failed to activate: %v", err)
	}

	if err := tr.Deactivate(context.Background(), o); !orders.IsUnexpected(err) {
		t.Fatalf("expected unexpected error deactivating a non-closed order, got %v", err)
	}

	if err := tr.Transition(context.Background(), o, orders.StateClosed); err != nil {
		t.Fatalf("failed to close: %v", err)
	}
	if err := tr.Deactivate(context.Background(), o); err != nil {
		t.Fatalf("failed to deactivate: %v", err)
	}
	if o.State != orders.StateDeactivated {
		t.Fatalf("expected state DEACTIVATED, got %s", o.State)
	}
	if repo.Contains("o-1") || listSize(t, repo, orders.StateClosed) != 0 {
		t.Fatal("deactivated order still tracked")
	}
}
