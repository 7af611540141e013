package controller

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/fedbroker/fedbroker/pkg/connectors"
	"github.com/fedbroker/fedbroker/pkg/federation"
	"github.com/fedbroker/fedbroker/pkg/orders"
	"github.com/fedbroker/fedbroker/pkg/plugins"
)

// testEnv wires a controller against the stub cloud and a fake federation
// client.
type testEnv struct {
	repo         *orders.Repository
	tracker      *orders.DependencyTracker
	transitioner *StateTransitioner
	local        *connectors.LocalCloudConnector
	client       *fakeClient
	ctrl         *OrderController
	stub         *plugins.StubPlugin
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := orders.NewRepository()
	tracker := orders.NewDependencyTracker()
	client := &fakeClient{}
	metrics := testMetrics()
	logger := zerolog.Nop()

	stub := plugins.NewStubPlugin(0)
	registry := plugins.NewRegistry()
	for _, typ := range []orders.ResourceType{
		orders.TypeCompute, orders.TypeNetwork, orders.TypeVolume,
		orders.TypeAttachment, orders.TypePublicIP,
	} {
		if err := registry.Register("cloud-1", typ, stub); err != nil {
			t.Fatalf("failed to register stub plugin: %v", err)
		}
	}
	mapper := &plugins.StaticCredentialMapper{Default: &plugins.Credential{Username: "svc"}}

	local := connectors.NewLocalCloudConnector(repo, registry, mapper, logger, metrics)
	transitioner := NewStateTransitioner(testMember, repo, client, nil, logger, metrics)
	ctrl := NewOrderController(testMember, repo, tracker, transitioner, local, client, logger, metrics, nil)

	return &testEnv{
		repo:         repo,
		tracker:      tracker,
		transitioner: transitioner,
		local:        local,
		client:       client,
		ctrl:         ctrl,
		stub:         stub,
	}
}

// fulfillLocally walks an activated local order to FULFILLED with a real
// stub instance.
func (e *testEnv) fulfillLocally(t *testing.T, o *orders.Order) {
	t.Helper()
	ctx := context.Background()

	o.Lock()
	id, err := e.local.RequestInstance(ctx, o)
	if err != nil {
		o.Unlock()
		t.Fatalf("failed to request instance: %v", err)
	}
	o.InstanceID = id
	if err := e.transitioner.TransitionLocked(ctx, o, orders.StateSpawning); err != nil {
		o.Unlock()
		t.Fatalf("failed to transition to SPAWNING: %v", err)
	}
	if err := e.transitioner.TransitionLocked(ctx, o, orders.StateFulfilled); err != nil {
		o.Unlock()
		t.Fatalf("failed to transition to FULFILLED: %v", err)
	}
	o.Unlock()
}

func TestActivateAssignsID(t *testing.T) {
	env := newTestEnv(t)
	o := newLocalOrder("")

	if err := env.ctrl.Activate(context.Background(), o); err != nil {
		t.Fatalf("failed to activate: %v", err)
	}
	if o.ID == "" {
		t.Fatal("expected an id to be assigned")
	}
	if o.CreatedAt.IsZero() {
		t.Fatal("expected a creation timestamp")
	}
	if o.State != orders.StateOpen {
		t.Fatalf("expected state OPEN, got %s", o.State)
	}
}

func TestActivateRegistersDependencyEdges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	compute := newLocalOrder("comp-1")
	volume := newLocalOrder("vol-1")
	volume.Type = orders.TypeVolume
	volume.Compute = nil
	volume.Volume = &orders.VolumeSpec{Name: "data", SizeGB: 50}
	for _, o := range []*orders.Order{compute, volume} {
		if err := env.ctrl.Activate(ctx, o); err != nil {
			t.Fatalf("failed to activate %s: %v", o.ID, err)
		}
	}

	attachment := newLocalOrder("att-1")
	attachment.Type = orders.TypeAttachment
	attachment.Compute = nil
	attachment.Attachment = &orders.AttachmentSpec{
		ComputeOrderID: "comp-1",
		VolumeOrderID:  "vol-1",
	}
	if err := env.ctrl.Activate(ctx, attachment); err != nil {
		t.Fatalf("failed to activate attachment: %v", err)
	}

	if err := env.tracker.CheckNoDependents("comp-1"); !orders.IsDependencyDetected(err) {
		t.Fatalf("expected dependency edge onto comp-1, got %v", err)
	}
}

func TestDeleteBlockedByDependents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	compute := newLocalOrder("comp-1")
	if err := env.ctrl.Activate(ctx, compute); err != nil {
		t.Fatalf("failed to activate: %v", err)
	}
	publicIP := newLocalOrder("ip-1")
	publicIP.Type = orders.TypePublicIP
	publicIP.Compute = nil
	publicIP.PublicIP = &orders.PublicIPSpec{ComputeOrderID: "comp-1"}
	if err := env.ctrl.Activate(ctx, publicIP); err != nil {
		t.Fatalf("failed to activate: %v", err)
	}

	if err := env.ctrl.Delete(ctx, compute); !orders.IsDependencyDetected(err) {
		t.Fatalf("expected dependency-detected error, got %v", err)
	}
	if compute.State != orders.StateOpen {
		t.Fatalf("blocked delete must not change state, got %s", compute.State)
	}

	// Deleting the dependent first unblocks the compute order.
	if err := env.ctrl.Delete(ctx, publicIP); err != nil {
		t.Fatalf("failed to delete public ip order: %v", err)
	}
	if err := env.ctrl.Delete(ctx, compute); err != nil {
		t.Fatalf("failed to delete compute order: %v", err)
	}
}

func TestDeleteClosedOrderIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	o := newLocalOrder("o-1")
	if err := env.ctrl.Activate(ctx, o); err != nil {
		t.Fatalf("failed to activate: %v", err)
	}
	if err := env.ctrl.Delete(ctx, o); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if err := env.ctrl.Delete(ctx, o); !orders.IsNotFound(err) {
		t.Fatalf("expected not-found error deleting a closed order, got %v", err)
	}
}

func TestDeleteFulfilledOrderTearsDownInstance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	o := newLocalOrder("o-1")
	if err := env.ctrl.Activate(ctx, o); err != nil {
		t.Fatalf("failed to activate: %v", err)
	}
	env.fulfillLocally(t, o)
	instanceID := o.InstanceID
	if instanceID == "" {
		t.Fatal("expected a live instance")
	}

	if err := env.ctrl.Delete(ctx, o); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if o.State != orders.StateClosed {
		t.Fatalf("expected state CLOSED, got %s", o.State)
	}
	if o.InstanceID != "" {
		t.Fatal("expected instance id to be cleared")
	}
	if _, err := env.stub.GetInstance(ctx, instanceID, plugins.Credential{}); !orders.IsNotFound(err) {
		t.Fatalf("expected instance gone from the cloud, got %v", err)
	}
}

func TestDeleteRemoteOrderClosesMirror(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	o := newLocalOrder("o-1")
	o.Provider = "member-b"
	if err := env.ctrl.Activate(ctx, o); err != nil {
		t.Fatalf("failed to activate: %v", err)
	}
	if err := env.transitioner.Transition(ctx, o, orders.StatePending); err != nil {
		t.Fatalf("failed to park in PENDING: %v", err)
	}

	if err := env.ctrl.Delete(ctx, o); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if o.State != orders.StateClosed {
		t.Fatalf("expected mirror to close, got %s", o.State)
	}
	if got := env.client.deleted; len(got) != 1 || got[0] != "o-1" {
		t.Fatalf("expected one remote delete for o-1, got %v", got)
	}
}

func TestGetInstancesStatusHidesClosed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	open := newLocalOrder("o-open")
	closed := newLocalOrder("o-closed")
	for _, o := range []*orders.Order{open, closed} {
		if err := env.ctrl.Activate(ctx, o); err != nil {
			t.Fatalf("failed to activate: %v", err)
		}
	}
	if err := env.ctrl.Delete(ctx, closed); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}

	statuses := env.ctrl.GetInstancesStatus("alice", orders.TypeCompute)
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(statuses))
	}
	if statuses[0].OrderID != "o-open" || statuses[0].State != orders.InstanceDispatched {
		t.Fatalf("unexpected status record %+v", statuses[0])
	}
}

func TestGetUserAllocationAggregatesFulfilled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, id := range []string{"o-1", "o-2"} {
		o := newLocalOrder(id)
		if err := env.ctrl.Activate(ctx, o); err != nil {
			t.Fatalf("failed to activate: %v", err)
		}
		env.fulfillLocally(t, o)
	}
	// A not-yet-fulfilled order must not count.
	pending := newLocalOrder("o-3")
	if err := env.ctrl.Activate(ctx, pending); err != nil {
		t.Fatalf("failed to activate: %v", err)
	}
	// Another user's fulfilled order must not count either.
	other := newLocalOrder("o-4")
	other.RequestingUser = "bob"
	if err := env.ctrl.Activate(ctx, other); err != nil {
		t.Fatalf("failed to activate: %v", err)
	}
	env.fulfillLocally(t, other)

	alloc, err := env.ctrl.GetUserAllocation(testMember, "alice", orders.TypeCompute)
	if err != nil {
		t.Fatalf("failed to compute allocation: %v", err)
	}
	if alloc.Instances != 2 || alloc.VCPU != 4 || alloc.MemoryMB != 4096 {
		t.Fatalf("unexpected allocation %+v", alloc)
	}
}

func TestGetUserAllocationRejectsUnsupportedType(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.ctrl.GetUserAllocation(testMember, "alice", orders.TypeNetwork); !orders.IsUnexpected(err) {
		t.Fatalf("expected unexpected error, got %v", err)
	}
}

func TestPauseFulfilledComputeOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	o := newLocalOrder("o-1")
	if err := env.ctrl.Activate(ctx, o); err != nil {
		t.Fatalf("failed to activate: %v", err)
	}

	if err := env.ctrl.Pause(ctx, o); !orders.IsInvalidParameter(err) {
		t.Fatalf("expected invalid-parameter error pausing a non-fulfilled order, got %v", err)
	}

	env.fulfillLocally(t, o)
	if err := env.ctrl.Pause(ctx, o); err != nil {
		t.Fatalf("failed to pause: %v", err)
	}
	if o.State != orders.StatePausing {
		t.Fatalf("expected state PAUSING, got %s", o.State)
	}
}

func TestConnectorDispatchRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	local := newLocalOrder("o-local")
	if err := env.ctrl.Activate(ctx, local); err != nil {
		t.Fatalf("failed to activate: %v", err)
	}
	if conn := env.ctrl.GetCloudConnector(local); conn != env.local {
		t.Fatal("locally provided order must use the local connector")
	}

	remote := newLocalOrder("o-remote")
	remote.Provider = "member-b"
	if err := env.ctrl.Activate(ctx, remote); err != nil {
		t.Fatalf("failed to activate: %v", err)
	}
	// While still OPEN the peer has never seen the order.
	if conn := env.ctrl.GetCloudConnector(remote); conn != env.local {
		t.Fatal("remote order in OPEN must use the local connector")
	}
	if err := env.transitioner.Transition(ctx, remote, orders.StatePending); err != nil {
		t.Fatalf("failed to transition: %v", err)
	}
	if _, ok := env.ctrl.GetCloudConnector(remote).(*connectors.RemoteCloudConnector); !ok {
		t.Fatal("remote order in PENDING must use the remote connector")
	}
}

func TestHandleRemoteEventDrivesMirror(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	o := newLocalOrder("o-1")
	o.Provider = "member-b"
	if err := env.ctrl.Activate(ctx, o); err != nil {
		t.Fatalf("failed to activate: %v", err)
	}
	if err := env.transitioner.Transition(ctx, o, orders.StatePending); err != nil {
		t.Fatalf("failed to park in PENDING: %v", err)
	}

	err := env.ctrl.HandleRemoteEvent(ctx, federation.Notification{
		OrderID:    "o-1",
		Event:      federation.EventInstanceFulfilled,
		InstanceID: "remote-inst-7",
	})
	if err != nil {
		t.Fatalf("failed to apply remote event: %v", err)
	}
	if o.State != orders.StateFulfilled || o.InstanceID != "remote-inst-7" {
		t.Fatalf("mirror not driven: state=%s instance=%s", o.State, o.InstanceID)
	}

	err = env.ctrl.HandleRemoteEvent(ctx, federation.Notification{
		OrderID: "o-1",
		Event:   federation.EventInstanceFailed,
		Message: "hypervisor died",
	})
	if err != nil {
		t.Fatalf("failed to apply failure event: %v", err)
	}
	if o.State != orders.StateFailedAfterSuccessfulRequest || o.FaultMessage != "hypervisor died" {
		t.Fatalf("failure event not applied: state=%s fault=%q", o.State, o.FaultMessage)
	}
}

func TestHandleRemoteEventUnknownOrder(t *testing.T) {
	env := newTestEnv(t)
	err := env.ctrl.HandleRemoteEvent(context.Background(), federation.Notification{
		OrderID: "ghost",
		Event:   federation.EventInstanceFulfilled,
	})
	if !orders.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}
