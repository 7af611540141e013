// Package controller implements the order lifecycle façade used by the API
// layer and the state transitioner that owns all list moves. The controller
// validates requests, maintains the dependency graph for composite orders,
// and routes each order to the local or remote cloud connector.
package controller

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/fedbroker/fedbroker/pkg/connectors"
	"github.com/fedbroker/fedbroker/pkg/federation"
	"github.com/fedbroker/fedbroker/pkg/orders"
	"github.com/fedbroker/fedbroker/pkg/plugins"
	"github.com/fedbroker/fedbroker/pkg/telemetry"
)

// Allocation aggregates the concrete resources a user holds in FULFILLED
// orders at one provider. Only the fields relevant to Type are set.
type Allocation struct {
	Type      orders.ResourceType `json:"type"`
	Instances int                 `json:"instances,omitempty"`
	VCPU      int                 `json:"vcpu,omitempty"`
	MemoryMB  int                 `json:"memory_mb,omitempty"`
	Volumes   int                 `json:"volumes,omitempty"`
	StorageGB int                 `json:"storage_gb,omitempty"`
}

// InstanceStatus is the coarse per-order status record returned to users.
// The state label derives from the order state alone; no cloud is called.
type InstanceStatus struct {
	OrderID   string                    `json:"order_id"`
	Provider  string                    `json:"provider"`
	CloudName string                    `json:"cloud_name"`
	State     orders.InstanceStateLabel `json:"state"`
}

// OrderController is the façade over the order lifecycle engine.
type OrderController struct {
	localMember  string
	repo         *orders.Repository
	tracker      *orders.DependencyTracker
	transitioner *StateTransitioner
	local        *connectors.LocalCloudConnector
	client       federation.Client
	logger       zerolog.Logger
	metrics      *telemetry.Metrics
	tracer       *telemetry.Tracer
}

// NewOrderController creates the controller.
func NewOrderController(
	localMember string,
	repo *orders.Repository,
	tracker *orders.DependencyTracker,
	transitioner *StateTransitioner,
	local *connectors.LocalCloudConnector,
	client federation.Client,
	logger zerolog.Logger,
	metrics *telemetry.Metrics,
	tracer *telemetry.Tracer,
) *OrderController {
	return &OrderController{
		localMember:  localMember,
		repo:         repo,
		tracker:      tracker,
		transitioner: transitioner,
		local:        local,
		client:       client,
		logger:       logger.With().Str("component", "controller").Logger(),
		metrics:      metrics,
		tracer:       tracer,
	}
}

// Activate registers a freshly validated order: assigns an id if absent,
// inserts it into the repository and the OPEN list, and, only when this
// member is the requester, records its dependency edges.
func (c *OrderController) Activate(ctx context.Context, o *orders.Order) error {
	if o == nil {
		return orders.NewUnexpectedError("cannot activate a nil order")
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	ctx, span := c.startSpan(ctx, "activate", o.ID)
	defer span.End()

	if err := c.transitioner.Activate(ctx, o); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if o.IsRequesterLocal(c.localMember) {
		c.tracker.Register(o)
	}
	return nil
}

// Get returns the active order with the given id.
func (c *OrderController) Get(id string) (*orders.Order, error) {
	return c.repo.Get(id)
}

// Delete tears an order down: it verifies no dependents remain (requester
// side), deletes the cloud instance when one exists, and drives the local
// copy to CLOSED. For a remotely-provided order the remote delete closes
// the provider's copy through the peer's own Delete; each side finalizes
// its copy independently through its closed processor.
func (c *OrderController) Delete(ctx context.Context, o *orders.Order) error {
	if o == nil {
		return orders.NewUnexpectedError("cannot delete a nil order")
	}

	ctx, span := c.startSpan(ctx, "delete", o.ID)
	defer span.End()

	o.Lock()
	defer o.Unlock()

	if o.State == orders.StateClosed {
		err := orders.NewNotFoundError("order %s is already closed", o.ID)
		telemetry.RecordError(span, err)
		return err
	}

	if o.IsRequesterLocal(c.localMember) {
		if err := c.tracker.CheckNoDependents(o.ID); err != nil {
			telemetry.RecordError(span, err)
			return err
		}
	}

	conn := c.connectorLocked(o)
	_, remote := conn.(*connectors.RemoteCloudConnector)
	if o.InstanceID != "" || remote {
		if err := conn.DeleteInstance(connectors.WithActor(ctx, o.RequestingUser), o); err != nil {
			telemetry.RecordError(span, err)
			return err
		}
		o.InstanceID = ""
	}

	if err := c.transitioner.TransitionLocked(ctx, o, orders.StateClosed); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if o.IsRequesterLocal(c.localMember) {
		c.tracker.Unregister(o)
	}
	return nil
}

// GetInstance returns the live instance snapshot for an order.
func (c *OrderController) GetInstance(ctx context.Context, o *orders.Order) (*plugins.Instance, error) {
	if o == nil {
		return nil, orders.NewUnexpectedError("cannot query a nil order")
	}

	ctx, span := c.startSpan(ctx, "get_instance", o.ID)
	defer span.End()

	o.Lock()
	defer o.Unlock()

	conn := c.connectorLocked(o)
	inst, err := conn.GetInstance(connectors.WithActor(ctx, o.RequestingUser), o)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return inst, nil
}

// GetUserAllocation aggregates the resources held by user's FULFILLED
// orders of the given type at providerID. Unsupported types are an
// internal-contract violation: the API layer only exposes supported ones.
func (c *OrderController) GetUserAllocation(providerID, user string, typ orders.ResourceType) (*Allocation, error) {
	if typ != orders.TypeCompute && typ != orders.TypeVolume {
		return nil, orders.NewUnexpectedError("allocation is not supported for type %s", typ)
	}

	alloc := &Allocation{Type: typ}
	for _, o := range c.repo.ActiveOrders() {
		o.Lock()
		fulfilled := o.State == orders.StateFulfilled
		o.Unlock()
		if !fulfilled || o.Type != typ || o.Provider != providerID || o.RequestingUser != user {
			continue
		}
		switch typ {
		case orders.TypeCompute:
			if o.Compute == nil {
				continue
			}
			alloc.Instances++
			alloc.VCPU += o.Compute.VCPU
			alloc.MemoryMB += o.Compute.MemoryMB
		case orders.TypeVolume:
			if o.Volume == nil {
				continue
			}
			alloc.Volumes++
			alloc.StorageGB += o.Volume.SizeGB
		}
	}
	return alloc, nil
}

// GetInstancesStatus returns one status record per non-CLOSED order of the
// given type owned by user. CLOSED orders are invisible: they are pending
// asynchronous finalization.
func (c *OrderController) GetInstancesStatus(user string, typ orders.ResourceType) []InstanceStatus {
	var out []InstanceStatus
	for _, o := range c.repo.ActiveOrders() {
		if o.Type != typ || o.RequestingUser != user {
			continue
		}
		o.Lock()
		state := o.State
		o.Unlock()
		if state == orders.StateClosed {
			continue
		}
		out = append(out, InstanceStatus{
			OrderID:   o.ID,
			Provider:  o.Provider,
			CloudName: o.CloudName,
			State:     orders.InstanceStateFor(state),
		})
	}
	return out
}

// GetUserQuota returns the compute quota for a user at a provider's cloud,
// fetched locally or from the remote member.
func (c *OrderController) GetUserQuota(ctx context.Context, providerID, cloud, user string) (*plugins.ComputeQuota, error) {
	if providerID == c.localMember {
		return c.local.GetComputeQuota(ctx, cloud, user)
	}
	remote := connectors.NewRemoteCloudConnector(providerID, c.client, c.logger, c.metrics)
	return remote.GetComputeQuota(ctx, cloud, user)
}

// Pause asks the cloud to pause a fulfilled, locally-provided compute
// instance and moves the order to PAUSING; the pausing processor polls
// until the cloud confirms.
func (c *OrderController) Pause(ctx context.Context, o *orders.Order) error {
	if o == nil {
		return orders.NewUnexpectedError("cannot pause a nil order")
	}

	ctx, span := c.startSpan(ctx, "pause", o.ID)
	defer span.End()

	o.Lock()
	defer o.Unlock()

	if o.Type != orders.TypeCompute {
		return orders.NewInvalidParameterError("order %s is not a compute order", o.ID)
	}
	if !o.IsProviderLocal(c.localMember) {
		return orders.NewInvalidParameterError(
			"pausing remotely provided orders is not supported")
	}
	if o.State != orders.StateFulfilled {
		return orders.NewInvalidParameterError(
			"order %s cannot be paused in state %s", o.ID, o.State)
	}

	if err := c.local.PauseInstance(connectors.WithActor(ctx, o.RequestingUser), o); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	return c.transitioner.TransitionLocked(ctx, o, orders.StatePausing)
}

// GetCloudConnector resolves the connector serving an order.
func (c *OrderController) GetCloudConnector(o *orders.Order) connectors.CloudConnector {
	o.Lock()
	defer o.Unlock()
	return c.connectorLocked(o)
}

// connectorLocked implements the dispatch rule with the order lock held:
// local when this member is the provider; local when the provider is
// remote but the order never left OPEN or FAILED_ON_REQUEST (the peer
// never saw it, there is nothing to tell it); remote otherwise.
func (c *OrderController) connectorLocked(o *orders.Order) connectors.CloudConnector {
	if o.IsProviderLocal(c.localMember) {
		return c.local
	}
	if o.State == orders.StateOpen || o.State == orders.StateFailedOnRequest {
		return c.local
	}
	return connectors.NewRemoteCloudConnector(o.Provider, c.client, c.logger, c.metrics)
}

// HandleRemoteEvent implements federation.MirrorDriver: it drives the
// requester-side mirror order's state when the provider reports fulfillment
// or failure.
func (c *OrderController) HandleRemoteEvent(ctx context.Context, n federation.Notification) error {
	o, err := c.repo.Get(n.OrderID)
	if err != nil {
		return err
	}

	o.Lock()
	defer o.Unlock()

	if n.InstanceID != "" {
		o.InstanceID = n.InstanceID
	}
	switch n.Event {
	case federation.EventInstanceFulfilled:
		return c.transitioner.TransitionLocked(ctx, o, orders.StateFulfilled)
	case federation.EventInstanceFailed:
		if n.Message != "" {
			o.FaultMessage = n.Message
		}
		return c.transitioner.TransitionLocked(ctx, o, orders.StateFailedAfterSuccessfulRequest)
	default:
		return orders.NewUnexpectedError("unknown federation event %q", n.Event)
	}
}

// startSpan opens a tracing span, degrading to a no-op span when no tracer
// is configured.
func (c *OrderController) startSpan(ctx context.Context, operation, orderID string) (context.Context, trace.Span) {
	if c.tracer == nil {
		return ctx, noop.Span{}
	}
	return c.tracer.StartOrderSpan(ctx, operation, orderID)
}
