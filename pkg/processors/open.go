package processors

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/fedbroker/fedbroker/pkg/connectors"
	"github.com/fedbroker/fedbroker/pkg/controller"
	"github.com/fedbroker/fedbroker/pkg/federation"
	"github.com/fedbroker/fedbroker/pkg/orders"
	"github.com/fedbroker/fedbroker/pkg/telemetry"
)

// OpenProcessor dispatches freshly activated orders. Locally-provided
// orders go straight to the cloud plugin and advance to SPAWNING (or
// FAILED_ON_REQUEST on rejection); remotely-provided orders are forwarded
// to the provider member and parked in PENDING, where the provider's own
// processors take over.
type OpenProcessor struct {
	localMember  string
	local        *connectors.LocalCloudConnector
	client       federation.Client
	transitioner *controller.StateTransitioner
	logger       zerolog.Logger
	metrics      *telemetry.Metrics
}

// NewOpenProcessor creates the OPEN reconciler.
func NewOpenProcessor(
	localMember string,
	local *connectors.LocalCloudConnector,
	client federation.Client,
	transitioner *controller.StateTransitioner,
	logger zerolog.Logger,
	metrics *telemetry.Metrics,
) *OpenProcessor {
	return &OpenProcessor{
		localMember:  localMember,
		local:        local,
		client:       client,
		transitioner: transitioner,
		logger:       logger.With().Str("processor", "open").Logger(),
		metrics:      metrics,
	}
}

// State implements Reconciler.
func (p *OpenProcessor) State() orders.OrderState { return orders.StateOpen }

// Process implements Reconciler.
func (p *OpenProcessor) Process(ctx context.Context, o *orders.Order) error {
	o.Lock()
	defer o.Unlock()

	// The controller may have closed the order between cursor read and here.
	if o.State != orders.StateOpen {
		return nil
	}

	if o.IsProviderLocal(p.localMember) {
		return p.dispatchLocal(ctx, o)
	}
	return p.dispatchRemote(ctx, o)
}

// dispatchLocal requests the instance from the local cloud. A rejection is
// final: the request never reached the point of creating anything, so the
// order fails without a teardown obligation.
func (p *OpenProcessor) dispatchLocal(ctx context.Context, o *orders.Order) error {
	instanceID, err := p.local.RequestInstance(ctx, o)
	if err != nil {
		o.FaultMessage = faultMessage(err)
		p.logger.Warn().Err(err).Str("order_id", o.ID).Msg("cloud rejected instance request")
		return p.transitioner.TransitionLocked(ctx, o, orders.StateFailedOnRequest)
	}
	if instanceID == "" {
		o.FaultMessage = "cloud returned an empty instance id"
		return p.transitioner.TransitionLocked(ctx, o, orders.StateFailedOnRequest)
	}
	o.InstanceID = instanceID
	return p.transitioner.TransitionLocked(ctx, o, orders.StateSpawning)
}

// dispatchRemote forwards the order to its provider member. Errors are
// returned so the order stays OPEN and the next sweep retries; the peer
// reports fulfillment or failure back through the federation channel once
// it accepts the order.
func (p *OpenProcessor) dispatchRemote(ctx context.Context, o *orders.Order) error {
	remote := connectors.NewRemoteCloudConnector(o.Provider, p.client, p.logger, p.metrics)
	instanceID, err := remote.RequestInstance(ctx, o)
	if err != nil {
		return err
	}
	if instanceID != "" {
		o.InstanceID = instanceID
	}
	return p.transitioner.TransitionLocked(ctx, o, orders.StatePending)
}
