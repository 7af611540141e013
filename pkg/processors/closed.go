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

// ClosedProcessor finalizes deleted orders: it tears down any instance
// still attached to the order, clears the dependency edges, and
// deactivates the order. An unreachable provider keeps the order CLOSED
// so teardown is retried next sweep.
type ClosedProcessor struct {
	localMember  string
	local        *connectors.LocalCloudConnector
	client       federation.Client
	tracker      *orders.DependencyTracker
	transitioner *controller.StateTransitioner
	logger       zerolog.Logger
	metrics      *telemetry.Metrics
}

// NewClosedProcessor creates the CLOSED reconciler.
func NewClosedProcessor(
	localMember string,
	local *connectors.LocalCloudConnector,
	client federation.Client,
	tracker *orders.DependencyTracker,
	transitioner *controller.StateTransitioner,
	logger zerolog.Logger,
	metrics *telemetry.Metrics,
) *ClosedProcessor {
	return &ClosedProcessor{
		localMember:  localMember,
		local:        local,
		client:       client,
		tracker:      tracker,
		transitioner: transitioner,
		logger:       logger.With().Str("processor", "closed").Logger(),
		metrics:      metrics,
	}
}

// State implements Reconciler.
func (p *ClosedProcessor) State() orders.OrderState { return orders.StateClosed }

// Process implements Reconciler.
func (p *ClosedProcessor) Process(ctx context.Context, o *orders.Order) error {
	o.Lock()
	defer o.Unlock()

	if o.State != orders.StateClosed {
		return nil
	}

	if o.InstanceID != "" {
		if err := p.deleteInstance(ctx, o); err != nil {
			if orders.IsNotFound(err) {
				// Already gone; finalization proceeds.
				p.logger.Debug().Str("order_id", o.ID).Str("instance_id", o.InstanceID).
					Msg("instance already gone")
			} else {
				return err
			}
		}
		o.InstanceID = ""
	}

	if o.IsRequesterLocal(p.localMember) {
		p.tracker.Unregister(o)
	}
	return p.transitioner.DeactivateLocked(ctx, o)
}

// deleteInstance tears the instance down at its provider. CLOSED is the
// one state where the dispatch rule follows the provider unconditionally:
// an instance id proves the provider saw the order.
func (p *ClosedProcessor) deleteInstance(ctx context.Context, o *orders.Order) error {
	if o.IsProviderLocal(p.localMember) {
		return p.local.DeleteInstance(ctx, o)
	}
	remote := connectors.NewRemoteCloudConnector(o.Provider, p.client, p.logger, p.metrics)
	return remote.DeleteInstance(ctx, o)
}
