package processors

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/fedbroker/fedbroker/pkg/connectors"
	"github.com/fedbroker/fedbroker/pkg/controller"
	"github.com/fedbroker/fedbroker/pkg/orders"
)

// UnableProcessor retries orders whose provider went unreachable. It keeps
// probing indefinitely; once a probe gets through, the order is routed to
// whatever state the live instance dictates.
type UnableProcessor struct {
	localMember  string
	local        *connectors.LocalCloudConnector
	transitioner *controller.StateTransitioner
	logger       zerolog.Logger
}

// NewUnableProcessor creates the UNABLE_TO_CHECK_STATUS reconciler.
func NewUnableProcessor(
	localMember string,
	local *connectors.LocalCloudConnector,
	transitioner *controller.StateTransitioner,
	logger zerolog.Logger,
) *UnableProcessor {
	return &UnableProcessor{
		localMember:  localMember,
		local:        local,
		transitioner: transitioner,
		logger:       logger.With().Str("processor", "unable").Logger(),
	}
}

// State implements Reconciler.
func (p *UnableProcessor) State() orders.OrderState { return orders.StateUnableToCheckStatus }

// Process implements Reconciler.
func (p *UnableProcessor) Process(ctx context.Context, o *orders.Order) error {
	o.Lock()
	defer o.Unlock()

	if o.State != orders.StateUnableToCheckStatus {
		return nil
	}
	if !o.IsProviderLocal(p.localMember) {
		p.logger.Error().Str("order_id", o.ID).Str("provider", o.Provider).
			Msg("remotely provided order found in UNABLE_TO_CHECK_STATUS; parking in PENDING")
		return p.transitioner.TransitionLocked(ctx, o, orders.StatePending)
	}

	inst, err := p.local.GetInstance(ctx, o)
	if err != nil {
		if orders.IsUnavailableProvider(err) {
			// Still unreachable; stay and retry next sweep.
			return err
		}
		o.FaultMessage = faultMessage(err)
		return p.transitioner.TransitionLocked(ctx, o, orders.StateFailedAfterSuccessfulRequest)
	}

	p.logger.Info().Str("order_id", o.ID).Str("cloud_state", inst.CloudState).
		Msg("provider reachable again")
	switch {
	case inst.Failed:
		o.FaultMessage = "instance reported cloud state " + inst.CloudState
		return p.transitioner.TransitionLocked(ctx, o, orders.StateFailedAfterSuccessfulRequest)
	case inst.Paused:
		return p.transitioner.TransitionLocked(ctx, o, orders.StatePaused)
	case inst.Ready:
		return p.transitioner.TransitionLocked(ctx, o, orders.StateFulfilled)
	default:
		return p.transitioner.TransitionLocked(ctx, o, orders.StateSpawning)
	}
}
