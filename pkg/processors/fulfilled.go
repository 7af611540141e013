package processors

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/fedbroker/fedbroker/pkg/connectors"
	"github.com/fedbroker/fedbroker/pkg/controller"
	"github.com/fedbroker/fedbroker/pkg/orders"
)

// FulfilledProcessor watches ready instances for failure. A fulfilled
// order stays fulfilled until the cloud reports the instance failed or
// gone, or the provider becomes unreachable. Remotely-provided orders are
// skipped: the provider member monitors them and reports changes over the
// federation channel.
type FulfilledProcessor struct {
	localMember  string
	local        *connectors.LocalCloudConnector
	transitioner *controller.StateTransitioner
	logger       zerolog.Logger
}

// NewFulfilledProcessor creates the FULFILLED reconciler.
func NewFulfilledProcessor(
	localMember string,
	local *connectors.LocalCloudConnector,
	transitioner *controller.StateTransitioner,
	logger zerolog.Logger,
) *FulfilledProcessor {
	return &FulfilledProcessor{
		localMember:  localMember,
		local:        local,
		transitioner: transitioner,
		logger:       logger.With().Str("processor", "fulfilled").Logger(),
	}
}

// State implements Reconciler.
func (p *FulfilledProcessor) State() orders.OrderState { return orders.StateFulfilled }

// Process implements Reconciler.
func (p *FulfilledProcessor) Process(ctx context.Context, o *orders.Order) error {
	o.Lock()
	defer o.Unlock()

	if o.State != orders.StateFulfilled {
		return nil
	}
	if !o.IsProviderLocal(p.localMember) {
		return nil
	}

	inst, err := p.local.GetInstance(ctx, o)
	if err != nil {
		if orders.IsUnavailableProvider(err) {
			if terr := p.transitioner.TransitionLocked(ctx, o, orders.StateUnableToCheckStatus); terr != nil {
				return terr
			}
			return err
		}
		// The instance vanished from under a ready order.
		o.FaultMessage = faultMessage(err)
		return p.transitioner.TransitionLocked(ctx, o, orders.StateFailedAfterSuccessfulRequest)
	}

	if inst.Failed {
		o.FaultMessage = "instance reported cloud state " + inst.CloudState
		return p.transitioner.TransitionLocked(ctx, o, orders.StateFailedAfterSuccessfulRequest)
	}
	return nil
}
