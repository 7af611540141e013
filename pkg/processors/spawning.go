package processors

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/fedbroker/fedbroker/pkg/connectors"
	"github.com/fedbroker/fedbroker/pkg/controller"
	"github.com/fedbroker/fedbroker/pkg/orders"
)

// SpawningProcessor polls the local cloud until a requested instance
// either becomes ready or fails. Only locally-provided orders belong
// here; a remotely-provided order in SPAWNING is a bug and is parked back
// in PENDING, the state remote orders are reconciled from.
type SpawningProcessor struct {
	localMember  string
	local        *connectors.LocalCloudConnector
	transitioner *controller.StateTransitioner
	logger       zerolog.Logger
}

// NewSpawningProcessor creates the SPAWNING reconciler.
func NewSpawningProcessor(
	localMember string,
	local *connectors.LocalCloudConnector,
	transitioner *controller.StateTransitioner,
	logger zerolog.Logger,
) *SpawningProcessor {
	return &SpawningProcessor{
		localMember:  localMember,
		local:        local,
		transitioner: transitioner,
		logger:       logger.With().Str("processor", "spawning").Logger(),
	}
}

// State implements Reconciler.
func (p *SpawningProcessor) State() orders.OrderState { return orders.StateSpawning }

// Process implements Reconciler.
func (p *SpawningProcessor) Process(ctx context.Context, o *orders.Order) error {
	o.Lock()
	defer o.Unlock()

	if o.State != orders.StateSpawning {
		return nil
	}
	if !o.IsProviderLocal(p.localMember) {
		p.logger.Error().Str("order_id", o.ID).Str("provider", o.Provider).
			Msg("remotely provided order found in SPAWNING; parking in PENDING")
		return p.transitioner.TransitionLocked(ctx, o, orders.StatePending)
	}

	inst, err := p.local.GetInstance(ctx, o)
	if err != nil {
		if orders.IsUnavailableProvider(err) {
			if terr := p.transitioner.TransitionLocked(ctx, o, orders.StateUnableToCheckStatus); terr != nil {
				return terr
			}
			return err
		}
		o.FaultMessage = faultMessage(err)
		return p.transitioner.TransitionLocked(ctx, o, orders.StateFailedAfterSuccessfulRequest)
	}

	switch {
	case inst.Failed:
		o.FaultMessage = "instance reported cloud state " + inst.CloudState
		return p.transitioner.TransitionLocked(ctx, o, orders.StateFailedAfterSuccessfulRequest)
	case inst.Ready:
		return p.transitioner.TransitionLocked(ctx, o, orders.StateFulfilled)
	default:
		// Still creating; check again next sweep.
		return nil
	}
}
