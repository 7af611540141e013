package processors

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/fedbroker/fedbroker/pkg/connectors"
	"github.com/fedbroker/fedbroker/pkg/controller"
	"github.com/fedbroker/fedbroker/pkg/orders"
)

// PausingProcessor polls compute instances for which a pause was requested
// until the cloud confirms the paused state.
type PausingProcessor struct {
	localMember  string
	local        *connectors.LocalCloudConnector
	transitioner *controller.StateTransitioner
	logger       zerolog.Logger
}

// NewPausingProcessor creates the PAUSING reconciler.
func NewPausingProcessor(
	localMember string,
	local *connectors.LocalCloudConnector,
	transitioner *controller.StateTransitioner,
	logger zerolog.Logger,
) *PausingProcessor {
	return &PausingProcessor{
		localMember:  localMember,
		local:        local,
		transitioner: transitioner,
		logger:       logger.With().Str("processor", "pausing").Logger(),
	}
}

// State implements Reconciler.
func (p *PausingProcessor) State() orders.OrderState { return orders.StatePausing }

// Process implements Reconciler.
func (p *PausingProcessor) Process(ctx context.Context, o *orders.Order) error {
	o.Lock()
	defer o.Unlock()

	if o.State != orders.StatePausing {
		return nil
	}
	if !o.IsProviderLocal(p.localMember) {
		p.logger.Error().Str("order_id", o.ID).Str("provider", o.Provider).
			Msg("remotely provided order found in PAUSING; parking in PENDING")
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
		if orders.IsNotFound(err) {
			o.FaultMessage = faultMessage(err)
			return p.transitioner.TransitionLocked(ctx, o, orders.StateFailedAfterSuccessfulRequest)
		}
		return err
	}

	switch {
	case inst.Failed:
		o.FaultMessage = "instance reported cloud state " + inst.CloudState
		return p.transitioner.TransitionLocked(ctx, o, orders.StateFailedAfterSuccessfulRequest)
	case inst.Paused:
		return p.transitioner.TransitionLocked(ctx, o, orders.StatePaused)
	default:
		// Pause not confirmed yet.
		return nil
	}
}
