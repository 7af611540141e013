package controller

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/fedbroker/fedbroker/pkg/federation"
	"github.com/fedbroker/fedbroker/pkg/orders"
	"github.com/fedbroker/fedbroker/pkg/telemetry"
)

// OrderStore is the durable-store surface the core needs. Persistence is
// opportunistic: failures are logged, never propagated, and the in-memory
// repository stays authoritative.
type OrderStore interface {
	SaveOrder(ctx context.Context, o *orders.Order) error
	DeleteOrder(ctx context.Context, id string) error
}

// StateTransitioner is the only code path allowed to move an order between
// state lists. For locally-provided orders requested by a remote member it
// notifies the requester before advancing the local state, so the peer's
// view is never behind the provider's.
type StateTransitioner struct {
	localMember string
	repo        *orders.Repository
	client      federation.Client
	store       OrderStore
	logger      zerolog.Logger
	metrics     *telemetry.Metrics
}

// NewStateTransitioner creates a transitioner. client may be nil when the
// broker has no federation peers; store may be nil to disable persistence.
func NewStateTransitioner(
	localMember string,
	repo *orders.Repository,
	client federation.Client,
	store OrderStore,
	logger zerolog.Logger,
	metrics *telemetry.Metrics,
) *StateTransitioner {
	return &StateTransitioner{
		localMember: localMember,
		repo:        repo,
		client:      client,
		store:       store,
		logger:      logger.With().Str("component", "transitioner").Logger(),
		metrics:     metrics,
	}
}

// Activate inserts a fresh order into the repository and the OPEN list.
// The order's id must not already be active.
func (t *StateTransitioner) Activate(ctx context.Context, o *orders.Order) error {
	if o == nil {
		return orders.NewUnexpectedError("cannot activate a nil order")
	}
	o.Lock()
	defer o.Unlock()

	openList, err := t.repo.ListFor(orders.StateOpen)
	if err != nil {
		return err
	}
	if err := t.repo.Put(o); err != nil {
		return err
	}
	o.State = orders.StateOpen
	if err := openList.Add(o); err != nil {
		// Roll the map insert back so a failed activation leaves no trace.
		_ = t.repo.Remove(o.ID)
		return err
	}

	t.metrics.OrderActivated(string(orders.StateOpen))
	t.persist(ctx, o)
	t.logger.Info().
		Str("order_id", o.ID).
		Str("type", string(o.Type)).
		Str("provider", o.Provider).
		Msg("order activated")
	return nil
}

// Deactivate removes a CLOSED order from the repository entirely.
// Deactivation is terminal and irreversible.
func (t *StateTransitioner) Deactivate(ctx context.Context, o *orders.Order) error {
	if o == nil {
		return orders.NewUnexpectedError("cannot deactivate a nil order")
	}
	o.Lock()
	defer o.Unlock()
	return t.DeactivateLocked(ctx, o)
}

// DeactivateLocked is Deactivate for callers already holding the order's
// lock.
func (t *StateTransitioner) DeactivateLocked(ctx context.Context, o *orders.Order) error {
	if o.State != orders.StateClosed {
		return orders.NewUnexpectedError(
			"cannot deactivate order %s in state %s", o.ID, o.State)
	}
	closedList, err := t.repo.ListFor(orders.StateClosed)
	if err != nil {
		return err
	}
	closedList.Remove(o)
	if err := t.repo.Remove(o.ID); err != nil {
		return err
	}
	o.State = orders.StateDeactivated

	t.metrics.OrderDeactivated(string(orders.StateClosed))
	if t.store != nil {
		if err := t.store.DeleteOrder(ctx, o.ID); err != nil {
			t.logger.Warn().Err(err).Str("order_id", o.ID).Msg("failed to delete order from store")
		}
	}
	t.logger.Info().Str("order_id", o.ID).Msg("order deactivated")
	return nil
}

// Transition moves the order to newState under the order's lock.
func (t *StateTransitioner) Transition(ctx context.Context, o *orders.Order, newState orders.OrderState) error {
	if o == nil {
		return orders.NewUnexpectedError("cannot transition a nil order")
	}
	o.Lock()
	defer o.Unlock()
	return t.TransitionLocked(ctx, o, newState)
}

// TransitionLocked is Transition for callers already holding the order's
// lock.
//
// When this member is the provider acting for a remote requester and
// newState is notable to the requester (fulfilled or a failure), the
// requester is notified first. A failed notification leaves the order in
// its current state: the owning processor reaches the same conclusion on
// its next sweep and retries the notification, so the peer never misses a
// state it was not told about.
func (t *StateTransitioner) TransitionLocked(ctx context.Context, o *orders.Order, newState orders.OrderState) error {
	if o == nil {
		return orders.NewUnexpectedError("cannot transition a nil order")
	}

	if !o.IsRequesterLocal(t.localMember) {
		if event := federation.EventForState(newState); event != "" {
			if err := t.notifyRequester(ctx, o, event); err != nil {
				t.logger.Warn().Err(err).
					Str("order_id", o.ID).
					Str("requester", o.Requester).
					Str("target_state", string(newState)).
					Msg("requester notification failed; keeping current state")
				return nil
			}
		}
	}

	return t.doTransition(ctx, o, newState)
}

// notifyRequester sends the event over the federation channel.
func (t *StateTransitioner) notifyRequester(ctx context.Context, o *orders.Order, event federation.Event) error {
	if t.client == nil {
		return orders.NewUnexpectedError("no federation client configured for member %s", o.Requester)
	}
	err := t.client.Notify(ctx, o, event)
	t.metrics.NotificationRecorded(string(event), err == nil)
	return err
}

// doTransition performs the list move. It is idempotent under races: when
// another thread already applied the same transition, or already removed
// the order from its origin list, the call is a no-op.
func (t *StateTransitioner) doTransition(ctx context.Context, o *orders.Order, newState orders.OrderState) error {
	if o.State == newState {
		return nil
	}

	origin, err := t.repo.ListFor(o.State)
	if err != nil {
		return err
	}
	dest, err := t.repo.ListFor(newState)
	if err != nil {
		return err
	}

	if !origin.Remove(o) {
		// A racing thread already moved the order.
		return nil
	}
	if err := dest.Add(o); err != nil {
		return err
	}

	from := o.State
	o.State = newState
	t.metrics.TransitionRecorded(string(from), string(newState))
	t.persist(ctx, o)
	t.logger.Debug().
		Str("order_id", o.ID).
		Str("from", string(from)).
		Str("to", string(newState)).
		Msg("order transitioned")
	return nil
}

// persist writes the order to the durable store, fire-and-forget.
func (t *StateTransitioner) persist(ctx context.Context, o *orders.Order) {
	if t.store == nil {
		return
	}
	if err := t.store.SaveOrder(ctx, o); err != nil {
		t.logger.Warn().Err(err).Str("order_id", o.ID).Msg("failed to persist order")
	}
}
