// Package processors implements the background reconciliation loops that
// drive orders through the lifecycle state machine. One long-lived runner
// per transient state sweeps that state's list, inspects one order per
// iteration under the order's lock, and sleeps when the list is exhausted.
// No failure of an individual order ever stops a sweep; only context
// cancellation ends a runner.
package processors

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/fedbroker/fedbroker/pkg/orders"
	"github.com/fedbroker/fedbroker/pkg/telemetry"
)

// Reconciler inspects and advances one order of its state.
type Reconciler interface {
	// State is the lifecycle state this reconciler owns.
	State() orders.OrderState

	// Process handles one order. Implementations acquire the order's lock,
	// re-check the state, and perform at most one transition. A returned
	// error is logged by the runner and never stops the sweep.
	Process(ctx context.Context, o *orders.Order) error
}

// Runner drives one reconciler's sweep loop over its state list.
type Runner struct {
	rec      Reconciler
	repo     *orders.Repository
	interval time.Duration
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
}

// NewRunner creates a runner sweeping at the given interval.
func NewRunner(
	rec Reconciler,
	repo *orders.Repository,
	interval time.Duration,
	logger zerolog.Logger,
	metrics *telemetry.Metrics,
) *Runner {
	return &Runner{
		rec:      rec,
		repo:     repo,
		interval: interval,
		logger: logger.With().
			Str("component", "processor").
			Str("state", string(rec.State())).
			Logger(),
		metrics: metrics,
	}
}

// Run sweeps until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	list, err := r.repo.ListFor(r.rec.State())
	if err != nil {
		r.logger.Error().Err(err).Msg("processor has no state list; not starting")
		return
	}

	r.logger.Info().Dur("interval", r.interval).Msg("processor started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("processor stopped")
			return
		default:
		}

		o := list.Next()
		if o == nil {
			r.metrics.SweepCompleted(string(r.rec.State()))
			list.ResetCursor()
			if !sleep(ctx, r.interval) {
				r.logger.Info().Msg("processor stopped")
				return
			}
			continue
		}
		r.processOne(ctx, o)
	}
}

// processOne shields the sweep from any failure of a single order.
func (r *Runner) processOne(ctx context.Context, o *orders.Order) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Interface("panic", rec).
				Str("order_id", o.ID).
				Bytes("stack", debug.Stack()).
				Msg("processor panicked on order")
		}
	}()

	if err := r.rec.Process(ctx, o); err != nil {
		if orders.IsUnavailableProvider(err) {
			r.logger.Warn().Err(err).Str("order_id", o.ID).Msg("provider unavailable")
			return
		}
		r.logger.Error().Err(err).Str("order_id", o.ID).Msg("failed to process order")
	}
}

// sleep blocks for d or until ctx is cancelled; it reports whether the
// runner should keep going.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// faultMessage extracts the human-readable detail recorded on the order
// when a provider-side error drives a failure transition.
func faultMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
