// Package connectors provides the cloud dispatch abstraction: a single
// CloudConnector interface with a local implementation that talks to
// in-process cloud plugins and a remote implementation that forwards the
// same logical operations to a federation peer.
package connectors

import (
	"context"

	"github.com/fedbroker/fedbroker/pkg/orders"
	"github.com/fedbroker/fedbroker/pkg/plugins"
)

// CloudConnector routes an order's cloud operations to the member that can
// serve them. Implementations must keep the error taxonomy intact: an
// unreachable provider surfaces as an unavailable-provider error, distinct
// from a rejection, so processors can choose between
// UNABLE_TO_CHECK_STATUS and a failure state.
type CloudConnector interface {
	// RequestInstance asks the provider to create the resource and returns
	// the new instance id. It does not mutate the order.
	RequestInstance(ctx context.Context, o *orders.Order) (string, error)

	// GetInstance returns the live snapshot of the order's instance.
	GetInstance(ctx context.Context, o *orders.Order) (*plugins.Instance, error)

	// DeleteInstance removes the order's instance from the cloud.
	DeleteInstance(ctx context.Context, o *orders.Order) error

	// GetComputeQuota returns the compute quota for a user on a cloud.
	GetComputeQuota(ctx context.Context, cloud, user string) (*plugins.ComputeQuota, error)
}

// actorKey marks a context as carrying a user-attributable operation.
type actorKey struct{}

// WithActor marks ctx as acting on behalf of a user. The local connector
// writes an audit record for marked calls; processor-issued polls are
// unmarked system calls and produce no audit output.
func WithActor(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, actorKey{}, user)
}

// ActorFrom returns the acting user, if the context carries one.
func ActorFrom(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(actorKey{}).(string)
	return user, ok
}
