// Package federation defines the channel between federation members: the
// client used to forward order operations to a remote provider, the
// notification events a provider sends back to a requester, and the HTTP
// handler that accepts those notifications. The wire schema here is the
// broker's own JSON; the core only depends on the interfaces.
package federation

import (
	"context"

	"github.com/fedbroker/fedbroker/pkg/orders"
	"github.com/fedbroker/fedbroker/pkg/plugins"
)

// Event is a lifecycle notification sent from a provider member to the
// requester member of an order.
type Event string

const (
	// EventInstanceFulfilled means the provider-side instance is ready.
	EventInstanceFulfilled Event = "INSTANCE_FULFILLED"

	// EventInstanceFailed means the provider-side instance failed.
	EventInstanceFailed Event = "INSTANCE_FAILED"
)

// EventForState returns the notification event for a provider-side state
// change, or "" when the state carries no notification.
func EventForState(s orders.OrderState) Event {
	switch {
	case s == orders.StateFulfilled:
		return EventInstanceFulfilled
	case s.IsFailure():
		return EventInstanceFailed
	default:
		return ""
	}
}

// Notification is the payload a provider sends to the requester when a
// remotely-requested order reaches a notable state.
type Notification struct {
	OrderID    string `json:"order_id"`
	Event      Event  `json:"event"`
	InstanceID string `json:"instance_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Client forwards order operations to a remote federation member. Errors
// from an unreachable peer must be unavailable-provider errors so the
// processors can distinguish outage from rejection.
type Client interface {
	// RequestRemoteInstance forwards the creation request to the order's
	// provider and returns the remote instance id once assigned.
	RequestRemoteInstance(ctx context.Context, o *orders.Order) (string, error)

	// GetRemoteInstance fetches the live instance snapshot from the
	// order's provider.
	GetRemoteInstance(ctx context.Context, o *orders.Order) (*plugins.Instance, error)

	// DeleteRemoteInstance asks the order's provider to delete the
	// underlying instance.
	DeleteRemoteInstance(ctx context.Context, o *orders.Order) error

	// GetRemoteQuota fetches the compute quota from a remote member.
	GetRemoteQuota(ctx context.Context, member, cloud, user string) (*plugins.ComputeQuota, error)

	// Notify informs the order's requester of a provider-side event.
	// Sent strictly before the provider advances its local state.
	Notify(ctx context.Context, o *orders.Order, event Event) error
}

// MirrorDriver is implemented by the requester-side core: it drives the
// local mirror order's state when a provider notification arrives.
type MirrorDriver interface {
	HandleRemoteEvent(ctx context.Context, n Notification) error
}
