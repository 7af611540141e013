package orders

import (
	"sync"
	"time"
)

// ResourceType identifies the kind of cloud resource an order requests.
type ResourceType string

const (
	TypeCompute    ResourceType = "compute"
	TypeNetwork    ResourceType = "network"
	TypeVolume     ResourceType = "volume"
	TypeAttachment ResourceType = "attachment"
	TypePublicIP   ResourceType = "public_ip"
)

// OrderState is a position in the order lifecycle state machine.
type OrderState string

const (
	// StateOpen is the initial state after activation; the order has not
	// yet been dispatched to a cloud.
	StateOpen OrderState = "OPEN"

	// StatePending marks an order whose provider is a remote member; the
	// remote peer reconciles it, the local member only mirrors it.
	StatePending OrderState = "PENDING"

	// StateSpawning means the cloud accepted the request and the instance
	// is being created.
	StateSpawning OrderState = "SPAWNING"

	// StateFulfilled means the instance is ready.
	StateFulfilled OrderState = "FULFILLED"

	// StatePausing means a pause was requested for a compute instance and
	// the cloud has not yet confirmed it.
	StatePausing OrderState = "PAUSING"

	// StatePaused means the compute instance is paused.
	StatePaused OrderState = "PAUSED"

	// StateFailedOnRequest means the cloud rejected the initial request;
	// no instance exists.
	StateFailedOnRequest OrderState = "FAILED_ON_REQUEST"

	// StateFailedAfterSuccessfulRequest means the instance was created but
	// later reported failed or vanished.
	StateFailedAfterSuccessfulRequest OrderState = "FAILED_AFTER_SUCCESSFUL_REQUEST"

	// StateUnableToCheckStatus means the provider is unreachable; the order
	// is retried indefinitely until connectivity returns.
	StateUnableToCheckStatus OrderState = "UNABLE_TO_CHECK_STATUS"

	// StateClosed means the order was deleted by the user and awaits
	// asynchronous finalization by the closed processor.
	StateClosed OrderState = "CLOSED"

	// StateDeactivated is the terminal pseudo-state: the order has been
	// removed from the repository. It has no state list.
	StateDeactivated OrderState = "DEACTIVATED"
)

// ActiveStates lists every state that has a repository list, i.e. every
// state an activated, not-yet-deactivated order can be in.
var ActiveStates = []OrderState{
	StateOpen,
	StatePending,
	StateSpawning,
	StateFulfilled,
	StatePausing,
	StatePaused,
	StateFailedOnRequest,
	StateFailedAfterSuccessfulRequest,
	StateUnableToCheckStatus,
	StateClosed,
}

// String returns the state name.
func (s OrderState) String() string { return string(s) }

// IsFailure reports whether s is one of the failure states.
func (s OrderState) IsFailure() bool {
	return s == StateFailedOnRequest || s == StateFailedAfterSuccessfulRequest
}

// ComputeSpec holds the type-specific fields of a compute order.
type ComputeSpec struct {
	Name     string `json:"name" yaml:"name"`
	VCPU     int    `json:"vcpu" yaml:"vcpu"`
	MemoryMB int    `json:"memory_mb" yaml:"memory_mb"`
	DiskGB   int    `json:"disk_gb" yaml:"disk_gb"`
	ImageID  string `json:"image_id" yaml:"image_id"`

	// NetworkOrderIDs reference network orders this compute depends on.
	// The local connector substitutes their instance ids before calling
	// the compute plugin.
	NetworkOrderIDs []string `json:"network_order_ids,omitempty" yaml:"network_order_ids,omitempty"`
}

// VolumeSpec holds the type-specific fields of a volume order.
type VolumeSpec struct {
	Name   string `json:"name" yaml:"name"`
	SizeGB int    `json:"size_gb" yaml:"size_gb"`
}

// NetworkSpec holds the type-specific fields of a network order.
type NetworkSpec struct {
	Name string `json:"name" yaml:"name"`
	CIDR string `json:"cidr" yaml:"cidr"`
}

// AttachmentSpec holds the type-specific fields of an attachment order.
// ComputeOrderID and VolumeOrderID are order ids at rest; the local
// connector swaps in the concrete instance ids for the plugin call.
type AttachmentSpec struct {
	ComputeOrderID string `json:"compute_order_id" yaml:"compute_order_id"`
	VolumeOrderID  string `json:"volume_order_id" yaml:"volume_order_id"`
	Device         string `json:"device,omitempty" yaml:"device,omitempty"`
}

// PublicIPSpec holds the type-specific fields of a public-ip order.
type PublicIPSpec struct {
	ComputeOrderID string `json:"compute_order_id" yaml:"compute_order_id"`
}

// Order is the unit of work tracked by the broker: one request for one
// cloud resource. Identity fields are immutable after activation; State,
// InstanceID and FaultMessage are guarded by the order's own mutex.
//
// Any read-modify-move sequence spanning the state field and the state
// lists must run under Lock/Unlock; the lists themselves only synchronize
// single operations.
type Order struct {
	mu sync.Mutex

	// ID is the opaque unique identifier, assigned at activation and
	// stable for the order's lifetime.
	ID string `json:"id"`

	// Type is the requested resource type.
	Type ResourceType `json:"type"`

	// State is the current lifecycle state. Guarded by the order mutex.
	State OrderState `json:"state"`

	// Requester is the federation member that accepted the request.
	Requester string `json:"requester"`

	// Provider is the federation member responsible for provisioning.
	// Equal to Requester for purely local orders.
	Provider string `json:"provider"`

	// CloudName is the target cloud within the provider member.
	CloudName string `json:"cloud_name"`

	// RequestingUser is the identity the request was made on behalf of.
	RequestingUser string `json:"requesting_user"`

	// InstanceID is the concrete cloud resource id, set once the provider
	// has created it and cleared on deletion. Guarded by the order mutex.
	InstanceID string `json:"instance_id,omitempty"`

	// FaultMessage is the last observed provider-side error. Informational
	// only; it never drives control flow.
	FaultMessage string `json:"fault_message,omitempty"`

	// CreatedAt is when the order was activated.
	CreatedAt time.Time `json:"created_at"`

	// Exactly one of the following is non-nil, matching Type.
	Compute    *ComputeSpec    `json:"compute,omitempty"`
	Volume     *VolumeSpec     `json:"volume,omitempty"`
	Network    *NetworkSpec    `json:"network,omitempty"`
	Attachment *AttachmentSpec `json:"attachment,omitempty"`
	PublicIP   *PublicIPSpec   `json:"public_ip,omitempty"`
}

// Lock acquires the order's exclusive lock.
func (o *Order) Lock() { o.mu.Lock() }

// Unlock releases the order's exclusive lock.
func (o *Order) Unlock() { o.mu.Unlock() }

// IsProviderLocal reports whether member is responsible for provisioning
// this order.
func (o *Order) IsProviderLocal(member string) bool { return o.Provider == member }

// IsRequesterLocal reports whether member originally accepted this order.
func (o *Order) IsRequesterLocal(member string) bool { return o.Requester == member }

// DependencyIDs returns the ids of the orders this order references, in a
// fixed per-type ordering. Non-composite types return nil.
func (o *Order) DependencyIDs() []string {
	switch o.Type {
	case TypeCompute:
		if o.Compute == nil {
			return nil
		}
		return append([]string(nil), o.Compute.NetworkOrderIDs...)
	case TypeAttachment:
		if o.Attachment == nil {
			return nil
		}
		return []string{o.Attachment.ComputeOrderID, o.Attachment.VolumeOrderID}
	case TypePublicIP:
		if o.PublicIP == nil {
			return nil
		}
		return []string{o.PublicIP.ComputeOrderID}
	default:
		return nil
	}
}

// InstanceStateLabel is the coarse, user-facing label derived purely from
// an order's lifecycle state. No cloud call is involved.
type InstanceStateLabel string

const (
	InstanceDispatched InstanceStateLabel = "dispatched"
	InstanceCreating   InstanceStateLabel = "creating"
	InstanceReady      InstanceStateLabel = "ready"
	InstanceBusy       InstanceStateLabel = "busy"
	InstancePaused     InstanceStateLabel = "paused"
	InstanceFailed     InstanceStateLabel = "failed"
	InstanceUnknown    InstanceStateLabel = "unknown"
)

// InstanceStateFor maps a lifecycle state to its coarse instance label.
// Closed orders have no label; they are invisible pending finalization.
func InstanceStateFor(s OrderState) InstanceStateLabel {
	switch s {
	case StateOpen, StatePending:
		return InstanceDispatched
	case StateSpawning:
		return InstanceCreating
	case StateFulfilled:
		return InstanceReady
	case StatePausing:
		return InstanceBusy
	case StatePaused:
		return InstancePaused
	case StateFailedOnRequest, StateFailedAfterSuccessfulRequest:
		return InstanceFailed
	default:
		return InstanceUnknown
	}
}
