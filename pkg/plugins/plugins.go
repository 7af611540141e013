package plugins

import (
	"context"

	"github.com/fedbroker/fedbroker/pkg/orders"
)

// Instance is the live snapshot of a cloud resource, as reported by the
// cloud. Processors branch on the Ready/Failed/Paused predicates only; the
// raw CloudState is informational.
type Instance struct {
	// ID is the cloud-assigned resource id.
	ID string `json:"id"`

	// CloudState is the raw state string reported by the cloud.
	CloudState string `json:"cloud_state,omitempty"`

	// Ready means the resource is usable.
	Ready bool `json:"ready"`

	// Failed means the cloud reports the resource as definitively failed.
	Failed bool `json:"failed"`

	// Paused means a compute resource is paused.
	Paused bool `json:"paused"`

	// Attributes carries cloud-specific details (addresses, device paths).
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Credential is a cloud-scoped credential resolved from a federation user.
type Credential struct {
	ProjectID string `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	Username  string `json:"username,omitempty" yaml:"username,omitempty"`
	Token     string `json:"token,omitempty" yaml:"token,omitempty"`
}

// CredentialMapper maps a federation user identity to a cloud credential.
type CredentialMapper interface {
	Map(requestingUser string) (Credential, error)
}

// Plugin is the operation set every cloud adapter implements for one
// resource type. Implementations must signal a missing instance with a
// not-found error, distinct from transient unavailability
// (unavailable-provider error); any other error is a provider failure.
type Plugin interface {
	// RequestInstance asks the cloud to create the resource the order
	// describes and returns the new instance id.
	RequestInstance(ctx context.Context, o *orders.Order, cred Credential) (string, error)

	// GetInstance returns the live snapshot of an existing instance.
	GetInstance(ctx context.Context, instanceID string, cred Credential) (*Instance, error)

	// DeleteInstance removes the instance from the cloud.
	DeleteInstance(ctx context.Context, instanceID string, cred Credential) error
}

// ComputeQuota is the compute capacity view reported by a cloud.
type ComputeQuota struct {
	MaxInstances  int `json:"max_instances"`
	MaxVCPU       int `json:"max_vcpu"`
	MaxMemoryMB   int `json:"max_memory_mb"`
	UsedInstances int `json:"used_instances"`
	UsedVCPU      int `json:"used_vcpu"`
	UsedMemoryMB  int `json:"used_memory_mb"`
}

// ComputePlugin extends Plugin with compute-only operations.
type ComputePlugin interface {
	Plugin

	// PauseInstance asks the cloud to pause a running compute instance.
	// The pausing processor polls until the instance reports paused.
	PauseInstance(ctx context.Context, instanceID string, cred Credential) error

	// GetQuota returns the cloud's compute quota for the credential.
	GetQuota(ctx context.Context, cred Credential) (*ComputeQuota, error)
}

// StaticCredentialMapper resolves credentials from a fixed user table with
// an optional default. Backed by broker configuration.
type StaticCredentialMapper struct {
	// Users maps a federation user id to its cloud credential.
	Users map[string]Credential

	// Default is used for users absent from the table. When nil, unknown
	// users fail the mapping.
	Default *Credential
}

// Map implements CredentialMapper.
func (m *StaticCredentialMapper) Map(requestingUser string) (Credential, error) {
	if cred, ok := m.Users[requestingUser]; ok {
		return cred, nil
	}
	if m.Default != nil {
		return *m.Default, nil
	}
	return Credential{}, orders.NewUnexpectedError(
		"no cloud credential mapped for user %s", requestingUser)
}
