package connectors

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fedbroker/fedbroker/pkg/orders"
	"github.com/fedbroker/fedbroker/pkg/plugins"
	"github.com/fedbroker/fedbroker/pkg/telemetry"
)

// LocalCloudConnector serves orders whose provider is the local member. It
// resolves the per-resource-type plugin for the order's cloud, maps the
// requesting user to a cloud credential, and substitutes referenced orders'
// instance ids into composite orders before the plugin call.
type LocalCloudConnector struct {
	repo     *orders.Repository
	registry *plugins.Registry
	mapper   plugins.CredentialMapper
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
}

// NewLocalCloudConnector creates a local connector.
func NewLocalCloudConnector(
	repo *orders.Repository,
	registry *plugins.Registry,
	mapper plugins.CredentialMapper,
	logger zerolog.Logger,
	metrics *telemetry.Metrics,
) *LocalCloudConnector {
	return &LocalCloudConnector{
		repo:     repo,
		registry: registry,
		mapper:   mapper,
		logger:   logger.With().Str("component", "local_connector").Logger(),
		metrics:  metrics,
	}
}

// RequestInstance implements CloudConnector. The caller holds the order's
// lock for the duration of the call.
func (c *LocalCloudConnector) RequestInstance(ctx context.Context, o *orders.Order) (instanceID string, err error) {
	defer c.observe(ctx, "request_instance", o, time.Now(), &err)

	plugin, cred, err := c.resolve(o)
	if err != nil {
		return "", err
	}

	restore, err := c.substituteDependencies(o)
	if err != nil {
		return "", err
	}
	defer restore()

	return plugin.RequestInstance(ctx, o, cred)
}

// GetInstance implements CloudConnector.
func (c *LocalCloudConnector) GetInstance(ctx context.Context, o *orders.Order) (inst *plugins.Instance, err error) {
	defer c.observe(ctx, "get_instance", o, time.Now(), &err)

	if o.InstanceID == "" {
		return nil, orders.NewNotFoundError("order %s has no instance", o.ID)
	}
	plugin, cred, err := c.resolve(o)
	if err != nil {
		return nil, err
	}
	return plugin.GetInstance(ctx, o.InstanceID, cred)
}

// DeleteInstance implements CloudConnector.
func (c *LocalCloudConnector) DeleteInstance(ctx context.Context, o *orders.Order) (err error) {
	defer c.observe(ctx, "delete_instance", o, time.Now(), &err)

	if o.InstanceID == "" {
		return orders.NewNotFoundError("order %s has no instance", o.ID)
	}
	plugin, cred, err := c.resolve(o)
	if err != nil {
		return err
	}
	return plugin.DeleteInstance(ctx, o.InstanceID, cred)
}

// PauseInstance asks the compute plugin to pause the order's instance.
func (c *LocalCloudConnector) PauseInstance(ctx context.Context, o *orders.Order) (err error) {
	defer c.observe(ctx, "pause_instance", o, time.Now(), &err)

	if o.Type != orders.TypeCompute {
		return orders.NewUnexpectedError("cannot pause order %s of type %s", o.ID, o.Type)
	}
	if o.InstanceID == "" {
		return orders.NewNotFoundError("order %s has no instance", o.ID)
	}
	plugin, err := c.registry.GetCompute(o.CloudName)
	if err != nil {
		return err
	}
	cred, err := c.mapper.Map(o.RequestingUser)
	if err != nil {
		return err
	}
	return plugin.PauseInstance(ctx, o.InstanceID, cred)
}

// GetComputeQuota implements CloudConnector.
func (c *LocalCloudConnector) GetComputeQuota(ctx context.Context, cloud, user string) (*plugins.ComputeQuota, error) {
	plugin, err := c.registry.GetCompute(cloud)
	if err != nil {
		return nil, err
	}
	cred, err := c.mapper.Map(user)
	if err != nil {
		return nil, err
	}
	return plugin.GetQuota(ctx, cred)
}

// resolve looks up the plugin and credential for an order.
func (c *LocalCloudConnector) resolve(o *orders.Order) (plugins.Plugin, plugins.Credential, error) {
	plugin, err := c.registry.Get(o.CloudName, o.Type)
	if err != nil {
		return nil, plugins.Credential{}, err
	}
	cred, err := c.mapper.Map(o.RequestingUser)
	if err != nil {
		return nil, plugins.Credential{}, err
	}
	return plugin, cred, nil
}

// substituteDependencies swaps referenced order ids for their concrete
// instance ids in the order's type-specific fields and returns the restore
// function. The restore must run even when the plugin call fails, so the
// order's stored spec always holds order ids.
func (c *LocalCloudConnector) substituteDependencies(o *orders.Order) (func(), error) {
	noop := func() {}
	switch o.Type {
	case orders.TypeCompute:
		if o.Compute == nil || len(o.Compute.NetworkOrderIDs) == 0 {
			return noop, nil
		}
		original := o.Compute.NetworkOrderIDs
		substituted := make([]string, len(original))
		for i, id := range original {
			instanceID, err := c.instanceIDOf(id)
			if err != nil {
				return noop, err
			}
			substituted[i] = instanceID
		}
		o.Compute.NetworkOrderIDs = substituted
		return func() { o.Compute.NetworkOrderIDs = original }, nil

	case orders.TypeAttachment:
		if o.Attachment == nil {
			return noop, orders.NewUnexpectedError("attachment order %s has no spec", o.ID)
		}
		originalCompute := o.Attachment.ComputeOrderID
		originalVolume := o.Attachment.VolumeOrderID
		computeInstance, err := c.instanceIDOf(originalCompute)
		if err != nil {
			return noop, err
		}
		volumeInstance, err := c.instanceIDOf(originalVolume)
		if err != nil {
			return noop, err
		}
		o.Attachment.ComputeOrderID = computeInstance
		o.Attachment.VolumeOrderID = volumeInstance
		return func() {
			o.Attachment.ComputeOrderID = originalCompute
			o.Attachment.VolumeOrderID = originalVolume
		}, nil

	case orders.TypePublicIP:
		if o.PublicIP == nil {
			return noop, orders.NewUnexpectedError("public-ip order %s has no spec", o.ID)
		}
		original := o.PublicIP.ComputeOrderID
		computeInstance, err := c.instanceIDOf(original)
		if err != nil {
			return noop, err
		}
		o.PublicIP.ComputeOrderID = computeInstance
		return func() { o.PublicIP.ComputeOrderID = original }, nil

	default:
		return noop, nil
	}
}

// instanceIDOf resolves a referenced order's concrete instance id.
func (c *LocalCloudConnector) instanceIDOf(orderID string) (string, error) {
	dep, err := c.repo.Get(orderID)
	if err != nil {
		return "", err
	}
	dep.Lock()
	defer dep.Unlock()
	if dep.InstanceID == "" {
		return "", orders.NewInvalidParameterError(
			"referenced order %s has no instance yet", orderID)
	}
	return dep.InstanceID, nil
}

// observe records metrics and, for user-attributable calls, an audit line.
func (c *LocalCloudConnector) observe(ctx context.Context, operation string, o *orders.Order, start time.Time, err *error) {
	c.metrics.ConnectorCall(operation, "local", time.Since(start))
	if *err != nil {
		c.metrics.ConnectorError(operation, string(orders.KindOf(*err)))
	}
	if actor, ok := ActorFrom(ctx); ok {
		c.logger.Info().
			Str("audit_actor", actor).
			Str("operation", operation).
			Str("order_id", o.ID).
			Str("cloud", o.CloudName).
			Bool("success", *err == nil).
			Msg("cloud operation")
	}
}
