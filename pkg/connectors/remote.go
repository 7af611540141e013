package connectors

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fedbroker/fedbroker/pkg/federation"
	"github.com/fedbroker/fedbroker/pkg/orders"
	"github.com/fedbroker/fedbroker/pkg/plugins"
	"github.com/fedbroker/fedbroker/pkg/telemetry"
)

// RemoteCloudConnector serves orders whose provider is a remote federation
// member by forwarding each operation over the federation channel.
type RemoteCloudConnector struct {
	member  string
	client  federation.Client
	logger  zerolog.Logger
	metrics *telemetry.Metrics
}

// NewRemoteCloudConnector creates a connector addressed at the given
// provider member.
func NewRemoteCloudConnector(
	member string,
	client federation.Client,
	logger zerolog.Logger,
	metrics *telemetry.Metrics,
) *RemoteCloudConnector {
	return &RemoteCloudConnector{
		member:  member,
		client:  client,
		logger:  logger.With().Str("component", "remote_connector").Str("member", member).Logger(),
		metrics: metrics,
	}
}

// RequestInstance implements CloudConnector.
func (c *RemoteCloudConnector) RequestInstance(ctx context.Context, o *orders.Order) (instanceID string, err error) {
	defer c.observe("request_instance", time.Now(), &err)
	return c.client.RequestRemoteInstance(ctx, o)
}

// GetInstance implements CloudConnector.
func (c *RemoteCloudConnector) GetInstance(ctx context.Context, o *orders.Order) (inst *plugins.Instance, err error) {
	defer c.observe("get_instance", time.Now(), &err)
	return c.client.GetRemoteInstance(ctx, o)
}

// DeleteInstance implements CloudConnector.
func (c *RemoteCloudConnector) DeleteInstance(ctx context.Context, o *orders.Order) (err error) {
	defer c.observe("delete_instance", time.Now(), &err)
	return c.client.DeleteRemoteInstance(ctx, o)
}

// GetComputeQuota implements CloudConnector.
func (c *RemoteCloudConnector) GetComputeQuota(ctx context.Context, cloud, user string) (quota *plugins.ComputeQuota, err error) {
	defer c.observe("get_compute_quota", time.Now(), &err)
	return c.client.GetRemoteQuota(ctx, c.member, cloud, user)
}

func (c *RemoteCloudConnector) observe(operation string, start time.Time, err *error) {
	c.metrics.ConnectorCall(operation, "remote", time.Since(start))
	if *err != nil {
		c.metrics.ConnectorError(operation, string(orders.KindOf(*err)))
	}
}
