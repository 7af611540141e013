package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/fedbroker/fedbroker/pkg/orders"
	"github.com/fedbroker/fedbroker/pkg/plugins"
)

// HTTPClient implements Client over HTTP JSON. Each peer member is
// addressed by the base endpoint configured for its member id.
type HTTPClient struct {
	// endpoints maps member id to the peer's base URL.
	endpoints map[string]string

	client *http.Client
	logger zerolog.Logger
}

// NewHTTPClient creates a federation client for the given member-id to
// endpoint table.
func NewHTTPClient(endpoints map[string]string, timeout time.Duration, logger zerolog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	eps := make(map[string]string, len(endpoints))
	for member, url := range endpoints {
		eps[member] = url
	}
	return &HTTPClient{
		endpoints: eps,
		client:    &http.Client{Timeout: timeout},
		logger:    logger.With().Str("component", "federation_client").Logger(),
	}
}

// remoteOrderRequest is the creation payload forwarded to a provider.
type remoteOrderRequest struct {
	Order *orders.Order `json:"order"`
}

type remoteInstanceResponse struct {
	InstanceID string            `json:"instance_id,omitempty"`
	Instance   *plugins.Instance `json:"instance,omitempty"`
}

// RequestRemoteInstance implements Client.
func (c *HTTPClient) RequestRemoteInstance(ctx context.Context, o *orders.Order) (string, error) {
	var resp remoteInstanceResponse
	err := c.call(ctx, o.Provider, http.MethodPost, "/federation/orders",
		remoteOrderRequest{Order: o}, &resp)
	if err != nil {
		return "", err
	}
	return resp.InstanceID, nil
}

// GetRemoteInstance implements Client.
func (c *HTTPClient) GetRemoteInstance(ctx context.Context, o *orders.Order) (*plugins.Instance, error) {
	var resp remoteInstanceResponse
	path := fmt.Sprintf("/federation/orders/%s/instance", o.ID)
	if err := c.call(ctx, o.Provider, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Instance == nil {
		return nil, orders.NewNotFoundError("order %s has no instance at provider %s", o.ID, o.Provider)
	}
	return resp.Instance, nil
}

// DeleteRemoteInstance implements Client.
func (c *HTTPClient) DeleteRemoteInstance(ctx context.Context, o *orders.Order) error {
	path := fmt.Sprintf("/federation/orders/%s", o.ID)
	return c.call(ctx, o.Provider, http.MethodDelete, path, nil, nil)
}

// GetRemoteQuota implements Client.
func (c *HTTPClient) GetRemoteQuota(ctx context.Context, member, cloud, user string) (*plugins.ComputeQuota, error) {
	var quota plugins.ComputeQuota
	path := fmt.Sprintf("/federation/quotas/%s?user=%s", cloud, user)
	if err := c.call(ctx, member, http.MethodGet, path, nil, &quota); err != nil {
		return nil, err
	}
	return &quota, nil
}

// Notify implements Client.
func (c *HTTPClient) Notify(ctx context.Context, o *orders.Order, event Event) error {
	n := Notification{
		OrderID:    o.ID,
		Event:      event,
		InstanceID: o.InstanceID,
		Message:    o.FaultMessage,
	}
	return c.call(ctx, o.Requester, http.MethodPost, "/federation/notifications", n, nil)
}

// call performs one HTTP round trip to a peer. Transport failures and 5xx
// responses surface as unavailable-provider errors; 404 as not-found; any
// other non-2xx as a provider failure.
func (c *HTTPClient) call(ctx context.Context, member, method, path string, body, out interface{}) error {
	base, exists := c.endpoints[member]
	if !exists {
		return orders.NewUnexpectedError("no federation endpoint configured for member %s", member)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return orders.NewUnexpectedError("failed to encode federation payload: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, reader)
	if err != nil {
		return orders.NewUnexpectedError("failed to build federation request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return orders.NewUnavailableProviderError("member %s is unreachable: %v", member, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusNotFound:
		return orders.NewNotFoundError("member %s: %s %s not found", member, method, path)
	case resp.StatusCode >= 500:
		return orders.NewUnavailableProviderError(
			"member %s returned status %d", member, resp.StatusCode)
	default:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return orders.NewProviderFailureError(
			"member %s rejected %s %s: status %d: %s", member, method, path, resp.StatusCode, payload)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return orders.NewProviderFailureError(
				"member %s returned an undecodable response: %v", member, err)
		}
	}
	return nil
}
