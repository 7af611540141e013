package federation

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/fedbroker/fedbroker/pkg/orders"
	"github.com/fedbroker/fedbroker/pkg/plugins"
)

// ProviderDriver is the provider-side surface the federation endpoints
// call into. The order controller satisfies it.
type ProviderDriver interface {
	Activate(ctx context.Context, o *orders.Order) error
	Get(id string) (*orders.Order, error)
	Delete(ctx context.Context, o *orders.Order) error
	GetInstance(ctx context.Context, o *orders.Order) (*plugins.Instance, error)
	GetUserQuota(ctx context.Context, providerID, cloud, user string) (*plugins.ComputeQuota, error)
}

// ProviderHandler serves the provider side of the federation channel: the
// endpoints a requester member's HTTP client calls to create, inspect, and
// delete orders it placed here.
type ProviderHandler struct {
	localMember string
	driver      ProviderDriver
	logger      zerolog.Logger
}

// NewProviderHandler creates the handler for the given local member.
func NewProviderHandler(localMember string, driver ProviderDriver, logger zerolog.Logger) *ProviderHandler {
	return &ProviderHandler{
		localMember: localMember,
		driver:      driver,
		logger:      logger.With().Str("component", "federation_provider").Logger(),
	}
}

// Register mounts the provider endpoints on mux.
func (h *ProviderHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /federation/orders", h.createOrder)
	mux.HandleFunc("GET /federation/orders/{id}/instance", h.getInstance)
	mux.HandleFunc("DELETE /federation/orders/{id}", h.deleteOrder)
	mux.HandleFunc("GET /federation/quotas/{cloud}", h.getQuota)
}

func (h *ProviderHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req remoteOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Order == nil {
		http.Error(w, "undecodable order", http.StatusBadRequest)
		return
	}

	o := req.Order
	if o.Provider != h.localMember {
		http.Error(w, "order is not addressed at this member", http.StatusBadRequest)
		return
	}
	// The forwarded copy restarts its lifecycle here.
	o.State = ""
	o.InstanceID = ""

	if err := h.driver.Activate(r.Context(), o); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info().
		Str("order_id", o.ID).
		Str("requester", o.Requester).
		Str("type", string(o.Type)).
		Msg("accepted remote order")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(remoteInstanceResponse{InstanceID: o.InstanceID})
}

func (h *ProviderHandler) getInstance(w http.ResponseWriter, r *http.Request) {
	o, err := h.driver.Get(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	inst, err := h.driver.GetInstance(r.Context(), o)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(remoteInstanceResponse{InstanceID: inst.ID, Instance: inst})
}

func (h *ProviderHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.driver.Get(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.driver.Delete(r.Context(), o); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProviderHandler) getQuota(w http.ResponseWriter, r *http.Request) {
	cloud := r.PathValue("cloud")
	user := r.URL.Query().Get("user")
	quota, err := h.driver.GetUserQuota(r.Context(), h.localMember, cloud, user)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(quota)
}

// writeError maps the error taxonomy onto HTTP statuses mirroring the
// client-side mapping: 404 not found, 400 caller mistakes, 503 when this
// member's own cloud is unreachable, 500 otherwise.
func (h *ProviderHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case orders.IsNotFound(err):
		status = http.StatusNotFound
	case orders.IsInvalidParameter(err), orders.IsDependencyDetected(err):
		status = http.StatusBadRequest
	case orders.IsUnavailableProvider(err):
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("federation request failed")
	}
	http.Error(w, err.Error(), status)
}
