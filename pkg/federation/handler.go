package federation

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/fedbroker/fedbroker/pkg/orders"
)

// NotificationHandler accepts provider-side notifications and hands them to
// the requester-side mirror driver. Mounted on the broker's internal HTTP
// listener at /federation/notifications.
type NotificationHandler struct {
	driver MirrorDriver
	logger zerolog.Logger
}

// NewNotificationHandler creates a handler backed by the given driver.
func NewNotificationHandler(driver MirrorDriver, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		driver: driver,
		logger: logger.With().Str("component", "federation_handler").Logger(),
	}
}

// ServeHTTP implements http.Handler.
func (h *NotificationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var n Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		http.Error(w, "undecodable notification", http.StatusBadRequest)
		return
	}
	if n.OrderID == "" || (n.Event != EventInstanceFulfilled && n.Event != EventInstanceFailed) {
		http.Error(w, "invalid notification", http.StatusBadRequest)
		return
	}

	if err := h.driver.HandleRemoteEvent(r.Context(), n); err != nil {
		h.logger.Error().Err(err).
			Str("order_id", n.OrderID).
			Str("event", string(n.Event)).
			Msg("failed to apply remote notification")
		if orders.IsNotFound(err) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		http.Error(w, "notification failed", http.StatusInternalServerError)
		return
	}

	h.logger.Info().
		Str("order_id", n.OrderID).
		Str("event", string(n.Event)).
		Msg("applied remote notification")
	w.WriteHeader(http.StatusNoContent)
}
