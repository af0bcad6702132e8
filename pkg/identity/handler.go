package identity

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/utils"
)

// maxEventBody bounds webhook payload reads.
const maxEventBody = 1 << 20

// Handler serves the identity-provider webhook endpoint.
type Handler struct {
	secret    string
	tolerance time.Duration
}

func NewHandler(secret string, tolerance time.Duration) *Handler {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Handler{secret: secret, tolerance: tolerance}
}

// Register mounts the webhook route onto the provided router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/webhooks/identity", h.handle).Methods(http.MethodPost)
}

// handle verifies the delivery signature against the raw request bytes
// before trusting any payload field, applies the event, and always
// acknowledges with 200 once the store operation was attempted; the
// provider's retry semantics depend on that. Store failures return 500
// so the provider redelivers; signature failures return 401 and are
// never retried.
func (h *Handler) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	msgID := headerAny(r, "svix-id", "webhook-id")
	ts := headerAny(r, "svix-timestamp", "webhook-timestamp")
	sig := headerAny(r, "svix-signature", "webhook-signature")
	if err := Verify(h.secret, body, msgID, ts, sig, h.tolerance); err != nil {
		logger.Warn("webhook_verification_failed", "remote", r.RemoteAddr, "error", err)
		utils.JSONError(w, http.StatusUnauthorized, "invalid webhook signature")
		return
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid event json")
		return
	}
	if err := Apply(ev); err != nil {
		logger.Error("webhook_apply_failed", "type", ev.Type, "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "event not applied")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"message": "event received"})
}

func headerAny(r *http.Request, names ...string) string {
	for _, n := range names {
		if v := r.Header.Get(n); v != "" {
			return v
		}
	}
	return ""
}
