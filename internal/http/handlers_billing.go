package httpx

import (
	"io"
	"net/http"

	"github.com/splax/domainmap/internal/service/billing"
)

func (r *Router) handleCreateCheckout(w http.ResponseWriter, req *http.Request) {
	if r.svc.Billing == nil {
		writeError(w, http.StatusServiceUnavailable, "billing not configured")
		return
	}
	var cart billing.Cart
	if err := decodeJSON(w, req, &cart); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	session, err := r.svc.Billing.CreateSession(req.Context(), cart)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (r *Router) handleStripeWebhook(w http.ResponseWriter, req *http.Request) {
	if r.svc.Billing == nil {
		writeError(w, http.StatusServiceUnavailable, "billing not configured")
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	result, err := r.svc.Billing.Confirm(req.Context(), payload, req.Header.Get("Stripe-Signature"))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
