package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/splax/domainmap/internal/repository"
	"github.com/splax/domainmap/internal/service/billing"
	"github.com/splax/domainmap/internal/service/events"
	"github.com/splax/domainmap/internal/service/mapping"
	"github.com/splax/domainmap/internal/service/settings"
	"github.com/splax/domainmap/internal/service/webhook"
)

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, mapping.ErrNotFound),
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, settings.ErrUnknownSetting),
		errors.Is(err, events.ErrUnknownEvent):
		return http.StatusNotFound
	case errors.Is(err, mapping.ErrInvalidDomain),
		errors.Is(err, settings.ErrInvalidValue),
		errors.Is(err, webhook.ErrInvalidWebhook),
		errors.Is(err, billing.ErrInvalidCart),
		errors.Is(err, billing.ErrInvalidSignature),
		errors.Is(err, events.ErrMissingParam),
		errors.Is(err, repository.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, mapping.ErrDomainExists),
		errors.Is(err, mapping.ErrStageConflict),
		errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, mapping.ErrMappingDisabled):
		return http.StatusForbidden
	case errors.Is(err, billing.ErrNotConfigured):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeServiceError maps service errors onto HTTP statuses. Unmapped errors are
// logged and hidden from the client.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		r.logger.Error("request failed", "path", req.URL.Path, "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, req *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	return dec.Decode(v)
}
