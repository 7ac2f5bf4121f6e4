package httpx

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/splax/domainmap/internal/domain"
	"github.com/splax/domainmap/internal/service/ingress"
	"github.com/splax/domainmap/internal/service/webhook"
)

func (r *Router) handleListSettings(w http.ResponseWriter, req *http.Request) {
	fields, err := r.svc.Settings.Fields(req.Context())
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, fields)
}

func (r *Router) handleGetSetting(w http.ResponseWriter, req *http.Request) {
	key := req.PathValue("key")
	value, err := r.svc.Settings.Get(req.Context(), key)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": value})
}

func (r *Router) handleSetSetting(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		Value json.RawMessage `json:"value"`
	}
	if err := decodeJSON(w, req, &payload); err != nil || len(payload.Value) == 0 {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}
	var value any
	if err := json.Unmarshal(payload.Value, &value); err != nil {
		writeError(w, http.StatusBadRequest, "invalid value")
		return
	}
	key := req.PathValue("key")
	stored, err := r.svc.Settings.Set(req.Context(), key, value)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": stored})
}

func (r *Router) handleTestIntegrations(w http.ResponseWriter, req *http.Request) {
	results := []ingress.TestResult{}
	if r.svc.Integrations != nil {
		results = r.svc.Integrations.Test(req.Context())
	}
	writeJSON(w, http.StatusOK, results)
}

func (r *Router) handleListEvents(w http.ResponseWriter, req *http.Request) {
	limit, offset := pagination(req, 50)
	list, err := r.svc.Events.List(req.Context(), strings.TrimSpace(req.URL.Query().Get("slug")), limit, offset)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	if list == nil {
		list = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (r *Router) handleListHooks(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.svc.Events.Types())
}

func (r *Router) handleListWebhooks(w http.ResponseWriter, req *http.Request) {
	hooks, err := r.svc.Webhooks.List(req.Context())
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	if hooks == nil {
		hooks = []domain.Webhook{}
	}
	writeJSON(w, http.StatusOK, hooks)
}

func (r *Router) handleCreateWebhook(w http.ResponseWriter, req *http.Request) {
	var payload webhook.CreateInput
	if err := decodeJSON(w, req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	created, err := r.svc.Webhooks.Create(req.Context(), payload)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (r *Router) handleDeleteWebhook(w http.ResponseWriter, req *http.Request) {
	if err := r.svc.Webhooks.Delete(req.Context(), req.PathValue("id")); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
