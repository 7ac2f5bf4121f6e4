package httpx

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/splax/domainmap/internal/domain"
	"github.com/splax/domainmap/internal/service/mapping"
)

func pagination(req *http.Request, fallback int) (int, int) {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = fallback
	}
	offset, _ := strconv.Atoi(req.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (r *Router) handleListDomains(w http.ResponseWriter, req *http.Request) {
	limit, offset := pagination(req, 50)
	filter := domain.DomainFilter{
		SiteID: strings.TrimSpace(req.URL.Query().Get("site_id")),
		Stage:  domain.Stage(strings.TrimSpace(req.URL.Query().Get("stage"))),
		Limit:  limit,
		Offset: offset,
	}
	if filter.Stage != "" && !filter.Stage.Valid() {
		writeError(w, http.StatusBadRequest, "unknown stage")
		return
	}
	domains, err := r.svc.Domains.List(req.Context(), filter)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	if domains == nil {
		domains = []domain.Domain{}
	}
	writeJSON(w, http.StatusOK, domains)
}

func (r *Router) handleCreateDomain(w http.ResponseWriter, req *http.Request) {
	var payload mapping.CreateInput
	if err := decodeJSON(w, req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	d, err := r.svc.Domains.Create(req.Context(), payload)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (r *Router) handleGetDomain(w http.ResponseWriter, req *http.Request) {
	d, err := r.svc.Domains.Get(req.Context(), req.PathValue("id"))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (r *Router) handleDeleteDomain(w http.ResponseWriter, req *http.Request) {
	if err := r.svc.Domains.Delete(req.Context(), req.PathValue("id")); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleRestartDomain(w http.ResponseWriter, req *http.Request) {
	d, err := r.svc.Domains.Restart(req.Context(), req.PathValue("id"))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusAccepted, d)
}

func (r *Router) handleDomainDNS(w http.ResponseWriter, req *http.Request) {
	d, err := r.svc.Domains.Get(req.Context(), req.PathValue("id"))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	report, err := r.svc.Domains.DNSRecords(req.Context(), d.Domain)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (r *Router) handleInstructions(w http.ResponseWriter, req *http.Request) {
	text, err := r.svc.Settings.Instructions(req.Context())
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"instructions": text})
}
