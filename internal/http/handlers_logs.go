package httpx

import (
	"net/http"
	"strings"
	"time"

	"github.com/splax/domainmap/internal/domain"
	"github.com/splax/domainmap/internal/ws"
)

func (r *Router) handleLogs(w http.ResponseWriter, req *http.Request) {
	channel := strings.TrimSpace(req.PathValue("channel"))
	if channel == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if strings.Contains(req.Header.Get("Accept"), "text/event-stream") {
		r.streamLogs(w, req, channel)
		return
	}
	limit, offset := pagination(req, 100)
	entries, err := r.svc.Logs.List(req.Context(), channel, limit, offset)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	if entries == nil {
		entries = []domain.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (r *Router) streamLogs(w http.ResponseWriter, req *http.Request, channel string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	hub := r.svc.Logs.Hub()
	hub.Register(channel, client)
	defer func() {
		hub.Unregister(channel, client)
		client.Close()
	}()

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-client.Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleLogsWS(w http.ResponseWriter, req *http.Request) {
	channel := strings.TrimSpace(req.URL.Query().Get("channel"))
	if channel == "" {
		writeError(w, http.StatusBadRequest, "channel query parameter required")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	hub := r.svc.Logs.Hub()
	hub.Register(channel, client)
	go func() {
		defer func() {
			hub.Unregister(channel, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}
