package proxy_api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BearBump/TrackProxy/internal/integrations/upstream/fallback"
	"github.com/BearBump/TrackProxy/internal/models"
	"github.com/BearBump/TrackProxy/internal/tenants"
	"github.com/go-chi/chi/v5"
)

func firstParam(r *http.Request, names ...string) string {
	q := r.URL.Query()
	for _, n := range names {
		if v := strings.TrimSpace(q.Get(n)); v != "" {
			return v
		}
	}
	return ""
}

func (a *ProxyAPI) handleTracking(w http.ResponseWriter, r *http.Request) {
	const route = "tracking"
	q := models.TrackingQuery{
		Reference:  firstParam(r, "ref", "trackingRef"),
		TenantHint: firstParam(r, "tenant", "companyId"),
	}

	res, err := a.svc.Track(r.Context(), q)
	if err != nil {
		a.writeError(w, route, err)
		return
	}
	a.writeSuccess(w, route, successEnvelope{
		Reference:  res.Reference,
		SourceKind: res.SourceKind,
		Data:       res,
	}, true)
}

// handleShipment: /shipment принимает shipmentId или soNum.
func (a *ProxyAPI) handleShipment(w http.ResponseWriter, r *http.Request) {
	if id := firstParam(r, "shipmentId"); id != "" {
		a.shipment(w, r, fallback.ShipmentOne, id)
		return
	}
	if so := firstParam(r, "soNum"); so != "" {
		a.shipment(w, r, fallback.ShipmentSo, so)
		return
	}
	a.writeError(w, "shipment", badRequest("shipmentId or soNum is required"))
}

func (a *ProxyAPI) handleFMS(w http.ResponseWriter, r *http.Request) {
	kind := fallback.ShipmentKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		a.notFound(w, r)
		return
	}
	id := firstParam(r, kind.Param())
	if id == "" {
		a.writeError(w, "shipment", badRequest(kind.Param()+" is required"))
		return
	}
	a.shipment(w, r, kind, id)
}

func (a *ProxyAPI) shipment(w http.ResponseWriter, r *http.Request, kind fallback.ShipmentKind, id string) {
	const route = "shipment"
	p, err := a.svc.Shipment(r.Context(), kind, id, firstParam(r, "tenant", "companyId"))
	if err != nil {
		a.writeError(w, route, err)
		return
	}
	a.writeSuccess(w, route, successEnvelope{
		Reference:  id,
		SourceKind: p.Source,
		Data:       p.Body,
	}, true)
}

func (a *ProxyAPI) handleGetTenants(w http.ResponseWriter, r *http.Request) {
	const route = "config"
	m, err := a.store.GetTenants(r.Context())
	if err != nil {
		a.writeError(w, route, err)
		return
	}
	a.writeSuccess(w, route, successEnvelope{Data: m}, false)
}

// handleGetSite отдаёт blob без конверта: админка читает его напрямую.
func (a *ProxyAPI) handleGetSite(w http.ResponseWriter, r *http.Request) {
	const route = "config"
	b, ok, err := a.store.GetSite(r.Context())
	if err != nil {
		a.writeError(w, route, err)
		return
	}
	if !ok {
		a.writeStatus(w, route, http.StatusNotFound, "site config not found")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	a.observe(route, http.StatusOK)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (a *ProxyAPI) handlePutSite(w http.ResponseWriter, r *http.Request) {
	const route = "config"
	if err := a.store.Authorize(bearerToken(r)); err != nil {
		a.writeError(w, route, err)
		return
	}
	body, err := readBody(r)
	if err != nil {
		a.writeError(w, route, err)
		return
	}
	if err := a.store.PutSite(r.Context(), body, bearerToken(r)); err != nil {
		a.writeError(w, route, err)
		return
	}
	a.writeSuccess(w, route, successEnvelope{Message: "site config saved"}, false)
}

// tenantsUpdate — тело /config/update: companies массивом или объектом {id: {...}}.
type tenantsUpdate struct {
	Companies json.RawMessage `json:"companies"`
}

func (a *ProxyAPI) handlePutTenants(w http.ResponseWriter, r *http.Request) {
	const route = "config"
	if err := a.store.Authorize(bearerToken(r)); err != nil {
		a.writeError(w, route, err)
		return
	}
	body, err := readBody(r)
	if err != nil {
		a.writeError(w, route, err)
		return
	}

	raw := json.RawMessage(body)
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		var upd tenantsUpdate
		if err := json.Unmarshal(trimmed, &upd); err != nil {
			a.writeError(w, route, badRequest("invalid JSON body"))
			return
		}
		if len(upd.Companies) == 0 {
			a.writeError(w, route, badRequest("companies is required"))
			return
		}
		raw = upd.Companies
	}
	list, err := tenants.ParseCompanies(raw)
	if err != nil {
		a.writeError(w, route, err)
		return
	}

	if err := a.store.PutTenants(r.Context(), list, bearerToken(r)); err != nil {
		a.writeError(w, route, err)
		return
	}
	a.writeSuccess(w, route, successEnvelope{Message: "config updated"}, false)
}

func (a *ProxyAPI) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.ready.Ping(ctx); err != nil {
			slog.Warn("readiness check failed", "error", err.Error())
			a.writeStatus(w, "ready", http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (a *ProxyAPI) handleDebugConfig(w http.ResponseWriter, r *http.Request) {
	type endpoint struct {
		BaseURLs  []string `json:"baseUrls"`
		TimeoutMs int64    `json:"timeoutMs"`
	}
	var official []string
	if a.info.OfficialBaseURL != "" {
		official = []string{a.info.OfficialBaseURL}
	}
	a.writeSuccess(w, "debug", successEnvelope{Data: map[string]endpoint{
		"official": {BaseURLs: official, TimeoutMs: a.info.OfficialTimeout.Milliseconds()},
		"fallback": {BaseURLs: a.info.FallbackBaseURLs, TimeoutMs: a.info.FallbackTimeout.Milliseconds()},
	}}, false)
}

func readBody(r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, badRequest("cannot read request body")
	}
	if len(b) > maxBodyBytes {
		return nil, badRequest("request body is too large")
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, badRequest("request body is empty")
	}
	if !json.Valid(b) {
		return nil, badRequest("invalid JSON body")
	}
	return b, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}
