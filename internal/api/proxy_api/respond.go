package proxy_api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/BearBump/TrackProxy/internal/integrations/upstream"
	"github.com/BearBump/TrackProxy/internal/models"
	"github.com/BearBump/TrackProxy/internal/services/tracking"
	"github.com/BearBump/TrackProxy/internal/tenants"
	"github.com/pkg/errors"
)

type successEnvelope struct {
	Success    bool              `json:"success"`
	Reference  string            `json:"reference,omitempty"`
	SourceKind models.SourceKind `json:"sourceKind,omitempty"`
	Data       any               `json:"data,omitempty"`
	Message    string            `json:"message,omitempty"`
	Timestamp  string            `json:"timestamp"`
}

type errorEnvelope struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// errBadRequest — ошибка валидации входа, текст уходит клиенту как есть.
type errBadRequest struct{ msg string }

func (e errBadRequest) Error() string { return e.msg }

func badRequest(msg string) error { return errBadRequest{msg: msg} }

func (a *ProxyAPI) timestamp() string {
	return a.now().UTC().Format(time.RFC3339Nano)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", "error", err.Error())
	}
}

func (a *ProxyAPI) writeSuccess(w http.ResponseWriter, route string, env successEnvelope, cacheable bool) {
	env.Success = true
	env.Timestamp = a.timestamp()
	if cacheable {
		w.Header().Set("Cache-Control", "public, max-age=300")
	} else {
		w.Header().Set("Cache-Control", "no-store")
	}
	a.observe(route, http.StatusOK)
	writeJSON(w, http.StatusOK, env)
}

func (a *ProxyAPI) writeError(w http.ResponseWriter, route string, err error) {
	status, msg := classify(err)
	if status >= 500 {
		slog.Error("request failed", "route", route, "status", status, "error", err.Error())
	} else {
		slog.Info("request rejected", "route", route, "status", status, "error", err.Error())
	}
	a.writeStatus(w, route, status, msg)
}

func (a *ProxyAPI) writeStatus(w http.ResponseWriter, route string, status int, msg string) {
	w.Header().Set("Cache-Control", "no-store")
	a.observe(route, status)
	writeJSON(w, status, errorEnvelope{Success: false, Error: msg, Timestamp: a.timestamp()})
}

// classify переводит ошибку в HTTP-статус и безопасный текст. Детали апстрима и тенантов остаются в логах.
func classify(err error) (int, string) {
	var br errBadRequest
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest, br.msg
	case errors.Is(err, models.ErrReferenceRequired),
		errors.Is(err, models.ErrReferenceLength),
		errors.Is(err, models.ErrReferenceCharset):
		return http.StatusBadRequest, errors.Cause(err).Error()
	case errors.Is(err, tracking.ErrShipmentIDRequired):
		return http.StatusBadRequest, "shipment id is required"
	case errors.Is(err, tenants.ErrInvalidConfig):
		return http.StatusBadRequest, "invalid site config"
	case errors.Is(err, tenants.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, tenants.ErrAdminDisabled):
		return http.StatusInternalServerError, "admin access is not configured"
	case errors.Is(err, tenants.ErrStoreUnavailable):
		return http.StatusInternalServerError, "configuration unavailable"
	}

	var ue *upstream.Error
	if errors.As(err, &ue) {
		switch ue.Kind {
		case upstream.KindNotFound:
			return http.StatusNotFound, "tracking not found"
		case upstream.KindTimeout:
			return http.StatusRequestTimeout, "upstream timeout, please retry later"
		case upstream.KindRejected:
			// 401/403/429 апстрима — проблема наших ключей, а не клиента: уходят в 503.
			if ue.Status == http.StatusBadRequest {
				return http.StatusBadRequest, "request rejected by upstream"
			}
		case upstream.KindConfig:
			return http.StatusInternalServerError, "service is misconfigured"
		}
	}
	return http.StatusServiceUnavailable, "tracking service unavailable, please retry later"
}

func (a *ProxyAPI) rejectOrigin(w http.ResponseWriter, r *http.Request) {
	a.writeStatus(w, "origin", http.StatusForbidden, "origin not allowed")
}

func (a *ProxyAPI) notFound(w http.ResponseWriter, r *http.Request) {
	a.writeStatus(w, "unknown", http.StatusNotFound, "not found")
}

func (a *ProxyAPI) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	a.writeStatus(w, "unknown", http.StatusMethodNotAllowed, "method not allowed")
}
