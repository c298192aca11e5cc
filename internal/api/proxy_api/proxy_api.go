package proxy_api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/BearBump/TrackProxy/internal/integrations/upstream"
	"github.com/BearBump/TrackProxy/internal/integrations/upstream/fallback"
	"github.com/BearBump/TrackProxy/internal/models"
	"github.com/BearBump/TrackProxy/internal/origin"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type TrackingService interface {
	Track(ctx context.Context, q models.TrackingQuery) (models.TrackingResult, error)
	Shipment(ctx context.Context, kind fallback.ShipmentKind, id, hint string) (upstream.Payload, error)
}

type ConfigStore interface {
	GetTenants(ctx context.Context) (map[string]models.Tenant, error)
	GetSite(ctx context.Context) (json.RawMessage, bool, error)
	PutTenants(ctx context.Context, list []models.Tenant, callerToken string) error
	PutSite(ctx context.Context, blob json.RawMessage, callerToken string) error
	Authorize(callerToken string) error
}

// Pinger — проверка готовности хранилища конфига для /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Recorder interface {
	ObserveResponse(route string, status int)
}

// UpstreamInfo — что показывает /debug/api-config. Ключей и токенов здесь нет.
type UpstreamInfo struct {
	OfficialBaseURL  string
	OfficialTimeout  time.Duration
	FallbackBaseURLs []string
	FallbackTimeout  time.Duration
}

// Префиксы, под которыми фронтенды исторически ходили в прокси.
var mountPrefixes = []string{"/api/tracking", "/api/au-ops"}

const maxBodyBytes = 1 << 20

type ProxyAPI struct {
	svc   TrackingService
	store ConfigStore
	gate  *origin.Gate
	rec   Recorder
	ready Pinger
	info  UpstreamInfo
	now   func() time.Time
}

func New(svc TrackingService, store ConfigStore, gate *origin.Gate) *ProxyAPI {
	a := &ProxyAPI{svc: svc, store: store, gate: gate, now: time.Now}
	gate.WithRejectHandler(a.rejectOrigin)
	return a
}

func (a *ProxyAPI) WithRecorder(r Recorder) *ProxyAPI {
	a.rec = r
	return a
}

func (a *ProxyAPI) WithReadiness(p Pinger) *ProxyAPI {
	a.ready = p
	return a
}

func (a *ProxyAPI) WithUpstreamInfo(info UpstreamInfo) *ProxyAPI {
	a.info = info
	return a
}

// Routes собирает роутер: общий CORS-вход и одинаковый набор маршрутов под каждым префиксом.
func (a *ProxyAPI) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(a.gate.Middleware)
	r.NotFound(a.notFound)
	r.MethodNotAllowed(a.methodNotAllowed)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", a.handleReady)
	r.Get("/debug/api-config", a.handleDebugConfig)

	sub := a.proxyRoutes()
	for _, p := range mountPrefixes {
		r.Mount(p, sub)
	}
	r.Mount("/", sub)
	return r
}

func (a *ProxyAPI) proxyRoutes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(a.notFound)
	r.MethodNotAllowed(a.methodNotAllowed)

	// Трекинг открыт и для вызовов без Origin.
	r.Group(func(r chi.Router) {
		r.Use(a.gate.Require(true))
		r.Get("/tracking", a.handleTracking)
		r.Get("/v5/tracking", a.handleTracking)
		r.Get("/v3/tracking", a.handleTracking)
	})

	r.Group(func(r chi.Router) {
		r.Use(a.gate.Require(false))

		r.Get("/shipment", a.handleShipment)
		r.Get("/fms/{kind}", a.handleFMS)

		r.Get("/config/tenants", a.handleGetTenants)
		r.Get("/config/site", a.handleGetSite)
		r.Post("/config/site", a.handlePutSite)
		r.Post("/config/site/update", a.handlePutSite)
		r.Post("/config/tenants/update", a.handlePutTenants)
		r.Post("/config/update", a.handlePutTenants)
	})
	return r
}

func (a *ProxyAPI) observe(route string, status int) {
	if a.rec != nil {
		a.rec.ObserveResponse(route, status)
	}
}
