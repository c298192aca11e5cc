package origin

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// DefaultAllowed — origins фронтенда, разрешённые без настройки.
var DefaultAllowed = []string{
	"http://localhost:8080",
	"http://localhost:3000",
	"http://localhost:8000",
	"https://pgs-track.pages.dev",
}

const (
	DefaultPreviewSuffix = "pages.dev"
	DefaultProductSlug   = "pgs-track"
)

var (
	allowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	allowedHeaders = []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin", "User-Agent"}
)

const preflightMaxAge = 86400

type Options struct {
	// Extra добавляется к DefaultAllowed (CORS_ORIGINS).
	Extra         []string
	PreviewSuffix string
	ProductSlug   string
}

type Gate struct {
	exact         map[string]struct{}
	previewSuffix string
	productSlug   string
	reject        http.HandlerFunc
}

func New(opts Options) *Gate {
	if opts.PreviewSuffix == "" {
		opts.PreviewSuffix = DefaultPreviewSuffix
	}
	if opts.ProductSlug == "" {
		opts.ProductSlug = DefaultProductSlug
	}
	g := &Gate{
		exact:         make(map[string]struct{}, len(DefaultAllowed)+len(opts.Extra)),
		previewSuffix: opts.PreviewSuffix,
		productSlug:   opts.ProductSlug,
		reject:        plainReject,
	}
	for _, o := range DefaultAllowed {
		g.exact[o] = struct{}{}
	}
	for _, o := range opts.Extra {
		if o = strings.TrimSpace(o); o != "" {
			g.exact[o] = struct{}{}
		}
	}
	return g
}

// WithRejectHandler задаёт ответ на запрещённый origin для обычных запросов.
func (g *Gate) WithRejectHandler(h http.HandlerFunc) *Gate {
	if h != nil {
		g.reject = h
	}
	return g
}

func (g *Gate) IsAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	if _, ok := g.exact[origin]; ok {
		return true
	}
	if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
		return true
	}
	return strings.Contains(origin, g.previewSuffix) && strings.Contains(origin, g.productSlug)
}

// CORS выставляет заголовки для разрешённых origin. Allow-Origin всегда эхо, не "*".
// Preflight пропускается дальше, его завершает Middleware.
func (g *Gate) CORS() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return g.IsAllowed(origin)
		},
		AllowedMethods:     allowedMethods,
		AllowedHeaders:     allowedHeaders,
		MaxAge:             preflightMaxAge,
		OptionsPassthrough: true,
	})
}

// Middleware — общий вход: OPTIONS от чужого origin получает 403 без тела,
// от разрешённого 204 с CORS-заголовками. Остальные запросы идут дальше с заголовками.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	withCORS := g.CORS()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	}))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions && !g.IsAllowed(r.Header.Get("Origin")) {
			slog.Debug("preflight rejected", "origin", r.Header.Get("Origin"), "path", r.URL.Path)
			w.WriteHeader(http.StatusForbidden)
			return
		}
		withCORS.ServeHTTP(w, r)
	})
}

// Require проверяет Origin на группе маршрутов. allowMissing разрешает запросы без Origin
// (curl, серверные клиенты) и включается только для трекинга.
func (g *Gate) Require(allowMissing bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			o := r.Header.Get("Origin")
			if (o == "" && allowMissing) || g.IsAllowed(o) {
				next.ServeHTTP(w, r)
				return
			}
			slog.Warn("origin rejected", "origin", o, "path", r.URL.Path)
			g.reject(w, r)
		})
	}
}

func plainReject(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "origin not allowed", http.StatusForbidden)
}
