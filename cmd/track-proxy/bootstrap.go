package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/TrackProxy/config"
	proxyapi "github.com/BearBump/TrackProxy/internal/api/proxy_api"
	"github.com/BearBump/TrackProxy/internal/broker/configsync"
	"github.com/BearBump/TrackProxy/internal/broker/kafka"
	"github.com/BearBump/TrackProxy/internal/cache/rediscache"
	"github.com/BearBump/TrackProxy/internal/integrations/upstream/fallback"
	"github.com/BearBump/TrackProxy/internal/integrations/upstream/official"
	"github.com/BearBump/TrackProxy/internal/metrics"
	"github.com/BearBump/TrackProxy/internal/origin"
	"github.com/BearBump/TrackProxy/internal/services/reconcile"
	"github.com/BearBump/TrackProxy/internal/services/tracking"
	"github.com/BearBump/TrackProxy/internal/storage/pgkv"
	"github.com/BearBump/TrackProxy/internal/tenants"
)

type trackProxyApp struct {
	ctx     context.Context
	cancel  context.CancelFunc
	opts    trackProxyOpts
	deps    trackProxyDeps
	closers []func()
}

func mustBootstrapTrackProxy() *trackProxyApp {
	if err := config.LoadDotEnv(".env"); err != nil {
		panic(err)
	}
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	cfg.ApplyEnv(os.Getenv)

	setupLogger(cfg.Server.LogLevel)

	app := &trackProxyApp{}

	httpAddr := cfg.Server.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8787"
	}
	siteKey := cfg.Store.SiteConfigKey
	if siteKey == "" {
		siteKey = tenants.DefaultSiteConfigKey
	}
	if cfg.Server.AdminToken == "" {
		slog.Warn("ADMIN_TOKEN is not set, config mutation is disabled")
	}

	var kv interface {
		tenants.KV
		proxyapi.Pinger
	}
	var rc *rediscache.RedisCache
	switch cfg.Store.Driver {
	case "", "redis":
		rc = rediscache.New(cfg.RedisAddr())
		app.closers = append(app.closers, func() { _ = rc.Close() })
		kv = rc
	case "postgres":
		st := mustOpenPostgresWithRetry(cfg.PostgresDSN(), 60*time.Second)
		app.closers = append(app.closers, st.Close)
		kv = st
	default:
		panic(fmt.Sprintf("unknown store driver %q", cfg.Store.Driver))
	}

	cache := tenants.NewCache(time.Duration(cfg.Store.CacheTTLSeconds) * time.Second)
	store := tenants.New(kv, cache, cfg.Server.AdminToken).WithKey(siteKey)

	m := metrics.New()

	off := official.New(official.Options{
		BaseURL: cfg.Upstreams.Official.BaseURL,
		Host:    cfg.Upstreams.Official.Host,
		URLPath: cfg.Upstreams.Official.URLPath,
		Timeout: time.Duration(cfg.Upstreams.Official.TimeoutMs) * time.Millisecond,
	}).WithRecorder(m)

	fb := fallback.New(fallback.Options{
		Endpoints:          fallbackEndpoints(cfg.Upstreams.Fallback.Endpoints),
		Timeout:            time.Duration(cfg.Upstreams.Fallback.TimeoutMs) * time.Millisecond,
		RateLimitPerMinute: cfg.Upstreams.Fallback.RateLimitPerMinute,
	}, store).WithRecorder(m)
	if cfg.Upstreams.Fallback.RateLimitPerMinute > 0 {
		// Лимитер всегда в Redis, даже если конфиг тенантов лежит в Postgres.
		if rc != nil {
			fb.WithLimiter(rediscache.NewRateLimiterWithClient(rc.Client()))
		} else {
			rl := rediscache.NewRateLimiter(cfg.RedisAddr())
			app.closers = append(app.closers, func() { _ = rl.Close() })
			fb.WithLimiter(rl)
		}
	}

	loc := reconcile.DefaultLocation
	if h := cfg.Upstreams.UTCOffsetHours; h != nil {
		loc = time.FixedZone(fmt.Sprintf("UTC%+d", *h), *h*3600)
	}
	svc := tracking.New(off, fb, reconcile.New(loc))

	gate := origin.New(origin.Options{Extra: cfg.Server.CORSOrigins})
	api := proxyapi.New(svc, store, gate).
		WithRecorder(m).
		WithReadiness(kv).
		WithUpstreamInfo(proxyapi.UpstreamInfo{
			OfficialBaseURL:  off.BaseURL(),
			OfficialTimeout:  off.Timeout(),
			FallbackBaseURLs: fb.BaseURLs(),
			FallbackTimeout:  fb.Timeout(),
		})

	topic := cfg.Kafka.ConfigUpdatedTopicName
	if topic == "" {
		topic = "trackproxy.config.updated"
	}
	groupPrefix := cfg.Kafka.ConsumerGroupPrefix
	if groupPrefix == "" {
		groupPrefix = "track-proxy"
	}

	deps := trackProxyDeps{api: api.Routes(), metrics: m.Handler()}
	if cfg.Kafka.Enabled {
		instanceID := configsync.NewInstanceID()
		brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}

		producer := kafka.NewProducer(brokers)
		store.WithNotifier(configsync.NewNotifier(producer, topic, instanceID))
		// У каждого инстанса своя группа: событие должен получить каждый.
		consumer := kafka.NewConsumer(brokers, topic, groupPrefix+"-"+instanceID)
		app.closers = append(app.closers,
			func() { _ = consumer.Close() },
			func() { _ = producer.Close() },
		)
		deps.consumer = consumer
		deps.onConfigEvent = configsync.NewListener(store, instanceID).Handle
		slog.Info("config sync enabled", "topic", topic, "instance", instanceID)
	}

	app.ctx, app.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app.opts = trackProxyOpts{
		httpAddr:    httpAddr,
		swaggerPath: os.Getenv("swaggerPath"),
		topic:       topic,
	}
	app.deps = deps
	return app
}

// fallbackEndpoints переводит зеркала из конфига. С одним зеркалом переключения A→B не будет.
func fallbackEndpoints(list []config.FallbackEndpoint) []fallback.Endpoint {
	out := make([]fallback.Endpoint, 0, len(list))
	for _, ep := range list {
		out = append(out, fallback.Endpoint{BaseURL: ep.BaseURL, Origin: ep.Origin, Referer: ep.Referer})
	}
	switch len(out) {
	case 0:
		slog.Warn("no fallback endpoints configured, using the built-in mirror only", "base_url", fallback.DefaultBaseURL)
	case 1:
		slog.Warn("only one fallback endpoint configured, mirror failover is disabled", "base_url", out[0].BaseURL)
	}
	return out
}

func setupLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgkv.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgkv.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *trackProxyApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *trackProxyApp) Run() error {
	return runTrackProxy(a.ctx, a.opts, a.deps)
}
