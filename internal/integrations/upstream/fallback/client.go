package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/TrackProxy/internal/integrations/upstream"
	"github.com/BearBump/TrackProxy/internal/models"
	"github.com/pkg/errors"
)

const Name = "fallback"

const (
	DefaultBaseURL = "https://ws.ai-ops.vip/edi/web-services"
	DefaultOrigin  = "https://ws.ai-ops.vip"
	DefaultReferer = "https://ws.ai-ops.vip/"
	DefaultTimeout = 30 * time.Second

	trackingPath = "/v5/tracking"
)

// Endpoint — одно зеркало апстрима. Origin/Referer апстрим проверяет сам.
type Endpoint struct {
	BaseURL string
	Origin  string
	Referer string
}

type Options struct {
	Endpoints []Endpoint
	Timeout   time.Duration
	// RateLimitPerMinute: 0 — без лимита.
	RateLimitPerMinute int64
}

type TenantResolver interface {
	Resolve(ctx context.Context, hint string) ([]models.Tenant, error)
}

type Limiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Recorder interface {
	ObserveUpstream(name, outcome string, d time.Duration)
}

type Client struct {
	opts    Options
	tenants TenantResolver
	limiter Limiter
	rec     Recorder
	httpc   *http.Client
}

func New(opts Options, tenants TenantResolver) *Client {
	if len(opts.Endpoints) == 0 {
		opts.Endpoints = []Endpoint{{BaseURL: DefaultBaseURL, Origin: DefaultOrigin, Referer: DefaultReferer}}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Client{
		opts:    opts,
		tenants: tenants,
		httpc:   &http.Client{},
	}
}

func (c *Client) WithLimiter(l Limiter) *Client {
	c.limiter = l
	return c
}

func (c *Client) WithRecorder(r Recorder) *Client {
	c.rec = r
	return c
}

func (c *Client) Timeout() time.Duration { return c.opts.Timeout }

// BaseURLs — адреса зеркал в порядке опроса, для /debug/api-config.
func (c *Client) BaseURLs() []string {
	out := make([]string, 0, len(c.opts.Endpoints))
	for _, ep := range c.opts.Endpoints {
		out = append(out, ep.BaseURL)
	}
	return out
}

// Query ищет трекинг по всем пригодным тенантам, hint первым.
func (c *Client) Query(ctx context.Context, reference, hint string) (upstream.Payload, error) {
	return c.run(ctx, hint, trackingPath, url.Values{"trackingRef": {reference}})
}

// QueryShipment — поиск по FMS-эндпоинтам, только через этот апстрим.
func (c *Client) QueryShipment(ctx context.Context, kind ShipmentKind, id, hint string) (upstream.Payload, error) {
	if !kind.Valid() {
		return upstream.Payload{}, &upstream.Error{Kind: upstream.KindConfig, Upstream: Name, Err: errors.Errorf("unknown shipment kind %q", kind)}
	}
	return c.run(ctx, hint, kind.Path(), url.Values{kind.Param(): {id}})
}

func (c *Client) run(ctx context.Context, hint, path string, params url.Values) (upstream.Payload, error) {
	list, err := c.tenants.Resolve(ctx, hint)
	if err != nil {
		// Без тенантов в сеть не ходим.
		return upstream.Payload{}, &upstream.Error{Kind: upstream.KindConfig, Upstream: Name, Err: err}
	}

	attempts := make([]upstream.Attempt[upstream.Payload], 0, len(list))
	for _, t := range list {
		attempts = append(attempts, upstream.Attempt[upstream.Payload]{
			Name: "tenant:" + t.ID,
			Run: func(ctx context.Context) (upstream.Payload, error) {
				return c.queryTenant(ctx, t, path, params)
			},
		})
	}

	// not_found — окончательный ответ, другие тенанты его не исправят.
	return upstream.FirstSuccess(ctx, attempts, func(err error) bool {
		return upstream.KindOf(err) == upstream.KindNotFound
	})
}

func (c *Client) queryTenant(ctx context.Context, t models.Tenant, path string, params url.Values) (upstream.Payload, error) {
	if err := c.allow(ctx, t); err != nil {
		return upstream.Payload{}, err
	}

	attempts := make([]upstream.Attempt[json.RawMessage], 0, len(c.opts.Endpoints))
	for i, ep := range c.opts.Endpoints {
		attempts = append(attempts, upstream.Attempt[json.RawMessage]{
			Name: fmt.Sprintf("endpoint:%d", i),
			Run: func(ctx context.Context) (json.RawMessage, error) {
				started := time.Now()
				body, err := c.get(ctx, ep, t, path, params)
				c.observe(err, time.Since(started))
				return body, err
			},
		})
	}

	// На зеркало переходим только после сетевой ошибки, таймаута или не-2xx.
	body, err := upstream.FirstSuccess(ctx, attempts, func(err error) bool {
		return !upstream.IsTransport(err)
	})
	if err != nil {
		slog.Warn("fallback tenant failed", "tenant", t.ID, "kind", string(upstream.KindOf(err)), "error", err.Error())
		return upstream.Payload{}, err
	}
	return upstream.Payload{Source: models.FallbackSource(t.ID), Body: body}, nil
}

func (c *Client) allow(ctx context.Context, t models.Tenant) error {
	if c.limiter == nil || c.opts.RateLimitPerMinute <= 0 {
		return nil
	}
	ok, n, err := c.limiter.Allow(ctx, "rl:fallback:"+t.ID, c.opts.RateLimitPerMinute, time.Minute)
	if err != nil {
		// Лимитер недоступен: не блокируем запросы.
		slog.Warn("fallback rate limiter unavailable", "tenant", t.ID, "error", err.Error())
		return nil
	}
	if !ok {
		return &upstream.Error{Kind: upstream.KindRateLimited, Upstream: Name, Err: errors.Errorf("tenant %s: %d requests in window", t.ID, n)}
	}
	return nil
}

func (c *Client) observe(err error, d time.Duration) {
	if c.rec == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(upstream.KindOf(err))
	}
	c.rec.ObserveUpstream(Name, outcome, d)
}

func (c *Client) get(ctx context.Context, ep Endpoint, t models.Tenant, path string, params url.Values) (json.RawMessage, error) {
	u, err := url.Parse(strings.TrimRight(ep.BaseURL, "/") + path)
	if err != nil {
		return nil, &upstream.Error{Kind: upstream.KindConfig, Upstream: Name, Err: errors.Wrap(err, "parse base url")}
	}
	u.RawQuery = params.Encode()
	endpoint := u.String()

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &upstream.Error{Kind: upstream.KindConfig, Upstream: Name, Endpoint: endpoint, Err: errors.Wrap(err, "new request")}
	}
	req.Header.Set("appKey", t.AppKey)
	req.Header.Set("appToken", t.AppToken)
	req.Header.Set("Accept", "application/json")
	if ep.Origin != "" {
		req.Header.Set("Origin", ep.Origin)
	}
	if ep.Referer != "" {
		req.Header.Set("Referer", ep.Referer)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, upstream.FromDoError(Name, endpoint, err)
	}
	defer resp.Body.Close()

	if ue := upstream.FromStatus(Name, endpoint, resp); ue != nil {
		return nil, ue
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, upstream.FromDoError(Name, endpoint, errors.Wrap(err, "read body"))
	}
	if err := validateBody(body); err != nil {
		err.Endpoint = endpoint
		return nil, err
	}
	return body, nil
}

// softStatus — поля, по которым апстрим сообщает об ошибке при HTTP 200.
type softStatus struct {
	Code        json.RawMessage `json:"code"`
	Description string          `json:"description"`
	Message     string          `json:"message"`
	Msg         string          `json:"msg"`
}

var notFoundHints = []string{"not found", "no data", "not exist", "未找到", "不存在", "查无", "无数据"}

func validateBody(body []byte) *upstream.Error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return &upstream.Error{Kind: upstream.KindEmpty, Upstream: Name}
	}
	if trimmed[0] != '{' {
		return &upstream.Error{Kind: upstream.KindMalformed, Upstream: Name, Err: errors.New("body is not a JSON object")}
	}
	var st softStatus
	if err := json.Unmarshal(trimmed, &st); err != nil {
		return &upstream.Error{Kind: upstream.KindMalformed, Upstream: Name, Err: errors.Wrap(err, "decode body")}
	}

	code := parseCode(st.Code)
	desc := st.Description
	if desc == "" {
		desc = st.Message
	}
	if desc == "" {
		desc = st.Msg
	}

	if code == http.StatusNotFound || mentionsNotFound(desc) {
		return &upstream.Error{Kind: upstream.KindNotFound, Upstream: Name, Status: http.StatusNotFound, Err: errors.New(desc)}
	}
	if code >= 400 {
		return &upstream.Error{Kind: upstream.KindRejected, Upstream: Name, Status: code, Err: errors.New(desc)}
	}
	return nil
}

// parseCode: code бывает числом или строкой с числом.
func parseCode(raw json.RawMessage) int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if v, err := strconv.Atoi(n.String()); err == nil {
			return v
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return v
		}
	}
	return 0
}

func mentionsNotFound(desc string) bool {
	low := strings.ToLower(desc)
	for _, h := range notFoundHints {
		if strings.Contains(low, h) {
			return true
		}
	}
	return false
}
