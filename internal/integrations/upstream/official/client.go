package official

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/BearBump/TrackProxy/internal/integrations/upstream"
	"github.com/BearBump/TrackProxy/internal/models"
	"github.com/pkg/errors"
)

const Name = "official"

const (
	DefaultBaseURL = "http://cbel.pgs-log.com/edi/pubTracking"
	DefaultHost    = "cbel.pgs-log.com"
	DefaultURLPath = "/public-tracking"
	DefaultTimeout = 5 * time.Second
)

type Options struct {
	BaseURL string
	// Host и URLPath уходят в query как host= и url=, апстрим без них отвечает пустым массивом.
	Host    string
	URLPath string
	Timeout time.Duration
}

type Recorder interface {
	ObserveUpstream(name, outcome string, d time.Duration)
}

// Client ходит в публичный трекинг без авторизации. Быстрый таймаут: это первая попытка.
type Client struct {
	opts  Options
	httpc *http.Client
	rec   Recorder
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.URLPath == "" {
		opts.URLPath = DefaultURLPath
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Client{
		opts:  opts,
		httpc: &http.Client{},
	}
}

func (c *Client) WithRecorder(r Recorder) *Client {
	c.rec = r
	return c
}

func (c *Client) Timeout() time.Duration { return c.opts.Timeout }

func (c *Client) BaseURL() string { return c.opts.BaseURL }

func (c *Client) Query(ctx context.Context, reference string) (upstream.Payload, error) {
	started := time.Now()
	p, err := c.query(ctx, reference)
	if c.rec != nil {
		outcome := "ok"
		if err != nil {
			outcome = string(upstream.KindOf(err))
		}
		c.rec.ObserveUpstream(Name, outcome, time.Since(started))
	}
	return p, err
}

func (c *Client) query(ctx context.Context, reference string) (upstream.Payload, error) {
	u, err := url.Parse(c.opts.BaseURL)
	if err != nil {
		return upstream.Payload{}, &upstream.Error{Kind: upstream.KindConfig, Upstream: Name, Err: errors.Wrap(err, "parse base url")}
	}
	q := u.Query()
	q.Set("host", c.opts.Host)
	q.Set("noSubTracking", "false")
	q.Set("soNum", reference)
	q.Set("url", c.opts.URLPath)
	u.RawQuery = q.Encode()
	endpoint := u.String()

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return upstream.Payload{}, &upstream.Error{Kind: upstream.KindConfig, Upstream: Name, Endpoint: endpoint, Err: errors.Wrap(err, "new request")}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "PGS-Tracking-System/1.0")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return upstream.Payload{}, upstream.FromDoError(Name, endpoint, err)
	}
	defer resp.Body.Close()

	if ue := upstream.FromStatus(Name, endpoint, resp); ue != nil {
		return upstream.Payload{}, ue
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return upstream.Payload{}, upstream.FromDoError(Name, endpoint, errors.Wrap(err, "read body"))
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return upstream.Payload{}, &upstream.Error{Kind: upstream.KindMalformed, Upstream: Name, Endpoint: endpoint, Err: errors.Wrap(err, "decode array")}
	}
	if len(items) == 0 {
		return upstream.Payload{}, &upstream.Error{Kind: upstream.KindEmpty, Upstream: Name, Endpoint: endpoint}
	}
	first := items[0]
	if len(first) == 0 || first[0] != '{' {
		return upstream.Payload{}, &upstream.Error{Kind: upstream.KindMalformed, Upstream: Name, Endpoint: endpoint, Err: errors.New("first element is not an object")}
	}

	return upstream.Payload{Source: models.SourceOfficial, Body: first}, nil
}
