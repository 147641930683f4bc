// Package fetcher is the shared HTTP layer: colly collectors with bounded
// retry and backoff, plus the redirect based existence probe.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-tululu/config"
	"github.com/aluiziolira/go-scrape-tululu/metrics"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

// Options tune a single Fetch call.
type Options struct {
	// FollowRedirects must stay false wherever a redirect carries meaning.
	FollowRedirects bool
	Query           url.Values
}

// Response is a fully read HTTP response.
type Response struct {
	URL        *url.URL
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client issues GET requests with retry on transient server errors.
type Client struct {
	cfg       *config.Config
	follow    *colly.Collector
	direct    *colly.Collector
	limiter   *rate.Limiter
	retryable map[int]struct{}
	Metrics   *metrics.Metrics

	sleep func(ctx context.Context, d time.Duration) error

	requestCount int64
	retryCount   int64
}

// NewClient builds a client configured from cfg.
func NewClient(cfg *config.Config, m *metrics.Metrics) (*Client, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	transport := newTransport(cfg)
	follow, err := newCollector(cfg, transport, true)
	if err != nil {
		return nil, err
	}
	direct, err := newCollector(cfg, transport, false)
	if err != nil {
		return nil, err
	}

	retryable := make(map[int]struct{}, len(cfg.RetryStatuses))
	for _, status := range cfg.RetryStatuses {
		retryable[status] = struct{}{}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}

	return &Client{
		cfg:       cfg,
		follow:    follow,
		direct:    direct,
		limiter:   limiter,
		retryable: retryable,
		Metrics:   m,
		sleep:     sleepContext,
	}, nil
}

func newTransport(cfg *config.Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

func newCollector(cfg *config.Config, transport http.RoundTripper, followRedirects bool) (*colly.Collector, error) {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
	)
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	collector.MaxBodySize = cfg.MaxBodySize
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(transport)

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Workers,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	if !followRedirects {
		collector.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		})
	}
	return collector, nil
}

// WithTransport swaps the round tripper of both collectors.
func (c *Client) WithTransport(transport http.RoundTripper) {
	c.follow.WithTransport(transport)
	c.direct.WithTransport(transport)
}

// Fetch issues a GET request. 2xx and 3xx responses are returned as is;
// statuses listed in RetryStatuses and network faults are retried with
// exponential backoff, other error statuses fail immediately.
func (c *Client) Fetch(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	target, err := withQuery(rawURL, opts.Query)
	if err != nil {
		return nil, err
	}

	collector := c.direct
	if opts.FollowRedirects {
		collector = c.follow
	}

	var (
		lastErr    error
		lastStatus int
		attempts   int
	)
	for attempts < c.cfg.MaxAttempts {
		if attempts > 0 {
			atomic.AddInt64(&c.retryCount, 1)
			c.Metrics.IncRetries()
			delay := c.backoff(attempts)
			slog.Debug("retrying request",
				slog.String("url", target),
				slog.Int("attempt", attempts+1),
				slog.Duration("delay", delay),
				slog.Any("error", lastErr),
			)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		attempts++

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := c.visit(collector, target)
		if err != nil {
			classified := classifyError(err, 0, target)
			c.Metrics.IncError(ErrorTypeLabel(classified))
			if !transient(classified) {
				return nil, classified
			}
			lastErr, lastStatus = classified, 0
			continue
		}

		if _, ok := c.retryable[resp.StatusCode]; ok {
			lastErr = ErrStatus{URL: target, Code: resp.StatusCode}
			lastStatus = resp.StatusCode
			c.Metrics.IncError("transient_status")
			continue
		}
		if resp.StatusCode >= http.StatusBadRequest {
			classified := classifyError(nil, resp.StatusCode, target)
			c.Metrics.IncError(ErrorTypeLabel(classified))
			return nil, classified
		}
		return resp, nil
	}

	exhausted := ErrRetriesExhausted{URL: target, Attempts: attempts, Status: lastStatus, Err: lastErr}
	c.Metrics.IncError(ErrorTypeLabel(exhausted))
	return nil, exhausted
}

func (c *Client) visit(base *colly.Collector, target string) (*Response, error) {
	collector := base.Clone()

	var resp *Response
	collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
		atomic.AddInt64(&c.requestCount, 1)
		c.Metrics.IncRequest("started")
	})
	collector.OnResponse(func(r *colly.Response) {
		if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
			c.Metrics.ObserveDuration(time.Since(start))
		}
		c.Metrics.IncRequest("completed")

		header := http.Header{}
		if r.Headers != nil {
			header = r.Headers.Clone()
		}
		resp = &Response{
			URL:        r.Request.URL,
			StatusCode: r.StatusCode,
			Header:     header,
			Body:       r.Body,
		}
	})

	if err := collector.Visit(target); err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("no response for %s", target)
	}
	return resp, nil
}

func (c *Client) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := c.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := c.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

// Stats returns the number of requests issued and retries scheduled so far.
func (c *Client) Stats() (requests, retries int) {
	return int(atomic.LoadInt64(&c.requestCount)), int(atomic.LoadInt64(&c.retryCount))
}

func withQuery(rawURL string, query url.Values) (string, error) {
	if len(query) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	values := u.Query()
	for key, list := range query {
		for _, v := range list {
			values.Add(key, v)
		}
	}
	u.RawQuery = values.Encode()
	return u.String(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
