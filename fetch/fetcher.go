// Package fetch issues the crawler's HTTP requests and detects the
// redirect-to-home-page responses the catalog site uses for missing IDs.
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-tululu/config"
	"github.com/aluiziolira/go-scrape-tululu/metrics"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/proxy"
)

const maxRedirects = 10

// Page is a completed GET request.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Header     http.Header
	Body       []byte
	// Redirects lists every hop the client followed, in order.
	Redirects []string
}

// Text returns the body as a string. The collector has already converted
// it to UTF-8 when the response declared another charset.
func (p *Page) Text() string {
	return string(p.Body)
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithTransport swaps the HTTP transport, e.g. for an httpmock transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) {
		f.setTransport(rt)
	}
}

// WithMetrics records request counts and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) {
		f.metrics = m
	}
}

// Fetcher wraps a synchronous colly collector. Requests are serialised:
// the collector callbacks write into the single in-flight attempt.
type Fetcher struct {
	collector *colly.Collector
	metrics   *metrics.Metrics

	mu       sync.Mutex
	inflight *attempt
}

type attempt struct {
	ctx      context.Context
	response *colly.Response
	err      error
	hops     []string
}

// New builds a fetcher configured from cfg.
func New(cfg *config.Config, opts ...Option) (*Fetcher, error) {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(cfg.MaxBodySize),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt

	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}
	f := &Fetcher{collector: collector}
	f.setTransport(transport)

	if cfg.Delay > 0 {
		if err := collector.Limit(&colly.LimitRule{
			DomainGlob:  "*",
			Parallelism: 1,
			Delay:       cfg.Delay,
		}); err != nil {
			return nil, fmt.Errorf("configure rate limits: %w", err)
		}
	}

	collector.SetRedirectHandler(f.recordRedirect)
	collector.OnResponse(func(r *colly.Response) {
		if f.inflight != nil {
			f.inflight.response = r
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if f.inflight != nil {
			f.inflight.response = r
			f.inflight.err = err
		}
	})

	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func newTransport(cfg *config.Config) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   cfg.Timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if cfg.ProxyAddr != "" {
		socks, err := proxy.SOCKS5("tcp", cfg.ProxyAddr, nil, dialer)
		if err != nil {
			return nil, fmt.Errorf("configure socks5 proxy %s: %w", cfg.ProxyAddr, err)
		}
		contextDialer, ok := socks.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks5 dialer for %s does not support contexts", cfg.ProxyAddr)
		}
		transport.Proxy = nil
		transport.DialContext = contextDialer.DialContext
	}
	return transport, nil
}

// Fetch performs a single GET. It does not retry: a transport failure is
// returned as ErrConnection and an error status as ErrHTTP. Redirects are
// followed and recorded on the returned Page. Canceling ctx aborts the
// request in flight and Fetch returns ctx's error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.inflight = &attempt{ctx: ctx}
	defer func() { f.inflight = nil }()

	start := time.Now()
	visitErr := f.collector.Request(http.MethodGet, rawURL, nil, nil, nil)
	var (
		page *Page
		err  error
	)
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("request %s: %w", rawURL, ctxErr)
	} else {
		page, err = buildPage(rawURL, f.inflight, visitErr)
	}
	f.metrics.ObserveRequest(outcomeLabel(err), time.Since(start))
	return page, err
}

// Get fetches rawURL and applies CheckRedirect before returning the page.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Page, error) {
	page, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if err := CheckRedirect(page); err != nil {
		return nil, err
	}
	return page, nil
}

// setTransport installs rt behind a wrapper that binds each outgoing
// request, redirect hops included, to the in-flight attempt's context.
func (f *Fetcher) setTransport(rt http.RoundTripper) {
	f.collector.WithTransport(&contextTransport{base: rt, fetcher: f})
}

type contextTransport struct {
	base    http.RoundTripper
	fetcher *Fetcher
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if att := t.fetcher.inflight; att != nil && att.ctx != nil {
		req = req.WithContext(att.ctx)
	}
	return t.base.RoundTrip(req)
}

func (f *Fetcher) recordRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return http.ErrUseLastResponse
	}
	if f.inflight != nil {
		f.inflight.hops = append(f.inflight.hops, req.URL.String())
	}
	return nil
}

func buildPage(rawURL string, att *attempt, visitErr error) (*Page, error) {
	if visitErr != nil {
		statusCode := 0
		if att.response != nil {
			statusCode = att.response.StatusCode
		}
		switch {
		case statusCode != 0:
			return nil, ErrHTTP{URL: rawURL, StatusCode: statusCode, Err: visitErr}
		case att.err != nil:
			return nil, ErrConnection{URL: rawURL, Err: visitErr}
		default:
			return nil, fmt.Errorf("request %s: %w", rawURL, visitErr)
		}
	}
	if att.response == nil {
		return nil, fmt.Errorf("request %s: no response recorded", rawURL)
	}

	page := &Page{
		URL:        rawURL,
		FinalURL:   rawURL,
		StatusCode: att.response.StatusCode,
		Body:       att.response.Body,
		Redirects:  att.hops,
	}
	if att.response.Headers != nil {
		page.Header = att.response.Headers.Clone()
	}
	if n := len(att.hops); n > 0 {
		page.FinalURL = att.hops[n-1]
	}
	return page, nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsConnection(err):
		return "connection"
	case IsHTTP(err):
		return "http"
	default:
		return "other"
	}
}
