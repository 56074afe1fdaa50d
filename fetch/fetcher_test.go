package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-tululu/config"
	"github.com/aluiziolira/go-scrape-tululu/metrics"
	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const testBase = "http://tululu.test/"

func newTestFetcher(t *testing.T, transport *httpmock.MockTransport, opts ...Option) *Fetcher {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseURL = testBase
	f, err := New(cfg, append([]Option{WithTransport(transport)}, opts...)...)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	return f
}

func redirectResponder(location string) httpmock.Responder {
	return func(*http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(http.StatusFound, "")
		resp.Header.Set("Location", location)
		return resp, nil
	}
}

func TestFetchSuccess(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBase+"b12/", httpmock.NewStringResponder(200, "<html>book</html>"))

	f := newTestFetcher(t, transport)
	page, err := f.Fetch(context.Background(), testBase+"b12/")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if page.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", page.StatusCode)
	}
	if page.Text() != "<html>book</html>" {
		t.Fatalf("body = %q", page.Text())
	}
	if page.FinalURL != page.URL || len(page.Redirects) != 0 {
		t.Fatalf("unexpected redirect info: final=%s hops=%v", page.FinalURL, page.Redirects)
	}
	if err := CheckRedirect(page); err != nil {
		t.Fatalf("check redirect: %v", err)
	}
}

func TestFetchRecordsRedirect(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBase+"b34/", redirectResponder(testBase))
	transport.RegisterResponder("GET", testBase, httpmock.NewStringResponder(200, "<html>home</html>"))

	f := newTestFetcher(t, transport)
	page, err := f.Fetch(context.Background(), testBase+"b34/")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if page.FinalURL != testBase {
		t.Fatalf("final url = %q, want %q", page.FinalURL, testBase)
	}
	if len(page.Redirects) != 1 {
		t.Fatalf("redirects = %v, want one hop", page.Redirects)
	}

	var redirect ErrRedirect
	if err := CheckRedirect(page); !errors.As(err, &redirect) {
		t.Fatalf("expected ErrRedirect, got %v", err)
	}
	if redirect.From != testBase+"b34/" || redirect.To != testBase {
		t.Fatalf("redirect = %+v", redirect)
	}

	if _, err := f.Get(context.Background(), testBase+"b34/"); !IsRedirect(err) {
		t.Fatalf("Get should report redirect, got %v", err)
	}
}

func TestFetchHTTPFailure(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{name: "not found", status: http.StatusNotFound},
		{name: "forbidden", status: http.StatusForbidden},
		{name: "server error", status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", testBase+"b1/", httpmock.NewStringResponder(tt.status, ""))

			f := newTestFetcher(t, transport)
			_, err := f.Fetch(context.Background(), testBase+"b1/")

			var status ErrHTTP
			if !errors.As(err, &status) {
				t.Fatalf("expected ErrHTTP, got %v", err)
			}
			if status.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", status.StatusCode, tt.status)
			}
			if IsConnection(err) {
				t.Fatalf("http failure must not be a connection failure")
			}
		})
	}
}

func TestFetchConnectionFailure(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBase+"b1/",
		httpmock.NewErrorResponder(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}))

	m := metrics.New()
	f := newTestFetcher(t, transport, WithMetrics(m))
	_, err := f.Fetch(context.Background(), testBase+"b1/")
	if !IsConnection(err) {
		t.Fatalf("expected connection failure, got %v", err)
	}
	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("connection failure should wrap the transport error, got %v", err)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("connection")); got != 1 {
		t.Fatalf("connection requests = %v, want 1", got)
	}
}

func TestFetchCanceledContext(t *testing.T) {
	transport := httpmock.NewMockTransport()
	f := newTestFetcher(t, transport)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Fetch(ctx, testBase); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n := transport.GetTotalCallCount(); n != 0 {
		t.Fatalf("transport calls = %d, want 0", n)
	}
}

func TestFetchCancelDuringRequest(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBase+"b7/", func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})

	f := newTestFetcher(t, transport)
	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(50*time.Millisecond, cancel)
	defer timer.Stop()

	start := time.Now()
	_, err := f.Fetch(ctx, testBase+"b7/")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("fetch returned after %v, want prompt cancellation", elapsed)
	}
}

func TestFetchSameURLTwice(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBase+"txt.php?id=5", httpmock.NewStringResponder(200, "text"))

	f := newTestFetcher(t, transport)
	for i := 0; i < 2; i++ {
		if _, err := f.Fetch(context.Background(), testBase+"txt.php?id=5"); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
}
