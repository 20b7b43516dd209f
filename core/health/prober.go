package health

//go:generate mockgen -package=mocks -destination=../../mocks/mock_prober.go github.com/sourceshift/relaypool/core/health Prober

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	xproxy "golang.org/x/net/proxy"

	"github.com/sourceshift/relaypool/core/pool"
)

// Result is the outcome of a single probe request issued through an
// endpoint.
type Result struct {
	StatusCode int
	Elapsed    time.Duration
}

// Prober issues one bounded GET through an endpoint and reports the status
// code and elapsed time. Implementations must honor ctx cancellation.
type Prober interface {
	Probe(ctx context.Context, ep *pool.Endpoint, probeURL string) (Result, error)
}

// HTTPProber probes through an endpoint with net/http, speaking HTTP CONNECT
// to http/https endpoints and SOCKS5 (via x/net/proxy) to socks5 ones.
type HTTPProber struct {
	timeout time.Duration
}

// NewHTTPProber creates a prober whose individual requests are bounded by
// timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProber{timeout: timeout}
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context, ep *pool.Endpoint, probeURL string) (Result, error) {
	transport, err := p.transportFor(ep)
	if err != nil {
		return Result{}, err
	}
	client := &http.Client{
		Transport: transport,
		Timeout:   p.timeout,
	}
	defer transport.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("building probe request: %w", err)
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return Result{}, fmt.Errorf("probe through %s: %w", ep.String(), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return Result{StatusCode: resp.StatusCode, Elapsed: elapsed}, nil
}

func (p *HTTPProber) transportFor(ep *pool.Endpoint) (*http.Transport, error) {
	switch ep.Protocol {
	case "socks5":
		var auth *xproxy.Auth
		if ep.Username != "" {
			auth = &xproxy.Auth{User: ep.Username, Password: ep.Password}
		}
		dialer, err := xproxy.SOCKS5("tcp", ep.Key(), auth, &net.Dialer{Timeout: p.timeout})
		if err != nil {
			return nil, fmt.Errorf("building socks5 dialer for %s: %w", ep.String(), err)
		}
		return &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				if cd, ok := dialer.(xproxy.ContextDialer); ok {
					return cd.DialContext(ctx, network, addr)
				}
				return dialer.Dial(network, addr)
			},
		}, nil
	default:
		proxyURL, err := url.Parse(ep.ConnString())
		if err != nil {
			return nil, fmt.Errorf("building proxy url for %s: %w", ep.String(), err)
		}
		return &http.Transport{Proxy: http.ProxyURL(proxyURL)}, nil
	}
}
