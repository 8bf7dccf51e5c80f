// Package rates resolves USD reference rates for the payout currencies. Providers are
// queried in priority order; a provider that errors, times out or lacks a currency
// declines it and the next tier answers. The hardcoded table always answers last.
package rates

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
)

// Source names reported in dealer.ExchangeRate.Source.
const (
	SourceExchangeRateAPI = "Exchange Rate API"
	SourceFrankfurter     = "Frankfurter API"
	SourceFallback        = "Fallback (offline)"

	cachedSuffix = " (cached)"
)

// Provider is one reference-rate tier.
//
// Fetch returns USD-based rates for as many of codes as it can. A code missing from the
// result is declined by this provider; an error declines all of them.
//
//go:generate mockgen -package=rates_test -destination=mock_provider_test.go -source=provider.go Provider,HTTPClient
type Provider interface {
	Name() string
	Fetch(ctx context.Context, codes []string) (map[string]decimal.Decimal, error)
}

// HTTPClient describes an HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientOption configures an HTTP-backed provider.
type ClientOption func(*client)

type client struct {
	baseURL    string
	httpClient HTTPClient
	header     http.Header
}

// WithBaseURL overrides the provider's API root.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the provider.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) ClientOption {
	return func(c *client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

func newClient(baseURL string, opts []ClientOption) client {
	c := client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{"User-Agent": []string{"seabucks-dealer/1.0"}},
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// positive drops non-positive rates, which no provider should ever report.
func positive(in map[string]decimal.Decimal, codes []string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(codes))
	for _, code := range codes {
		if r, ok := in[code]; ok && r.IsPositive() {
			out[code] = r
		}
	}
	return out
}
