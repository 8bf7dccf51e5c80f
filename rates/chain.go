package rates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/seabucks/dealer"
	"github.com/seabucks/dealer/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// DefaultTTL is how long a resolved rate is served from cache.
	DefaultTTL = 60 * time.Second

	// DefaultProviderTimeout bounds each provider call.
	DefaultProviderTimeout = 3 * time.Second
)

// Chain resolves rates through the cache, then each provider in order, then the
// hardcoded fallback table. It is safe for concurrent use.
type Chain struct {
	providers []Provider
	fallback  map[string]decimal.Decimal
	cache     *Cache
	timeout   time.Duration
	ttl       time.Duration
	now       func() time.Time
	log       *zap.Logger
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithProviders replaces the default provider tiers.
func WithProviders(providers ...Provider) ChainOption {
	return func(c *Chain) {
		c.providers = providers
	}
}

// WithTTL sets the cache lifetime of a resolved rate.
func WithTTL(ttl time.Duration) ChainOption {
	return func(c *Chain) {
		c.ttl = ttl
	}
}

// WithProviderTimeout sets the timeout applied to each provider call.
func WithProviderTimeout(timeout time.Duration) ChainOption {
	return func(c *Chain) {
		c.timeout = timeout
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ChainOption {
	return func(c *Chain) {
		c.now = now
	}
}

// WithLogger sets the logger for provider declines.
func WithLogger(log *zap.Logger) ChainOption {
	return func(c *Chain) {
		c.log = log
	}
}

// NewChain creates a rate chain over the registered currencies. Without WithProviders
// it queries the Exchange Rate API and then Frankfurter.
func NewChain(opts ...ChainOption) *Chain {
	c := &Chain{
		providers: []Provider{NewExchangeRateAPI(), NewFrankfurter()},
		fallback:  FallbackRates(),
		timeout:   DefaultProviderTimeout,
		ttl:       DefaultTTL,
		now:       time.Now,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cache = NewCache(c.ttl, dealer.CurrencyCodes())
	return c
}

// FallbackRates returns the last-known-good table from the currency registry.
func FallbackRates() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(dealer.Currencies))
	for code, c := range dealer.Currencies {
		out[code] = c.FallbackRate
	}
	return out
}

// GetRate returns the USD rate for one currency. It only fails for currencies
// outside the registry.
func (c *Chain) GetRate(ctx context.Context, code string) (dealer.ExchangeRate, error) {
	rates, err := c.GetRates(ctx, []string{code})
	if err != nil {
		return dealer.ExchangeRate{}, err
	}
	return rates[strings.ToUpper(strings.TrimSpace(code))], nil
}

// GetRates resolves several currencies at once. Cache misses go to each provider in a
// single batched call; whatever a tier declines moves on to the next tier independently.
func (c *Chain) GetRates(ctx context.Context, codes []string) (map[string]dealer.ExchangeRate, error) {
	return c.resolveAll(ctx, codes, true)
}

// Refresh re-resolves codes through the provider tiers, ignoring the cache, and stores
// the results.
func (c *Chain) Refresh(ctx context.Context, codes []string) (map[string]dealer.ExchangeRate, error) {
	return c.resolveAll(ctx, codes, false)
}

func (c *Chain) resolveAll(ctx context.Context, codes []string, useCache bool) (map[string]dealer.ExchangeRate, error) {
	normalized := make([]string, 0, len(codes))
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if _, ok := dealer.Currencies[code]; !ok {
			return nil, fmt.Errorf("%w: %q", dealer.ErrUnsupportedCurrency, code)
		}
		if !seen[code] {
			seen[code] = true
			normalized = append(normalized, code)
		}
	}

	now := c.now()
	out := make(map[string]dealer.ExchangeRate, len(normalized))
	missing := make([]string, 0, len(normalized))
	for _, code := range normalized {
		if !useCache {
			missing = append(missing, code)
			continue
		}
		if r, ok := c.cache.Get(code, now); ok {
			metrics.RateLookupsTotal.WithLabelValues("cache").Inc()
			out[code] = r
			continue
		}
		missing = append(missing, code)
	}

	for _, p := range c.providers {
		if len(missing) == 0 {
			break
		}
		found := c.query(ctx, p, missing)

		remaining := make([]string, 0, len(missing))
		for _, code := range missing {
			rate, ok := found[code]
			if !ok {
				remaining = append(remaining, code)
				continue
			}
			c.resolve(out, dealer.ExchangeRate{Currency: code, Rate: rate, Source: p.Name(), Timestamp: c.now()}, p.Name())
		}
		missing = remaining
	}

	for _, code := range missing {
		c.resolve(out, dealer.ExchangeRate{Currency: code, Rate: c.fallback[code], Source: SourceFallback, Timestamp: c.now()}, "fallback")
	}
	return out, nil
}

func (c *Chain) resolve(out map[string]dealer.ExchangeRate, r dealer.ExchangeRate, tier string) {
	metrics.RateLookupsTotal.WithLabelValues(tier).Inc()
	c.cache.Put(r)
	out[r.Currency] = r
}

// query calls one provider under its own timeout. Any failure is a decline.
func (c *Chain) query(ctx context.Context, p Provider, codes []string) map[string]decimal.Decimal {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	found, err := p.Fetch(ctx, codes)
	metrics.ObserveDuration(metrics.ProviderRequestDuration, start, p.Name())

	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(p.Name(), "declined").Inc()
		c.log.Warn("rates.provider_declined",
			zap.String("provider", p.Name()),
			zap.Strings("currencies", codes),
			zap.Error(err),
		)
		return nil
	}
	metrics.ProviderRequestsTotal.WithLabelValues(p.Name(), "ok").Inc()
	return found
}
