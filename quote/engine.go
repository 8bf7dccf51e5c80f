// Package quote turns a payment intent into a spread-adjusted, time-boxed quote and
// signs it with the dealer key.
package quote

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/seabucks/dealer"
	"github.com/seabucks/dealer/metrics"
	"github.com/seabucks/dealer/validation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// DefaultSpreadBps is the dealer margin applied when none is configured.
	DefaultSpreadBps int64 = 50

	// DefaultValidity is how long a quote stays settleable.
	DefaultValidity = 300 * time.Second

	maxNonceDraws = 3
)

// RateSource resolves the USD reference rate of a currency.
type RateSource interface {
	GetRate(ctx context.Context, code string) (dealer.ExchangeRate, error)
}

// Signer binds a quote to the dealer key.
type Signer interface {
	Address() common.Address
	SignQuote(q dealer.Quote, domain dealer.Domain) (*dealer.SignedQuote, error)
}

// IssuedRegistry is optional off-chain bookkeeping of issued nonces. It is not
// authoritative; the router's consumed set is.
type IssuedRegistry interface {
	// Reserve records nonce for chainID until ttl elapses. It reports false when the
	// nonce was already reserved.
	Reserve(ctx context.Context, chainID int64, nonce *big.Int, ttl time.Duration) (bool, error)
}

// Request is a payment intent. AmountIn is a base-10 integer in the smallest unit of TokenIn.
// TargetCurrency may be empty when TokenOut is a registered currency token.
type Request struct {
	TokenIn        string
	TokenOut       string
	AmountIn       string
	Recipient      string
	TargetCurrency string
	ChainID        int64
}

// Priced is an unsigned quote together with its pricing inputs.
type Priced struct {
	Quote         dealer.Quote
	Domain        dealer.Domain
	Currency      string
	Rate          decimal.Decimal
	EffectiveRate decimal.Decimal
	SpreadBps     int64
	RateSource    string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// Issued is a priced quote signed by the dealer.
type Issued struct {
	*Priced
	Signed dealer.SignedQuote
	Dealer common.Address
}

// Engine builds and issues quotes. It holds no per-request state and is safe for
// concurrent use.
type Engine struct {
	rates     RateSource
	signer    Signer
	chains    map[int64]dealer.ChainConfig
	routers   map[int64]common.Address
	spreadBps int64
	validity  time.Duration
	nonces    NonceSource
	registry  IssuedRegistry
	now       func() time.Time
	log       *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSpreadBps sets the dealer spread in basis points.
func WithSpreadBps(bps int64) Option {
	return func(e *Engine) {
		e.spreadBps = bps
	}
}

// WithValidity sets the quote validity window.
func WithValidity(d time.Duration) Option {
	return func(e *Engine) {
		e.validity = d
	}
}

// WithRouters sets the settlement router address per chain ID.
func WithRouters(routers map[int64]common.Address) Option {
	return func(e *Engine) {
		e.routers = routers
	}
}

// WithChains replaces the built-in chain registry.
func WithChains(chains map[int64]dealer.ChainConfig) Option {
	return func(e *Engine) {
		e.chains = chains
	}
}

// WithNonceSource replaces the default RandomNonce source.
func WithNonceSource(src NonceSource) Option {
	return func(e *Engine) {
		e.nonces = src
	}
}

// WithRegistry enables issued-nonce bookkeeping.
func WithRegistry(r IssuedRegistry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets the engine logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// NewEngine creates a quote engine. A nil signer is allowed so that quotes can still be
// priced, but Issue then fails with dealer.ErrSigningUnavailable.
func NewEngine(rates RateSource, signer Signer, opts ...Option) (*Engine, error) {
	e := &Engine{
		rates:     rates,
		signer:    signer,
		chains:    dealer.Chains(),
		routers:   map[int64]common.Address{},
		spreadBps: DefaultSpreadBps,
		validity:  DefaultValidity,
		nonces:    RandomNonce{},
		now:       time.Now,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.rates == nil {
		return nil, errors.New("quote: rate source is required")
	}
	if e.spreadBps < 0 || e.spreadBps >= MaxSpreadBps {
		return nil, fmt.Errorf("quote: spread %d bps out of range [0, %d)", e.spreadBps, MaxSpreadBps)
	}
	if e.validity < time.Second {
		return nil, fmt.Errorf("quote: validity window %s must be at least 1s", e.validity)
	}
	return e, nil
}

// SpreadBps returns the configured spread.
func (e *Engine) SpreadBps() int64 { return e.spreadBps }

// Validity returns the configured validity window.
func (e *Engine) Validity() time.Duration { return e.validity }

// DealerAddress returns the signing address, or false when no key is configured.
func (e *Engine) DealerAddress() (common.Address, bool) {
	if e.signer == nil {
		return common.Address{}, false
	}
	return e.signer.Address(), true
}

// SupportedChains returns the chain IDs that have both a registry entry and a router.
func (e *Engine) SupportedChains() []int64 {
	ids := make([]int64, 0, len(e.routers))
	for id, router := range e.routers {
		if _, ok := e.chains[id]; ok && router != (common.Address{}) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Domain returns the router signing domain of a supported chain.
func (e *Engine) Domain(chainID int64) (dealer.Domain, error) {
	if _, ok := e.chains[chainID]; !ok {
		return dealer.Domain{}, fmt.Errorf("%w: %d", dealer.ErrUnsupportedChain, chainID)
	}
	router := e.routers[chainID]
	if router == (common.Address{}) {
		return dealer.Domain{}, fmt.Errorf("%w: no router configured for chain %d", dealer.ErrUnsupportedChain, chainID)
	}
	return dealer.NewRouterDomain(chainID, router), nil
}

// BuildQuote validates req, prices it and assigns nonce and deadline. Input errors are
// returned before the rate source is consulted.
func (e *Engine) BuildQuote(ctx context.Context, req Request) (*Priced, error) {
	amountIn, chain, token, currency, err := e.validate(req)
	if err != nil {
		return nil, err
	}
	domain, err := e.Domain(req.ChainID)
	if err != nil {
		return nil, err
	}

	rate, err := e.rates.GetRate(ctx, currency.Code)
	if err != nil {
		return nil, err
	}

	amountOut := ComputeAmountOut(amountIn, token.Decimals, rate.Rate, e.spreadBps, currency.Decimals)
	if amountOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amountIn too small to produce a payout", dealer.ErrInvalidAmount)
	}
	if !validation.FitsUint256(amountOut) {
		return nil, fmt.Errorf("%w: amountOut exceeds uint256", dealer.ErrInvalidAmount)
	}

	issuedAt := e.now()
	expiresAt := issuedAt.Add(e.validity)

	nonce, err := e.drawNonce(ctx, chain.ChainID, issuedAt)
	if err != nil {
		return nil, err
	}

	return &Priced{
		Quote: dealer.Quote{
			TokenIn:   token.Address,
			TokenOut:  common.HexToAddress(req.TokenOut),
			AmountIn:  amountIn,
			AmountOut: amountOut,
			Recipient: common.HexToAddress(req.Recipient),
			Nonce:     nonce,
			Deadline:  big.NewInt(expiresAt.Unix()),
		},
		Domain:        domain,
		Currency:      currency.Code,
		Rate:          rate.Rate,
		EffectiveRate: EffectiveRate(rate.Rate, e.spreadBps),
		SpreadBps:     e.spreadBps,
		RateSource:    rate.Source,
		IssuedAt:      issuedAt,
		ExpiresAt:     expiresAt,
	}, nil
}

// Issue builds a quote and signs it. Without a dealer key nothing is priced and
// dealer.ErrSigningUnavailable is returned.
func (e *Engine) Issue(ctx context.Context, req Request) (*Issued, error) {
	issued, err := e.issue(ctx, req)
	if err != nil {
		metrics.QuoteErrorsTotal.WithLabelValues(string(dealer.CodeOf(err))).Inc()
		e.log.Warn("quote.rejected",
			zap.Int64("chain_id", req.ChainID),
			zap.String("currency", req.TargetCurrency),
			zap.Error(err),
		)
		return nil, err
	}

	metrics.QuotesIssuedTotal.WithLabelValues(issued.Currency, strconv.FormatInt(req.ChainID, 10)).Inc()
	e.log.Info("quote.issued",
		zap.Int64("chain_id", req.ChainID),
		zap.String("currency", issued.Currency),
		zap.String("amount_in", issued.Quote.AmountIn.String()),
		zap.String("amount_out", issued.Quote.AmountOut.String()),
		zap.String("rate", issued.Rate.String()),
		zap.String("rate_source", issued.RateSource),
		zap.String("nonce", issued.Quote.Nonce.String()),
	)
	return issued, nil
}

func (e *Engine) issue(ctx context.Context, req Request) (*Issued, error) {
	if e.signer == nil {
		return nil, dealer.NewDealerError(dealer.ErrCodeSigningUnavailable, "dealer key not configured", dealer.ErrSigningUnavailable)
	}

	priced, err := e.BuildQuote(ctx, req)
	if err != nil {
		return nil, err
	}

	signed, err := e.signer.SignQuote(priced.Quote, priced.Domain)
	if err != nil {
		if dealer.CodeOf(err) == dealer.ErrCodeInternal {
			err = dealer.NewDealerError(dealer.ErrCodeSigningFailed, "failed to sign quote", errors.Join(dealer.ErrSigningFailed, err))
		}
		return nil, err
	}

	return &Issued{Priced: priced, Signed: *signed, Dealer: e.signer.Address()}, nil
}

func (e *Engine) validate(req Request) (*big.Int, dealer.ChainConfig, dealer.TokenConfig, dealer.CurrencyConfig, error) {
	var (
		chain    dealer.ChainConfig
		token    dealer.TokenConfig
		currency dealer.CurrencyConfig
	)

	for _, f := range []struct{ name, value string }{
		{"tokenIn", req.TokenIn},
		{"tokenOut", req.TokenOut},
		{"recipient", req.Recipient},
	} {
		if err := validation.ValidateAddress(f.name, f.value); err != nil {
			return nil, chain, token, currency, err
		}
	}

	amountIn, err := validation.ValidateAmount(req.AmountIn)
	if err != nil {
		return nil, chain, token, currency, err
	}

	chain, ok := e.chains[req.ChainID]
	if !ok {
		return nil, chain, token, currency, fmt.Errorf("%w: %d", dealer.ErrUnsupportedChain, req.ChainID)
	}
	if e.routers[req.ChainID] == (common.Address{}) {
		return nil, chain, token, currency, fmt.Errorf("%w: no router configured for chain %d", dealer.ErrUnsupportedChain, req.ChainID)
	}

	token, ok = chain.Stablecoin(common.HexToAddress(req.TokenIn))
	if !ok {
		return nil, chain, token, currency, fmt.Errorf("%w: tokenIn %s is not an accepted stablecoin on %s", dealer.ErrUnsupportedToken, req.TokenIn, chain.Name)
	}

	tokenOut := common.HexToAddress(req.TokenOut)
	if req.TargetCurrency == "" {
		code, ok := chain.CurrencyForToken(tokenOut)
		if !ok {
			return nil, chain, token, currency, fmt.Errorf("%w: currency required for unregistered tokenOut %s", dealer.ErrUnsupportedCurrency, req.TokenOut)
		}
		req.TargetCurrency = code
	}
	currency, err = validation.ValidateCurrency(req.TargetCurrency)
	if err != nil {
		return nil, chain, token, currency, err
	}
	if registered, ok := chain.CurrencyTokens[currency.Code]; ok && registered != (common.Address{}) && registered != tokenOut {
		return nil, chain, token, currency, fmt.Errorf("%w: tokenOut %s does not pay out %s", dealer.ErrUnsupportedToken, req.TokenOut, currency.Code)
	}

	return amountIn, chain, token, currency, nil
}

// drawNonce takes a nonce from the source and, when a registry is configured, reserves
// it. Collisions are re-drawn a bounded number of times; registry failures are logged
// and ignored since settlement enforces uniqueness anyway.
func (e *Engine) drawNonce(ctx context.Context, chainID int64, now time.Time) (*big.Int, error) {
	var nonce *big.Int
	for draw := 0; draw < maxNonceDraws; draw++ {
		n, err := e.nonces.Next(now)
		if err != nil {
			return nil, dealer.NewDealerError(dealer.ErrCodeInternal, "failed to generate nonce", err)
		}
		nonce = n

		if e.registry == nil {
			return nonce, nil
		}
		fresh, err := e.registry.Reserve(ctx, chainID, nonce, e.validity)
		if err != nil {
			e.log.Warn("quote.registry_unavailable", zap.Error(err))
			return nonce, nil
		}
		if fresh {
			return nonce, nil
		}
		e.log.Debug("quote.nonce_collision", zap.String("nonce", nonce.String()))
		now = e.now()
	}
	return nonce, nil
}
