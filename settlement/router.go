// Package settlement models the SEABucks router: it verifies a signed quote against the
// dealer address, enforces the deadline and single use of the nonce, and moves tokens
// atomically. It also binds the deployed router contract over JSON-RPC.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/seabucks/dealer"
	"github.com/seabucks/dealer/evm"
	"github.com/seabucks/dealer/metrics"
	"go.uber.org/zap"
)

// DefaultFeeBps is the protocol fee charged on amountIn.
const DefaultFeeBps int64 = 100

// Revert reasons.
var (
	ErrQuoteExpired          = errors.New("quote expired")
	ErrNonceConsumed         = errors.New("nonce consumed")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInvalidQuote          = errors.New("invalid quote")
)

// RevertError is an atomic rejection of a settlement. No state changed.
type RevertError struct {
	Reason string
	Err    error
}

func (e *RevertError) Error() string {
	return "execution reverted: " + e.Reason
}

func (e *RevertError) Unwrap() error {
	return e.Err
}

func revert(err error) *RevertError {
	reason := err.Error()
	if errors.Is(err, dealer.ErrInvalidSignature) {
		reason = "invalid signature"
	}
	return &RevertError{Reason: reason, Err: err}
}

// SwapExecuted is emitted for every successful settlement.
type SwapExecuted struct {
	ID        string         `json:"id"`
	ChainID   int64          `json:"chainId"`
	Router    common.Address `json:"router"`
	Payer     common.Address `json:"payer"`
	Recipient common.Address `json:"recipient"`
	TokenIn   common.Address `json:"tokenIn"`
	TokenOut  common.Address `json:"tokenOut"`
	AmountIn  *big.Int       `json:"amountIn"`
	AmountOut *big.Int       `json:"amountOut"`
	Fee       *big.Int       `json:"fee"`
	Nonce     *big.Int       `json:"nonce"`
	Memo      string         `json:"memo"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventSink receives settlement events after commit.
type EventSink interface {
	Publish(ctx context.Context, ev SwapExecuted) error
}

// Receipt is the result of a committed settlement.
type Receipt struct {
	Event SwapExecuted
}

// Config describes one router deployment.
type Config struct {
	ChainID  int64
	Address  common.Address
	Dealer   common.Address
	Treasury common.Address
	FeeBps   int64
}

// Router is the settlement state machine. Settlements are serialized, matching the
// ordering a chain imposes on transactions to one contract.
type Router struct {
	cfg    Config
	domain dealer.Domain
	ledger *Ledger
	sink   EventSink
	now    func() time.Time
	log    *zap.Logger

	mu   sync.Mutex
	used map[string]struct{}
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithEventSink publishes SwapExecuted events to sink.
func WithEventSink(sink EventSink) RouterOption {
	return func(r *Router) {
		r.sink = sink
	}
}

// WithClock overrides time.Now for deadline checks.
func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) {
		r.now = now
	}
}

// WithLogger sets the router logger.
func WithLogger(log *zap.Logger) RouterOption {
	return func(r *Router) {
		r.log = log
	}
}

// NewRouter creates a router over ledger.
func NewRouter(cfg Config, ledger *Ledger, opts ...RouterOption) (*Router, error) {
	if cfg.Address == (common.Address{}) || cfg.Dealer == (common.Address{}) {
		return nil, errors.New("settlement: router and dealer addresses are required")
	}
	if cfg.FeeBps < 0 || cfg.FeeBps >= 10000 {
		return nil, fmt.Errorf("settlement: fee %d bps out of range", cfg.FeeBps)
	}
	if cfg.Treasury == (common.Address{}) {
		cfg.Treasury = cfg.Dealer
	}
	if ledger == nil {
		ledger = NewLedger()
	}

	r := &Router{
		cfg:    cfg,
		domain: dealer.NewRouterDomain(cfg.ChainID, cfg.Address),
		ledger: ledger,
		now:    time.Now,
		log:    zap.NewNop(),
		used:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Address returns the router contract address.
func (r *Router) Address() common.Address { return r.cfg.Address }

// Domain returns the signing domain the router verifies against.
func (r *Router) Domain() dealer.Domain { return r.domain }

// Ledger returns the token ledger the router settles on.
func (r *Router) Ledger() *Ledger { return r.ledger }

// Deposit moves liquidity from a provider into the router.
func (r *Router) Deposit(token, from common.Address, amount *big.Int) error {
	return r.ledger.Apply(Transfer{Token: token, From: from, To: r.cfg.Address, Amount: amount})
}

// IsNonceUsed reports whether nonce has been consumed.
func (r *Router) IsNonceUsed(nonce *big.Int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.used[nonce.String()]
	return ok
}

// Settle executes sq on behalf of caller. The digest is recomputed against the router's
// own domain, so a quote signed for another chain or contract does not verify.
// Every failure is a *RevertError and leaves no trace, including the nonce mark.
func (r *Router) Settle(ctx context.Context, caller common.Address, sq dealer.SignedQuote, memo string) (*Receipt, error) {
	receipt, err := r.settle(caller, sq, memo)
	if err != nil {
		metrics.SettlementsTotal.WithLabelValues(err.Reason).Inc()
		r.log.Info("settlement.reverted",
			zap.String("reason", err.Reason),
			zap.String("payer", caller.Hex()),
			zap.Stringer("nonce", sq.Quote.Nonce),
		)
		return nil, err
	}
	metrics.SettlementsTotal.WithLabelValues("ok").Inc()

	ev := receipt.Event
	r.log.Info("settlement.executed",
		zap.String("id", ev.ID),
		zap.String("payer", ev.Payer.Hex()),
		zap.String("recipient", ev.Recipient.Hex()),
		zap.Stringer("amount_in", ev.AmountIn),
		zap.Stringer("amount_out", ev.AmountOut),
		zap.Stringer("fee", ev.Fee),
		zap.Stringer("nonce", ev.Nonce),
	)

	if r.sink != nil {
		if err := r.sink.Publish(ctx, ev); err != nil {
			r.log.Warn("settlement.event_publish_failed", zap.String("id", ev.ID), zap.Error(err))
		}
	}
	return receipt, nil
}

func (r *Router) settle(caller common.Address, sq dealer.SignedQuote, memo string) (*Receipt, *RevertError) {
	q := sq.Quote
	if q.AmountIn == nil || q.AmountIn.Sign() <= 0 || q.AmountOut == nil || q.AmountOut.Sign() < 0 || q.Nonce == nil {
		return nil, revert(ErrInvalidQuote)
	}

	// 1. signature
	if err := evm.Verify(dealer.SignedQuote{Quote: q, Domain: r.domain, Signature: sq.Signature}, r.cfg.Dealer); err != nil {
		return nil, revert(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// 2. deadline
	if q.Expired(r.now()) {
		return nil, revert(ErrQuoteExpired)
	}

	// 3. nonce, marked before any value moves
	key := q.Nonce.String()
	if _, ok := r.used[key]; ok {
		return nil, revert(ErrNonceConsumed)
	}
	r.used[key] = struct{}{}

	// 4. transfers
	fee := new(big.Int).Mul(q.AmountIn, big.NewInt(r.cfg.FeeBps))
	fee.Quo(fee, big.NewInt(10000))
	net := new(big.Int).Sub(q.AmountIn, fee)

	err := r.ledger.Apply(
		Transfer{Token: q.TokenIn, From: caller, To: r.cfg.Treasury, Amount: fee},
		Transfer{Token: q.TokenIn, From: caller, To: r.cfg.Address, Amount: net},
		Transfer{Token: q.TokenOut, From: r.cfg.Address, To: q.Recipient, Amount: q.AmountOut},
	)
	if err != nil {
		// 5. all or nothing
		delete(r.used, key)

		var ife *InsufficientFundsError
		if errors.As(err, &ife) && ife.Holder == r.cfg.Address {
			return nil, revert(ErrInsufficientLiquidity)
		}
		if errors.As(err, &ife) {
			return nil, revert(ErrInsufficientBalance)
		}
		return nil, revert(err)
	}

	return &Receipt{Event: SwapExecuted{
		ID:        uuid.NewString(),
		ChainID:   r.cfg.ChainID,
		Router:    r.cfg.Address,
		Payer:     caller,
		Recipient: q.Recipient,
		TokenIn:   q.TokenIn,
		TokenOut:  q.TokenOut,
		AmountIn:  new(big.Int).Set(q.AmountIn),
		AmountOut: new(big.Int).Set(q.AmountOut),
		Fee:       fee,
		Nonce:     new(big.Int).Set(q.Nonce),
		Memo:      memo,
		Timestamp: r.now(),
	}}, nil
}
