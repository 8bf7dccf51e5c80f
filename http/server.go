// Package http serves the dealer's quote, rate and health API over chi.
package http

import (
	"context"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/seabucks/dealer"
	"github.com/seabucks/dealer/quote"
)

// QuoteIssuer prices and signs quotes. *quote.Engine implements it.
type QuoteIssuer interface {
	Issue(ctx context.Context, req quote.Request) (*quote.Issued, error)
	DealerAddress() (common.Address, bool)
	SupportedChains() []int64
	SpreadBps() int64
	Validity() time.Duration
	Domain(chainID int64) (dealer.Domain, error)
}

// RateReader answers rate lookups. *rates.Chain implements it.
type RateReader interface {
	GetRate(ctx context.Context, code string) (dealer.ExchangeRate, error)
	GetRates(ctx context.Context, codes []string) (map[string]dealer.ExchangeRate, error)
}

// NonceChecker reports whether a router has consumed a nonce. *settlement.Binding
// implements it against a live chain.
type NonceChecker interface {
	IsNonceUsed(ctx context.Context, nonce *big.Int) (bool, error)
}

// Server holds the API dependencies.
type Server struct {
	quotes   QuoteIssuer
	rates    RateReader
	checkers map[int64]NonceChecker
	origins  []string
	log      *zap.Logger
	now      func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithNonceCheckers enables on-chain nonce lookups in quote verification.
func WithNonceCheckers(checkers map[int64]NonceChecker) Option {
	return func(s *Server) { s.checkers = checkers }
}

// WithAllowedOrigins restricts CORS origins. The default allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer creates the API server.
func NewServer(quotes QuoteIssuer, rates RateReader, opts ...Option) *Server {
	s := &Server{
		quotes:   quotes,
		rates:    rates,
		checkers: map[int64]NonceChecker{},
		origins:  []string{"*"},
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/quote", s.handleQuote)
		r.With(RequireSignedQuote(s.log)).Post("/quote/verify", s.handleVerify)
		r.Get("/rates", s.handleRates)
		r.Get("/health", s.handleHealth)
	})
	r.Handle("/metrics", promhttp.Handler())

	return handlers.CORS(
		handlers.AllowedOrigins(s.origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", SignedQuoteHeader}),
	)(r)
}

// NewHTTPServer wraps the handler with listen timeouts.
func (s *Server) NewHTTPServer(addr string, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
}
