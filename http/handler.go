package http

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seabucks/dealer"
	"github.com/seabucks/dealer/encoding"
	"github.com/seabucks/dealer/evm"
	"github.com/seabucks/dealer/quote"
)

// QuoteRequest is the body of POST /api/quote. Symbol is accepted as an alias of Currency.
type QuoteRequest struct {
	TokenIn   string `json:"tokenIn" validate:"required,eth_addr"`
	TokenOut  string `json:"tokenOut" validate:"required,eth_addr"`
	AmountIn  string `json:"amountIn" validate:"required,numeric"`
	Recipient string `json:"recipient" validate:"required,eth_addr"`
	Currency  string `json:"currency,omitempty" validate:"omitempty,alpha,len=3"`
	Symbol    string `json:"symbol,omitempty" validate:"omitempty,alpha,len=3"`
	ChainID   int64  `json:"chainId" default:"4202" validate:"gt=0"`
}

func (q QuoteRequest) engineRequest() quote.Request {
	currency := q.Currency
	if currency == "" {
		currency = q.Symbol
	}
	return quote.Request{
		TokenIn:        q.TokenIn,
		TokenOut:       q.TokenOut,
		AmountIn:       q.AmountIn,
		Recipient:      q.Recipient,
		TargetCurrency: strings.ToUpper(currency),
		ChainID:        q.ChainID,
	}
}

// QuoteResponse is a signed quote plus the pricing inputs behind it.
type QuoteResponse struct {
	Signature         string    `json:"signature"`
	TokenIn           string    `json:"tokenIn"`
	TokenOut          string    `json:"tokenOut"`
	Recipient         string    `json:"recipient"`
	AmountIn          string    `json:"amountIn"`
	AmountOut         string    `json:"amountOut"`
	Nonce             string    `json:"nonce"`
	Deadline          string    `json:"deadline"`
	Currency          string    `json:"currency"`
	Rate              string    `json:"rate"`
	EffectiveRate     string    `json:"effectiveRate"`
	SpreadBps         int64     `json:"spreadBps"`
	RateSource        string    `json:"rateSource"`
	Dealer            string    `json:"dealer"`
	VerifyingContract string    `json:"verifyingContract"`
	ChainID           int64     `json:"chainId"`
	IssuedAt          time.Time `json:"issuedAt"`
	ExpiresAt         time.Time `json:"expiresAt"`
	Encoded           string    `json:"encoded"`
}

// NewQuoteResponse flattens an issued quote for the wire.
func NewQuoteResponse(issued *quote.Issued) (QuoteResponse, error) {
	encoded, err := encoding.EncodeSignedQuote(issued.Signed)
	if err != nil {
		return QuoteResponse{}, err
	}
	q := issued.Quote.Payload()
	return QuoteResponse{
		Signature:         issued.Signed.Signature,
		TokenIn:           q.TokenIn,
		TokenOut:          q.TokenOut,
		Recipient:         q.Recipient,
		AmountIn:          q.AmountIn,
		AmountOut:         q.AmountOut,
		Nonce:             q.Nonce,
		Deadline:          q.Deadline,
		Currency:          issued.Currency,
		Rate:              issued.Rate.String(),
		EffectiveRate:     issued.EffectiveRate.String(),
		SpreadBps:         issued.SpreadBps,
		RateSource:        issued.RateSource,
		Dealer:            issued.Dealer.Hex(),
		VerifyingContract: issued.Domain.VerifyingContract.Hex(),
		ChainID:           issued.Domain.ChainID.Int64(),
		IssuedAt:          issued.IssuedAt.UTC(),
		ExpiresAt:         issued.ExpiresAt.UTC(),
		Encoded:           encoded,
	}, nil
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := bindJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	issued, err := s.quotes.Issue(r.Context(), req.engineRequest())
	if err != nil {
		if StatusFor(err) >= http.StatusInternalServerError {
			s.log.Error("http.quote_failed", zap.Error(err))
		}
		writeError(w, err)
		return
	}

	resp, err := NewQuoteResponse(issued)
	if err != nil {
		s.log.Error("http.quote_encode_failed", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// RatesQuery selects one currency; empty means every registered currency.
type RatesQuery struct {
	Currency string `query:"currency" validate:"omitempty,alpha,len=3"`
}

// RatesResponse wraps rate data. Data is one dealer.ExchangeRate or a map of them.
type RatesResponse struct {
	Success   bool  `json:"success"`
	Data      any   `json:"data"`
	Timestamp int64 `json:"timestamp"`
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	var q RatesQuery
	if err := bindQuery(r, &q); err != nil {
		writeError(w, err)
		return
	}

	var data any
	if q.Currency != "" {
		rate, err := s.rates.GetRate(r.Context(), strings.ToUpper(q.Currency))
		if err != nil {
			writeError(w, err)
			return
		}
		data = rate
	} else {
		all, err := s.rates.GetRates(r.Context(), dealer.CurrencyCodes())
		if err != nil {
			writeError(w, err)
			return
		}
		data = all
	}

	writeJSON(w, http.StatusOK, RatesResponse{Success: true, Data: data, Timestamp: s.now().UnixMilli()})
}

// HealthResponse is the monitoring view of the dealer.
type HealthResponse struct {
	Status               string  `json:"status"`
	DealerConfigured     bool    `json:"dealerConfigured"`
	Dealer               string  `json:"dealer,omitempty"`
	Chains               []int64 `json:"chains"`
	SpreadBps            int64   `json:"spreadBps"`
	QuoteValiditySeconds int64   `json:"quoteValiditySeconds"`
}

// NewHealthResponse reports the issuer's configuration.
func NewHealthResponse(quotes QuoteIssuer) HealthResponse {
	resp := HealthResponse{
		Status:               "ok",
		Chains:               quotes.SupportedChains(),
		SpreadBps:            quotes.SpreadBps(),
		QuoteValiditySeconds: int64(quotes.Validity() / time.Second),
	}
	if addr, ok := quotes.DealerAddress(); ok {
		resp.DealerConfigured = true
		resp.Dealer = addr.Hex()
	} else {
		resp.Status = "degraded"
	}
	return resp
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, NewHealthResponse(s.quotes))
}

// VerifyResponse reports whether a signed quote would settle right now.
type VerifyResponse struct {
	IsValid       bool      `json:"isValid"`
	InvalidReason string    `json:"invalidReason,omitempty"`
	Dealer        string    `json:"dealer"`
	Expired       bool      `json:"expired"`
	ExpiresAt     time.Time `json:"expiresAt"`
	NonceUsed     *bool     `json:"nonceUsed,omitempty"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	sq, ok := SignedQuoteFromContext(r.Context())
	if !ok {
		writeError(w, dealer.NewDealerError(dealer.ErrCodeInvalidRequest, SignedQuoteHeader+" header is required", dealer.ErrInvalidRequest))
		return
	}
	dealerAddr, ok := s.quotes.DealerAddress()
	if !ok {
		writeError(w, dealer.NewDealerError(dealer.ErrCodeSigningUnavailable, "dealer key not configured", dealer.ErrSigningUnavailable))
		return
	}

	resp := VerifyResponse{
		Dealer:    dealerAddr.Hex(),
		Expired:   sq.Quote.Expired(s.now()),
		ExpiresAt: time.Unix(sq.Quote.Deadline.Int64(), 0).UTC(),
	}

	chainID := sq.Domain.ChainID.Int64()
	domain, err := s.quotes.Domain(chainID)
	switch {
	case err != nil:
		resp.InvalidReason = "unsupported chain"
	case domain.VerifyingContract != sq.Domain.VerifyingContract:
		resp.InvalidReason = "unknown verifying contract"
	case evm.Verify(sq, dealerAddr) != nil:
		resp.InvalidReason = "invalid signature"
	case resp.Expired:
		resp.InvalidReason = "quote expired"
	}

	if checker, ok := s.checkers[chainID]; ok && resp.InvalidReason == "" {
		used, err := checker.IsNonceUsed(r.Context(), sq.Quote.Nonce)
		if err != nil {
			s.log.Warn("http.nonce_lookup_failed", zap.Int64("chain_id", chainID), zap.Error(err))
		} else {
			resp.NonceUsed = &used
			if used {
				resp.InvalidReason = "nonce consumed"
			}
		}
	}

	resp.IsValid = resp.InvalidReason == ""
	writeJSON(w, http.StatusOK, resp)
}
