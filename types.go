package dealer

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// RouterName and RouterVersion are the EIP-712 domain parameters of the settlement router.
const (
	RouterName    = "SEABucksRouter"
	RouterVersion = "1"
)

// Quote is an exact token-for-token exchange instruction.
// Amounts are in the smallest unit of their token.
type Quote struct {
	TokenIn   common.Address
	TokenOut  common.Address
	AmountIn  *big.Int
	AmountOut *big.Int
	Recipient common.Address

	// Nonce is single-use; the router's consumed set is the only authority on uniqueness.
	Nonce *big.Int

	// Deadline is the unix second after which the quote can no longer settle.
	Deadline *big.Int
}

// Expired reports whether the quote can no longer settle at the given time.
func (q Quote) Expired(now time.Time) bool {
	return q.Deadline == nil || big.NewInt(now.Unix()).Cmp(q.Deadline) > 0
}

// Payload converts the quote to its wire representation.
func (q Quote) Payload() QuotePayload {
	return QuotePayload{
		TokenIn:   q.TokenIn.Hex(),
		TokenOut:  q.TokenOut.Hex(),
		AmountIn:  bigString(q.AmountIn),
		AmountOut: bigString(q.AmountOut),
		Recipient: q.Recipient.Hex(),
		Nonce:     bigString(q.Nonce),
		Deadline:  bigString(q.Deadline),
	}
}

// Domain is the EIP-712 domain a quote signature is bound to.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// NewRouterDomain returns the router domain for the given chain and router address.
func NewRouterDomain(chainID int64, router common.Address) Domain {
	return Domain{
		Name:              RouterName,
		Version:           RouterVersion,
		ChainID:           big.NewInt(chainID),
		VerifyingContract: router,
	}
}

// SignedQuote is a quote bound to the dealer's authority. Anyone holding it may submit it
// for settlement, but only once.
type SignedQuote struct {
	Quote     Quote
	Domain    Domain
	Signature string
}

// Payload converts the signed quote to its wire representation.
func (s SignedQuote) Payload() SignedQuotePayload {
	chainID := int64(0)
	if s.Domain.ChainID != nil {
		chainID = s.Domain.ChainID.Int64()
	}
	return SignedQuotePayload{
		Quote:             s.Quote.Payload(),
		Signature:         s.Signature,
		ChainID:           chainID,
		VerifyingContract: s.Domain.VerifyingContract.Hex(),
	}
}

// QuotePayload is the JSON form of a Quote. Integers are decimal strings.
type QuotePayload struct {
	TokenIn   string `json:"tokenIn"`
	TokenOut  string `json:"tokenOut"`
	AmountIn  string `json:"amountIn"`
	AmountOut string `json:"amountOut"`
	Recipient string `json:"recipient"`
	Nonce     string `json:"nonce"`
	Deadline  string `json:"deadline"`
}

// Quote parses the payload back into a Quote.
func (p QuotePayload) Quote() (Quote, error) {
	for _, addr := range []string{p.TokenIn, p.TokenOut, p.Recipient} {
		if !common.IsHexAddress(addr) {
			return Quote{}, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
		}
	}
	amountIn, err := parseUint(p.AmountIn)
	if err != nil {
		return Quote{}, fmt.Errorf("amountIn: %w", err)
	}
	amountOut, err := parseUint(p.AmountOut)
	if err != nil {
		return Quote{}, fmt.Errorf("amountOut: %w", err)
	}
	nonce, err := parseUint(p.Nonce)
	if err != nil {
		return Quote{}, fmt.Errorf("nonce: %w", err)
	}
	deadline, err := parseUint(p.Deadline)
	if err != nil {
		return Quote{}, fmt.Errorf("deadline: %w", err)
	}
	return Quote{
		TokenIn:   common.HexToAddress(p.TokenIn),
		TokenOut:  common.HexToAddress(p.TokenOut),
		AmountIn:  amountIn,
		AmountOut: amountOut,
		Recipient: common.HexToAddress(p.Recipient),
		Nonce:     nonce,
		Deadline:  deadline,
	}, nil
}

// SignedQuotePayload is the JSON form of a SignedQuote.
type SignedQuotePayload struct {
	Quote             QuotePayload `json:"quote"`
	Signature         string       `json:"signature"`
	ChainID           int64        `json:"chainId"`
	VerifyingContract string       `json:"verifyingContract"`
}

// SignedQuote parses the payload back into a SignedQuote.
func (p SignedQuotePayload) SignedQuote() (SignedQuote, error) {
	q, err := p.Quote.Quote()
	if err != nil {
		return SignedQuote{}, err
	}
	if !common.IsHexAddress(p.VerifyingContract) {
		return SignedQuote{}, fmt.Errorf("%w: verifyingContract %q", ErrInvalidAddress, p.VerifyingContract)
	}
	if p.Signature == "" {
		return SignedQuote{}, ErrInvalidSignature
	}
	return SignedQuote{
		Quote:     q,
		Domain:    NewRouterDomain(p.ChainID, common.HexToAddress(p.VerifyingContract)),
		Signature: p.Signature,
	}, nil
}

// ExchangeRate is a USD-based reference rate for one currency.
type ExchangeRate struct {
	// Currency is the ISO code of the target currency (e.g., "IDR").
	Currency string `json:"targetCurrency"`

	// Rate is the amount of target currency per one USD.
	Rate decimal.Decimal `json:"rate"`

	// Source names the tier that produced the rate, annotated when cached or offline.
	Source string `json:"source"`

	// Timestamp is when the rate was fetched.
	Timestamp time.Time `json:"timestamp"`
}

// BaseCurrency is the base of every ExchangeRate.
const BaseCurrency = "USD"

// AmountToBigInt converts a decimal amount string to *big.Int in atomic units.
// For example, "1.5" with 6 decimals becomes 1500000. Amounts with more precision
// than the token supports are rejected.
func AmountToBigInt(amount string, decimals int) (*big.Int, error) {
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, ErrInvalidAmount
	}
	scaled := value.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, ErrInvalidAmount
	}
	return scaled.BigInt(), nil
}

// BigIntToAmount converts a *big.Int in atomic units to a decimal string.
// For example, 1500000 with 6 decimals becomes "1.500000".
func BigIntToAmount(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).StringFixed(int32(decimals))
}

func parseUint(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	return v, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
