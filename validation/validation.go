// Package validation checks quote request fields before any rate lookup or signing happens.
package validation

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/seabucks/dealer"
)

var (
	// evmAddressRegex matches Ethereum-style addresses (0x followed by 40 hex chars)
	evmAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

	// currencyCodeRegex matches three-letter ISO 4217 codes
	currencyCodeRegex = regexp.MustCompile(`^[A-Za-z]{3}$`)
)

// maxUint256Bits is the widest amount an on-chain uint256 field can carry.
const maxUint256Bits = 256

// ValidateAmount validates that an amount string is a positive base-10 integer in
// smallest units that fits a uint256. Returns dealer.ErrInvalidAmount otherwise.
func ValidateAmount(amount string) (*big.Int, error) {
	if amount == "" {
		return nil, fmt.Errorf("%w: amount cannot be empty", dealer.ErrInvalidAmount)
	}

	// Parse as big.Int to handle large values
	amt, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, fmt.Errorf("%w: invalid amount format: %s", dealer.ErrInvalidAmount, amount)
	}

	if amt.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than 0, got: %s", dealer.ErrInvalidAmount, amount)
	}

	if amt.BitLen() > maxUint256Bits {
		return nil, fmt.Errorf("%w: amount exceeds uint256: %s", dealer.ErrInvalidAmount, amount)
	}

	return amt, nil
}

// ValidateAddress validates a 0x-prefixed EVM address. The zero address is rejected.
func ValidateAddress(field, address string) error {
	if address == "" {
		return fmt.Errorf("%w: %s cannot be empty", dealer.ErrInvalidAddress, field)
	}
	if !evmAddressRegex.MatchString(address) {
		return fmt.Errorf("%w: %s %q (expected 0x followed by 40 hex characters)", dealer.ErrInvalidAddress, field, address)
	}
	if strings.TrimLeft(address[2:], "0") == "" {
		return fmt.Errorf("%w: %s is the zero address", dealer.ErrInvalidAddress, field)
	}
	return nil
}

// ValidateCurrency normalizes a currency code and checks it against the registry.
func ValidateCurrency(code string) (dealer.CurrencyConfig, error) {
	code = strings.TrimSpace(code)
	if !currencyCodeRegex.MatchString(code) {
		return dealer.CurrencyConfig{}, fmt.Errorf("%w: malformed currency code %q", dealer.ErrUnsupportedCurrency, code)
	}
	c, ok := dealer.LookupCurrency(code)
	if !ok {
		return dealer.CurrencyConfig{}, fmt.Errorf("%w: %s", dealer.ErrUnsupportedCurrency, strings.ToUpper(code))
	}
	return c, nil
}

// ValidateSignedQuote performs structural validation of a signed quote payload.
// It does not check the signature itself.
func ValidateSignedQuote(p dealer.SignedQuotePayload) error {
	fields := []struct{ name, value string }{
		{"tokenIn", p.Quote.TokenIn},
		{"tokenOut", p.Quote.TokenOut},
		{"recipient", p.Quote.Recipient},
		{"verifyingContract", p.VerifyingContract},
	}
	for _, f := range fields {
		if err := ValidateAddress(f.name, f.value); err != nil {
			return err
		}
	}

	if _, err := ValidateAmount(p.Quote.AmountIn); err != nil {
		return fmt.Errorf("amountIn: %w", err)
	}
	if _, err := ValidateAmount(p.Quote.AmountOut); err != nil {
		return fmt.Errorf("amountOut: %w", err)
	}
	if _, err := ValidateAmount(p.Quote.Deadline); err != nil {
		return fmt.Errorf("deadline: %w", err)
	}
	if n, ok := new(big.Int).SetString(p.Quote.Nonce, 10); !ok || n.Sign() < 0 {
		return fmt.Errorf("%w: nonce %q", dealer.ErrInvalidAmount, p.Quote.Nonce)
	}

	if p.ChainID <= 0 {
		return fmt.Errorf("%w: chainId must be positive", dealer.ErrInvalidRequest)
	}
	if !strings.HasPrefix(p.Signature, "0x") || len(p.Signature) != 132 {
		return fmt.Errorf("%w: expected 65-byte hex signature", dealer.ErrInvalidSignature)
	}
	return nil
}

// FitsUint256 reports whether a non-negative integer fits an on-chain uint256.
func FitsUint256(v *big.Int) bool {
	return v.Sign() >= 0 && v.BitLen() <= maxUint256Bits
}
