package dealer

import (
	"errors"
	"fmt"
)

// Standard dealer error definitions

var (
	// ErrInvalidRequest indicates a quote request with missing or malformed fields.
	ErrInvalidRequest = errors.New("dealer: invalid quote request")

	// ErrInvalidAmount indicates a missing, malformed or non-positive amount.
	ErrInvalidAmount = errors.New("dealer: invalid amount")

	// ErrInvalidAddress indicates a malformed EVM address.
	ErrInvalidAddress = errors.New("dealer: invalid address")

	// ErrUnsupportedChain indicates a chain without a configured settlement router.
	ErrUnsupportedChain = errors.New("dealer: unsupported chain")

	// ErrUnsupportedToken indicates a source token the dealer cannot price.
	ErrUnsupportedToken = errors.New("dealer: unsupported token")

	// ErrUnsupportedCurrency indicates a target currency without a registry entry.
	ErrUnsupportedCurrency = errors.New("dealer: unsupported currency")

	// ErrDealerKeyMissing indicates no dealer key source was provided.
	ErrDealerKeyMissing = errors.New("dealer: dealer key not configured")

	// ErrInvalidKey indicates a malformed private key.
	ErrInvalidKey = errors.New("dealer: invalid private key")

	// ErrInvalidKeystore indicates an unreadable or undecryptable keystore file.
	ErrInvalidKeystore = errors.New("dealer: invalid keystore file")

	// ErrInvalidMnemonic indicates an invalid BIP-39 mnemonic.
	ErrInvalidMnemonic = errors.New("dealer: invalid mnemonic phrase")

	// ErrSigningUnavailable indicates the signer has no usable dealer key.
	ErrSigningUnavailable = errors.New("dealer: signing unavailable")

	// ErrSigningFailed indicates the signature could not be produced.
	ErrSigningFailed = errors.New("dealer: quote signing failed")

	// ErrInvalidSignature indicates a signature that does not recover to the dealer.
	ErrInvalidSignature = errors.New("dealer: invalid signature")

	// ErrRateUnavailable indicates no provider tier produced a rate.
	ErrRateUnavailable = errors.New("dealer: rate unavailable")
)

// ErrorCode classifies errors returned to API clients.
type ErrorCode string

const (
	ErrCodeInvalidRequest      ErrorCode = "INVALID_REQUEST"
	ErrCodeUnsupportedChain    ErrorCode = "UNSUPPORTED_CHAIN"
	ErrCodeUnsupportedToken    ErrorCode = "UNSUPPORTED_TOKEN"
	ErrCodeUnsupportedCurrency ErrorCode = "UNSUPPORTED_CURRENCY"
	ErrCodeSigningUnavailable  ErrorCode = "SIGNING_UNAVAILABLE"
	ErrCodeSigningFailed       ErrorCode = "SIGNING_FAILED"
	ErrCodeRateUnavailable     ErrorCode = "RATE_UNAVAILABLE"
	ErrCodeInternal            ErrorCode = "INTERNAL"
)

// DealerError is a structured error carrying a client-visible code.
type DealerError struct {
	Code    ErrorCode
	Message string
	Err     error
	Details map[string]any
}

// NewDealerError creates a DealerError wrapping err.
func NewDealerError(code ErrorCode, message string, err error) *DealerError {
	return &DealerError{Code: code, Message: message, Err: err}
}

func (e *DealerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DealerError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a detail field and returns the error for chaining.
func (e *DealerError) WithDetails(key string, value any) *DealerError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// CodeOf returns the code of the first DealerError in err's chain, or a code derived
// from the wrapped sentinel.
func CodeOf(err error) ErrorCode {
	var de *DealerError
	if errors.As(err, &de) {
		return de.Code
	}
	switch {
	case errors.Is(err, ErrUnsupportedChain):
		return ErrCodeUnsupportedChain
	case errors.Is(err, ErrUnsupportedToken):
		return ErrCodeUnsupportedToken
	case errors.Is(err, ErrUnsupportedCurrency):
		return ErrCodeUnsupportedCurrency
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidAddress):
		return ErrCodeInvalidRequest
	case errors.Is(err, ErrSigningUnavailable), errors.Is(err, ErrDealerKeyMissing):
		return ErrCodeSigningUnavailable
	case errors.Is(err, ErrSigningFailed):
		return ErrCodeSigningFailed
	case errors.Is(err, ErrRateUnavailable):
		return ErrCodeRateUnavailable
	}
	return ErrCodeInternal
}

// IsInputError reports whether err was caused by the client's request.
func IsInputError(err error) bool {
	switch CodeOf(err) {
	case ErrCodeInvalidRequest, ErrCodeUnsupportedChain, ErrCodeUnsupportedToken, ErrCodeUnsupportedCurrency:
		return true
	}
	return false
}
