// Package encoding converts signed quotes to and from the compact bearer form carried
// in payment links and QR codes: base64url-encoded JSON.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/seabucks/dealer"
)

// EncodeSignedQuote converts a SignedQuote to an unpadded base64url JSON string.
//
// Returns an error if JSON marshaling fails.
func EncodeSignedQuote(sq dealer.SignedQuote) (string, error) {
	quoteJSON, err := json.Marshal(sq.Payload())
	if err != nil {
		return "", fmt.Errorf("failed to marshal signed quote: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(quoteJSON), nil
}

// DecodeSignedQuote parses the output of EncodeSignedQuote. Padded and standard
// base64 alphabets are accepted as well, since links are often re-encoded by clients.
//
// Returns an error if base64 decoding, JSON unmarshaling or field parsing fails.
func DecodeSignedQuote(encoded string) (dealer.SignedQuote, error) {
	decoded, err := decodeBase64(strings.TrimSpace(encoded))
	if err != nil {
		return dealer.SignedQuote{}, fmt.Errorf("failed to decode base64: %w", err)
	}

	var payload dealer.SignedQuotePayload
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return dealer.SignedQuote{}, fmt.Errorf("failed to unmarshal signed quote: %w", err)
	}

	sq, err := payload.SignedQuote()
	if err != nil {
		return dealer.SignedQuote{}, fmt.Errorf("invalid signed quote: %w", err)
	}
	return sq, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	if strings.ContainsAny(s, "+/") {
		return base64.RawStdEncoding.DecodeString(s)
	}
	return base64.RawURLEncoding.DecodeString(s)
}
