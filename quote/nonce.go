package quote

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
	"time"
)

// NonceSource produces quote nonces. Uniqueness is only advisory: the router's
// consumed-nonce set decides which of two equal nonces settles.
type NonceSource interface {
	Next(now time.Time) (*big.Int, error)
}

// ClockNonce uses the wall clock in milliseconds. Two quotes issued in the same
// millisecond share a nonce and only one of them can settle.
type ClockNonce struct{}

// Next returns now in unix milliseconds.
func (ClockNonce) Next(now time.Time) (*big.Int, error) {
	return big.NewInt(now.UnixMilli()), nil
}

// RandomNonce places the millisecond clock in the high bits and 64 random bits below
// it, so nonces stay roughly ordered while collisions across replicas become negligible.
type RandomNonce struct {
	// Rand defaults to crypto/rand.Reader.
	Rand io.Reader
}

// Next returns (unix ms << 64) | 64 random bits.
func (r RandomNonce) Next(now time.Time) (*big.Int, error) {
	src := r.Rand
	if src == nil {
		src = rand.Reader
	}

	var buf [8]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return nil, fmt.Errorf("read nonce entropy: %w", err)
	}

	nonce := new(big.Int).Lsh(big.NewInt(now.UnixMilli()), 64)
	return nonce.Or(nonce, new(big.Int).SetUint64(binary.BigEndian.Uint64(buf[:]))), nil
}
