// Package evm holds the dealer's signing credential and the EIP-712 quote signer.
package evm

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/seabucks/dealer"
)

// DealerKey is the dealer's private signing credential. It is read-only after
// construction and safe for concurrent use.
type DealerKey struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// KeyOption configures a DealerKey.
type KeyOption func(*DealerKey) error

// NewDealerKey creates a dealer key from exactly the options given. There is no
// fallback key: without a key source it returns dealer.ErrDealerKeyMissing.
func NewDealerKey(opts ...KeyOption) (*DealerKey, error) {
	k := &DealerKey{}
	for _, opt := range opts {
		if err := opt(k); err != nil {
			return nil, err
		}
	}

	if k.privateKey == nil {
		return nil, dealer.ErrDealerKeyMissing
	}
	k.address = crypto.PubkeyToAddress(k.privateKey.PublicKey)
	return k, nil
}

// WithPrivateKey sets the private key from a hex string.
func WithPrivateKey(hexKey string) KeyOption {
	return func(k *DealerKey) error {
		hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
		if hexKey == "" {
			return dealer.ErrDealerKeyMissing
		}

		privateKey, err := crypto.HexToECDSA(hexKey)
		if err != nil {
			return dealer.ErrInvalidKey
		}

		k.privateKey = privateKey
		return nil
	}
}

// WithECDSAKey sets an already parsed private key.
func WithECDSAKey(privateKey *ecdsa.PrivateKey) KeyOption {
	return func(k *DealerKey) error {
		if privateKey == nil {
			return dealer.ErrDealerKeyMissing
		}
		k.privateKey = privateKey
		return nil
	}
}

// Address returns the dealer's Ethereum address.
func (k *DealerKey) Address() common.Address {
	return k.address
}

// sign signs a 32-byte digest and returns the 65-byte [R || S || V] signature with V in {27, 28}.
func (k *DealerKey) sign(digest []byte) ([]byte, error) {
	signature, err := crypto.Sign(digest, k.privateKey)
	if err != nil {
		return nil, err
	}
	signature[64] += 27
	return signature, nil
}
