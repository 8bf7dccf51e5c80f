package evm

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/seabucks/dealer"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

// WithKeystore loads the dealer key from a V3 encrypted keystore file. When the
// file declares an address it must match the decrypted key.
func WithKeystore(keystorePath, password string) KeyOption {
	return func(k *DealerKey) error {
		data, err := os.ReadFile(keystorePath)
		if err != nil {
			return fmt.Errorf("%w: read %s: %v", dealer.ErrInvalidKeystore, keystorePath, err)
		}

		var header struct {
			Address string `json:"address"`
		}
		if err := json.Unmarshal(data, &header); err != nil {
			return fmt.Errorf("%w: parse %s: %v", dealer.ErrInvalidKeystore, keystorePath, err)
		}

		key, err := keystore.DecryptKey(data, password)
		if err != nil {
			return fmt.Errorf("%w: decrypt %s: %v", dealer.ErrInvalidKeystore, keystorePath, err)
		}

		if header.Address != "" {
			if !common.IsHexAddress(header.Address) {
				return fmt.Errorf("%w: %s declares malformed address %q", dealer.ErrInvalidKeystore, keystorePath, header.Address)
			}
			if declared := common.HexToAddress(header.Address); declared != key.Address {
				return fmt.Errorf("%w: %s declares %s but holds the key for %s",
					dealer.ErrInvalidKeystore, keystorePath, declared.Hex(), key.Address.Hex())
			}
		}

		k.privateKey = key.PrivateKey
		return nil
	}
}

// WithMnemonic derives the dealer key from a BIP39 mnemonic phrase.
// Derivation path: m/44'/60'/0'/0/{accountIndex}
func WithMnemonic(mnemonic string, accountIndex uint32) KeyOption {
	return func(k *DealerKey) error {
		if !bip39.IsMnemonicValid(mnemonic) {
			return dealer.ErrInvalidMnemonic
		}

		seed := bip39.NewSeed(mnemonic, "")
		privateKey, err := deriveEthereumKey(seed, accountIndex)
		if err != nil {
			return fmt.Errorf("%w: %v", dealer.ErrInvalidMnemonic, err)
		}

		k.privateKey = privateKey
		return nil
	}
}

// SecretSource fetches a named secret as a key-value map.
type SecretSource interface {
	GetSecret(ctx context.Context, key string) (map[string]string, error)
}

// WithSecret loads the hex private key stored under field of secret secretID.
func WithSecret(ctx context.Context, source SecretSource, secretID, field string) KeyOption {
	return func(k *DealerKey) error {
		values, err := source.GetSecret(ctx, secretID)
		if err != nil {
			return fmt.Errorf("load dealer key secret: %w", err)
		}
		hexKey, ok := values[field]
		if !ok || hexKey == "" {
			return fmt.Errorf("%w: secret %s has no %q field", dealer.ErrDealerKeyMissing, secretID, field)
		}
		return WithPrivateKey(hexKey)(k)
	}
}

// deriveEthereumKey derives an Ethereum private key from a BIP39 seed along m/44'/60'/0'/0/{index}.
func deriveEthereumKey(seed []byte, index uint32) (*ecdsa.PrivateKey, error) {
	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, err
	}

	path := []uint32{
		bip32.FirstHardenedChild + 44,
		bip32.FirstHardenedChild + 60,
		bip32.FirstHardenedChild + 0,
		0,
		index,
	}
	for _, child := range path {
		key, err = key.NewChildKey(child)
		if err != nil {
			return nil, err
		}
	}

	return crypto.ToECDSA(key.Key)
}
