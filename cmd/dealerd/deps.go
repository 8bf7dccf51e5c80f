package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/seabucks/dealer"
	"github.com/seabucks/dealer/config"
	"github.com/seabucks/dealer/evm"
	"github.com/seabucks/dealer/quote"
	"github.com/seabucks/dealer/rates"
	"github.com/seabucks/dealer/secrets"
	"github.com/seabucks/dealer/store"
)

const keyLoadTimeout = 15 * time.Second

var errNoKeySource = fmt.Errorf("%w: set DEALER_PRIVATE_KEY, DEALER_KEYSTORE_PATH, DEALER_MNEMONIC or DEALER_KEY_SECRET_ID",
	dealer.ErrDealerKeyMissing)

// newSigner resolves the dealer key from the first configured source.
func newSigner(cfg *config.Config) (*evm.Signer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), keyLoadTimeout)
	defer cancel()

	var opt evm.KeyOption
	switch {
	case cfg.PrivateKey != "":
		opt = evm.WithPrivateKey(cfg.PrivateKey)
	case cfg.KeystorePath != "":
		opt = evm.WithKeystore(cfg.KeystorePath, cfg.KeystorePassword)
	case cfg.Mnemonic != "":
		opt = evm.WithMnemonic(cfg.Mnemonic, cfg.MnemonicIndex)
	case cfg.KeySecretID != "":
		sm, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		source := secrets.NewCachedProvider(sm, cfg.SecretCacheTTL)
		opt = evm.WithSecret(ctx, source, cfg.KeySecretID, cfg.KeySecretField)
	default:
		return nil, errNoKeySource
	}

	key, err := evm.NewDealerKey(opt)
	if err != nil {
		return nil, err
	}
	return evm.NewSigner(key)
}

func newRateChain(cfg *config.Config, log *zap.Logger) *rates.Chain {
	return rates.NewChain(
		rates.WithProviders(
			rates.NewExchangeRateAPI(rates.WithBaseURL(cfg.ExchangeRateAPIURL)),
			rates.NewFrankfurter(rates.WithBaseURL(cfg.FrankfurterURL)),
		),
		rates.WithTTL(cfg.RateTTL),
		rates.WithProviderTimeout(cfg.ProviderTimeout),
		rates.WithLogger(log),
	)
}

func nonceSource(cfg *config.Config) quote.NonceSource {
	if cfg.NonceScheme == config.NonceClock {
		return quote.ClockNonce{}
	}
	return quote.RandomNonce{}
}

// newEngine builds the quote engine. registry may be nil.
func newEngine(cfg *config.Config, chain *rates.Chain, signer *evm.Signer, registry *store.RedisRegistry, log *zap.Logger) (*quote.Engine, error) {
	opts := []quote.Option{
		quote.WithRouters(cfg.Routers),
		quote.WithSpreadBps(cfg.SpreadBps),
		quote.WithValidity(cfg.QuoteValidity),
		quote.WithNonceSource(nonceSource(cfg)),
		quote.WithLogger(log),
	}
	if registry != nil {
		opts = append(opts, quote.WithRegistry(registry))
	}

	var s quote.Signer
	if signer != nil {
		s = signer
	}
	return quote.NewEngine(chain, s, opts...)
}
