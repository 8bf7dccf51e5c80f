// Package dealer defines the data model shared by the SEABucks dealer: quotes, signed
// quotes, exchange rates, and the registries of supported chains, stablecoins and
// target currencies. Quotes are priced in USD stablecoins and paid out in per-country
// currency tokens on Lisk.
package dealer

import (
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const (
	// LiskSepoliaChainID is the Lisk Sepolia testnet chain ID.
	LiskSepoliaChainID int64 = 4202
	// LiskMainnetChainID is the Lisk mainnet chain ID.
	LiskMainnetChainID int64 = 1135
)

// TokenConfig represents configuration for a token the dealer accepts as payment.
type TokenConfig struct {
	// Address is the token contract address.
	Address common.Address

	// Symbol is the token symbol (e.g., "USDC").
	Symbol string

	// Decimals is the number of decimal places for the token.
	Decimals int32

	// Name is an optional human-readable token name.
	Name string
}

// CurrencyConfig describes a payout currency.
type CurrencyConfig struct {
	// Code is the ISO 4217 currency code.
	Code string

	// Name is the issuing country.
	Name string

	// Decimals is the registered number of fractional digits of amountOut.
	Decimals int32

	// FallbackRate is the last-known-good USD rate used when every provider declines.
	FallbackRate decimal.Decimal
}

// ChainConfig contains chain-specific token deployments.
// Router addresses are deployment configuration and are not part of the registry.
type ChainConfig struct {
	// ChainID is the EVM chain ID.
	ChainID int64

	// Name is a human-readable network name.
	Name string

	// Stablecoins are the USD-pegged tokens accepted as tokenIn.
	Stablecoins []TokenConfig

	// CurrencyTokens maps currency code to its payout token address.
	// A zero address means the currency token is not deployed on this chain.
	CurrencyTokens map[string]common.Address
}

// Currencies is the registry of supported payout currencies.
var Currencies = map[string]CurrencyConfig{
	"IDR": {Code: "IDR", Name: "Indonesia", Decimals: 2, FallbackRate: decimal.NewFromInt(16250)},
	"THB": {Code: "THB", Name: "Thailand", Decimals: 2, FallbackRate: decimal.RequireFromString("34.5")},
	"VND": {Code: "VND", Name: "Vietnam", Decimals: 0, FallbackRate: decimal.NewFromInt(25400)},
	"PHP": {Code: "PHP", Name: "Philippines", Decimals: 2, FallbackRate: decimal.RequireFromString("58.5")},
	"MYR": {Code: "MYR", Name: "Malaysia", Decimals: 2, FallbackRate: decimal.RequireFromString("4.45")},
	"SGD": {Code: "SGD", Name: "Singapore", Decimals: 2, FallbackRate: decimal.RequireFromString("1.35")},
	"BND": {Code: "BND", Name: "Brunei", Decimals: 2, FallbackRate: decimal.RequireFromString("1.35")},
	"KHR": {Code: "KHR", Name: "Cambodia", Decimals: 2, FallbackRate: decimal.NewFromInt(4100)},
	"LAK": {Code: "LAK", Name: "Laos", Decimals: 2, FallbackRate: decimal.NewFromInt(21500)},
	"MMK": {Code: "MMK", Name: "Myanmar", Decimals: 2, FallbackRate: decimal.NewFromInt(2100)},
}

var (
	// LiskSepolia is the configuration for Lisk Sepolia testnet.
	LiskSepolia = ChainConfig{
		ChainID: LiskSepoliaChainID,
		Name:    "lisk-sepolia",
		Stablecoins: []TokenConfig{
			{
				Address:  common.HexToAddress("0x0E82fDDAd51cc3ac12b69761C45bBCB9A2Bf3C83"),
				Symbol:   "USDC",
				Decimals: 6,
				Name:     "Bridged USDC (Lisk Sepolia)",
			},
		},
		CurrencyTokens: map[string]common.Address{
			"IDR": common.HexToAddress("0xcfF09905F8f18B35F5A1Ba6d2822D62B3d8c48bE"),
			"THB": common.HexToAddress("0xf98a4A0482d534c004cdB9A3358fd71347c4395B"),
			"VND": common.HexToAddress("0xa7056B7d2d7B97dE9F254C17Ab7E0470E5F112c0"),
			"PHP": common.HexToAddress("0x073b61f5Ed26d802b05301e0E019f78Ac1A41D23"),
			"MYR": common.HexToAddress("0x8F878deCd44f7Cf547D559a6e6D0577E370fa0Db"),
			"SGD": common.HexToAddress("0xEff2eC240CEB2Ddf582Df0e42fc66a6910D3Fe3f"),
		},
	}

	// LiskMainnet is the configuration for Lisk mainnet.
	// Currency tokens are not deployed yet.
	LiskMainnet = ChainConfig{
		ChainID: LiskMainnetChainID,
		Name:    "lisk",
		Stablecoins: []TokenConfig{
			{
				Address:  common.HexToAddress("0xF242275d3a6527d877f2c927a82D9b057609cc71"),
				Symbol:   "USDC",
				Decimals: 6,
				Name:     "Bridged USDC (Lisk)",
			},
			{
				Address:  common.HexToAddress("0x05D032ac25d322df992303dCa074EE7392C117b9"),
				Symbol:   "USDT",
				Decimals: 6,
				Name:     "Tether USD",
			},
		},
		CurrencyTokens: map[string]common.Address{},
	}
)

// Chains returns the built-in chain registry keyed by chain ID.
func Chains() map[int64]ChainConfig {
	return map[int64]ChainConfig{
		LiskSepoliaChainID: LiskSepolia,
		LiskMainnetChainID: LiskMainnet,
	}
}

// LookupCurrency returns the registry entry for a currency code, case-insensitively.
func LookupCurrency(code string) (CurrencyConfig, bool) {
	c, ok := Currencies[strings.ToUpper(strings.TrimSpace(code))]
	return c, ok
}

// CurrencyCodes returns all supported currency codes in sorted order.
func CurrencyCodes() []string {
	codes := make([]string, 0, len(Currencies))
	for code := range Currencies {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Stablecoin returns the accepted stablecoin with the given address.
func (c ChainConfig) Stablecoin(addr common.Address) (TokenConfig, bool) {
	for _, t := range c.Stablecoins {
		if t.Address == addr {
			return t, true
		}
	}
	return TokenConfig{}, false
}

// CurrencyForToken returns the currency code paid out by the given token address.
func (c ChainConfig) CurrencyForToken(addr common.Address) (string, bool) {
	if addr == (common.Address{}) {
		return "", false
	}
	for code, token := range c.CurrencyTokens {
		if token == addr {
			return code, true
		}
	}
	return "", false
}
