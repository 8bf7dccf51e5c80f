// Package config loads dealer settings from the environment, an optional .env file
// and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/seabucks/dealer"
)

// EnvPrefix prefixes every environment variable, e.g. DEALER_PRIVATE_KEY.
const EnvPrefix = "DEALER"

// Nonce schemes.
const (
	NonceRandom = "random"
	NonceClock  = "clock"
)

// Config holds the runtime configuration of a dealer instance.
type Config struct {
	ServiceName string
	Env         string // "dev", "staging", "prod"
	LogLevel    string
	ListenAddr  string

	// Dealer key sources, tried in this order: private key, keystore, mnemonic, secret.
	PrivateKey       string
	KeystorePath     string
	KeystorePassword string
	Mnemonic         string
	MnemonicIndex    uint32
	KeySecretID      string
	KeySecretField   string
	AWSRegion        string
	SecretCacheTTL   time.Duration

	Routers  map[int64]common.Address
	Treasury common.Address
	RPCURLs  map[int64]string

	SpreadBps       int64
	FeeBps          int64
	QuoteValidity   time.Duration
	NonceScheme     string
	RateTTL         time.Duration
	ProviderTimeout time.Duration

	ExchangeRateAPIURL string
	FrankfurterURL     string

	RedisAddr string // empty disables the issued-nonce registry
	RedisDB   int

	NATSURL     string // empty disables event publishing
	NATSSubject string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
}

// Option adjusts how Load reads configuration.
type Option func(*loader)

type loader struct {
	configFile string
	dotenv     []string
	v          *viper.Viper
}

// WithConfigFile reads the YAML file at path. A missing file is an error.
func WithConfigFile(path string) Option {
	return func(l *loader) { l.configFile = path }
}

// WithDotEnv loads the given .env files instead of ./.env.
func WithDotEnv(files ...string) Option {
	return func(l *loader) { l.dotenv = files }
}

// WithViper reads from v instead of a fresh instance. Flags bound to v take precedence.
func WithViper(v *viper.Viper) Option {
	return func(l *loader) { l.v = v }
}

// Load resolves configuration. Precedence: bound flags, environment, config file, defaults.
func Load(opts ...Option) (*Config, error) {
	l := &loader{}
	for _, opt := range opts {
		opt(l)
	}

	// .env is optional; a missing file is ignored.
	_ = godotenv.Load(l.dotenv...)

	v := l.v
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", l.configFile, err)
		}
	} else {
		v.SetConfigName(".seabucks-dealer")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", v.ConfigFileUsed(), err)
			}
		}
	}

	cfg := &Config{
		ServiceName:        v.GetString("service_name"),
		Env:                v.GetString("env"),
		LogLevel:           v.GetString("log_level"),
		ListenAddr:         v.GetString("listen_addr"),
		PrivateKey:         v.GetString("private_key"),
		KeystorePath:       v.GetString("keystore_path"),
		KeystorePassword:   v.GetString("keystore_password"),
		Mnemonic:           v.GetString("mnemonic"),
		MnemonicIndex:      v.GetUint32("mnemonic_index"),
		KeySecretID:        v.GetString("key_secret_id"),
		KeySecretField:     v.GetString("key_secret_field"),
		AWSRegion:          v.GetString("aws_region"),
		SecretCacheTTL:     v.GetDuration("secret_cache_ttl"),
		SpreadBps:          v.GetInt64("spread_bps"),
		FeeBps:             v.GetInt64("fee_bps"),
		QuoteValidity:      v.GetDuration("quote_validity"),
		NonceScheme:        strings.ToLower(v.GetString("nonce_scheme")),
		RateTTL:            v.GetDuration("rate_ttl"),
		ProviderTimeout:    v.GetDuration("provider_timeout"),
		ExchangeRateAPIURL: v.GetString("exchangerate_api_url"),
		FrankfurterURL:     v.GetString("frankfurter_url"),
		RedisAddr:          v.GetString("redis_addr"),
		RedisDB:            v.GetInt("redis_db"),
		NATSURL:            v.GetString("nats_url"),
		NATSSubject:        v.GetString("nats_subject"),
		HTTPReadTimeout:    v.GetDuration("http_read_timeout"),
		HTTPWriteTimeout:   v.GetDuration("http_write_timeout"),
		Routers:            map[int64]common.Address{},
		RPCURLs:            map[int64]string{},
	}

	// Per-chain keys are looked up explicitly so DEALER_ROUTERS_4202 works without a file.
	for chainID := range dealer.Chains() {
		id := strconv.FormatInt(chainID, 10)
		if raw := v.GetString("routers." + id); raw != "" {
			if !common.IsHexAddress(raw) {
				return nil, fmt.Errorf("routers.%s: %q is not an address", id, raw)
			}
			cfg.Routers[chainID] = common.HexToAddress(raw)
		}
		if url := v.GetString("rpc_urls." + id); url != "" {
			cfg.RPCURLs[chainID] = url
		}
	}

	if raw := v.GetString("treasury"); raw != "" {
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("treasury: %q is not an address", raw)
		}
		cfg.Treasury = common.HexToAddress(raw)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "seabucks-dealer")
	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "info")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("key_secret_field", "private_key")
	v.SetDefault("aws_region", "ap-southeast-1")
	v.SetDefault("secret_cache_ttl", 15*time.Minute)
	v.SetDefault("spread_bps", 50)
	v.SetDefault("fee_bps", 100)
	v.SetDefault("quote_validity", 300*time.Second)
	v.SetDefault("nonce_scheme", NonceRandom)
	v.SetDefault("rate_ttl", 60*time.Second)
	v.SetDefault("provider_timeout", 3*time.Second)
	v.SetDefault("exchangerate_api_url", "https://open.er-api.com")
	v.SetDefault("frankfurter_url", "https://api.frankfurter.app")
	v.SetDefault("redis_db", 0)
	v.SetDefault("nats_subject", "evt.settlement.swap_executed.v1")
	v.SetDefault("http_read_timeout", 10*time.Second)
	v.SetDefault("http_write_timeout", 15*time.Second)
}

// Validate checks ranges and enumerations. Key presence is checked separately by HasKeySource.
func (c *Config) Validate() error {
	var errs []error
	if c.SpreadBps < 0 || c.SpreadBps >= 10000 {
		errs = append(errs, fmt.Errorf("spread_bps must be within [0, 10000), got %d", c.SpreadBps))
	}
	if c.FeeBps < 0 || c.FeeBps > 10000 {
		errs = append(errs, fmt.Errorf("fee_bps must be within [0, 10000], got %d", c.FeeBps))
	}
	if c.QuoteValidity <= 0 {
		errs = append(errs, fmt.Errorf("quote_validity must be positive, got %s", c.QuoteValidity))
	}
	if c.RateTTL <= 0 {
		errs = append(errs, fmt.Errorf("rate_ttl must be positive, got %s", c.RateTTL))
	}
	if c.ProviderTimeout <= 0 {
		errs = append(errs, fmt.Errorf("provider_timeout must be positive, got %s", c.ProviderTimeout))
	}
	if c.NonceScheme != NonceRandom && c.NonceScheme != NonceClock {
		errs = append(errs, fmt.Errorf("nonce_scheme must be %q or %q, got %q", NonceRandom, NonceClock, c.NonceScheme))
	}
	if c.KeystorePath != "" && c.KeystorePassword == "" {
		errs = append(errs, errors.New("keystore_password is required with keystore_path"))
	}
	return errors.Join(errs...)
}

// HasKeySource reports whether any dealer key source is configured.
func (c *Config) HasKeySource() bool {
	return c.PrivateKey != "" || c.KeystorePath != "" || c.Mnemonic != "" || c.KeySecretID != ""
}
