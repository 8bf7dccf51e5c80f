package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/seabucks/dealer/config"
)

var version = "0.1.0"

type rootOptions struct {
	configFile string
	jsonOutput bool
	v          *viper.Viper
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	cmd := &cobra.Command{
		Use:   "dealerd",
		Short: "SEABucks dealer: signed stablecoin-to-local-currency quotes",
		Long: `dealerd prices USDC against Southeast Asian currencies, signs quotes with the
dealer key and serves them to payment clients and AI agents.

Examples:
  dealerd serve
  dealerd rates IDR THB
  dealerd quote --amount 100000000 --recipient 0x... --currency IDR
  dealerd verify <base64-signed-quote>
  dealerd simulate --amount 100000000 --currency IDR`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Config file (default ./.seabucks-dealer.yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.jsonOutput, "json", "j", false, "Output in JSON format")

	cmd.AddCommand(
		newServeCmd(opts),
		newRatesCmd(opts),
		newQuoteCmd(opts),
		newVerifyCmd(opts),
		newAddressCmd(opts),
		newSimulateCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load() (*config.Config, error) {
	loadOpts := []config.Option{config.WithViper(o.v)}
	if o.configFile != "" {
		loadOpts = append(loadOpts, config.WithConfigFile(o.configFile))
	}
	return config.Load(loadOpts...)
}
