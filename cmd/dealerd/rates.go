package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seabucks/dealer"
	dealerhttp "github.com/seabucks/dealer/http"
)

func newRatesCmd(opts *rootOptions) *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "rates [CURRENCY...]",
		Short: "Show USD reference rates",
		Long: `Resolve USD reference rates through the provider chain, or ask a running
dealer with --server.

Examples:
  dealerd rates
  dealerd rates IDR THB
  dealerd rates --server http://localhost:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			codes := make([]string, 0, len(args))
			for _, a := range args {
				codes = append(codes, strings.ToUpper(a))
			}
			if len(codes) == 0 {
				codes = dealer.CurrencyCodes()
			}

			stop := startSpinner(cmd, opts.jsonOutput, " Fetching rates...")
			found, err := fetchRates(cmd, opts, server, codes)
			stop()
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), found)
			}
			displayRates(cmd, found)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "Dealer base URL; resolve locally when empty")
	return cmd
}

func fetchRates(cmd *cobra.Command, opts *rootOptions, server string, codes []string) (map[string]dealer.ExchangeRate, error) {
	if server == "" {
		cfg, err := opts.load()
		if err != nil {
			return nil, err
		}
		return newRateChain(cfg, zap.NewNop()).GetRates(cmd.Context(), codes)
	}

	client, err := dealerhttp.NewClient(server)
	if err != nil {
		return nil, err
	}
	out := make(map[string]dealer.ExchangeRate, len(codes))
	for _, code := range codes {
		r, err := client.Rate(cmd.Context(), code)
		if err != nil {
			return nil, err
		}
		out[code] = r
	}
	return out, nil
}

func displayRates(cmd *cobra.Command, found map[string]dealer.ExchangeRate) {
	w := cmd.OutOrStdout()
	codes := make([]string, 0, len(found))
	for code := range found {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	printHeader(w, "USD REFERENCE RATES")
	fmt.Fprintf(w, "  %-6s %-16s %s\n", "CCY", "RATE", "SOURCE")
	for _, code := range codes {
		r := found[code]
		source := r.Source
		if strings.HasPrefix(source, "Fallback") {
			source = color.YellowString(source)
		}
		fmt.Fprintf(w, "  %s %-16s %s\n", color.CyanString("%-6s", code), r.Rate.String(), source)
	}
	printFooter(w)
}
