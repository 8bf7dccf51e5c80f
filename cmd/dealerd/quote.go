package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/seabucks/dealer"
	dealerhttp "github.com/seabucks/dealer/http"
)

func newQuoteCmd(opts *rootOptions) *cobra.Command {
	var (
		server string
		req    dealerhttp.QuoteRequest
	)

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Request a signed quote from a running dealer",
		Long: `Request a signed quote and print it with the X-SIGNED-QUOTE header value.

Amounts are integers in the smallest unit of the input token (USDC has 6 decimals).

Examples:
  dealerd quote --amount 100000000 --recipient 0x... --currency IDR
  dealerd quote --amount 2500000 --recipient 0x... --token-out 0x... --chain-id 4202`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Currency = strings.ToUpper(req.Currency)
			if req.TokenOut == "" {
				token, ok := dealer.LiskSepolia.CurrencyTokens[req.Currency]
				if !ok || req.ChainID != dealer.LiskSepoliaChainID {
					return errors.New("--token-out is required unless --currency names a Lisk Sepolia payout token")
				}
				req.TokenOut = token.Hex()
			}

			client, err := dealerhttp.NewClient(server)
			if err != nil {
				return err
			}

			stop := startSpinner(cmd, opts.jsonOutput, " Requesting quote...")
			resp, _, err := client.RequestQuote(cmd.Context(), req)
			stop()
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			displayQuote(cmd, resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "Dealer base URL")
	cmd.Flags().StringVar(&req.TokenIn, "token-in", dealer.LiskSepolia.Stablecoins[0].Address.Hex(), "Stablecoin paid in")
	cmd.Flags().StringVar(&req.TokenOut, "token-out", "", "Currency token paid out")
	cmd.Flags().StringVar(&req.AmountIn, "amount", "", "Amount in, smallest unit")
	cmd.Flags().StringVar(&req.Recipient, "recipient", "", "Payout recipient")
	cmd.Flags().StringVar(&req.Currency, "currency", "IDR", "Target currency")
	cmd.Flags().Int64Var(&req.ChainID, "chain-id", dealer.LiskSepoliaChainID, "Chain ID")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("recipient")
	return cmd
}

func displayQuote(cmd *cobra.Command, resp *dealerhttp.QuoteResponse) {
	w := cmd.OutOrStdout()
	printHeader(w, "SIGNED QUOTE")
	printField(w, "Currency", color.CyanString(resp.Currency))
	printField(w, "Amount in", resp.AmountIn)
	printField(w, "Amount out", color.GreenString(resp.AmountOut))
	printField(w, "Rate", fmt.Sprintf("%s (effective %s, spread %d bps)", resp.Rate, resp.EffectiveRate, resp.SpreadBps))
	printField(w, "Rate source", resp.RateSource)
	printField(w, "Nonce", resp.Nonce)
	printField(w, "Expires", resp.ExpiresAt.Format(time.RFC3339))
	printField(w, "Dealer", resp.Dealer)
	printField(w, "Router", resp.VerifyingContract)
	fmt.Fprintf(w, "\n  %s\n  %s\n", color.HiBlackString(dealerhttp.SignedQuoteHeader+":"), resp.Encoded)
	printFooter(w)
}
