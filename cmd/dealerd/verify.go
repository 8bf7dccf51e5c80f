package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/seabucks/dealer/encoding"
	"github.com/seabucks/dealer/evm"
	dealerhttp "github.com/seabucks/dealer/http"
)

// verifyResult is the local counterpart of the API's verify response.
type verifyResult struct {
	IsValid       bool      `json:"isValid"`
	InvalidReason string    `json:"invalidReason,omitempty"`
	Signer        string    `json:"signer,omitempty"`
	Expired       bool      `json:"expired"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	var server, dealerAddr string

	cmd := &cobra.Command{
		Use:   "verify <signed-quote>",
		Short: "Check an X-SIGNED-QUOTE value",
		Long: `Decode a base64 signed quote, recover its signer and check the deadline.

Locally the signer is compared with --dealer when given. With --server the dealer
also checks the router's consumed nonces.

Examples:
  dealerd verify eyJxdW90ZSI6... --dealer 0xf39F...
  dealerd verify eyJxdW90ZSI6... --server http://localhost:8080`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sq, err := encoding.DecodeSignedQuote(args[0])
			if err != nil {
				return err
			}

			if server != "" {
				client, err := dealerhttp.NewClient(server)
				if err != nil {
					return err
				}
				stop := startSpinner(cmd, opts.jsonOutput, " Verifying quote...")
				resp, err := client.Verify(cmd.Context(), sq)
				stop()
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), resp)
				}
				return displayVerify(cmd, verifyResult{
					IsValid:       resp.IsValid,
					InvalidReason: resp.InvalidReason,
					Signer:        resp.Dealer,
					Expired:       resp.Expired,
					ExpiresAt:     resp.ExpiresAt,
				})
			}

			if dealerAddr != "" && !common.IsHexAddress(dealerAddr) {
				return fmt.Errorf("--dealer: %q is not an address", dealerAddr)
			}

			res := verifyResult{Expired: sq.Quote.Expired(time.Now())}
			if sq.Quote.Deadline != nil {
				res.ExpiresAt = time.Unix(sq.Quote.Deadline.Int64(), 0).UTC()
			}
			signer, err := evm.RecoverSigner(sq.Quote, sq.Domain, sq.Signature)
			switch {
			case err != nil:
				res.InvalidReason = "invalid signature"
			case dealerAddr != "" && signer != common.HexToAddress(dealerAddr):
				res.Signer = signer.Hex()
				res.InvalidReason = "signer is not the dealer"
			case res.Expired:
				res.Signer = signer.Hex()
				res.InvalidReason = "quote expired"
			default:
				res.Signer = signer.Hex()
				res.IsValid = true
			}

			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), res)
			}
			return displayVerify(cmd, res)
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "Dealer base URL; verify locally when empty")
	cmd.Flags().StringVar(&dealerAddr, "dealer", "", "Expected dealer address (local mode)")
	return cmd
}

var errInvalidQuote = errors.New("signed quote is not valid")

func displayVerify(cmd *cobra.Command, res verifyResult) error {
	w := cmd.OutOrStdout()
	printHeader(w, "QUOTE VERIFICATION")
	printField(w, "Result", coloredVerdict(res.IsValid, res.InvalidReason))
	if res.Signer != "" {
		printField(w, "Signer", res.Signer)
	}
	printField(w, "Expires", res.ExpiresAt.Format(time.RFC3339))
	printFooter(w)

	if !res.IsValid {
		return errInvalidQuote
	}
	return nil
}
