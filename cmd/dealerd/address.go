package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newAddressCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Print the dealer signing address",
		Long: `Load the dealer key from the configured source and print its address.
Compare it with the router's dealer() before going live.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			signer, err := newSigner(cfg)
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]string{"dealer": signer.Address().Hex()})
			}
			w := cmd.OutOrStdout()
			printHeader(w, "DEALER KEY")
			printField(w, "Address", color.CyanString(signer.Address().Hex()))
			printFooter(w)
			return nil
		},
	}
}
