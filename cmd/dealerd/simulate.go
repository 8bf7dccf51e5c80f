package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seabucks/dealer"
	"github.com/seabucks/dealer/config"
	"github.com/seabucks/dealer/events"
	"github.com/seabucks/dealer/quote"
	"github.com/seabucks/dealer/rates"
	"github.com/seabucks/dealer/settlement"
)

// Hardhat default accounts #1 and #2.
const (
	defaultPayer     = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	defaultRecipient = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
	defaultRouter    = "0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0"
)

type simulateOptions struct {
	amount    string
	currency  string
	payer     string
	recipient string
	memo      string
	offline   bool
}

// simulation is the outcome of one local quote-and-settle run.
type simulation struct {
	Currency      string                  `json:"currency"`
	EffectiveRate string                  `json:"effectiveRate"`
	RateSource    string                  `json:"rateSource"`
	Event         settlement.SwapExecuted `json:"event"`
	ReplayReason  string                  `json:"replayReason"`
	Balances      map[string]string       `json:"balances"`
	Published     bool                    `json:"published"`
}

func newSimulateCmd(opts *rootOptions) *cobra.Command {
	sim := &simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Quote and settle against an in-memory router",
		Long: `Issue a quote with the configured dealer key and settle it on an in-memory
Lisk Sepolia router, then replay it to show the nonce is single-use. When nats_url
is set the SwapExecuted event is published.

Examples:
  dealerd simulate --amount 100000000 --currency IDR --offline`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			sim.currency = strings.ToUpper(sim.currency)
			for _, a := range []string{sim.payer, sim.recipient} {
				if !common.IsHexAddress(a) {
					return fmt.Errorf("%q is not an address", a)
				}
			}

			stop := startSpinner(cmd, opts.jsonOutput, " Quoting and settling...")
			res, err := runSimulation(cmd.Context(), cfg, sim)
			stop()
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), res)
			}
			displaySimulation(cmd, res)
			return nil
		},
	}

	cmd.Flags().StringVar(&sim.amount, "amount", "100000000", "USDC amount in, smallest unit")
	cmd.Flags().StringVar(&sim.currency, "currency", "IDR", "Target currency")
	cmd.Flags().StringVar(&sim.payer, "payer", defaultPayer, "Payer address")
	cmd.Flags().StringVar(&sim.recipient, "recipient", defaultRecipient, "Recipient address")
	cmd.Flags().StringVar(&sim.memo, "memo", "SIMULATION", "Settlement memo")
	cmd.Flags().BoolVar(&sim.offline, "offline", false, "Price with fallback rates only")
	return cmd
}

func runSimulation(ctx context.Context, cfg *config.Config, sim *simulateOptions) (*simulation, error) {
	chainID := dealer.LiskSepoliaChainID
	token, ok := dealer.LiskSepolia.CurrencyTokens[sim.currency]
	if !ok {
		return nil, fmt.Errorf("%w: no Lisk Sepolia payout token for %q", dealer.ErrUnsupportedCurrency, sim.currency)
	}
	usdc := dealer.LiskSepolia.Stablecoins[0].Address

	routerAddr, ok := cfg.Routers[chainID]
	if !ok {
		routerAddr = common.HexToAddress(defaultRouter)
	}
	cfg.Routers = map[int64]common.Address{chainID: routerAddr}

	signer, err := newSigner(cfg)
	if err != nil {
		return nil, err
	}

	chain := rates.NewChain(rates.WithProviders())
	if !sim.offline {
		chain = newRateChain(cfg, zap.NewNop())
	}
	engine, err := newEngine(cfg, chain, signer, nil, zap.NewNop())
	if err != nil {
		return nil, err
	}

	issued, err := engine.Issue(ctx, quote.Request{
		TokenIn:        usdc.Hex(),
		TokenOut:       token.Hex(),
		AmountIn:       sim.amount,
		Recipient:      sim.recipient,
		TargetCurrency: sim.currency,
		ChainID:        chainID,
	})
	if err != nil {
		return nil, err
	}

	var routerOpts []settlement.RouterOption
	var pub *events.Publisher
	if cfg.NATSURL != "" {
		pub, err = events.Connect(cfg.NATSURL, cfg.NATSSubject, cfg.ServiceName)
		if err != nil {
			return nil, err
		}
		defer pub.Close()
		routerOpts = append(routerOpts, settlement.WithEventSink(pub))
	}

	router, err := settlement.NewRouter(settlement.Config{
		ChainID:  chainID,
		Address:  routerAddr,
		Dealer:   signer.Address(),
		Treasury: cfg.Treasury,
		FeeBps:   cfg.FeeBps,
	}, settlement.NewLedger(), routerOpts...)
	if err != nil {
		return nil, err
	}

	payer := common.HexToAddress(sim.payer)
	recipient := common.HexToAddress(sim.recipient)
	ledger := router.Ledger()
	ledger.Mint(usdc, payer, issued.Quote.AmountIn)
	ledger.Mint(token, signer.Address(), issued.Quote.AmountOut)
	if err := router.Deposit(token, signer.Address(), issued.Quote.AmountOut); err != nil {
		return nil, err
	}

	receipt, err := router.Settle(ctx, payer, issued.Signed, sim.memo)
	if err != nil {
		return nil, err
	}

	res := &simulation{
		Currency:      issued.Currency,
		EffectiveRate: issued.EffectiveRate.String(),
		RateSource:    issued.RateSource,
		Event:         receipt.Event,
		Published:     pub != nil,
		Balances: map[string]string{
			"payerUSDC":    balance(ledger, usdc, payer),
			"routerUSDC":   balance(ledger, usdc, routerAddr),
			"treasuryUSDC": balance(ledger, usdc, treasuryOf(cfg, signer.Address())),
			"recipient":    balance(ledger, token, recipient),
		},
	}

	_, err = router.Settle(ctx, payer, issued.Signed, sim.memo)
	var rev *settlement.RevertError
	if !errors.As(err, &rev) {
		return nil, fmt.Errorf("replayed quote did not revert: %v", err)
	}
	res.ReplayReason = rev.Reason
	return res, nil
}

func treasuryOf(cfg *config.Config, dealerAddr common.Address) common.Address {
	if cfg.Treasury == (common.Address{}) {
		return dealerAddr
	}
	return cfg.Treasury
}

func balance(l *settlement.Ledger, token, holder common.Address) string {
	return l.BalanceOf(token, holder).String()
}

func displaySimulation(cmd *cobra.Command, res *simulation) {
	w := cmd.OutOrStdout()
	ev := res.Event

	printHeader(w, "SIMULATED SETTLEMENT")
	printField(w, "Quote", fmt.Sprintf("%s -> %s %s", ev.AmountIn, ev.AmountOut, res.Currency))
	printField(w, "Rate", fmt.Sprintf("%s (%s)", res.EffectiveRate, res.RateSource))
	printField(w, "Fee", ev.Fee.String())
	printField(w, "Nonce", ev.Nonce.String())
	printField(w, "Event ID", color.CyanString(ev.ID))
	printField(w, "Replay", color.YellowString("reverted: %s", res.ReplayReason))
	if res.Published {
		printField(w, "Published", color.GreenString("yes"))
	}
	fmt.Fprintln(w)
	printField(w, "Payer USDC", res.Balances["payerUSDC"])
	printField(w, "Router USDC", res.Balances["routerUSDC"])
	printField(w, "Treasury USDC", res.Balances["treasuryUSDC"])
	printField(w, "Recipient "+res.Currency, res.Balances["recipient"])
	printFooter(w)
}
