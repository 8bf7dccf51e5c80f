package settlement_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/seabucks/dealer"
	"github.com/seabucks/dealer/evm"
	"github.com/seabucks/dealer/quote"
	"github.com/seabucks/dealer/settlement"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrivateKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	routerAddr = common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0")
	treasury   = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	payer      = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	recipient  = common.HexToAddress("0x209693Bc6afc0C5328bA36FaF03C514EF312287C")
	usdc       = dealer.LiskSepolia.Stablecoins[0].Address
	idrToken   = dealer.LiskSepolia.CurrencyTokens["IDR"]
	testNow    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

type recordingSink struct {
	mu     sync.Mutex
	events []settlement.SwapExecuted
	err    error
}

func (s *recordingSink) Publish(_ context.Context, ev settlement.SwapExecuted) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

type fixture struct {
	signer *evm.Signer
	router *settlement.Router
	ledger *settlement.Ledger
	sink   *recordingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	key, err := evm.NewDealerKey(evm.WithPrivateKey(testPrivateKeyHex))
	require.NoError(t, err)
	signer, err := evm.NewSigner(key)
	require.NoError(t, err)

	ledger := settlement.NewLedger()
	ledger.Mint(usdc, payer, big.NewInt(1_000_000_000))
	ledger.Mint(idrToken, treasury, big.NewInt(10_000_000_000))

	sink := &recordingSink{}
	router, err := settlement.NewRouter(settlement.Config{
		ChainID:  dealer.LiskSepoliaChainID,
		Address:  routerAddr,
		Dealer:   signer.Address(),
		Treasury: treasury,
		FeeBps:   settlement.DefaultFeeBps,
	}, ledger, settlement.WithEventSink(sink), settlement.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)

	require.NoError(t, router.Deposit(idrToken, treasury, big.NewInt(1_000_000_000)))
	return &fixture{signer: signer, router: router, ledger: ledger, sink: sink}
}

func testQuote(nonce int64) dealer.Quote {
	return dealer.Quote{
		TokenIn:   usdc,
		TokenOut:  idrToken,
		AmountIn:  big.NewInt(100_000_000),
		AmountOut: big.NewInt(161_687_500),
		Recipient: recipient,
		Nonce:     big.NewInt(nonce),
		Deadline:  big.NewInt(testNow.Add(5 * time.Minute).Unix()),
	}
}

func (f *fixture) sign(t *testing.T, q dealer.Quote) dealer.SignedQuote {
	t.Helper()
	sq, err := f.signer.SignQuote(q, f.router.Domain())
	require.NoError(t, err)
	return *sq
}

func requireRevert(t *testing.T, err error, want error, reason string) {
	t.Helper()
	require.ErrorIs(t, err, want)
	var re *settlement.RevertError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, reason, re.Reason)
}

func TestSettle_MovesFundsAndEmitsEvent(t *testing.T) {
	t.Parallel()

	// Arrange
	f := newFixture(t)
	sq := f.sign(t, testQuote(1))

	// Act
	receipt, err := f.router.Settle(t.Context(), payer, sq, "INV-42")

	// Assert: 1% fee to treasury, the rest to the router, payout to recipient.
	require.NoError(t, err)
	assert.Equal(t, "900000000", f.ledger.BalanceOf(usdc, payer).String())
	assert.Equal(t, "1000000", f.ledger.BalanceOf(usdc, treasury).String())
	assert.Equal(t, "99000000", f.ledger.BalanceOf(usdc, routerAddr).String())
	assert.Equal(t, "161687500", f.ledger.BalanceOf(idrToken, recipient).String())
	assert.Equal(t, "838312500", f.ledger.BalanceOf(idrToken, routerAddr).String())

	ev := receipt.Event
	assert.Equal(t, payer, ev.Payer)
	assert.Equal(t, recipient, ev.Recipient)
	assert.Equal(t, "1000000", ev.Fee.String())
	assert.Equal(t, "INV-42", ev.Memo)
	assert.NotEmpty(t, ev.ID)
	assert.True(t, f.router.IsNonceUsed(big.NewInt(1)))

	require.Len(t, f.sink.events, 1)
	assert.Equal(t, ev.ID, f.sink.events[0].ID)
}

func TestSettle_ReplayReverts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sq := f.sign(t, testQuote(7))

	_, err := f.router.Settle(t.Context(), payer, sq, "")
	require.NoError(t, err)

	// Identical payload again.
	_, err = f.router.Settle(t.Context(), payer, sq, "")
	requireRevert(t, err, settlement.ErrNonceConsumed, "nonce consumed")
	assert.Equal(t, "161687500", f.ledger.BalanceOf(idrToken, recipient).String())
}

func TestSettle_ExpiredReverts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	q := testQuote(2)
	q.Deadline = big.NewInt(testNow.Unix() - 1)
	sq := f.sign(t, q)

	_, err := f.router.Settle(t.Context(), payer, sq, "")
	requireRevert(t, err, settlement.ErrQuoteExpired, "quote expired")
	assert.False(t, f.router.IsNonceUsed(q.Nonce))
}

func TestSettle_DeadlineIsInclusive(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	q := testQuote(3)
	q.Deadline = big.NewInt(testNow.Unix())

	_, err := f.router.Settle(t.Context(), payer, f.sign(t, q), "")
	require.NoError(t, err)
}

func TestSettle_TamperedFieldsRevert(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(q *dealer.Quote)
	}{
		{"amountOut", func(q *dealer.Quote) { q.AmountOut = big.NewInt(999_999_999) }},
		{"amountIn", func(q *dealer.Quote) { q.AmountIn = big.NewInt(1) }},
		{"recipient", func(q *dealer.Quote) { q.Recipient = payer }},
		{"deadline", func(q *dealer.Quote) { q.Deadline = new(big.Int).Add(q.Deadline, big.NewInt(3600)) }},
		{"nonce", func(q *dealer.Quote) { q.Nonce = big.NewInt(99) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			sq := f.sign(t, testQuote(4))
			tt.mutate(&sq.Quote)

			_, err := f.router.Settle(t.Context(), payer, sq, "")
			requireRevert(t, err, dealer.ErrInvalidSignature, "invalid signature")
			assert.Equal(t, "1000000000", f.ledger.BalanceOf(usdc, payer).String())
		})
	}
}

func TestSettle_ForeignDomainReverts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	q := testQuote(5)

	for _, domain := range []dealer.Domain{
		dealer.NewRouterDomain(dealer.LiskMainnetChainID, routerAddr),
		dealer.NewRouterDomain(dealer.LiskSepoliaChainID, common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")),
	} {
		sq, err := f.signer.SignQuote(q, domain)
		require.NoError(t, err)

		_, err = f.router.Settle(t.Context(), payer, *sq, "")
		requireRevert(t, err, dealer.ErrInvalidSignature, "invalid signature")
	}
}

func TestSettle_WrongSignerReverts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	otherKey, err := evm.NewDealerKey(evm.WithMnemonic("test test test test test test test test test test test junk", 5))
	require.NoError(t, err)
	other, err := evm.NewSigner(otherKey)
	require.NoError(t, err)

	sq, err := other.SignQuote(testQuote(6), f.router.Domain())
	require.NoError(t, err)

	_, err = f.router.Settle(t.Context(), payer, *sq, "")
	requireRevert(t, err, dealer.ErrInvalidSignature, "invalid signature")
}

func TestSettle_InsufficientLiquidityLeavesNoTrace(t *testing.T) {
	t.Parallel()

	// Arrange: a payout larger than the router holds.
	f := newFixture(t)
	q := testQuote(8)
	q.AmountOut = big.NewInt(1_000_000_001)
	sq := f.sign(t, q)

	// Act
	_, err := f.router.Settle(t.Context(), payer, sq, "")

	// Assert: nothing moved and the nonce is still free.
	requireRevert(t, err, settlement.ErrInsufficientLiquidity, "insufficient liquidity")
	assert.Equal(t, "1000000000", f.ledger.BalanceOf(usdc, payer).String())
	assert.Equal(t, "0", f.ledger.BalanceOf(usdc, treasury).String())
	assert.Equal(t, "0", f.ledger.BalanceOf(usdc, routerAddr).String())
	assert.Equal(t, "0", f.ledger.BalanceOf(idrToken, recipient).String())
	assert.False(t, f.router.IsNonceUsed(q.Nonce))
	assert.Empty(t, f.sink.events)

	// Once liquidity arrives the same signed quote settles.
	require.NoError(t, f.router.Deposit(idrToken, treasury, big.NewInt(1)))
	_, err = f.router.Settle(t.Context(), payer, sq, "")
	require.NoError(t, err)
}

func TestSettle_InsufficientPayerBalance(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	poor := common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")

	_, err := f.router.Settle(t.Context(), poor, f.sign(t, testQuote(9)), "")
	requireRevert(t, err, settlement.ErrInsufficientBalance, "insufficient balance")
	assert.False(t, f.router.IsNonceUsed(big.NewInt(9)))
}

func TestSettle_ConcurrentSubmissionsSettleOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sq := f.sign(t, testQuote(10))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		consumed int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.router.Settle(context.Background(), payer, sq, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, settlement.ErrNonceConsumed):
				consumed++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 15, consumed)
	assert.Equal(t, "161687500", f.ledger.BalanceOf(idrToken, recipient).String())
}

type fixedRate struct{}

func (fixedRate) GetRate(_ context.Context, code string) (dealer.ExchangeRate, error) {
	return dealer.ExchangeRate{Currency: code, Rate: decimal.NewFromInt(16250), Source: "test", Timestamp: testNow}, nil
}

func TestSettle_DuplicateClockNoncesSettleOnce(t *testing.T) {
	t.Parallel()

	// Arrange: two quotes minted in the same millisecond share a clock nonce.
	f := newFixture(t)
	engine, err := quote.NewEngine(fixedRate{}, f.signer,
		quote.WithRouters(map[int64]common.Address{dealer.LiskSepoliaChainID: routerAddr}),
		quote.WithNonceSource(quote.ClockNonce{}),
		quote.WithClock(func() time.Time { return testNow }),
	)
	require.NoError(t, err)

	other := common.HexToAddress("0x15d34AAf54267DB7D7c367839AAf71A00a2C6A65")
	req := quote.Request{
		TokenIn:   usdc.Hex(),
		TokenOut:  idrToken.Hex(),
		AmountIn:  "100000000",
		Recipient: recipient.Hex(),
		ChainID:   dealer.LiskSepoliaChainID,
	}
	first, err := engine.Issue(t.Context(), req)
	require.NoError(t, err)
	req.Recipient = other.Hex()
	second, err := engine.Issue(t.Context(), req)
	require.NoError(t, err)
	require.Equal(t, 0, first.Quote.Nonce.Cmp(second.Quote.Nonce))

	// Act: submit both concurrently.
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, sq := range []dealer.SignedQuote{first.Signed, second.Signed} {
		wg.Add(1)
		go func(i int, sq dealer.SignedQuote) {
			defer wg.Done()
			_, errs[i] = f.router.Settle(context.Background(), payer, sq, "")
		}(i, sq)
	}
	wg.Wait()

	// Assert: exactly one settles, the other reverts with "nonce consumed".
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		requireRevert(t, err, settlement.ErrNonceConsumed, "nonce consumed")
	}
	assert.Equal(t, 1, succeeded)

	paid := new(big.Int).Add(f.ledger.BalanceOf(idrToken, recipient), f.ledger.BalanceOf(idrToken, other))
	assert.Equal(t, "161687500", paid.String())
}

func TestSettle_EventSinkFailureDoesNotRevert(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.sink.err = errors.New("nats unavailable")

	_, err := f.router.Settle(t.Context(), payer, f.sign(t, testQuote(11)), "")
	require.NoError(t, err)
	assert.True(t, f.router.IsNonceUsed(big.NewInt(11)))
}

func TestNewRouter_Validation(t *testing.T) {
	t.Parallel()

	_, err := settlement.NewRouter(settlement.Config{Dealer: payer}, nil)
	assert.Error(t, err)

	_, err = settlement.NewRouter(settlement.Config{Address: routerAddr, Dealer: payer, FeeBps: 10000}, nil)
	assert.Error(t, err)

	r, err := settlement.NewRouter(settlement.Config{Address: routerAddr, Dealer: payer}, nil)
	require.NoError(t, err)
	assert.NotNil(t, r.Ledger())
}
