package evm

import (
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/seabucks/dealer"
)

var testRouter = common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0")

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	key, err := NewDealerKey(WithPrivateKey(testPrivateKeyHex))
	if err != nil {
		t.Fatalf("failed to create dealer key: %v", err)
	}
	signer, err := NewSigner(key)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}
	return signer
}

func testQuote() dealer.Quote {
	return dealer.Quote{
		TokenIn:   common.HexToAddress("0x0E82fDDAd51cc3ac12b69761C45bBCB9A2Bf3C83"),
		TokenOut:  common.HexToAddress("0xcfF09905F8f18B35F5A1Ba6d2822D62B3d8c48bE"),
		AmountIn:  big.NewInt(100_000_000),
		AmountOut: big.NewInt(161_687_500),
		Recipient: common.HexToAddress("0x209693Bc6afc0C5328bA36FaF03C514EF312287C"),
		Nonce:     big.NewInt(1_700_000_000_000),
		Deadline:  big.NewInt(1_700_000_300),
	}
}

func TestNewSigner_NilKey(t *testing.T) {
	if _, err := NewSigner(nil); !errors.Is(err, dealer.ErrSigningUnavailable) {
		t.Fatalf("expected ErrSigningUnavailable, got %v", err)
	}

	var s *Signer
	if _, err := s.Sign(testQuote(), dealer.NewRouterDomain(4202, testRouter)); !errors.Is(err, dealer.ErrSigningUnavailable) {
		t.Fatalf("nil signer: expected ErrSigningUnavailable, got %v", err)
	}
}

func TestSignAndRecover(t *testing.T) {
	signer := newTestSigner(t)
	domain := dealer.NewRouterDomain(dealer.LiskSepoliaChainID, testRouter)
	q := testQuote()

	signature, err := signer.Sign(q, domain)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if !strings.HasPrefix(signature, "0x") || len(signature) != 132 {
		t.Fatalf("unexpected signature format: %s", signature)
	}
	raw := hexutil.MustDecode(signature)
	if raw[64] != 27 && raw[64] != 28 {
		t.Errorf("v = %d, want 27 or 28", raw[64])
	}

	got, err := RecoverSigner(q, domain, signature)
	if err != nil {
		t.Fatalf("RecoverSigner: %v", err)
	}
	if got != signer.Address() {
		t.Errorf("recovered %s, want %s", got.Hex(), signer.Address().Hex())
	}
}

func TestSign_UnencodableQuote(t *testing.T) {
	signer := newTestSigner(t)
	domain := dealer.NewRouterDomain(dealer.LiskSepoliaChainID, testRouter)
	q := testQuote()
	q.AmountIn = new(big.Int).Lsh(big.NewInt(1), 256)

	_, err := signer.Sign(q, domain)
	if err == nil {
		t.Fatal("expected an error for an amount wider than uint256")
	}
	if code := dealer.CodeOf(err); code != dealer.ErrCodeSigningFailed {
		t.Errorf("code = %s, want %s", code, dealer.ErrCodeSigningFailed)
	}
	if n := strings.Count(err.Error(), "failed to hash quote"); n != 1 {
		t.Errorf("error %q mentions the hash step %d times, want 1", err, n)
	}
}

func TestSign_Deterministic(t *testing.T) {
	signer := newTestSigner(t)
	domain := dealer.NewRouterDomain(dealer.LiskSepoliaChainID, testRouter)

	first, err := signer.Sign(testQuote(), domain)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	second, err := signer.Sign(testQuote(), domain)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if first != second {
		t.Error("RFC6979 signing must be deterministic for identical inputs")
	}
}

func TestSign_Concurrent(t *testing.T) {
	signer := newTestSigner(t)
	domain := dealer.NewRouterDomain(dealer.LiskSepoliaChainID, testRouter)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := testQuote()
			q.Nonce = big.NewInt(int64(i))
			sig, err := signer.Sign(q, domain)
			if err != nil {
				t.Errorf("Sign: %v", err)
				return
			}
			if err := Verify(dealer.SignedQuote{Quote: q, Domain: domain, Signature: sig}, signer.Address()); err != nil {
				t.Errorf("Verify: %v", err)
			}
		}(i)
	}
	wg.Wait()
}

func TestTamperingInvalidatesSignature(t *testing.T) {
	signer := newTestSigner(t)
	domain := dealer.NewRouterDomain(dealer.LiskSepoliaChainID, testRouter)
	q := testQuote()

	signature, err := signer.Sign(q, domain)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	other := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tests := []struct {
		name   string
		mutate func(q *dealer.Quote, d *dealer.Domain)
	}{
		{"tokenIn", func(q *dealer.Quote, _ *dealer.Domain) { q.TokenIn = other }},
		{"tokenOut", func(q *dealer.Quote, _ *dealer.Domain) { q.TokenOut = other }},
		{"amountIn", func(q *dealer.Quote, _ *dealer.Domain) { q.AmountIn = big.NewInt(99_000_000) }},
		{"amountOut", func(q *dealer.Quote, _ *dealer.Domain) { q.AmountOut = big.NewInt(161_687_501) }},
		{"recipient", func(q *dealer.Quote, _ *dealer.Domain) { q.Recipient = other }},
		{"nonce", func(q *dealer.Quote, _ *dealer.Domain) { q.Nonce = big.NewInt(1) }},
		{"deadline", func(q *dealer.Quote, _ *dealer.Domain) { q.Deadline = big.NewInt(1_800_000_000) }},
		{"chainId", func(_ *dealer.Quote, d *dealer.Domain) { d.ChainID = big.NewInt(dealer.LiskMainnetChainID) }},
		{"verifyingContract", func(_ *dealer.Quote, d *dealer.Domain) { d.VerifyingContract = other }},
		{"name", func(_ *dealer.Quote, d *dealer.Domain) { d.Name = "OtherRouter" }},
		{"version", func(_ *dealer.Quote, d *dealer.Domain) { d.Version = "2" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tq := testQuote()
			td := domain
			td.ChainID = new(big.Int).Set(domain.ChainID)
			tt.mutate(&tq, &td)

			err := Verify(dealer.SignedQuote{Quote: tq, Domain: td, Signature: signature}, signer.Address())
			if !errors.Is(err, dealer.ErrInvalidSignature) {
				t.Errorf("expected ErrInvalidSignature after changing %s, got %v", tt.name, err)
			}
		})
	}
}

func TestRecoverSigner_MalformedSignature(t *testing.T) {
	domain := dealer.NewRouterDomain(dealer.LiskSepoliaChainID, testRouter)
	tests := []string{
		"",
		"0x1234",
		"not-hex",
		"0x" + strings.Repeat("00", 65),
	}

	for _, sig := range tests {
		if _, err := RecoverSigner(testQuote(), domain, sig); !errors.Is(err, dealer.ErrInvalidSignature) {
			t.Errorf("RecoverSigner(%q): expected ErrInvalidSignature, got %v", sig, err)
		}
	}
}

func TestDomainSeparator_ChangesWithChain(t *testing.T) {
	a, err := DomainSeparator(dealer.NewRouterDomain(dealer.LiskSepoliaChainID, testRouter))
	if err != nil {
		t.Fatalf("DomainSeparator: %v", err)
	}
	b, err := DomainSeparator(dealer.NewRouterDomain(dealer.LiskMainnetChainID, testRouter))
	if err != nil {
		t.Fatalf("DomainSeparator: %v", err)
	}
	if a == b {
		t.Error("domain separator must depend on chainId")
	}
}
