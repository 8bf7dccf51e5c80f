package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	mcpproto "github.com/mark3labs/mcp-go/mcp"
	"github.com/shopspring/decimal"

	"github.com/seabucks/dealer"
	"github.com/seabucks/dealer/encoding"
	"github.com/seabucks/dealer/evm"
	dealerhttp "github.com/seabucks/dealer/http"
	"github.com/seabucks/dealer/quote"
)

const testPrivateKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	testDealer = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	testRouter = common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0")
	testNow    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

type fixedRates struct{}

func (fixedRates) GetRate(_ context.Context, code string) (dealer.ExchangeRate, error) {
	cfg, ok := dealer.LookupCurrency(code)
	if !ok {
		return dealer.ExchangeRate{}, dealer.ErrUnsupportedCurrency
	}
	return dealer.ExchangeRate{Currency: code, Rate: cfg.FallbackRate, Source: "Fallback (offline)", Timestamp: testNow}, nil
}

func (f fixedRates) GetRates(ctx context.Context, codes []string) (map[string]dealer.ExchangeRate, error) {
	out := map[string]dealer.ExchangeRate{}
	for _, c := range codes {
		r, err := f.GetRate(ctx, c)
		if err != nil {
			return nil, err
		}
		out[c] = r
	}
	return out, nil
}

func newTestServer(t *testing.T, withKey bool) *Server {
	t.Helper()

	var signer quote.Signer
	if withKey {
		key, err := evm.NewDealerKey(evm.WithPrivateKey(testPrivateKeyHex))
		if err != nil {
			t.Fatalf("NewDealerKey: %v", err)
		}
		s, err := evm.NewSigner(key)
		if err != nil {
			t.Fatalf("NewSigner: %v", err)
		}
		signer = s
	}

	engine, err := quote.NewEngine(fixedRates{}, signer,
		quote.WithRouters(map[int64]common.Address{dealer.LiskSepoliaChainID: testRouter}),
		quote.WithClock(func() time.Time { return testNow }),
	)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return NewServer("seabucks-dealer", "test", engine, fixedRates{})
}

func callRequest(name string, args map[string]any) mcpproto.CallToolRequest {
	req := mcpproto.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcpproto.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := res.Content[0].(mcpproto.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", res.Content[0])
	}
	return text.Text
}

func TestTools(t *testing.T) {
	names := map[string]bool{}
	for _, tool := range Tools() {
		names[tool.Name] = true
	}
	for _, want := range []string{ToolGetQuote, ToolGetRates, ToolGetStatus} {
		if !names[want] {
			t.Errorf("missing tool %s", want)
		}
	}

	quoteTool := Tools()[0]
	for _, field := range []string{"tokenIn", "tokenOut", "amountIn", "recipient"} {
		found := false
		for _, r := range quoteTool.InputSchema.Required {
			if r == field {
				found = true
			}
		}
		if !found {
			t.Errorf("get_quote should require %s", field)
		}
	}
}

func TestGetQuote(t *testing.T) {
	s := newTestServer(t, true)

	res, err := s.handleGetQuote(context.Background(), callRequest(ToolGetQuote, map[string]any{
		"tokenIn":   "0x0E82fDDAd51cc3ac12b69761C45bBCB9A2Bf3C83",
		"tokenOut":  "0xcfF09905F8f18B35F5A1Ba6d2822D62B3d8c48bE",
		"amountIn":  "100000000",
		"recipient": "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		"currency":  "idr",
		"chainId":   float64(4202),
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}

	var resp dealerhttp.QuoteResponse
	if err := json.Unmarshal([]byte(resultText(t, res)), &resp); err != nil {
		t.Fatalf("result is not a quote: %v", err)
	}
	// Fallback IDR rate 16250 at 50 bps.
	if resp.AmountOut != "161687500" {
		t.Errorf("expected amountOut 161687500, got %s", resp.AmountOut)
	}
	if resp.RateSource != "Fallback (offline)" {
		t.Errorf("expected fallback source, got %s", resp.RateSource)
	}

	sq, err := encoding.DecodeSignedQuote(resp.Encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := evm.Verify(sq, testDealer); err != nil {
		t.Errorf("signature does not verify: %v", err)
	}
}

func TestGetQuote_Errors(t *testing.T) {
	tests := []struct {
		name    string
		withKey bool
		args    map[string]any
		code    dealer.ErrorCode
	}{
		{
			name:    "missing amount",
			withKey: true,
			args: map[string]any{
				"tokenIn":   "0x0E82fDDAd51cc3ac12b69761C45bBCB9A2Bf3C83",
				"tokenOut":  "0xcfF09905F8f18B35F5A1Ba6d2822D62B3d8c48bE",
				"recipient": "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
			},
			code: dealer.ErrCodeInvalidRequest,
		},
		{
			name:    "unsupported chain",
			withKey: true,
			args: map[string]any{
				"tokenIn":   "0x0E82fDDAd51cc3ac12b69761C45bBCB9A2Bf3C83",
				"tokenOut":  "0xcfF09905F8f18B35F5A1Ba6d2822D62B3d8c48bE",
				"amountIn":  "1000000",
				"recipient": "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
				"chainId":   float64(1),
			},
			code: dealer.ErrCodeUnsupportedChain,
		},
		{
			name:    "no dealer key",
			withKey: false,
			args: map[string]any{
				"tokenIn":   "0x0E82fDDAd51cc3ac12b69761C45bBCB9A2Bf3C83",
				"tokenOut":  "0xcfF09905F8f18B35F5A1Ba6d2822D62B3d8c48bE",
				"amountIn":  "1000000",
				"recipient": "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
			},
			code: dealer.ErrCodeSigningUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.withKey)
			res, err := s.handleGetQuote(context.Background(), callRequest(ToolGetQuote, tt.args))
			if err != nil {
				t.Fatalf("handler error: %v", err)
			}
			if !res.IsError {
				t.Fatal("expected tool error")
			}
			if text := resultText(t, res); !strings.HasPrefix(text, string(tt.code)) {
				t.Errorf("expected %s, got %q", tt.code, text)
			}
		})
	}
}

func TestGetRates(t *testing.T) {
	s := newTestServer(t, true)

	res, err := s.handleGetRates(context.Background(), callRequest(ToolGetRates, map[string]any{"currency": "thb"}))
	if err != nil || res.IsError {
		t.Fatalf("unexpected failure: %v", err)
	}
	var rate dealer.ExchangeRate
	if err := json.Unmarshal([]byte(resultText(t, res)), &rate); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rate.Currency != "THB" || !rate.Rate.Equal(decimal.RequireFromString("34.5")) {
		t.Errorf("unexpected rate %+v", rate)
	}

	res, err = s.handleGetRates(context.Background(), callRequest(ToolGetRates, nil))
	if err != nil || res.IsError {
		t.Fatalf("unexpected failure: %v", err)
	}
	var all map[string]dealer.ExchangeRate
	if err := json.Unmarshal([]byte(resultText(t, res)), &all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(all) != len(dealer.CurrencyCodes()) {
		t.Errorf("expected %d rates, got %d", len(dealer.CurrencyCodes()), len(all))
	}

	res, _ = s.handleGetRates(context.Background(), callRequest(ToolGetRates, map[string]any{"currency": "EUR"}))
	if !res.IsError {
		t.Error("expected error for EUR")
	}
}

func TestGetStatus(t *testing.T) {
	for _, withKey := range []bool{true, false} {
		s := newTestServer(t, withKey)
		res, err := s.handleGetStatus(context.Background(), callRequest(ToolGetStatus, nil))
		if err != nil {
			t.Fatalf("handler error: %v", err)
		}
		var status dealerhttp.HealthResponse
		if err := json.Unmarshal([]byte(resultText(t, res)), &status); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if status.DealerConfigured != withKey {
			t.Errorf("withKey=%v: dealerConfigured=%v", withKey, status.DealerConfigured)
		}
	}
}

func TestHandler(t *testing.T) {
	if newTestServer(t, true).Handler() == nil {
		t.Fatal("expected handler")
	}
}
