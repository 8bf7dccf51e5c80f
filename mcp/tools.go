package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mcpproto "github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/seabucks/dealer"
	dealerhttp "github.com/seabucks/dealer/http"
	"github.com/seabucks/dealer/quote"
)

func getQuoteTool() mcpproto.Tool {
	return mcpproto.NewTool(
		ToolGetQuote,
		mcpproto.WithDescription("Issue a dealer-signed quote converting a USD stablecoin amount into a Southeast Asian currency token"),
		mcpproto.WithString("tokenIn", mcpproto.Required(), mcpproto.Description("Stablecoin address paid in")),
		mcpproto.WithString("tokenOut", mcpproto.Required(), mcpproto.Description("Currency token address paid out")),
		mcpproto.WithString("amountIn", mcpproto.Required(), mcpproto.Description("Amount in the smallest unit of tokenIn, base-10 integer")),
		mcpproto.WithString("recipient", mcpproto.Required(), mcpproto.Description("Address receiving tokenOut")),
		mcpproto.WithString("currency", mcpproto.Description("Target currency code, e.g. IDR; derived from tokenOut when omitted")),
		mcpproto.WithNumber("chainId", mcpproto.Description("EVM chain ID (default 4202, Lisk Sepolia)")),
	)
}

func getRatesTool() mcpproto.Tool {
	return mcpproto.NewTool(
		ToolGetRates,
		mcpproto.WithDescription("USD reference rates with the tier that produced each one"),
		mcpproto.WithString("currency", mcpproto.Description("Single currency code; all supported currencies when omitted")),
	)
}

func getStatusTool() mcpproto.Tool {
	return mcpproto.NewTool(
		ToolGetStatus,
		mcpproto.WithDescription("Whether the dealer can sign, which chains it serves, its spread and quote validity"),
	)
}

func (s *Server) handleGetQuote(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
	args := req.GetArguments()

	chainID := dealer.LiskSepoliaChainID
	if v, ok := args["chainId"].(float64); ok {
		chainID = int64(v)
	}

	issued, err := s.quotes.Issue(ctx, quote.Request{
		TokenIn:        stringArg(args, "tokenIn"),
		TokenOut:       stringArg(args, "tokenOut"),
		AmountIn:       stringArg(args, "amountIn"),
		Recipient:      stringArg(args, "recipient"),
		TargetCurrency: strings.ToUpper(stringArg(args, "currency")),
		ChainID:        chainID,
	})
	if err != nil {
		return toolError(err), nil
	}

	resp, err := dealerhttp.NewQuoteResponse(issued)
	if err != nil {
		s.log.Error("mcp.quote_encode_failed", zap.Error(err))
		return toolError(err), nil
	}
	return jsonResult(resp)
}

func (s *Server) handleGetRates(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
	code := strings.ToUpper(stringArg(req.GetArguments(), "currency"))
	if code != "" {
		rate, err := s.rates.GetRate(ctx, code)
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(rate)
	}

	all, err := s.rates.GetRates(ctx, dealer.CurrencyCodes())
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(all)
}

func (s *Server) handleGetStatus(_ context.Context, _ mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
	return jsonResult(dealerhttp.NewHealthResponse(s.quotes))
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

// toolError reports failures in-band so the model sees the code and message.
func toolError(err error) *mcpproto.CallToolResult {
	code := dealer.CodeOf(err)
	msg := err.Error()
	var de *dealer.DealerError
	switch {
	case errors.As(err, &de):
		msg = de.Message
	case code == dealer.ErrCodeInternal:
		msg = "internal error"
	}
	return mcpproto.NewToolResultError(fmt.Sprintf("%s: %s", code, msg))
}

func jsonResult(v any) (*mcpproto.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool result: %w", err)
	}
	return mcpproto.NewToolResultText(string(data)), nil
}
